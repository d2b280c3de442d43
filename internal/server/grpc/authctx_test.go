package grpcserver

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func makeJWT(t *testing.T, sub string, key []byte, method jwt.SigningMethod, iat time.Time, ttl time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   sub,
		IssuedAt:  jwt.NewNumericDate(iat),
		NotBefore: jwt.NewNumericDate(iat),
		ExpiresAt: jwt.NewNumericDate(iat.Add(ttl)),
	}
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return s
}

func ctxWithAuth(token string) context.Context {
	md := metadata.New(map[string]string{"authorization": "Bearer " + token})
	return metadata.NewIncomingContext(context.Background(), md)
}

func TestWithInstanceID_And_InstanceIDFromCtx(t *testing.T) {
	t.Parallel()

	if id, ok := InstanceIDFromCtx(context.Background()); ok || id != uuid.Nil {
		t.Fatalf("expected no instance id in empty ctx")
	}

	want := uuid.Must(uuid.NewV4())
	got, ok := InstanceIDFromCtx(WithInstanceID(context.Background(), want))
	if !ok || got != want {
		t.Fatalf("mismatch: got %s (%v), want %s", got, ok, want)
	}

	bad := context.WithValue(context.Background(), instanceIDKey, "not-uuid")
	if id, ok := InstanceIDFromCtx(bad); ok || id != uuid.Nil {
		t.Fatalf("expected miss on wrong typed value")
	}
}

func Test_bearerTokenFromMD_OkAndErrors(t *testing.T) {
	t.Parallel()

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer abc.def.ghi"))
	got, err := bearerTokenFromMD(ctx)
	if err != nil || got != "abc.def.ghi" {
		t.Fatalf("ok: got=%q err=%v", got, err)
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Basic foo"))
	if _, err := bearerTokenFromMD(ctx); err == nil {
		t.Fatalf("want error on non-bearer")
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer   "))
	if _, err := bearerTokenFromMD(ctx); err == nil {
		t.Fatalf("want error on empty token")
	}

	if _, err := bearerTokenFromMD(context.Background()); err == nil {
		t.Fatalf("want error on no metadata")
	}
}

func Test_instanceIDFromToken(t *testing.T) {
	t.Parallel()

	key := []byte("k")
	id := uuid.Must(uuid.NewV4())
	now := time.Now()

	got, err := instanceIDFromToken(ctxWithAuth(makeJWT(t, id.String(), key, jwt.SigningMethodHS256, now, time.Minute)), key)
	if err != nil || got != id {
		t.Fatalf("valid: got=%s err=%v", got, err)
	}

	tests := []struct {
		name string
		tok  string
	}{
		{"wrong key", makeJWT(t, id.String(), []byte("other"), jwt.SigningMethodHS256, now, time.Minute)},
		{"wrong alg", makeJWT(t, id.String(), key, jwt.SigningMethodHS512, now, time.Minute)},
		{"expired", makeJWT(t, id.String(), key, jwt.SigningMethodHS256, now.Add(-2*time.Hour), time.Minute)},
		{"bad subject", makeJWT(t, "nope", key, jwt.SigningMethodHS256, now, time.Minute)},
		{"garbage", "a.b.c"},
	}
	for _, tt := range tests {
		if _, err := instanceIDFromToken(ctxWithAuth(tt.tok), key); err == nil {
			t.Fatalf("%s: want error", tt.name)
		}
	}
}

func TestAuthUnary(t *testing.T) {
	t.Parallel()

	key := []byte("k")
	ic := AuthUnary(key, MethodValidate)
	var seen uuid.UUID
	h := func(ctx context.Context, _ any) (any, error) {
		seen, _ = InstanceIDFromCtx(ctx)
		return "ok", nil
	}

	// public methods pass without a token
	if _, err := ic(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: FullMethod(MethodValidate)}, h); err != nil {
		t.Fatalf("public: %v", err)
	}

	info := &grpc.UnaryServerInfo{FullMethod: FullMethod(MethodView)}
	_, err := ic(context.Background(), nil, info, h)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("want Unauthenticated, got %v", err)
	}

	id := uuid.Must(uuid.NewV4())
	tok := makeJWT(t, id.String(), key, jwt.SigningMethodHS256, time.Now(), time.Minute)
	if _, err := ic(ctxWithAuth(tok), nil, info, h); err != nil {
		t.Fatalf("authorized: %v", err)
	}
	if seen != id {
		t.Fatalf("instance id not propagated: %s", seen)
	}
}
