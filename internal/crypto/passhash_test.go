package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// cheap keeps argon2 fast in tests.
var cheap = &Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16, SaltLen: 8}

func TestRandBytes(t *testing.T) {
	t.Parallel()

	a, err := RandBytes(32)
	require.NoError(t, err)
	b, err := RandBytes(32)
	require.NoError(t, err)
	require.Len(t, a, 32)
	require.NotEqual(t, a, b)
}

func TestArgon2Verifier_RoundTrip(t *testing.T) {
	t.Parallel()

	v := Argon2Verifier{Params: cheap}
	stored, err := v.Hash("s3cret")
	require.NoError(t, err)
	require.True(t, IsHashed(stored))
	require.True(t, strings.HasPrefix(stored, "$argon2id$v=19$m=1024,t=1,p=1$"), stored)

	require.True(t, v.Verify("s3cret", stored))
	require.False(t, v.Verify("s3cret!", stored))
	require.False(t, v.Verify("", stored))

	again, err := v.Hash("s3cret")
	require.NoError(t, err)
	require.NotEqual(t, stored, again, "salt must be fresh per hash")
}

func TestArgon2Verifier_ParamsTravelWithCredential(t *testing.T) {
	t.Parallel()

	stored, err := Argon2Verifier{Params: cheap}.Hash("pw")
	require.NoError(t, err)
	// a verifier configured with other costs still reads the stored ones
	require.True(t, Argon2Verifier{}.Verify("pw", stored))
}

func TestArgon2Verifier_Verify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		legacy   bool
		password string
		stored   string
		want     bool
	}{
		{"plaintext rejected by default", false, "x", "x", false},
		{"legacy plaintext match", true, "x", "x", true},
		{"legacy plaintext mismatch", true, "y", "x", false},
		{"empty stored never verifies", true, "", "", false},
		{"too few fields", true, "x", "$argon2id$broken", false},
		{"wrong version", false, "x", "$argon2id$v=16$m=1024,t=1,p=1$c2FsdA$a2V5", false},
		{"bad params", false, "x", "$argon2id$v=19$m=x,t=1,p=1$c2FsdA$a2V5", false},
		{"bad base64", false, "x", "$argon2id$v=19$m=1024,t=1,p=1$!!$a2V5", false},
		{"zero time", false, "x", "$argon2id$v=19$m=8,t=0,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5", false},
		{"zero threads", false, "x", "$argon2id$v=19$m=1024,t=1,p=0$c2FsdHNhbHQ$a2V5a2V5a2V5", false},
		{"memory below 8 per thread", false, "x", "$argon2id$v=19$m=15,t=1,p=2$c2FsdHNhbHQ$a2V5a2V5a2V5", false},
		{"huge memory", false, "x", "$argon2id$v=19$m=4294967295,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5", false},
		{"huge time", false, "x", "$argon2id$v=19$m=1024,t=100000,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5", false},
		{"oversized key", false, "x", "$argon2id$v=19$m=1024,t=1,p=1$c2FsdHNhbHQ$" + strings.Repeat("A", 172), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got bool
			require.NotPanics(t, func() {
				got = Argon2Verifier{Params: cheap, Legacy: tt.legacy}.Verify(tt.password, tt.stored)
			})
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Bounds(t *testing.T) {
	t.Parallel()

	_, _, _, err := parse("$argon2id$v=19$m=8,t=0,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5")
	require.ErrorIs(t, err, errMalformed)

	p, salt, key, err := parse("$argon2id$v=19$m=8,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5")
	require.NoError(t, err)
	require.Equal(t, Params{Time: 1, Memory: 8, Threads: 1}, p)
	require.Equal(t, []byte("saltsalt"), salt)
	require.Equal(t, []byte("keykeykey"), key)
}
