package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/and161185/uiruntime/internal/convert"
	grpcserver "github.com/and161185/uiruntime/internal/server/grpc"
)

// transport describes how to reach the server.
type transport struct {
	addr       string
	caFile     string
	skipVerify bool
	plaintext  bool
}

// tokenAuth attaches an instance token to every call.
type tokenAuth struct {
	token    string
	needsTLS  bool
}

func (a tokenAuth) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + a.token}, nil
}

func (a tokenAuth) RequireTransportSecurity() bool { return a.needsTLS }

func (t transport) creds() (credentials.TransportCredentials, error) {
	switch {
	case t.plaintext:
		return insecure.NewCredentials(), nil
	case t.skipVerify:
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil
	case t.caFile == "":
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(t.caFile)
	if err != nil {
		return nil, err
	}
	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(pem) {
		return nil, errors.New("no certificates in " + t.caFile)
	}
	return credentials.NewTLS(&tls.Config{RootCAs: roots, MinVersion: tls.VersionTLS12}), nil
}

// connect builds a client connection. token may be empty for public methods.
func (t transport) connect(token string) (*grpc.ClientConn, error) {
	creds, err := t.creds()
	if err != nil {
		return nil, fmt.Errorf("tls: %w", err)
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if token != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(tokenAuth{token: token, needsTLS: !t.plaintext}))
	}
	return grpc.NewClient(t.addr, opts...)
}

// invoke runs one method and decodes the answer into out.
func (t transport) invoke(ctx context.Context, token, method string, req, out any) error {
	in, err := convert.ToStruct(req)
	if err != nil {
		return err
	}
	cc, err := t.connect(token)
	if err != nil {
		return err
	}
	defer cc.Close()
	resp, err := grpcserver.NewClient(cc).Call(ctx, method, in)
	if err != nil {
		return err
	}
	return convert.FromStruct(resp, out)
}
