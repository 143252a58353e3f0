package engine

import (
	"context"
	"crypto/tls"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/sunny-chung/hello-http-sub000/pkg/apispec"
	"github.com/sunny-chung/hello-http-sub000/pkg/config"
	hhtls "github.com/sunny-chung/hello-http-sub000/pkg/tls"
)

// startTLSHealthServer runs a TLS gRPC server exposing the health service and
// reflection. It returns the address and the PEM of the issuing CA.
func startTLSHealthServer(t *testing.T) (string, string) {
	t.Helper()
	ca, err := hhtls.GenerateSelfSignedCert(&hhtls.CertificateConfig{Organization: "test", CommonName: "CA", IsCA: true})
	require.NoError(t, err)
	leaf, err := hhtls.GenerateSignedCert(hhtls.LocalhostConfig(), ca)
	require.NoError(t, err)
	cert, err := leaf.TLSCertificate()
	require.NoError(t, err)

	srv := grpc.NewServer(grpc.Creds(credentials.NewTLS(&tls.Config{Certificates: []tls.Certificate{cert}})))
	healthpb.RegisterHealthServer(srv, health.NewServer())
	reflection.Register(srv)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return lis.Addr().String(), string(ca.CertPEM)
}

func TestEngine_FetchGRPCSpecTLS(t *testing.T) {
	addr, caPEM := startTLSHealthServer(t)

	cfg := config.Default()
	cfg.Subprojects = map[string]config.SubprojectConfig{
		"secure": {SSL: config.SSLConfig{
			DisableSystemCACertificates: config.Bool(true),
			TrustedCACertificates:       []config.TrustedCACertificate{{Name: "local", PEM: caPEM}},
		}},
	}
	eng, err := New(WithConfig(cfg))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	spec, err := eng.FetchGRPCSpec(ctx, "grpcs://"+addr, "secure")
	require.NoError(t, err)
	assert.Equal(t, apispec.SourceReflection, spec.Source)
	assert.Equal(t, []string{"grpc.health.v1.Health"}, spec.Services())

	check, err := spec.FindMethod("grpc.health.v1.Health", "Check")
	require.NoError(t, err)
	assert.True(t, check.IsUnary())

	// The default subproject trusts only the system roots.
	_, err = eng.FetchGRPCSpec(ctx, "grpcs://"+addr, "")
	assert.Error(t, err)
}
