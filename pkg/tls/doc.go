// Package tls turns a declarative SSL configuration into TLS client material.
//
// Build is a pure function of config.SSLConfig. The resulting Material hands
// out a fresh *tls.Config per connection so that adapters can set their own
// server name and ALPN protocols:
//
//	m, err := mtls.Build(sub.SSL)
//	if err != nil {
//	    return err
//	}
//	conf := m.ClientConfig("api.example.com", "h2", "http/1.1")
//
// Trust policy, in order:
//   - insecure: every server certificate is accepted
//   - otherwise the system roots (unless disabled) plus every enabled custom CA
//   - if neither source contributes anything, every certificate is rejected
//
// The package also generates throwaway CA and leaf certificates, which the
// test suites use to stand up TLS and mutual-TLS servers.
package tls
