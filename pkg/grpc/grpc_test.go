package grpc

import (
	"context"
	"crypto/tls"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/jhump/protoreflect/grpcreflect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	reflectionpb "google.golang.org/grpc/reflection/grpc_reflection_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/sunny-chung/hello-http-sub000/pkg/apispec"
	"github.com/sunny-chung/hello-http-sub000/pkg/call"
	"github.com/sunny-chung/hello-http-sub000/pkg/config"
	"github.com/sunny-chung/hello-http-sub000/pkg/exchange"
	"github.com/sunny-chung/hello-http-sub000/pkg/protocol"
	"github.com/sunny-chung/hello-http-sub000/pkg/request"
	hhtls "github.com/sunny-chung/hello-http-sub000/pkg/tls"
	"github.com/sunny-chung/hello-http-sub000/pkg/transport"
)

const greeterProto = `syntax = "proto3";
package hello;

import "google/protobuf/timestamp.proto";

message HelloRequest {
  string name = 1;
  google.protobuf.Timestamp at = 2;
}

message HelloReply {
  string message = 1;
}

service Greeter {
  rpc SayHello(HelloRequest) returns (HelloReply);
  rpc Fail(HelloRequest) returns (HelloReply);
  rpc Wait(HelloRequest) returns (HelloReply);
  rpc Chat(stream HelloRequest) returns (stream HelloReply);
}
`

func greeterFile(t *testing.T) protoreflect.FileDescriptor {
	t.Helper()
	parser := protoparse.Parser{
		Accessor: protoparse.FileContentsFromMap(map[string]string{"greeter.proto": greeterProto}),
	}
	fds, err := parser.ParseFiles("greeter.proto")
	require.NoError(t, err)
	return fds[0].UnwrapFile()
}

func greeterSpec(t *testing.T) *apispec.APISpec {
	t.Helper()
	spec, err := apispec.SpecFromDescriptors("greeter", apispec.SourceProtoFiles, greeterFile(t))
	require.NoError(t, err)
	return spec
}

func unaryHandler(md protoreflect.MethodDescriptor) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(_ any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
		in := dynamicpb.NewMessage(md.Input())
		if err := dec(in); err != nil {
			return nil, err
		}
		name := in.Get(md.Input().Fields().ByName("name")).String()

		switch md.Name() {
		case "Fail":
			st, err := status.New(codes.InvalidArgument, "invalid request").WithDetails(&errdetails.BadRequest{
				FieldViolations: []*errdetails.BadRequest_FieldViolation{{Field: "name", Description: "must not be empty"}},
			})
			if err != nil {
				return nil, err
			}
			return nil, st.Err()
		case "Wait":
			<-ctx.Done()
			return nil, ctx.Err()
		}

		msg := "Hello, " + name
		if incoming, ok := metadata.FromIncomingContext(ctx); ok {
			if v := incoming.Get("x-suffix"); len(v) > 0 {
				msg += v[0]
			}
		}
		_ = grpc.SetHeader(ctx, metadata.Pairs("x-greeting", "hi"))
		_ = grpc.SetTrailer(ctx, metadata.Pairs("x-done", "yes"))

		out := dynamicpb.NewMessage(md.Output())
		out.Set(md.Output().Fields().ByName("message"), protoreflect.ValueOfString(msg))
		return out, nil
	}
}

func registerFileTree(t *testing.T, files *protoregistry.Files, fd protoreflect.FileDescriptor) {
	t.Helper()
	if _, err := files.FindFileByPath(fd.Path()); err == nil {
		return
	}
	imports := fd.Imports()
	for i := 0; i < imports.Len(); i++ {
		registerFileTree(t, files, imports.Get(i).FileDescriptor)
	}
	require.NoError(t, files.RegisterFile(fd))
}

// startServer runs an in-process Greeter server and returns its address.
func startServer(t *testing.T, withReflection bool, opts ...grpc.ServerOption) string {
	t.Helper()
	fd := greeterFile(t)
	svc := fd.Services().ByName("Greeter")

	desc := &grpc.ServiceDesc{ServiceName: string(svc.FullName()), HandlerType: (*any)(nil)}
	methods := svc.Methods()
	for i := 0; i < methods.Len(); i++ {
		md := methods.Get(i)
		if md.IsStreamingClient() || md.IsStreamingServer() {
			desc.Streams = append(desc.Streams, grpc.StreamDesc{
				StreamName:    string(md.Name()),
				Handler:       func(any, grpc.ServerStream) error { return status.Error(codes.Unimplemented, "streaming") },
				ServerStreams: md.IsStreamingServer(),
				ClientStreams: md.IsStreamingClient(),
			})
			continue
		}
		desc.Methods = append(desc.Methods, grpc.MethodDesc{MethodName: string(md.Name()), Handler: unaryHandler(md)})
	}

	srv := grpc.NewServer(opts...)
	srv.RegisterService(desc, struct{}{})
	if withReflection {
		files := new(protoregistry.Files)
		registerFileTree(t, files, fd)
		reflectionpb.RegisterServerReflectionServer(srv, reflection.NewServerV1(reflection.ServerOptions{
			Services:           srv,
			DescriptorResolver: files,
			ExtensionResolver:  new(protoregistry.Types),
		}))
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return lis.Addr().String()
}

type result struct {
	state  *call.State
	resp   call.UserResponse
	events []string
}

func send(t *testing.T, req *request.Request, opts transport.Options, onEvent func(*call.State, call.NetworkEvent)) result {
	t.Helper()
	s := call.NewState("", call.WithProtocol(string(protocol.ProtocolGRPC)))
	events, _ := s.Events().Subscribe(context.Background())
	(&transport.Runner{}).StartJob(s, opts, New().Job(req))

	var texts []string
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return result{state: s, resp: s.Snapshot(), events: texts}
			}
			texts = append(texts, ev.Text)
			if onEvent != nil {
				onEvent(s, ev)
			}
		case <-timeout:
			t.Fatal("call did not finish")
		}
	}
}

func greeterRequest(addr string, spec *apispec.APISpec, method, body string) *request.Request {
	return &request.Request{
		Protocol: protocol.ProtocolGRPC,
		URL:      "grpc://" + addr,
		Headers:  []request.KeyValue{{Key: "X-Suffix", Value: "!"}},
		Body:     request.Body{Kind: request.BodyRaw, Raw: body},
		GRPC:     &request.GRPC{Service: "hello.Greeter", Method: method, Spec: spec},
	}
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		raw     string
		addr    string
		secure  bool
		wantErr bool
	}{
		{raw: "localhost:50051", addr: "localhost:50051"},
		{raw: "grpc://example.test", addr: "example.test:80"},
		{raw: "grpcs://example.test", addr: "example.test:443", secure: true},
		{raw: "https://example.test:8443/ignored", addr: "example.test:8443", secure: true},
		{raw: "ws://example.test", wantErr: true},
		{raw: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseTarget(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, protocol.ErrInvalidURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.addr, got.addr)
			assert.Equal(t, tt.secure, got.secure)
		})
	}
}

func TestClient_FetchServiceSpec(t *testing.T) {
	addr := startServer(t, true)

	spec, err := NewClient().FetchServiceSpec(context.Background(), "grpc://"+addr, config.SSLConfig{})
	require.NoError(t, err)

	assert.Equal(t, apispec.SourceReflection, spec.Source)
	assert.Equal(t, []string{"hello.Greeter"}, spec.Services())
	assert.Contains(t, spec.Files, "greeter.proto")
	assert.Contains(t, spec.Files, "google/protobuf/timestamp.proto")

	chat, err := spec.FindMethod("hello.Greeter", "Chat")
	require.NoError(t, err)
	assert.Equal(t, "bidirectional", chat.StreamingType())

	// The fetched spec must agree with an independent reflection client.
	cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer cc.Close()
	rc := grpcreflect.NewClientAuto(context.Background(), cc)
	defer rc.Reset()
	services, err := rc.ListServices()
	require.NoError(t, err)
	assert.Contains(t, services, "hello.Greeter")

	sd, err := rc.ResolveService("hello.Greeter")
	require.NoError(t, err)
	var names []string
	for _, m := range sd.GetMethods() {
		names = append(names, m.GetName())
	}
	var fetched []string
	for _, m := range spec.Methods {
		fetched = append(fetched, m.Name)
	}
	assert.ElementsMatch(t, names, fetched)
}

func TestClient_FetchWithoutReflection(t *testing.T) {
	addr := startServer(t, false)

	_, err := NewClient(WithFetchTimeout(5*time.Second)).FetchServiceSpec(context.Background(), addr, config.SSLConfig{})
	assert.ErrorIs(t, err, ErrReflection)
}

func TestClient_FetchServiceSpecTLS(t *testing.T) {
	ca, err := hhtls.GenerateSelfSignedCert(&hhtls.CertificateConfig{Organization: "test", CommonName: "CA", IsCA: true})
	require.NoError(t, err)
	leaf, err := hhtls.GenerateSignedCert(hhtls.LocalhostConfig(), ca)
	require.NoError(t, err)
	cert, err := leaf.TLSCertificate()
	require.NoError(t, err)

	addr := startServer(t, true, grpc.Creds(credentials.NewTLS(&tls.Config{Certificates: []tls.Certificate{cert}})))

	tests := []struct {
		name    string
		url     string
		ssl     config.SSLConfig
		wantErr bool
	}{
		{
			name: "trusted CA",
			url:  "grpcs://" + addr,
			ssl: config.SSLConfig{
				DisableSystemCACertificates: config.Bool(true),
				TrustedCACertificates:       []config.TrustedCACertificate{{Name: "ca", PEM: string(ca.CertPEM)}},
			},
		},
		{name: "insecure over https", url: "https://" + addr, ssl: config.SSLConfig{Insecure: config.Bool(true)}},
		{name: "no trust anchors", url: "grpcs://" + addr, ssl: config.SSLConfig{DisableSystemCACertificates: config.Bool(true)}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			spec, err := NewClient().FetchServiceSpec(ctx, tt.url, tt.ssl)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{"hello.Greeter"}, spec.Services())
		})
	}
}

func TestAdapter_Unary(t *testing.T) {
	addr := startServer(t, true)
	spec, err := NewClient().FetchServiceSpec(context.Background(), "grpc://"+addr, config.SSLConfig{})
	require.NoError(t, err)

	res := send(t, greeterRequest(addr, spec, "SayHello", `{"name":"Ada"}`), transport.Options{}, nil)

	require.False(t, res.resp.IsError, res.resp.ErrorMessage)
	assert.Equal(t, 0, res.resp.StatusCode)
	assert.Equal(t, "OK", res.resp.StatusText)
	assert.JSONEq(t, `{"message":"Hello, Ada!"}`, string(res.resp.Body))
	assert.Equal(t, "hi", res.resp.Headers.Get("x-greeting"))
	assert.Equal(t, "yes", res.resp.Headers.Get("x-done"))
	assert.Equal(t, ProtocolVersion, res.resp.ProtocolVersion)

	require.NotNil(t, res.resp.RequestData)
	assert.Equal(t, "grpc://"+addr+"/hello.Greeter/SayHello", res.resp.RequestData.URL)
	assert.JSONEq(t, `{"name":"Ada"}`, string(res.resp.RequestData.Body))

	assert.Contains(t, res.events, "Invoking /hello.Greeter/SayHello")
	assert.Equal(t, []call.Status{call.StatusPreparing, call.StatusConnecting, call.StatusDisconnected}, res.state.History())

	var sawPath, sawStatus bool
	for _, e := range res.state.Exchange().Entries() {
		text := string(e.Payload)
		if e.Direction == exchange.Outgoing && strings.Contains(text, ":path: /hello.Greeter/SayHello") {
			sawPath = true
			assert.Contains(t, text, "x-suffix: !")
		}
		if e.Direction == exchange.Incoming && strings.Contains(text, "grpc-status: 0") {
			sawStatus = true
		}
	}
	assert.True(t, sawPath, "request headers frame")
	assert.True(t, sawStatus, "trailers frame")
}

func TestAdapter_StatusError(t *testing.T) {
	addr := startServer(t, false)

	res := send(t, greeterRequest(addr, greeterSpec(t), "Fail", `{}`), transport.Options{}, nil)

	assert.True(t, res.resp.IsError)
	assert.Equal(t, int(codes.InvalidArgument), res.resp.StatusCode)
	assert.Equal(t, "InvalidArgument", res.resp.StatusText)
	assert.Equal(t, "InvalidArgument: invalid request; name: must not be empty", res.resp.ErrorMessage)
	assert.Contains(t, string(res.resp.Body), "google.rpc.BadRequest")
}

func TestAdapter_TransportError(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	lis.Close()

	res := send(t, greeterRequest(addr, greeterSpec(t), "SayHello", `{}`), transport.Options{}, nil)

	assert.True(t, res.resp.IsError)
	assert.Equal(t, 0, res.resp.StatusCode)
	assert.Empty(t, res.resp.StatusText)
	assert.Equal(t, call.StatusDisconnected, res.state.Status())
}

func TestAdapter_Cancel(t *testing.T) {
	addr := startServer(t, false)

	res := send(t, greeterRequest(addr, greeterSpec(t), "Wait", `{}`), transport.Options{},
		func(s *call.State, ev call.NetworkEvent) {
			if strings.HasPrefix(ev.Text, "Invoking") {
				go func() {
					time.Sleep(50 * time.Millisecond)
					s.Cancel()
				}()
			}
		})

	assert.True(t, res.resp.Canceled)
	assert.False(t, res.resp.IsError)
	assert.Equal(t, call.StatusDisconnected, res.state.Status())
}

func TestAdapter_TLS(t *testing.T) {
	ca, err := hhtls.GenerateSelfSignedCert(&hhtls.CertificateConfig{Organization: "test", CommonName: "CA", IsCA: true})
	require.NoError(t, err)
	leaf, err := hhtls.GenerateSignedCert(hhtls.LocalhostConfig(), ca)
	require.NoError(t, err)
	cert, err := leaf.TLSCertificate()
	require.NoError(t, err)

	addr := startServer(t, true, grpc.Creds(credentials.NewTLS(&tls.Config{Certificates: []tls.Certificate{cert}})))
	ssl := config.SSLConfig{
		DisableSystemCACertificates: config.Bool(true),
		TrustedCACertificates:       []config.TrustedCACertificate{{Name: "ca", PEM: string(ca.CertPEM)}},
	}

	spec, err := NewClient().FetchServiceSpec(context.Background(), "grpcs://"+addr, ssl)
	require.NoError(t, err)

	req := greeterRequest(addr, spec, "SayHello", `{"name":"TLS"}`)
	req.URL = "grpcs://" + addr
	res := send(t, req, transport.Options{SSL: ssl}, nil)

	require.False(t, res.resp.IsError, res.resp.ErrorMessage)
	assert.JSONEq(t, `{"message":"Hello, TLS!"}`, string(res.resp.Body))

	var handshake bool
	for _, ev := range res.events {
		if strings.HasPrefix(ev, "TLS handshake completed") && strings.HasSuffix(ev, "ALPN h2") {
			handshake = true
		}
	}
	assert.True(t, handshake, "%v", res.events)
}

func TestAdapter_PrepareErrors(t *testing.T) {
	spec := greeterSpec(t)
	tests := []struct {
		name    string
		req     *request.Request
		wantErr error
	}{
		{"streaming method", greeterRequest("127.0.0.1:1", spec, "Chat", ""), ErrStreamingNotSupported},
		{"invalid message", greeterRequest("127.0.0.1:1", spec, "SayHello", `{"nope":1}`), protocol.ErrInvalidMessage},
		{"unknown method", greeterRequest("127.0.0.1:1", spec, "Nope", ""), protocol.ErrMethodNotFound},
		{"missing spec", greeterRequest("127.0.0.1:1", nil, "SayHello", ""), ErrNoSpec},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := call.NewState("")
			e := &transport.Exec{State: s}
			err := New().Job(tt.req).Prepare(e)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDescribeDetail(t *testing.T) {
	tests := []struct {
		detail any
		want   string
	}{
		{&errdetails.ErrorInfo{Reason: "QUOTA", Domain: "example.test"}, "reason QUOTA (domain example.test)"},
		{&errdetails.DebugInfo{Detail: "stack"}, "stack"},
		{&errdetails.ResourceInfo{ResourceType: "user", ResourceName: "42", Description: "gone"}, "resource user 42: gone"},
		{&errdetails.LocalizedMessage{Locale: "en", Message: "Nope"}, "Nope"},
		{&errdetails.Help{Links: []*errdetails.Help_Link{{Description: "docs", Url: "https://example.test"}}}, "docs <https://example.test>"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, describeDetail(tt.detail))
	}
}
