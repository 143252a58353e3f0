package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/sunny-chung/hello-http-sub000/pkg/apispec"
	"github.com/sunny-chung/hello-http-sub000/pkg/call"
	"github.com/sunny-chung/hello-http-sub000/pkg/http2trace"
	"github.com/sunny-chung/hello-http-sub000/pkg/logging"
	"github.com/sunny-chung/hello-http-sub000/pkg/protocol"
	"github.com/sunny-chung/hello-http-sub000/pkg/request"
	hhtls "github.com/sunny-chung/hello-http-sub000/pkg/tls"
	"github.com/sunny-chung/hello-http-sub000/pkg/transport"
)

// ProtocolVersion is reported on every gRPC response.
const ProtocolVersion = "HTTP/2"

var jsonOut = protojson.MarshalOptions{Multiline: true, Indent: "  "}

// Adapter sends unary gRPC calls.
type Adapter struct {
	log *slog.Logger

	ConnectTimeout time.Duration
	Resolver       *net.Resolver
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *Adapter) { a.log = log }
}

// New creates a gRPC adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{}
	for _, opt := range opts {
		opt(a)
	}
	a.log = logging.OrNop(a.log)
	return a
}

// Protocol implements the engine adapter contract.
func (a *Adapter) Protocol() protocol.Protocol {
	return protocol.ProtocolGRPC
}

// Job returns the steps of one call.
func (a *Adapter) Job(req *request.Request) transport.Job {
	return &job{adapter: a, req: req}
}

type job struct {
	adapter *Adapter
	req     *request.Request

	target     target
	method     protoreflect.MethodDescriptor
	fullMethod string
	input      *dynamicpb.Message
	md         metadata.MD
}

func (j *job) Prepare(e *transport.Exec) error {
	if j.req.GRPC == nil {
		return fmt.Errorf("%w: gRPC service and method are required", protocol.ErrMissingExtra)
	}
	t, err := parseTarget(j.req.URL)
	if err != nil {
		return err
	}
	if j.req.GRPC.Spec == nil {
		return ErrNoSpec
	}

	md, err := apispec.NewBuilder(j.req.GRPC.Spec).Method(j.req.GRPC.Service, j.req.GRPC.Method)
	if err != nil {
		return err
	}
	if md.IsStreamingClient() || md.IsStreamingServer() {
		return fmt.Errorf("%w: %s", ErrStreamingNotSupported, md.FullName())
	}

	input := dynamicpb.NewMessage(md.Input())
	if body := strings.TrimSpace(j.req.Body.Raw); body != "" {
		if err := protojson.Unmarshal([]byte(body), input); err != nil {
			return fmt.Errorf("%w: %v", protocol.ErrInvalidMessage, err)
		}
	}

	outgoing := metadata.MD{}
	var sent call.Headers
	for _, kv := range j.req.EnabledHeaders() {
		key := strings.ToLower(kv.Key)
		outgoing.Append(key, kv.Value)
		sent = append(sent, call.Header{Name: key, Value: kv.Value})
	}

	body, err := jsonOut.Marshal(input)
	if err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrInvalidMessage, err)
	}

	j.target = t
	j.method = md
	j.fullMethod = "/" + string(md.Parent().FullName()) + "/" + string(md.Name())
	j.input = input
	j.md = outgoing

	e.State.UpdateResponse(func(resp *call.UserResponse) {
		resp.RequestData = &call.RequestData{
			Method:  "POST",
			URL:     t.base + j.fullMethod,
			Headers: sent,
			Body:    body,
		}
	})
	return nil
}

func (j *job) Run(e *transport.Exec) error {
	s := e.State
	ctx := e.Context()

	sniffer := http2trace.New(s.Outgoing(), s.Incoming(), http2trace.WithLogger(e.Log))
	defer sniffer.Close()

	d := &transport.Dialer{
		State:          s,
		Out:            sniffer.Outgoing(),
		In:             sniffer.Incoming(),
		ConnectTimeout: j.adapter.ConnectTimeout,
		Resolver:       j.adapter.Resolver,
	}
	if j.target.secure {
		material, err := hhtls.Build(e.Options.SSL)
		if err != nil {
			return err
		}
		d.TLS = material
	}

	var header, trailer metadata.MD
	cc, err := newClientConn(j.target, singleDial(d, j.target),
		grpc.WithUnaryInterceptor(metadataInterceptor(j.md, &header, &trailer)))
	if err != nil {
		return err
	}
	defer cc.Close()
	e.OnCancel(func(error) { cc.Close() })

	output := dynamicpb.NewMessage(j.method.Output())
	s.Emitf("Invoking %s", j.fullMethod)
	err = cc.Invoke(ctx, j.fullMethod, j.input, output)

	headers := flattenMetadata(header, trailer)
	if err == nil {
		body, err := jsonOut.Marshal(output)
		if err != nil {
			return fmt.Errorf("%w: %v", protocol.ErrInvalidMessage, err)
		}
		s.UpdateResponse(func(resp *call.UserResponse) {
			resp.StatusCode = int(codes.OK)
			resp.StatusText = codes.OK.String()
			resp.Headers = headers
			resp.Body = body
			resp.ProtocolVersion = ProtocolVersion
		})
		s.Emit("Response received")
		return nil
	}

	if ctx.Err() != nil {
		return err
	}
	st, ok := status.FromError(err)
	if !ok || st.Code() == codes.Unavailable {
		return err
	}

	// The server answered with a non-OK status.
	msg := describeStatus(st)
	s.UpdateResponse(func(resp *call.UserResponse) {
		resp.StatusCode = int(st.Code())
		resp.StatusText = st.Code().String()
		resp.Headers = headers
		resp.Body = statusBody(st)
		resp.ProtocolVersion = ProtocolVersion
		resp.ErrorMessage = msg
	})
	return fmt.Errorf("gRPC status %s", msg)
}

// metadataInterceptor sends md with the call and captures the response
// header and trailer metadata.
func metadataInterceptor(md metadata.MD, header, trailer *metadata.MD) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if len(md) > 0 {
			ctx = metadata.NewOutgoingContext(ctx, md)
		}
		opts = append(opts, grpc.Header(header), grpc.Trailer(trailer))
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// flattenMetadata lists header metadata, then trailer metadata, each sorted
// by key.
func flattenMetadata(mds ...metadata.MD) call.Headers {
	var out call.Headers
	for _, md := range mds {
		keys := make([]string, 0, len(md))
		for k := range md {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			for _, v := range md[k] {
				out = append(out, call.Header{Name: k, Value: v})
			}
		}
	}
	return out
}
