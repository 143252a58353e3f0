package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	reflectionpb "google.golang.org/grpc/reflection/grpc_reflection_v1"

	"github.com/sunny-chung/hello-http-sub000/internal/id"
	"github.com/sunny-chung/hello-http-sub000/pkg/apispec"
	"github.com/sunny-chung/hello-http-sub000/pkg/config"
	"github.com/sunny-chung/hello-http-sub000/pkg/logging"
	hhtls "github.com/sunny-chung/hello-http-sub000/pkg/tls"
)

// DefaultFetchTimeout bounds a reflection fetch when the context has no
// deadline.
const DefaultFetchTimeout = 30 * time.Second

const reflectionServicePrefix = "grpc.reflection."

// Client fetches API specs from servers that expose reflection.
type Client struct {
	log     *slog.Logger
	timeout time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the client logger.
func WithClientLogger(log *slog.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// WithFetchTimeout overrides DefaultFetchTimeout.
func WithFetchTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// NewClient creates a reflection client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{timeout: DefaultFetchTimeout}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logging.OrNop(c.log)
	return c
}

// FetchServiceSpec lists the services of the server at rawURL through
// reflection v1 and assembles an APISpec from the files that declare them.
func (c *Client) FetchServiceSpec(ctx context.Context, rawURL string, ssl config.SSLConfig) (*apispec.APISpec, error) {
	t, err := parseTarget(rawURL)
	if err != nil {
		return nil, err
	}

	creds := insecure.NewCredentials()
	if t.secure {
		material, err := hhtls.Build(ssl)
		if err != nil {
			return nil, err
		}
		creds = credentials.NewTLS(material.ClientConfig(t.host, "h2"))
	}

	// The authority defaults to the passthrough endpoint. An explicit
	// authority would conflict with the server name of the TLS credentials.
	cc, err := grpc.NewClient("passthrough:///"+t.addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, err
	}
	defer cc.Close()

	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	files, err := fetchFiles(ctx, reflectionpb.NewServerReflectionClient(cc))
	if err != nil {
		c.log.Warn("reflection fetch failed", "target", t.base, "error", err)
		return nil, err
	}

	spec := apispec.NewAPISpec(id.Short(), t.host, apispec.SourceReflection, files)
	c.log.Debug("fetched API spec", "target", t.base, "services", len(spec.Services()), "files", len(files))
	return spec, nil
}

// fetchFiles asks for the file of every listed service on one stream. The
// requests are pipelined; the fetch completes when every requested symbol was
// answered.
func fetchFiles(ctx context.Context, client reflectionpb.ServerReflectionClient) (map[string]*apispec.FileDescriptor, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := client.ServerReflectionInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReflection, err)
	}

	err = stream.Send(&reflectionpb.ServerReflectionRequest{
		MessageRequest: &reflectionpb.ServerReflectionRequest_ListServices{ListServices: "*"},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReflection, err)
	}
	resp, err := stream.Recv()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReflection, err)
	}
	if e := resp.GetErrorResponse(); e != nil {
		return nil, fmt.Errorf("%w: %s", ErrReflection, e.GetErrorMessage())
	}
	list := resp.GetListServicesResponse()
	if list == nil {
		return nil, fmt.Errorf("%w: unexpected response to list services", ErrReflection)
	}

	var symbols []string
	pending := make(map[string]bool)
	for _, svc := range list.GetService() {
		name := svc.GetName()
		if strings.HasPrefix(name, reflectionServicePrefix) || pending[name] {
			continue
		}
		symbols = append(symbols, name)
		pending[name] = true
	}

	sent := make(chan error, 1)
	go func() {
		for _, sym := range symbols {
			err := stream.Send(&reflectionpb.ServerReflectionRequest{
				MessageRequest: &reflectionpb.ServerReflectionRequest_FileContainingSymbol{FileContainingSymbol: sym},
			})
			if err != nil {
				sent <- err
				return
			}
		}
		sent <- stream.CloseSend()
	}()

	files := make(map[string]*apispec.FileDescriptor)
	for len(pending) > 0 {
		resp, err := stream.Recv()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrReflection, err)
		}
		sym := resp.GetOriginalRequest().GetFileContainingSymbol()
		if !pending[sym] {
			continue
		}
		delete(pending, sym)

		if e := resp.GetErrorResponse(); e != nil {
			return nil, fmt.Errorf("%w: %s: %s", ErrReflection, sym, e.GetErrorMessage())
		}
		for _, raw := range resp.GetFileDescriptorResponse().GetFileDescriptorProto() {
			fd, err := apispec.NewFileDescriptor(raw)
			if err != nil {
				return nil, err
			}
			files[fd.Name] = fd
		}
	}

	if err := <-sent; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReflection, err)
	}
	return files, nil
}
