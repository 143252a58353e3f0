package apispec

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/sunny-chung/hello-http-sub000/pkg/protocol"
)

// Source tells where an APISpec came from.
type Source string

const (
	SourceReflection Source = "reflection"
	SourceProtoFiles Source = "proto"
)

// Method is one RPC of a service.
type Method struct {
	Package         string `json:"package,omitempty"`
	Service         string `json:"service"`
	Name            string `json:"name"`
	ClientStreaming bool   `json:"clientStreaming,omitempty"`
	ServerStreaming bool   `json:"serverStreaming,omitempty"`
}

// ServiceFullName returns the package-qualified service name.
func (m Method) ServiceFullName() string {
	if m.Package == "" {
		return m.Service
	}
	return m.Package + "." + m.Service
}

// FullMethod returns the HTTP/2 path of the method, e.g. "/pkg.Svc/Call".
func (m Method) FullMethod() string {
	return "/" + m.ServiceFullName() + "/" + m.Name
}

// IsUnary returns true if the method is unary (no streaming in either direction).
func (m Method) IsUnary() bool {
	return !m.ClientStreaming && !m.ServerStreaming
}

// StreamingType returns a string describing the streaming type.
func (m Method) StreamingType() string {
	switch {
	case m.ClientStreaming && m.ServerStreaming:
		return "bidirectional"
	case m.ClientStreaming:
		return "client_streaming"
	case m.ServerStreaming:
		return "server_streaming"
	default:
		return "unary"
	}
}

// FileDescriptor is one node of the descriptor graph.
type FileDescriptor struct {
	Name         string   `json:"name"`
	Package      string   `json:"package,omitempty"`
	Services     []string `json:"services,omitempty"`
	Methods      []Method `json:"methods,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`

	// Raw is the serialized google.protobuf.FileDescriptorProto.
	Raw []byte `json:"raw"`
}

// NewFileDescriptor decodes a serialized FileDescriptorProto.
func NewFileDescriptor(raw []byte) (*FileDescriptor, error) {
	var fdp descriptorpb.FileDescriptorProto
	if err := proto.Unmarshal(raw, &fdp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	if fdp.GetName() == "" {
		return nil, fmt.Errorf("%w: missing file name", ErrInvalidDescriptor)
	}
	return fromProto(&fdp, raw), nil
}

func fromProto(fdp *descriptorpb.FileDescriptorProto, raw []byte) *FileDescriptor {
	fd := &FileDescriptor{
		Name:         fdp.GetName(),
		Package:      fdp.GetPackage(),
		Dependencies: append([]string(nil), fdp.GetDependency()...),
		Raw:          raw,
	}
	for _, svc := range fdp.GetService() {
		fd.Services = append(fd.Services, svc.GetName())
		for _, m := range svc.GetMethod() {
			fd.Methods = append(fd.Methods, Method{
				Package:         fd.Package,
				Service:         svc.GetName(),
				Name:            m.GetName(),
				ClientStreaming: m.GetClientStreaming(),
				ServerStreaming: m.GetServerStreaming(),
			})
		}
	}
	return fd
}

// APISpec is the API of a gRPC server.
type APISpec struct {
	ID        string                     `json:"id"`
	Name      string                     `json:"name"`
	Source    Source                     `json:"source"`
	FetchedAt time.Time                  `json:"fetchedAt"`
	Methods   []Method                   `json:"methods"`
	Files     map[string]*FileDescriptor `json:"files"`
}

// NewAPISpec assembles a spec from its files. Methods are collected from every
// file and sorted by service and name.
func NewAPISpec(id, name string, source Source, files map[string]*FileDescriptor) *APISpec {
	spec := &APISpec{
		ID:        id,
		Name:      name,
		Source:    source,
		FetchedAt: time.Now(),
		Files:     files,
	}
	for _, fd := range files {
		spec.Methods = append(spec.Methods, fd.Methods...)
	}
	sort.Slice(spec.Methods, func(i, j int) bool {
		a, b := spec.Methods[i], spec.Methods[j]
		if a.ServiceFullName() != b.ServiceFullName() {
			return a.ServiceFullName() < b.ServiceFullName()
		}
		return a.Name < b.Name
	})
	return spec
}

// Services returns the package-qualified service names, sorted.
func (s *APISpec) Services() []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range s.Methods {
		name := m.ServiceFullName()
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// FindMethod looks a method up. service may be package-qualified or not.
func (s *APISpec) FindMethod(service, method string) (Method, error) {
	service = strings.TrimPrefix(service, "/")
	found := false
	for _, m := range s.Methods {
		if m.ServiceFullName() != service && m.Service != service {
			continue
		}
		found = true
		if m.Name == method {
			return m, nil
		}
	}
	if !found {
		return Method{}, fmt.Errorf("%w: %s", protocol.ErrServiceNotFound, service)
	}
	return Method{}, fmt.Errorf("%w: %s/%s", protocol.ErrMethodNotFound, service, method)
}

// FileOf returns the name of the file declaring m's service.
func (s *APISpec) FileOf(m Method) (string, error) {
	for name, fd := range s.Files {
		if fd.Package != m.Package {
			continue
		}
		for _, svc := range fd.Services {
			if svc == m.Service {
				return name, nil
			}
		}
	}
	return "", fmt.Errorf("%w: no file declares %s", ErrFileNotFound, m.ServiceFullName())
}
