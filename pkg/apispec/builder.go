package apispec

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/sunny-chung/hello-http-sub000/pkg/protocol"
)

// Builder rebuilds descriptors from a file graph. Each file is built at most
// once; dependencies are built first. A Builder is not safe for concurrent use.
type Builder struct {
	files    map[string]*FileDescriptor
	built    map[string]protoreflect.FileDescriptor
	visiting map[string]bool
	registry *protoregistry.Files
	spec     *APISpec
}

// NewBuilder creates a Builder over the files of spec.
func NewBuilder(spec *APISpec) *Builder {
	b := newBuilder(spec.Files)
	b.spec = spec
	return b
}

func newBuilder(files map[string]*FileDescriptor) *Builder {
	return &Builder{
		files:    files,
		built:    make(map[string]protoreflect.FileDescriptor),
		visiting: make(map[string]bool),
		registry: new(protoregistry.Files),
	}
}

// BuildFileDescriptor builds the descriptor of one file of a graph.
func BuildFileDescriptor(files map[string]*FileDescriptor, name string) (protoreflect.FileDescriptor, error) {
	return newBuilder(files).Build(name)
}

// Build returns the descriptor of the named file, building its dependencies
// first. Self references and cycles are not followed.
func (b *Builder) Build(name string) (protoreflect.FileDescriptor, error) {
	if fd, ok := b.built[name]; ok {
		return fd, nil
	}

	node, ok := b.files[name]
	if !ok {
		if fd, err := protoregistry.GlobalFiles.FindFileByPath(name); err == nil {
			return fd, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}

	b.visiting[name] = true
	defer delete(b.visiting, name)

	unresolved := false
	for _, dep := range node.Dependencies {
		if dep == name || b.visiting[dep] {
			unresolved = true
			continue
		}
		if _, err := b.Build(dep); err != nil {
			if errors.Is(err, ErrFileNotFound) {
				return nil, fmt.Errorf("%w: %s imports %s", ErrMissingDependency, name, dep)
			}
			return nil, err
		}
	}

	var fdp descriptorpb.FileDescriptorProto
	if err := proto.Unmarshal(node.Raw, &fdp); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDescriptor, name, err)
	}

	dropImports(&fdp, name)

	opts := protodesc.FileOptions{AllowUnresolvable: unresolved}
	fd, err := opts.New(&fdp, resolver{b.registry})
	if err != nil {
		return nil, fmt.Errorf("failed to build descriptor %s: %w", name, err)
	}
	if err := b.registry.RegisterFile(fd); err != nil {
		return nil, fmt.Errorf("failed to register descriptor %s: %w", name, err)
	}

	b.built[name] = fd
	return fd, nil
}

// dropImports removes imports of the file itself and repeated imports, which
// protodesc rejects. Public and weak dependency indices are renumbered.
func dropImports(fdp *descriptorpb.FileDescriptorProto, name string) {
	deps := fdp.GetDependency()
	index := make([]int32, len(deps))
	seen := make(map[string]int32, len(deps))
	kept := make([]string, 0, len(deps))
	for i, dep := range deps {
		if dep == name {
			index[i] = -1
			continue
		}
		if j, ok := seen[dep]; ok {
			index[i] = j
			continue
		}
		index[i] = int32(len(kept))
		seen[dep] = index[i]
		kept = append(kept, dep)
	}
	if len(kept) == len(deps) {
		return
	}
	fdp.Dependency = kept
	fdp.PublicDependency = remapIndices(fdp.GetPublicDependency(), index)
	fdp.WeakDependency = remapIndices(fdp.GetWeakDependency(), index)
}

func remapIndices(in []int32, index []int32) []int32 {
	var out []int32
	seen := make(map[int32]bool)
	for _, i := range in {
		if i < 0 || int(i) >= len(index) {
			continue
		}
		j := index[i]
		if j < 0 || seen[j] {
			continue
		}
		seen[j] = true
		out = append(out, j)
	}
	return out
}

// Method returns the descriptor of a method of the spec the Builder was made
// for.
func (b *Builder) Method(service, method string) (protoreflect.MethodDescriptor, error) {
	if b.spec == nil {
		return nil, errors.New("builder has no API spec")
	}
	m, err := b.spec.FindMethod(service, method)
	if err != nil {
		return nil, err
	}
	file, err := b.spec.FileOf(m)
	if err != nil {
		return nil, err
	}
	fd, err := b.Build(file)
	if err != nil {
		return nil, err
	}

	svc := fd.Services().ByName(protoreflect.Name(m.Service))
	if svc == nil {
		return nil, fmt.Errorf("%w: %s", protocol.ErrServiceNotFound, m.ServiceFullName())
	}
	md := svc.Methods().ByName(protoreflect.Name(m.Name))
	if md == nil {
		return nil, fmt.Errorf("%w: %s", protocol.ErrMethodNotFound, m.FullMethod())
	}
	return md, nil
}

// resolver looks files up in the builder's registry first and then in the
// descriptors linked into the binary.
type resolver struct {
	local *protoregistry.Files
}

func (r resolver) FindFileByPath(path string) (protoreflect.FileDescriptor, error) {
	if fd, err := r.local.FindFileByPath(path); err == nil {
		return fd, nil
	}
	return protoregistry.GlobalFiles.FindFileByPath(path)
}

func (r resolver) FindDescriptorByName(name protoreflect.FullName) (protoreflect.Descriptor, error) {
	if d, err := r.local.FindDescriptorByName(name); err == nil {
		return d, nil
	}
	return protoregistry.GlobalFiles.FindDescriptorByName(name)
}
