package apispec

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bufbuild/protocompile"
	"github.com/bufbuild/protocompile/linker"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/sunny-chung/hello-http-sub000/internal/id"
)

// SpecFromProtoFiles compiles .proto files into an APISpec.
// importPaths specifies directories to search for imported files.
func SpecFromProtoFiles(ctx context.Context, paths []string, importPaths []string) (*APISpec, error) {
	if len(paths) == 0 {
		return nil, ErrNoProtoFiles
	}

	compiler := protocompile.Compiler{
		Resolver: protocompile.WithStandardImports(&fileSystemResolver{
			importPaths: importPaths,
			basePaths:   paths,
		}),
	}

	compiled, err := compiler.Compile(ctx, paths...)
	if err != nil {
		return nil, err
	}

	files := make([]protoreflect.FileDescriptor, 0, len(compiled))
	for _, f := range compiled {
		files = append(files, f)
	}

	name := strings.TrimSuffix(filepath.Base(paths[0]), filepath.Ext(paths[0]))
	return SpecFromDescriptors(name, SourceProtoFiles, files...)
}

// SpecFromDescriptors builds an APISpec from linked descriptors, including
// every file they import transitively.
func SpecFromDescriptors(name string, source Source, roots ...protoreflect.FileDescriptor) (*APISpec, error) {
	files := make(map[string]*FileDescriptor)
	var walk func(fd protoreflect.FileDescriptor) error
	walk = func(fd protoreflect.FileDescriptor) error {
		if _, done := files[fd.Path()]; done {
			return nil
		}
		fdp := protodesc.ToFileDescriptorProto(fd)
		raw, err := proto.Marshal(fdp)
		if err != nil {
			return fmt.Errorf("failed to serialize %s: %w", fd.Path(), err)
		}
		files[fd.Path()] = fromProto(fdp, raw)

		imports := fd.Imports()
		for i := 0; i < imports.Len(); i++ {
			if err := walk(imports.Get(i).FileDescriptor); err != nil {
				return err
			}
		}
		return nil
	}

	for _, fd := range roots {
		if err := walk(fd); err != nil {
			return nil, err
		}
	}
	return NewAPISpec(id.Short(), name, source, files), nil
}

// fileSystemResolver implements protocompile.Resolver for file system access.
type fileSystemResolver struct {
	importPaths []string
	basePaths   []string
}

func (r *fileSystemResolver) FindFileByPath(path string) (protocompile.SearchResult, error) {
	candidates := make([]string, 0, len(r.importPaths)+len(r.basePaths)+1)
	for _, importPath := range r.importPaths {
		candidates = append(candidates, filepath.Join(importPath, path))
	}
	for _, basePath := range r.basePaths {
		candidates = append(candidates, filepath.Join(filepath.Dir(basePath), path))
	}
	candidates = append(candidates, path)

	for _, fullPath := range candidates {
		if _, err := os.Stat(fullPath); err != nil {
			continue
		}
		rc, err := readFile(fullPath)
		if err != nil {
			return protocompile.SearchResult{}, err
		}
		return protocompile.SearchResult{Source: rc}, nil
	}
	return protocompile.SearchResult{}, fs.ErrNotExist
}

func readFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Ensure linker.File satisfies protoreflect.FileDescriptor at compile time.
var _ protoreflect.FileDescriptor = (linker.File)(nil)
