// Package apispec models the API of a gRPC server as a graph of serialized
// file descriptors.
//
// An APISpec is either fetched from a server through reflection or compiled
// from local .proto files. Files are keyed by file name; each carries its
// package, services, methods, dependency list and the raw
// FileDescriptorProto bytes. A Builder turns the graph back into usable
// descriptors, resolving every dependency before the file that imports it:
//
//	b := apispec.NewBuilder(spec)
//	md, err := b.Method("helloworld.Greeter", "SayHello")
//	if err != nil {
//	    return err
//	}
//	req := dynamicpb.NewMessage(md.Input())
package apispec
