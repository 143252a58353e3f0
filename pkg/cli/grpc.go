package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sunny-chung/hello-http-sub000/pkg/apispec"
	"github.com/sunny-chung/hello-http-sub000/pkg/cli/internal/flags"
	"github.com/sunny-chung/hello-http-sub000/pkg/cli/internal/output"
	"github.com/sunny-chung/hello-http-sub000/pkg/cli/internal/parse"
	"github.com/sunny-chung/hello-http-sub000/pkg/protocol"
	"github.com/sunny-chung/hello-http-sub000/pkg/request"
)

var (
	grpcData        string
	grpcMetadata    flags.StringSlice
	grpcProtoFiles  flags.StringSlice
	grpcImportPaths flags.StringSlice
)

var grpcCmd = &cobra.Command{
	Use:   "grpc",
	Short: "Call gRPC methods and inspect gRPC servers",
}

var grpcCallCmd = &cobra.Command{
	Use:   "call URL SERVICE/METHOD",
	Short: "Call a unary gRPC method",
	Long: `Call a unary gRPC method with a JSON request message.

The API is read from --proto files when given, otherwise it is fetched from
the server through reflection. URLs use grpc:// (or http://) for cleartext and
grpcs:// (or https://) for TLS.`,
	Example: `  hellohttp grpc call grpc://localhost:50051 helloworld.Greeter/SayHello -d '{"name":"Ada"}'
  hellohttp grpc call grpcs://api.example.com:443 pkg.Svc/Get --proto api.proto -I ./protos -H 'authorization: Bearer t'`,
	Args: cobra.ExactArgs(2),
	RunE: runGRPCCall,
}

var grpcDescribeCmd = &cobra.Command{
	Use:   "describe URL",
	Short: "List the services and methods of a gRPC server through reflection",
	Args:  cobra.ExactArgs(1),
	RunE:  runGRPCDescribe,
}

func init() {
	rootCmd.AddCommand(grpcCmd)
	grpcCmd.AddCommand(grpcCallCmd, grpcDescribeCmd)

	grpcCallCmd.Flags().StringVarP(&grpcData, "data", "d", "{}", "Request message as JSON")
	grpcCallCmd.Flags().VarP(&grpcMetadata, "header", "H", "Metadata 'name: value' (repeatable)")
	grpcCallCmd.Flags().Var(&grpcProtoFiles, "proto", "Path to a .proto file (repeatable)")
	grpcCallCmd.Flags().VarP(&grpcImportPaths, "import-path", "I", "Import path for proto includes (repeatable)")
}

func runGRPCCall(cmd *cobra.Command, args []string) error {
	service, method, err := parse.ServiceMethod(args[1])
	if err != nil {
		return err
	}
	md, err := parse.Pairs("header", grpcMetadata)
	if err != nil {
		return err
	}

	s, err := newSession(cmd)
	if err != nil {
		return err
	}

	var spec *apispec.APISpec
	if len(grpcProtoFiles) > 0 {
		spec, err = apispec.SpecFromProtoFiles(cmd.Context(), grpcProtoFiles, grpcImportPaths)
	} else {
		spec, err = s.eng.FetchGRPCSpec(cmd.Context(), args[0], subprojectID)
	}
	if err != nil {
		return err
	}

	return s.run(cmd, callSpec{req: &request.Request{
		Protocol: protocol.ProtocolGRPC,
		URL:      args[0],
		Headers:  keyValues(md),
		Body:     request.Body{Kind: request.BodyRaw, Raw: grpcData},
		GRPC:     &request.GRPC{Service: service, Method: method, Spec: spec},
	}})
}

func runGRPCDescribe(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	spec, err := s.eng.FetchGRPCSpec(cmd.Context(), args[0], subprojectID)
	if err != nil {
		return err
	}

	stdout := cmd.OutOrStdout()
	if jsonOutput {
		return output.JSON(stdout, spec.Methods)
	}
	tw := output.Table(stdout)
	fmt.Fprintln(tw, "SERVICE\tMETHOD\tTYPE")
	for _, m := range spec.Methods {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", m.ServiceFullName(), m.Name, m.StreamingType())
	}
	return tw.Flush()
}
