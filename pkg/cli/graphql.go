package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sunny-chung/hello-http-sub000/pkg/cli/internal/flags"
	"github.com/sunny-chung/hello-http-sub000/pkg/cli/internal/parse"
	"github.com/sunny-chung/hello-http-sub000/pkg/protocol"
	"github.com/sunny-chung/hello-http-sub000/pkg/request"
)

var (
	gqlHeaders     flags.StringSlice
	gqlQuery       string
	gqlQueryFile   string
	gqlVariables   string
	gqlOperation   string
	gqlInitPayload string
)

var graphqlCmd = &cobra.Command{
	Use:   "graphql URL",
	Short: "Run a GraphQL subscription over WebSocket (graphql-transport-ws)",
	Example: `  hellohttp graphql ws://localhost:4000/graphql -q 'subscription { tick }'
  hellohttp graphql wss://api.example.com/graphql --query-file sub.graphql \
      --variables '{"channel":"general"}' --init-payload '{"token":"t"}'`,
	Args: cobra.ExactArgs(1),
	RunE: runGraphQL,
}

func init() {
	rootCmd.AddCommand(graphqlCmd)

	f := graphqlCmd.Flags()
	f.VarP(&gqlHeaders, "header", "H", "Handshake header 'Name: value' (repeatable)")
	f.StringVarP(&gqlQuery, "query", "q", "", "GraphQL document")
	f.StringVar(&gqlQueryFile, "query-file", "", "Read the GraphQL document from a file")
	f.StringVar(&gqlVariables, "variables", "", "Variables as a JSON object")
	f.StringVar(&gqlOperation, "operation", "", "Operation name, when the document has several")
	f.StringVar(&gqlInitPayload, "init-payload", "", "connection_init payload as a JSON object")
}

func runGraphQL(cmd *cobra.Command, args []string) error {
	doc := gqlQuery
	if gqlQueryFile != "" {
		if doc != "" {
			return fmt.Errorf("only one of --query and --query-file can be used")
		}
		data, err := os.ReadFile(gqlQueryFile)
		if err != nil {
			return err
		}
		doc = string(data)
	}
	if doc == "" {
		return fmt.Errorf("a GraphQL document is required (--query or --query-file)")
	}

	headers, err := parse.Pairs("header", gqlHeaders)
	if err != nil {
		return err
	}
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	return s.run(cmd, callSpec{req: &request.Request{
		Protocol: protocol.ProtocolGraphQL,
		URL:      args[0],
		Headers:  keyValues(headers),
		GraphQL: &request.GraphQL{
			Document:              doc,
			Variables:             gqlVariables,
			OperationName:         gqlOperation,
			ConnectionInitPayload: gqlInitPayload,
		},
	}})
}
