// hellohttp CLI - sends HTTP, gRPC, WebSocket and GraphQL requests and
// records their wire traffic
package main

import "github.com/sunny-chung/hello-http-sub000/pkg/cli"

// Build-time variables set via ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	cli.Version = Version
	cli.Commit = Commit
	cli.BuildDate = BuildDate
	cli.Execute()
}
