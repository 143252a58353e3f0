package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// Persistent flags available to all subcommands
	configPath   string
	subprojectID string
	logLevel     string
	logFormat    string
	insecure     bool
	callTimeout  time.Duration
	showTimeline bool
	jsonOutput   bool
	showMetrics  bool
	extractions  []string

	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hellohttp",
	Short: "hellohttp sends HTTP, gRPC, WebSocket and GraphQL requests and records their wire traffic",
	Long: `hellohttp issues a single call per invocation and shows every lifecycle event,
the response and, on request, the raw transport timeline (bytes for HTTP/1.1 and
WebSocket, decoded frames for HTTP/2 and gRPC).

Transport settings come from an optional configuration file (YAML or JSON),
resolved for the subproject given with --subproject.`,
	SilenceUsage:  true,
	SilenceErrors: true, // We handle errors in Execute()
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Configuration file (YAML or JSON)")
	pf.StringVar(&subprojectID, "subproject", "", "Subproject whose settings apply")
	pf.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides the config file)")
	pf.StringVar(&logFormat, "log-format", "", "Log format: text or json (overrides the config file)")
	pf.BoolVarP(&insecure, "insecure", "k", false, "Skip TLS certificate verification")
	pf.DurationVar(&callTimeout, "timeout", 0, "Cancel the call after this duration (overrides callTimeout)")
	pf.BoolVar(&showTimeline, "timeline", false, "Print the raw transport timeline after the response")
	pf.BoolVar(&jsonOutput, "json", false, "Print the response as JSON")
	pf.BoolVar(&showMetrics, "metrics", false, "Print call metrics to stderr on exit")
	pf.StringArrayVar(&extractions, "extract", nil,
		"Extract a variable after a successful call: NAME=body:JSONPATH, NAME=header:NAME or NAME=status")
}
