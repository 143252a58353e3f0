package cli

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sunny-chung/hello-http-sub000/pkg/cli/internal/output"
	"github.com/sunny-chung/hello-http-sub000/pkg/engine"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information and supported protocols",
	RunE: func(cmd *cobra.Command, _ []string) error {
		eng, err := engine.New()
		if err != nil {
			return err
		}
		protocols := make(map[string][]string)
		var lines []string
		for _, p := range eng.Protocols() {
			caps := make([]string, 0)
			for _, c := range p.Capabilities() {
				caps = append(caps, string(c))
			}
			protocols[p.String()] = caps
			lines = append(lines, fmt.Sprintf("  %-10s %s", p, strings.Join(caps, ", ")))
		}

		if jsonOutput {
			return output.JSON(cmd.OutOrStdout(), map[string]any{
				"version":   Version,
				"commit":    Commit,
				"buildDate": BuildDate,
				"go":        runtime.Version(),
				"protocols": protocols,
			})
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "hellohttp %s (commit %s, built %s, %s)\n",
			Version, Commit, BuildDate, runtime.Version())
		fmt.Fprintln(w, "Protocols:")
		for _, l := range lines {
			fmt.Fprintln(w, strings.TrimRight(l, " "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
