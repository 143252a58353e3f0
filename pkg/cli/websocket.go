package cli

import (
	"bufio"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sunny-chung/hello-http-sub000/pkg/call"
	"github.com/sunny-chung/hello-http-sub000/pkg/cli/internal/flags"
	"github.com/sunny-chung/hello-http-sub000/pkg/cli/internal/output"
	"github.com/sunny-chung/hello-http-sub000/pkg/cli/internal/parse"
	"github.com/sunny-chung/hello-http-sub000/pkg/protocol"
	"github.com/sunny-chung/hello-http-sub000/pkg/request"
)

var (
	wsHeaders   flags.StringSlice
	wsMessages  flags.StringSlice
	wsFromStdin bool
	wsClose     bool
)

var wsCmd = &cobra.Command{
	Use:     "ws URL",
	Aliases: []string{"websocket"},
	Short:   "Open a WebSocket connection and exchange text messages",
	Long: `Open a WebSocket connection, send the --send messages once connected and
print every message received until the server closes the connection or the
command is interrupted.

With --stdin every line read from standard input is sent as one message.
With --close the connection is closed after the messages were sent.`,
	Example: `  hellohttp ws wss://echo.example.com --send hello --send world --close
  hellohttp ws ws://localhost:8080/chat -H 'Sec-WebSocket-Protocol: chat' --stdin`,
	Args: cobra.ExactArgs(1),
	RunE: runWS,
}

func init() {
	rootCmd.AddCommand(wsCmd)

	wsCmd.Flags().VarP(&wsHeaders, "header", "H", "Handshake header 'Name: value' (repeatable)")
	wsCmd.Flags().Var(&wsMessages, "send", "Text message to send once connected (repeatable)")
	wsCmd.Flags().BoolVar(&wsFromStdin, "stdin", false, "Send each line of standard input as a message")
	wsCmd.Flags().BoolVar(&wsClose, "close", false, "Close the connection after sending")
}

func runWS(cmd *cobra.Command, args []string) error {
	headers, err := parse.Pairs("header", wsHeaders)
	if err != nil {
		return err
	}
	s, err := newSession(cmd)
	if err != nil {
		return err
	}

	stdin := cmd.InOrStdin()
	stderr := cmd.ErrOrStderr()
	return s.run(cmd, callSpec{
		req: &request.Request{
			Protocol: protocol.ProtocolWebSocket,
			URL:      args[0],
			Headers:  keyValues(headers),
		},
		onConnected: func(state *call.State) {
			send := func(msg string) error { return s.eng.SendPayload(state.ID, msg) }
			for _, msg := range wsMessages {
				if err := send(msg); err != nil {
					output.Warn(stderr, "sending %q: %v", msg, err)
					return
				}
			}
			if wsFromStdin {
				sendLines(send, stdin, stderr)
			}
			if wsClose {
				state.Cancel()
			}
		},
	})
}

// sendLines sends every line of r until EOF or a send failure.
func sendLines(send func(string) error, r io.Reader, stderr io.Writer) {
	if r == nil {
		r = os.Stdin
	}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if err := send(sc.Text()); err != nil {
			output.Warn(stderr, "sending: %v", err)
			return
		}
	}
}
