package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sunny-chung/hello-http-sub000/pkg/call"
	"github.com/sunny-chung/hello-http-sub000/pkg/cli/internal/output"
	"github.com/sunny-chung/hello-http-sub000/pkg/cli/internal/parse"
	"github.com/sunny-chung/hello-http-sub000/pkg/config"
	"github.com/sunny-chung/hello-http-sub000/pkg/engine"
	"github.com/sunny-chung/hello-http-sub000/pkg/exchange"
	"github.com/sunny-chung/hello-http-sub000/pkg/logging"
	"github.com/sunny-chung/hello-http-sub000/pkg/metrics"
	"github.com/sunny-chung/hello-http-sub000/pkg/postflight"
	"github.com/sunny-chung/hello-http-sub000/pkg/request"
	"github.com/sunny-chung/hello-http-sub000/pkg/transport"
)

// errCallFailed is returned when the call completed with an error. The
// details were already printed.
var errCallFailed = errors.New("call failed")

// session is the engine and settings shared by one command invocation.
type session struct {
	cfg     *config.Config
	log     *slog.Logger
	eng     *engine.Engine
	metrics *metrics.Collector
}

func newSession(cmd *cobra.Command) (*session, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}

	s := &session{
		cfg: cfg,
		log: logging.New(logging.Config{
			Level:  logging.ParseLevel(cfg.Logging.Level),
			Format: logging.ParseFormat(cfg.Logging.Format),
			Output: cmd.ErrOrStderr(),
		}),
	}

	opts := []engine.Option{engine.WithConfig(cfg), engine.WithLogger(s.log)}
	if cmd.Flags().Changed("timeout") {
		opts = append(opts, engine.WithCallTimeout(callTimeout))
	}
	if showMetrics {
		s.metrics = metrics.New(metrics.Config{}, nil)
		opts = append(opts, engine.WithMetrics(s.metrics))
	}
	eng, err := engine.New(opts...)
	if err != nil {
		return nil, err
	}
	s.eng = eng
	return s, nil
}

// options resolves the call options of the selected subproject and applies
// the command line overrides.
func (s *session) options() (transport.Options, error) {
	opts, err := s.eng.Options(subprojectID)
	if err != nil {
		return opts, err
	}
	if insecure {
		opts.SSL.Insecure = config.Bool(true)
	}
	return opts, nil
}

// callSpec is what a protocol command hands to run.
type callSpec struct {
	req *request.Request

	// configure adjusts the resolved options.
	configure func(*transport.Options)

	// onConnected runs once, on its own goroutine, when the call becomes
	// CONNECTED.
	onConnected func(*call.State)
}

// run sends the call, streams its events to stderr and prints the result.
// An interrupt cancels the call; the command still waits for completion.
func (s *session) run(cmd *cobra.Command, spec callSpec) error {
	opts, err := s.options()
	if err != nil {
		return err
	}
	if spec.configure != nil {
		spec.configure(&opts)
	}

	extractor, err := newExtractor(extractions)
	if err != nil {
		return err
	}
	if extractor != nil {
		opts.PostFlight = extractor.Action()
	}

	state, err := s.eng.SendRequest(spec.req, opts)
	if err != nil {
		return err
	}
	events, unsubscribe := state.Events().Subscribe(cmd.Context())
	defer unsubscribe()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	stderr := cmd.ErrOrStderr()
	connected := false
	for events != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			fmt.Fprintf(stderr, "%s %s\n", ev.Time.Format("15:04:05.000"), ev.Text)
			if !connected && spec.onConnected != nil && state.Status() == call.StatusConnected {
				connected = true
				go spec.onConnected(state)
			}
		case <-interrupt:
			state.Cancel()
		case <-cmd.Context().Done():
			state.Cancel()
		}
	}

	resp := state.Snapshot()
	stdout := cmd.OutOrStdout()
	if jsonOutput {
		if err := output.JSON(stdout, resp); err != nil {
			return err
		}
	} else {
		printResponse(stdout, &resp)
	}
	if extractor != nil && resp.PostFlightErrorMessage == "" {
		printVariables(stdout, extractor.Variables())
	}
	if showTimeline {
		fmt.Fprintln(stdout)
		fmt.Fprint(stdout, exchange.Render(state.Exchange().Entries()))
	}
	if s.metrics != nil {
		if err := s.metrics.WriteText(stderr); err != nil {
			output.Warn(stderr, "writing metrics: %v", err)
		}
	}

	if resp.IsError {
		return fmt.Errorf("%w: %s", errCallFailed, resp.ErrorMessage)
	}
	return nil
}

func printResponse(w io.Writer, r *call.UserResponse) {
	if r.StatusCode != 0 || r.StatusText != "" || r.ProtocolVersion != "" {
		fmt.Fprintln(w, strings.TrimSpace(fmt.Sprintf("%s %d %s", r.ProtocolVersion, r.StatusCode, r.StatusText)))
	}
	for _, h := range r.Headers {
		fmt.Fprintf(w, "%s: %s\n", h.Name, h.Value)
	}
	if len(r.Body) > 0 {
		fmt.Fprintln(w)
		w.Write(r.Body)
		if r.Body[len(r.Body)-1] != '\n' {
			fmt.Fprintln(w)
		}
		if r.BodyTruncated {
			fmt.Fprintln(w, "(body truncated)")
		}
	}
	if len(r.PayloadExchanges) > 0 {
		fmt.Fprintln(w)
		for _, p := range r.PayloadExchanges {
			fmt.Fprintf(w, "%s %s %s\n", p.Time.Format("15:04:05.000"), payloadMarker(p.Type), p.Data)
		}
	}
	if r.PostFlightErrorMessage != "" {
		fmt.Fprintf(w, "\nPost-flight error: %s\n", r.PostFlightErrorMessage)
	}
}

func payloadMarker(t call.PayloadType) string {
	switch t {
	case call.PayloadOutgoingData:
		return ">"
	case call.PayloadIncomingData:
		return "<"
	case call.PayloadError:
		return "!"
	default:
		return "* " + string(t)
	}
}

// newExtractor builds the post-flight extractor of the --extract flags, or
// nil when there are none.
func newExtractor(specs []string) (*postflight.Extractor, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	pairs, err := parse.Pairs("extract", specs, '=')
	if err != nil {
		return nil, err
	}
	rules := make([]postflight.Rule, 0, len(pairs))
	for _, p := range pairs {
		source, path, _ := strings.Cut(p.Value, ":")
		rules = append(rules, postflight.Rule{
			Variable: p.Key,
			Source:   postflight.Source(source),
			Path:     path,
		})
	}
	return postflight.NewExtractor(rules, nil)
}

func printVariables(w io.Writer, vars *postflight.Variables) {
	names := vars.Names()
	if len(names) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw := output.Table(w)
	for _, name := range names {
		v, _ := vars.Get(name)
		fmt.Fprintf(tw, "%s\t%s\n", name, v)
	}
	tw.Flush()
}

// keyValues converts parsed pairs to request pairs.
func keyValues(pairs []parse.Pair) []request.KeyValue {
	out := make([]request.KeyValue, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, request.KeyValue{Key: p.Key, Value: p.Value})
	}
	return out
}
