package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sunny-chung/hello-http-sub000/pkg/apispec"
	"github.com/sunny-chung/hello-http-sub000/pkg/call"
	"github.com/sunny-chung/hello-http-sub000/pkg/config"
	"github.com/sunny-chung/hello-http-sub000/pkg/exchange"
	"github.com/sunny-chung/hello-http-sub000/pkg/graphql"
	"github.com/sunny-chung/hello-http-sub000/pkg/grpc"
	"github.com/sunny-chung/hello-http-sub000/pkg/httpclient"
	"github.com/sunny-chung/hello-http-sub000/pkg/logging"
	"github.com/sunny-chung/hello-http-sub000/pkg/metrics"
	"github.com/sunny-chung/hello-http-sub000/pkg/protocol"
	"github.com/sunny-chung/hello-http-sub000/pkg/request"
	"github.com/sunny-chung/hello-http-sub000/pkg/transport"
	"github.com/sunny-chung/hello-http-sub000/pkg/websocket"
)

// Adapter serves the calls of one protocol.
type Adapter interface {
	Protocol() protocol.Protocol
	Job(req *request.Request) transport.Job
}

// Engine issues calls and keeps track of the ones in flight.
type Engine struct {
	cfg      *config.Config
	log      *slog.Logger
	registry *call.Registry
	runner   *transport.Runner
	metrics  *metrics.Collector
	grpc     *grpc.Client

	callTimeout     time.Duration
	callTimeoutSet  bool
	prepareTimeout  time.Duration
	defaultAdapters bool

	mu       sync.RWMutex
	adapters map[protocol.Protocol]Adapter
	timers   map[string]*time.Timer
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the configuration. The default is config.Default().
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) {
		if cfg != nil {
			e.cfg = cfg
		}
	}
}

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithMetrics records call metrics on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}

// WithCallTimeout cancels calls still running after d. It overrides the
// configured callTimeout; zero disables the timeout.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.callTimeout = d
		e.callTimeoutSet = true
	}
}

// WithPreparationTimeout bounds request preparation. The default is
// call.DefaultPreparationTimeout.
func WithPreparationTimeout(d time.Duration) Option {
	return func(e *Engine) { e.prepareTimeout = d }
}

// WithoutDefaultAdapters starts the engine with no adapters registered.
func WithoutDefaultAdapters() Option {
	return func(e *Engine) { e.defaultAdapters = false }
}

// New creates an Engine. Unless disabled, the HTTP, gRPC, WebSocket and
// GraphQL adapters are registered.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:             config.Default(),
		log:             logging.Nop(),
		registry:        call.NewRegistry(),
		defaultAdapters: true,
		adapters:        make(map[protocol.Protocol]Adapter),
		timers:          make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	if !e.callTimeoutSet {
		d, err := e.cfg.Timeout()
		if err != nil {
			return nil, err
		}
		e.callTimeout = d
	}

	e.runner = &transport.Runner{
		Registry:           e.registry,
		Observer:           e,
		Logger:             e.log,
		PreparationTimeout: e.prepareTimeout,
	}
	e.grpc = grpc.NewClient(grpc.WithClientLogger(e.log))

	if e.defaultAdapters {
		for _, a := range []Adapter{
			httpclient.New(httpclient.WithLogger(e.log)),
			grpc.New(grpc.WithLogger(e.log)),
			websocket.New(websocket.WithLogger(e.log)),
			graphql.New(graphql.WithLogger(e.log)),
		} {
			if err := e.Register(a); err != nil {
				return nil, err
			}
		}
	}
	return e, nil
}

// Register adds the adapter for a protocol.
func (e *Engine) Register(a Adapter) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := a.Protocol()
	if _, ok := e.adapters[p]; ok {
		return fmt.Errorf("%w: %s", protocol.ErrAdapterExists, p)
	}
	e.adapters[p] = a
	return nil
}

func (e *Engine) adapter(p protocol.Protocol) (Adapter, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.adapters[p]
	if !ok {
		return nil, fmt.Errorf("%w: %q", protocol.ErrUnsupportedProtocol, p)
	}
	return a, nil
}

// Registry returns the call registry.
func (e *Engine) Registry() *call.Registry {
	return e.registry
}

// Metrics returns the metrics collector, or nil.
func (e *Engine) Metrics() *metrics.Collector {
	return e.metrics
}

// Options resolves the configuration of a subproject into call options.
func (e *Engine) Options(subprojectID string) (transport.Options, error) {
	sub, err := e.cfg.Resolve(subprojectID)
	if err != nil {
		return transport.Options{}, err
	}
	return transport.OptionsFor(subprojectID, sub), nil
}

// SendRequest starts a call and returns its state, still in PREPARING.
//
// Settings left zero in opts are filled from the configuration of
// opts.SubprojectID; the SSL settings count as one value.
func (e *Engine) SendRequest(req *request.Request, opts transport.Options) (*call.State, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", protocol.ErrMissingExtra)
	}
	a, err := e.adapter(req.Protocol)
	if err != nil {
		return nil, err
	}

	resolved, err := e.Options(opts.SubprojectID)
	if err != nil {
		return nil, err
	}
	opts = fillOptions(opts, resolved)

	s, err := e.registry.Create(opts.CallID,
		call.WithProtocol(string(req.Protocol)),
		call.WithSubproject(opts.SubprojectID),
		call.WithRequest(opts.RequestID, opts.RequestExampleID),
		call.WithLimits(opts.Limits),
		call.WithLogger(e.log),
	)
	if err != nil {
		return nil, err
	}

	e.log.Debug("sending request", "call_id", s.ID, "protocol", string(req.Protocol))
	e.armTimeout(s)
	e.runner.StartJob(s, opts, a.Job(req))
	return s, nil
}

// fillOptions copies the settings of resolved into the zero fields of opts.
func fillOptions(opts, resolved transport.Options) transport.Options {
	if opts.HTTP.ProtocolVersion == "" {
		opts.HTTP = resolved.HTTP
	}
	if opts.SSL.IsZero() {
		opts.SSL = resolved.SSL
	}
	if opts.Limits == (exchange.Limits{}) {
		opts.Limits = resolved.Limits
	}
	if opts.ResponseSizeLimit == 0 {
		opts.ResponseSizeLimit = resolved.ResponseSizeLimit
	}
	return opts
}

// armTimeout schedules the external timeout of s, if one is configured.
func (e *Engine) armTimeout(s *call.State) {
	if e.callTimeout <= 0 {
		return
	}
	t := time.AfterFunc(e.callTimeout, func() {
		s.CancelWithCause(call.ErrTimeout)
	})
	e.mu.Lock()
	e.timers[s.ID] = t
	e.mu.Unlock()
}

// CallState returns a call in flight.
func (e *Engine) CallState(callID string) (*call.State, bool) {
	return e.registry.Get(callID)
}

// Cancel stops a call on behalf of the user.
func (e *Engine) Cancel(callID string) error {
	s, err := e.registry.Lookup(callID)
	if err != nil {
		return err
	}
	s.Cancel()
	return nil
}

// SendPayload sends a message on a connected call whose protocol accepts
// payloads after the request.
func (e *Engine) SendPayload(callID, payload string) error {
	s, err := e.registry.Lookup(callID)
	if err != nil {
		return err
	}
	if !protocol.Protocol(s.Protocol).HasCapability(protocol.CapabilityBidirectional) {
		return fmt.Errorf("%w: %s", call.ErrNotSupported, s.Protocol)
	}
	return s.SendPayload(payload)
}

// Protocols lists the protocols with a registered adapter, in the order of
// protocol.All followed by any others.
func (e *Engine) Protocols() []protocol.Protocol {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]protocol.Protocol, 0, len(e.adapters))
	for _, p := range protocol.All {
		if _, ok := e.adapters[p]; ok {
			out = append(out, p)
		}
	}
	var extra []protocol.Protocol
	for p := range e.adapters {
		if !p.IsValid() {
			extra = append(extra, p)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}

// FetchGRPCSpec retrieves the API spec of a gRPC server through reflection,
// using the SSL settings of the subproject.
func (e *Engine) FetchGRPCSpec(ctx context.Context, rawURL, subprojectID string) (*apispec.APISpec, error) {
	sub, err := e.cfg.Resolve(subprojectID)
	if err != nil {
		return nil, err
	}
	return e.grpc.FetchServiceSpec(ctx, rawURL, sub.SSL)
}

// CallStarted implements transport.Observer.
func (e *Engine) CallStarted(s *call.State) {
	if e.metrics != nil {
		e.metrics.CallStarted(s)
	}
}

// CallFinished implements transport.Observer.
func (e *Engine) CallFinished(s *call.State, outcome transport.Outcome, d time.Duration) {
	e.mu.Lock()
	if t, ok := e.timers[s.ID]; ok {
		t.Stop()
		delete(e.timers, s.ID)
	}
	e.mu.Unlock()

	e.log.Debug("call finished", "call_id", s.ID, "outcome", string(outcome), "duration", d)
	if e.metrics != nil {
		e.metrics.CallFinished(s, outcome, d)
	}
}
