package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sunny-chung/hello-http-sub000/pkg/call"
	"github.com/sunny-chung/hello-http-sub000/pkg/logging"
)

// Outcome classifies how a call ended.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeError    Outcome = "error"
	OutcomeCanceled Outcome = "canceled"
	OutcomeTimeout  Outcome = "timeout"
)

// Observer is notified when calls start and finish.
type Observer interface {
	CallStarted(s *call.State)
	CallFinished(s *call.State, outcome Outcome, d time.Duration)
}

// Exec is the context handed to the prepare and run steps of a call.
type Exec struct {
	State   *call.State
	Options Options
	Log     *slog.Logger

	ctx    context.Context
	cancel context.CancelCauseFunc
}

// Context is cancelled when the call is cancelled.
func (e *Exec) Context() context.Context {
	return e.ctx
}

// OnCancel installs fn as the call's cancel action. The call's context is
// cancelled before fn runs.
func (e *Exec) OnCancel(fn func(cause error)) {
	e.State.SetCancel(func(cause error) {
		e.cancel(cause)
		if fn != nil {
			fn(cause)
		}
	})
}

// Job is the protocol-specific part of a call.
type Job interface {
	// Prepare builds everything the call sends. It runs concurrently with
	// the caller of SendRequest.
	Prepare(e *Exec) error

	// Run connects and performs the exchange.
	Run(e *Exec) error
}

// Runner drives calls through their lifecycle.
type Runner struct {
	Registry *call.Registry
	Observer Observer
	Logger   *slog.Logger

	// PreparationTimeout defaults to call.DefaultPreparationTimeout.
	PreparationTimeout time.Duration
}

// Start runs the call in the background and returns immediately.
//
// prepare runs on its own goroutine and releases the preparation barrier
// when it returns. run starts once the barrier is released, with the call in
// CONNECTING, and returns when the exchange is over. Connections opened by
// run must be closed before it returns.
func (r *Runner) Start(s *call.State, opts Options, prepare, run func(*Exec) error) {
	ctx, cancel := context.WithCancelCause(context.Background())
	e := &Exec{
		State:   s,
		Options: opts,
		Log:     logging.ForCall(logging.OrNop(r.Logger), s.ID, s.Protocol),
		ctx:     ctx,
		cancel:  cancel,
	}
	e.OnCancel(nil)

	if r.Observer != nil {
		r.Observer.CallStarted(s)
	}

	go func() {
		var err error
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("internal error: %v", p)
				e.Log.Error("call panicked", "panic", p)
			}
			r.finish(e, err)
		}()
		err = r.execute(e, prepare, run)
	}()
}

// StartJob is Start with the steps of j.
func (r *Runner) StartJob(s *call.State, opts Options, j Job) {
	r.Start(s, opts, j.Prepare, j.Run)
}

func (r *Runner) execute(e *Exec, prepare, run func(*Exec) error) error {
	s := e.State

	go func() {
		s.MarkPrepared(safely(prepare, e))
	}()

	if err := s.WaitPrepared(e.ctx, r.PreparationTimeout); err != nil {
		return err
	}

	if err := s.SetStatus(call.StatusConnecting); err != nil {
		return err
	}
	s.UpdateResponse(func(resp *call.UserResponse) {
		resp.StartAt = time.Now()
		resp.IsCommunicating = true
	})

	return run(e)
}

func safely(fn func(*Exec) error, e *Exec) (err error) {
	if fn == nil {
		return nil
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("request preparation failed: %v", p)
		}
	}()
	return fn(e)
}

// finish is the path every call ends with, whatever happened before.
func (r *Runner) finish(e *Exec, err error) {
	s := e.State
	defer e.cancel(nil)

	cause := s.CancelCause()
	outcome := OutcomeSuccess
	switch {
	case errors.Is(cause, call.ErrTimeout):
		outcome = OutcomeTimeout
	case cause != nil:
		outcome = OutcomeCanceled
	case err != nil:
		outcome = OutcomeError
	}

	s.UpdateResponse(func(resp *call.UserResponse) {
		resp.EndAt = time.Now()
		resp.IsCommunicating = false
		switch outcome {
		case OutcomeTimeout:
			resp.IsError = true
			resp.ErrorMessage = "Call timed out"
		case OutcomeCanceled:
			resp.Canceled = true
		case OutcomeError:
			resp.IsError = true
			if resp.ErrorMessage == "" {
				resp.ErrorMessage = err.Error()
			}
		}
	})

	if outcome == OutcomeError {
		s.Emitf("Error: %v", err)
		e.Log.Warn("call failed", "error", err)
	}

	if outcome == OutcomeSuccess && e.Options.PostFlight != nil {
		r.runPostFlight(e)
	}

	_ = s.SetStatus(call.StatusDisconnected)
	s.End("Response completed")

	snap := s.Snapshot()
	e.Log.Debug("call completed", "outcome", string(outcome), "duration", snap.Duration())
	if r.Observer != nil {
		r.Observer.CallFinished(s, outcome, snap.Duration())
	}
	if r.Registry != nil {
		r.Registry.Complete(s)
	}
}

func (r *Runner) runPostFlight(e *Exec) {
	s := e.State
	snap := s.Snapshot()

	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("panic: %v", p)
			}
		}()
		return e.Options.PostFlight(&snap)
	}()
	if err == nil {
		return
	}

	s.UpdateResponse(func(resp *call.UserResponse) {
		resp.PostFlightErrorMessage = err.Error()
	})
	s.Emitf("Post-flight action failed: %v", err)
	e.Log.Warn("post-flight action failed", "error", err)
}
