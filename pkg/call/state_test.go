package call

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunny-chung/hello-http-sub000/pkg/exchange"
)

func TestNewState(t *testing.T) {
	s := NewState("", WithSubproject("sp"), WithRequest("req", "ex"), WithProtocol("http"))
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "sp", s.SubprojectID)
	assert.Equal(t, "req", s.RequestID)
	assert.Equal(t, "ex", s.RequestExampleID)
	assert.Equal(t, "http", s.Protocol)
	assert.Equal(t, StatusPreparing, s.Status())
	assert.False(t, s.IsPrepared())
	assert.False(t, s.Snapshot().StartAt.IsZero())

	named := NewState("fixed")
	assert.Equal(t, "fixed", named.ID)
}

func TestState_SetStatus(t *testing.T) {
	s := NewState("c")
	require.NoError(t, s.SetStatus(StatusConnecting))
	require.NoError(t, s.SetStatus(StatusConnected))
	require.NoError(t, s.SetStatus(StatusOpenForStreaming))
	require.NoError(t, s.SetStatus(StatusConnected))
	require.NoError(t, s.SetStatus(StatusConnected))

	err := s.SetStatus(StatusPreparing)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, s.SetStatus(StatusDisconnected))
	assert.ErrorIs(t, s.SetStatus(StatusConnected), ErrInvalidTransition)

	assert.Equal(t, []Status{
		StatusPreparing, StatusConnecting, StatusConnected,
		StatusOpenForStreaming, StatusConnected, StatusDisconnected,
	}, s.History())
	assertLifecycle(t, s.History())
}

func TestState_DisconnectedStopsRecording(t *testing.T) {
	s := NewState("c")
	require.True(t, s.Outgoing().Emit(exchange.Bytes(time.Now(), []byte("a"))))
	s.Emit("Connected")

	require.NoError(t, s.SetStatus(StatusDisconnected))

	assert.False(t, s.Incoming().Emit(exchange.Bytes(time.Now(), []byte("late"))))
	entries := s.Exchange().Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "a", string(entries[0].Payload))
	assert.Equal(t, "Connected", entries[1].Detail)
}

func TestState_PreparationBarrier(t *testing.T) {
	t.Run("released", func(t *testing.T) {
		s := NewState("c")
		go func() {
			time.Sleep(10 * time.Millisecond)
			s.MarkPrepared(nil)
		}()
		require.NoError(t, s.WaitPrepared(context.Background(), time.Second))
		assert.True(t, s.IsPrepared())

		s.MarkPrepared(errors.New("ignored"))
		assert.NoError(t, s.WaitPrepared(context.Background(), time.Second))
	})

	t.Run("failed", func(t *testing.T) {
		s := NewState("c")
		prepErr := errors.New("bad body")
		s.MarkPrepared(prepErr)
		assert.ErrorIs(t, s.WaitPrepared(context.Background(), time.Second), prepErr)
		assert.False(t, s.IsPrepared())
	})

	t.Run("timeout", func(t *testing.T) {
		s := NewState("c")
		err := s.WaitPrepared(context.Background(), 20*time.Millisecond)
		assert.ErrorIs(t, err, ErrPreparationTimeout)
	})

	t.Run("context", func(t *testing.T) {
		s := NewState("c")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, s.WaitPrepared(ctx, time.Second), context.Canceled)
	})

	t.Run("response readers block until prepared", func(t *testing.T) {
		s := NewState("c")
		got := make(chan UserResponse, 1)
		go func() {
			r, _ := s.Response(context.Background())
			got <- r
		}()

		select {
		case <-got:
			t.Fatal("response read before preparation")
		case <-time.After(30 * time.Millisecond):
		}

		s.UpdateResponse(func(r *UserResponse) {
			r.RequestData = &RequestData{Method: "GET", URL: "http://x"}
		})
		s.MarkPrepared(nil)

		r := <-got
		require.NotNil(t, r.RequestData)
		assert.Equal(t, "GET", r.RequestData.Method)
	})
}

func TestState_SnapshotIsACopy(t *testing.T) {
	s := NewState("c")
	s.UpdateResponse(func(r *UserResponse) {
		r.Body = []byte("abc")
		r.Headers = Headers{{Name: "A", Value: "1"}}
	})
	snap := s.Snapshot()
	snap.Body[0] = 'z'
	snap.Headers[0].Value = "2"

	again := s.Snapshot()
	assert.Equal(t, "abc", string(again.Body))
	assert.Equal(t, "1", again.Headers.Get("a"))
}

func TestState_Cancel(t *testing.T) {
	s := NewState("c")
	require.NoError(t, s.SetStatus(StatusConnecting))

	var calls atomic.Int32
	var gotCause error
	s.SetCancel(func(cause error) {
		calls.Add(1)
		gotCause = cause
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Cancel()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.ErrorIs(t, gotCause, ErrCanceled)
	assert.ErrorIs(t, s.CancelCause(), ErrCanceled)
	assert.Equal(t, StatusDisconnected, s.Status())

	latest, _ := s.Events().Latest()
	assert.Equal(t, "Terminated by user", latest.Text)
}

func TestState_CancelSurvivesPanickingAction(t *testing.T) {
	s := NewState("c")
	require.NoError(t, s.SetStatus(StatusConnecting))
	s.SetCancel(func(error) { panic("boom") })

	assert.NotPanics(t, s.Cancel)
	assert.Equal(t, StatusDisconnected, s.Status())
}

func TestState_CancelBeforeActionInstalled(t *testing.T) {
	s := NewState("c")
	s.CancelWithCause(ErrTimeout)

	ran := make(chan error, 1)
	s.SetCancel(func(cause error) { ran <- cause })

	select {
	case cause := <-ran:
		assert.ErrorIs(t, cause, ErrTimeout)
	default:
		t.Fatal("late cancel action did not run")
	}
	assert.True(t, IsCancellation(s.CancelCause()))
	latest, _ := s.Events().Latest()
	assert.Equal(t, "Call timed out", latest.Text)
}

func TestState_SendPayload(t *testing.T) {
	s := NewState("c")
	assert.ErrorIs(t, s.SendPayload("x"), ErrNotSupported)

	var sent []string
	s.SetSendPayload(func(p string) error {
		sent = append(sent, p)
		return nil
	})
	assert.ErrorIs(t, s.SendPayload("x"), ErrNotConnected)

	require.NoError(t, s.SetStatus(StatusConnecting))
	require.NoError(t, s.SetStatus(StatusConnected))
	require.NoError(t, s.SendPayload("hello"))
	assert.Equal(t, []string{"hello"}, sent)

	require.NoError(t, s.SetStatus(StatusDisconnected))
	assert.ErrorIs(t, s.SendPayload("bye"), ErrNotConnected)
}

func TestState_AddPayloadExchange(t *testing.T) {
	s := NewState("c")
	s.AddPayloadExchange(PayloadConnected, "")
	s.AddPayloadExchange(PayloadOutgoingData, "ping")

	r := s.Snapshot()
	require.Len(t, r.PayloadExchanges, 2)
	assert.Equal(t, PayloadOutgoingData, r.PayloadExchanges[1].Type)
	assert.Equal(t, "ping", r.PayloadExchanges[1].Data)
	assert.NotEqual(t, r.PayloadExchanges[0].ID, r.PayloadExchanges[1].ID)
}

func TestHeaders(t *testing.T) {
	h := Headers{{"Set-Cookie", "a=1"}, {"Content-Type", "text/plain"}, {"set-cookie", "b=2"}}
	assert.Equal(t, "text/plain", h.Get("content-type"))
	assert.Equal(t, []string{"a=1", "b=2"}, h.Values("Set-Cookie"))
	assert.Empty(t, h.Get("missing"))
}
