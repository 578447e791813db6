package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchRoutesToRegisteredHandlers(t *testing.T) {
	r := NewRegistry()

	var got []string
	var mu sync.Mutex
	r.Register("user_created", func(ctx context.Context, signal Signal) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, string(signal.Payload))
		return nil
	})

	err := r.Dispatch(context.Background(), []byte(`{"name":"user_created","payload":{"id":42}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{`{"id":42}`}, got)
}

func TestDispatchUnknownSignalIsDropped(t *testing.T) {
	r := NewRegistry()
	err := r.Dispatch(context.Background(), []byte(`{"name":"nobody_home"}`))
	assert.NoError(t, err)
}

func TestDispatchMalformedBody(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Dispatch(context.Background(), []byte("not json")))
}

func TestDispatchMissingName(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Dispatch(context.Background(), []byte(`{"payload":{}}`)))
}

func TestDispatchReturnsFirstHandlerError(t *testing.T) {
	r := NewRegistry()
	first := errors.New("first failure")

	calls := 0
	r.Register("boom", func(ctx context.Context, signal Signal) error {
		calls++
		return first
	})
	r.Register("boom", func(ctx context.Context, signal Signal) error {
		calls++
		return errors.New("second failure")
	})

	err := r.Dispatch(context.Background(), []byte(`{"name":"boom"}`))
	assert.ErrorIs(t, err, first)
	assert.Equal(t, 2, calls, "all handlers run even when one fails")
}
