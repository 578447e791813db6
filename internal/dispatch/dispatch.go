package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/pepsico-ecommerce/dawdle/internal/logger"
	"github.com/pepsico-ecommerce/dawdle/internal/metrics"
)

// Signal is the envelope producers serialize into a queue message.
type Signal struct {
	Name    string          `json:"name" validate:"required"` // Signal name, routes to handlers
	Payload json.RawMessage `json:"payload"`                  // Opaque handler payload
}

// HandlerFunc processes one signal. An error marks the dispatch failed
// but does not stop other handlers.
type HandlerFunc func(ctx context.Context, signal Signal) error

// Registry routes received signals to their registered handlers.
// Registration happens at startup; Dispatch is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string][]HandlerFunc
	validate *validator.Validate
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string][]HandlerFunc),
		validate: validator.New(),
	}
}

// Register adds a handler for the given signal name.
func (r *Registry) Register(name string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = append(r.handlers[name], handler)
}

// Dispatch decodes a message body and invokes every handler registered
// for its signal name. Signals without handlers are acknowledged and
// dropped. Malformed bodies are an error so the caller can decide
// whether to acknowledge them.
func (r *Registry) Dispatch(ctx context.Context, body []byte) error {
	var signal Signal
	if err := json.Unmarshal(body, &signal); err != nil {
		return fmt.Errorf("decode signal: %w", err)
	}
	if err := r.validate.Struct(signal); err != nil {
		return fmt.Errorf("invalid signal: %w", err)
	}

	ctx = logger.WithTraceID(ctx, signal.Name)

	r.mu.RLock()
	handlers := r.handlers[signal.Name]
	r.mu.RUnlock()

	if len(handlers) == 0 {
		logger.DebugCtx(ctx, "no handlers for signal %s, dropping", signal.Name)
		return nil
	}

	var firstErr error
	for _, handler := range handlers {
		if err := handler(ctx, signal); err != nil {
			metrics.DispatchFailures.Inc()
			logger.ErrorCtx(ctx, "handler for signal %s failed: %v", signal.Name, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
