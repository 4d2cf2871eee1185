package middleware

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sweetpotato0/finsight/message"
)

// Context represents the middleware execution context for one agent run
type Context struct {
	// Original user input
	Input string

	// Conversation accumulated by the run so far
	Messages []*message.Message

	// Final assistant text, populated once the run reaches a terminal state
	Output string

	// Error from execution
	Error error

	// Metadata for passing data between middlewares
	Metadata map[string]interface{}

	// Internal state
	context context.Context
}

// NewContext creates a new middleware context
func NewContext(ctx context.Context) *Context {
	return &Context{
		Metadata: make(map[string]interface{}),
		context:  ctx,
	}
}

// Context returns the underlying context.Context
func (c *Context) Context() context.Context {
	return c.context
}

// Middleware defines the interface for middleware components.
// Middlewares can intercept and observe a run before and after it executes.
type Middleware interface {
	// Name returns the name of the middleware for logging and debugging
	Name() string

	// Execute runs the middleware logic. It receives the current context and
	// a next handler to continue the chain. Returning error stops the chain.
	Execute(ctx *Context, next Handler) error
}

// Handler is the function called to pass control to the next middleware
type Handler func(*Context) error

// Chain represents a sequence of middleware to be executed
type Chain struct {
	middlewares []Middleware
}

// NewChain creates a new middleware chain
func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{
		middlewares: middlewares,
	}
}

// Add appends a middleware to the chain
func (c *Chain) Add(m Middleware) *Chain {
	c.middlewares = append(c.middlewares, m)
	return c
}

// List returns the middlewares in execution order
func (c *Chain) List() []Middleware {
	return append([]Middleware(nil), c.middlewares...)
}

// Execute runs all middlewares in the chain
func (c *Chain) Execute(ctx *Context, finalHandler Handler) error {
	return c.execute(ctx, 0, finalHandler)
}

func (c *Chain) execute(ctx *Context, index int, finalHandler Handler) error {
	if index >= len(c.middlewares) {
		return finalHandler(ctx)
	}

	nextHandler := func(ctx *Context) error {
		return c.execute(ctx, index+1, finalHandler)
	}

	return c.middlewares[index].Execute(ctx, nextHandler)
}

// RunLogger logs the input and terminal result of each run
type RunLogger struct {
	logger *slog.Logger
}

// NewRunLogger creates a run logging middleware
func NewRunLogger(logger *slog.Logger) *RunLogger {
	return &RunLogger{logger: logger}
}

// Name returns the middleware name
func (m *RunLogger) Name() string {
	return "RunLogger"
}

// Execute logs around the run
func (m *RunLogger) Execute(ctx *Context, next Handler) error {
	if m.logger != nil {
		m.logger.Debug("run started", "input_len", len(ctx.Input))
	}
	err := next(ctx)
	if m.logger != nil {
		if err != nil {
			m.logger.Error("run failed", "error", err)
		} else {
			m.logger.Debug("run finished", "messages", len(ctx.Messages))
		}
	}
	return err
}

// Recovery converts panics raised inside the run into errors so callers
// always receive a structured result or an error, never a panic
type Recovery struct{}

// NewRecovery creates a panic recovery middleware
func NewRecovery() *Recovery {
	return &Recovery{}
}

// Name returns the middleware name
func (m *Recovery) Name() string {
	return "Recovery"
}

// Execute recovers from panics in downstream handlers
func (m *Recovery) Execute(ctx *Context, next Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("run panicked: %v", r)
			ctx.Error = err
		}
	}()
	return next(ctx)
}
