package emucontext

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Context pairs a context.Context with the logger that work running under it should use.
// Ticks, batches and servers each narrow the logger with their own fields as the context is handed down.
type Context struct {
	context.Context
	Log *logrus.Entry
}

// Background is the root context for a command, logging to the standard logger.
func Background() *Context {
	return New(context.Background(), logrus.NewEntry(logrus.StandardLogger()))
}

func New(ctx context.Context, log *logrus.Entry) *Context {
	return &Context{
		Context: ctx,
		Log:     log,
	}
}

// derive wraps a child of parent's go context, keeping parent's logger.
func derive(parent *Context, ctx context.Context) *Context {
	return New(ctx, parent.Log)
}

func WithCancel(parent *Context) (*Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent.Context)
	return derive(parent, ctx), cancel
}

func WithDeadline(parent *Context, d time.Time) (*Context, context.CancelFunc) {
	ctx, cancel := context.WithDeadline(parent.Context, d)
	return derive(parent, ctx), cancel
}

// WithTimeout bounds a single operation, such as one submit attempt, to timeout from now.
func WithTimeout(parent *Context, timeout time.Duration) (*Context, context.CancelFunc) {
	return WithDeadline(parent, time.Now().Add(timeout))
}

// WithLogField narrows the logger. Cancellation is shared with parent.
func WithLogField(parent *Context, key string, val interface{}) *Context {
	return New(parent.Context, parent.Log.WithField(key, val))
}

// WithLogFields narrows the logger with several fields at once. Cancellation is shared with parent.
func WithLogFields(parent *Context, fields logrus.Fields) *Context {
	return New(parent.Context, parent.Log.WithFields(fields))
}

// ErrGroup is errgroup.WithContext for a Context. The returned Context is cancelled when the first
// goroutine fails or Wait returns.
func ErrGroup(parent *Context) (*errgroup.Group, *Context) {
	g, ctx := errgroup.WithContext(parent)
	return g, derive(parent, ctx)
}
