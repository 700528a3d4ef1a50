// Package service implements the document, session, and reconciliation
// workflows on top of the store and blob store.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"guidepost/internal/apperr"
)

const detachedTimeout = 30 * time.Second

// Options carries the dependencies shared by every service.
type Options struct {
	// OperationTimeout bounds each call on top of the caller's deadline. Zero disables it.
	OperationTimeout time.Duration
	Logger           *slog.Logger
	Now              func() time.Time
}

type base struct {
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

func newBase(component string, opts Options) base {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return base{
		timeout: opts.OperationTimeout,
		logger:  logger.With("component", component),
		now:     func() time.Time { return now().UTC() },
	}
}

func (b base) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout > 0 {
		return context.WithTimeout(ctx, b.timeout)
	}
	return context.WithCancel(ctx)
}

// detached returns a bounded context that survives cancellation of ctx.
// It is used for compensating writes after the caller's work failed.
func (b base) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := detachedTimeout
	if b.timeout > 0 {
		timeout = b.timeout
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

// storeError classifies a storage failure. Deadline errors become timeouts;
// anything unclassified is internal.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	err = apperr.FromContext(err)
	if apperr.KindOf(err) != "" {
		return err
	}
	return apperr.Internal(fmt.Errorf("%s: %w", op, err))
}
