// Package batch fans a set of gateway requests out through the resilience
// layer concurrently and collects one envelope per entry. Entries are
// isolated: a failed or panicking entry never disturbs its siblings, and
// the coordinator always returns a result for every key it was given.
package batch

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"interop-gateway/internal/gateway/models"
	dErrors "interop-gateway/pkg/domain-errors"
)

// Dispatcher is the single-request entry point the coordinator fans out to.
type Dispatcher interface {
	DispatchWithRetry(ctx context.Context, req *models.Request) (*models.Response, error)
}

// Coordinator runs batched dispatches with a bounded degree of parallelism.
type Coordinator struct {
	dispatcher  Dispatcher
	logger      *slog.Logger
	concurrency int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithConcurrency bounds how many entries run at once. Values below one
// fall back to the default.
func WithConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

const defaultConcurrency = 8

// New builds a Coordinator around the given dispatcher.
func New(dispatcher Dispatcher, opts ...Option) (*Coordinator, error) {
	if dispatcher == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "batch: dispatcher is required")
	}
	c := &Coordinator{
		dispatcher:  dispatcher,
		logger:      slog.Default(),
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// DispatchBatch routes every entry concurrently and returns an envelope per
// key. All entries run to completion; the group joins rather than racing,
// so one failing entry never cancels the others.
func (c *Coordinator) DispatchBatch(ctx context.Context, requests map[string]*models.Request) map[string]*models.Response {
	results := make(map[string]*models.Response, len(requests))
	if len(requests) == 0 {
		return results
	}

	var mu sync.Mutex
	g := &errgroup.Group{}
	g.SetLimit(c.concurrency)

	for key, req := range requests {
		g.Go(func() error {
			resp := c.dispatchOne(ctx, key, req)
			mu.Lock()
			results[key] = resp
			mu.Unlock()
			return nil
		})
	}

	// Entries never return errors; Wait is purely a join.
	_ = g.Wait()
	return results
}

func (c *Coordinator) dispatchOne(ctx context.Context, key string, req *models.Request) (resp *models.Response) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.ErrorContext(ctx, "batch entry panicked",
				"batch_key", key,
				"panic", r,
			)
			resp = models.Failure(systemCodeOf(req), models.ErrInternal, "internal gateway error")
		}
	}()

	resp, err := c.dispatcher.DispatchWithRetry(ctx, req)
	if err != nil {
		return models.Failure(systemCodeOf(req), models.ErrInternal, err.Error())
	}
	return resp
}

func systemCodeOf(req *models.Request) string {
	if req == nil {
		return ""
	}
	return req.SystemCode
}
