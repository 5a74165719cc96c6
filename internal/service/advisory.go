package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"procurement/internal/document"

	"github.com/sirupsen/logrus"
)

// AdvisoryRunner runs document analysis in the background with its own deadline. Jobs outlive the
// HTTP request that scheduled them.
type AdvisoryRunner struct {
	wg      sync.WaitGroup
	timeout time.Duration
	logger  *logrus.Logger
	metrics *Metrics
}

func NewAdvisoryRunner(timeout time.Duration, logger *logrus.Logger, metrics *Metrics) *AdvisoryRunner {
	return &AdvisoryRunner{timeout: timeout, logger: logger, metrics: metrics}
}

// Go schedules fn. The error it returns only feeds metrics and logs.
func (r *AdvisoryRunner) Go(job string, fields logrus.Fields, fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		start := time.Now()
		err := fn(ctx)
		result := outcome(err)
		r.metrics.advisory.WithLabelValues(job, result).Inc()
		r.metrics.advisoryLatency.WithLabelValues(job).Observe(time.Since(start).Seconds())

		entry := r.logger.WithFields(fields).WithField("job", job)
		if err != nil {
			entry.WithError(err).WithField("result", result).Warn("document analysis degraded")
			return
		}
		entry.Debug("document analysis finished")
	}()
}

// Wait blocks until every scheduled job has finished.
func (r *AdvisoryRunner) Wait() {
	r.wg.Wait()
}

// Drain waits for running jobs or gives up when ctx ends.
func (r *AdvisoryRunner) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, document.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return "error"
}

// advisoryWarning is the user-facing note stored when analysis could not be produced.
func advisoryWarning(err error) string {
	switch outcome(err) {
	case "unavailable":
		return "document analysis is not available; review the document manually"
	case "timeout":
		return "document analysis timed out; review the document manually"
	}
	return "document analysis failed; review the document manually"
}
