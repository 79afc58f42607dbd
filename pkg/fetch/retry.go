// SPDX-License-Identifier: Apache-2.0
package fetch

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"

	"github.com/arbor-embedded/otad/pkg/errs"
)

const (
	retryInitialInterval = 1 * time.Second
	retryMaxInterval     = 30 * time.Second
)

// WithRetry runs op up to maxRetries additional times after the first
// attempt, with exponential backoff starting at 1s and doubling, capped
// at 30s. Only transient errors (network, timeout, 5xx, discovery
// failures) are retried; everything else, including context cancellation,
// is returned immediately. A context that ends while waiting between
// attempts is reported as a Cancelled error.
func WithRetry(ctx context.Context, maxRetries int, op string, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryInitialInterval
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxInterval = retryMaxInterval
	policy.MaxElapsedTime = 0 // bounded by WithMaxRetries, not wall-clock

	bounded := backoff.WithMaxRetries(policy, uint64(maxRetries))
	withCtx := backoff.WithContext(bounded, ctx)

	attempt := 0
	wrapped := func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if errs.IsTransient(err) {
			log.Debugf("%s: transient error on attempt %d: %v", op, attempt, err)
			return err
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(wrapped, withCtx); err != nil {
		if permanent, ok := err.(*backoff.PermanentError); ok {
			return permanent.Err
		}
		if ctxErr := ctx.Err(); ctxErr != nil && err == ctxErr {
			return errs.New(errs.KindCancelled, op, err)
		}
		return err
	}
	return nil
}
