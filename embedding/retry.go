// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package embedding

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"syscall"
	"time"

	"github.com/poiesic/docreply/ai"
)

// RetryPolicy decides whether a failed provider call may be retried.
type RetryPolicy func(err error) bool

// RetryOnRateLimit retries only provider throttling signals.
func RetryOnRateLimit(err error) bool {
	return errors.Is(err, ai.ErrRateLimited)
}

// RetryOnTransient retries throttling plus network-level failures:
// per-call timeouts, connection resets and truncated responses.
func RetryOnTransient(err error) bool {
	if RetryOnRateLimit(err) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// NeverRetry disables retries.
func NeverRetry(error) bool {
	return false
}

// Backoff returns the wait before retry n (1-based): base * 2^n.
func Backoff(base time.Duration, n int) time.Duration {
	delay := base
	for i := 0; i < n; i++ {
		delay *= 2
	}
	return delay
}

// RetryWithBackoff runs operation once and then up to maxRetries more times
// while policy accepts the error, sleeping Backoff(baseDelay, n) before retry n.
// Errors the policy rejects are returned immediately. The error from the last
// attempt is returned when retries are exhausted.
func RetryWithBackoff(ctx context.Context, clock Clock, policy RetryPolicy, maxRetries int, baseDelay time.Duration, operation func() error) error {
	if maxRetries < 0 {
		return ErrInvalidMaxRetries
	}
	if policy == nil {
		policy = RetryOnRateLimit
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := Backoff(baseDelay, attempt)
			slog.Debug("retryable failure, backing off", "retry", attempt, "maxRetries", maxRetries, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-clock.After(delay):
			}
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil {
			if attempt > 0 {
				slog.Debug("operation succeeded after retry", "retry", attempt)
			}
			return nil
		}
		if !policy(lastErr) {
			return lastErr
		}
	}

	return lastErr
}
