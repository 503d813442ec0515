// Copyright 2025 SurveyFlow
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sdk

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxRetries      int              // Maximum number of retry attempts
	InitialInterval time.Duration    // Initial wait interval
	MaxInterval     time.Duration    // Maximum wait interval
	Multiplier      float64          // Backoff multiplier
	Jitter          float64          // Jitter factor (0-1)
	RetryIf         func(error) bool // Custom retry condition
}

// DefaultRetryConfig returns a sensible default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		Jitter:          0.1,
		RetryIf:         DefaultRetryCondition,
	}
}

// DefaultRetryCondition returns true for transient errors
func DefaultRetryCondition(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Network errors (timeout only, Temporary() is deprecated)
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	errMsg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection refused",
		"connection reset",
		"connection timed out",
		"temporary failure",
		"service unavailable",
		"too many requests",
		"rate limit",
		"429",
		"502",
		"503",
		"504",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}

	return false
}

// RetryableError wraps an error to indicate it should be retried
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable checks if an error is marked as retryable
func IsRetryable(err error) bool {
	var retryable *RetryableError
	return errors.As(err, &retryable)
}

// GetRetryAfter returns the retry-after duration if specified
func GetRetryAfter(err error) time.Duration {
	var retryable *RetryableError
	if errors.As(err, &retryable) {
		return retryable.RetryAfter
	}
	return 0
}

// NonRetryableError wraps an error to indicate it should not be retried
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return e.Err.Error()
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// IsNonRetryable checks if an error is marked as non-retryable
func IsNonRetryable(err error) bool {
	var nonRetryable *NonRetryableError
	return errors.As(err, &nonRetryable)
}

// RetryFunc is the function type that can be retried
type RetryFunc[T any] func() (T, error)

// RetryWithBackoff executes a function with exponential backoff retry
func RetryWithBackoff[T any](ctx context.Context, config *RetryConfig, fn RetryFunc[T]) (T, error) {
	var zero T

	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error
	interval := config.InitialInterval

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		if IsNonRetryable(err) {
			return zero, err
		}

		if !IsRetryable(err) && config.RetryIf != nil && !config.RetryIf(err) {
			return zero, err
		}

		if attempt >= config.MaxRetries {
			break
		}

		waitTime := interval

		// Honor server-provided retry-after over the computed backoff
		if retryAfter := GetRetryAfter(err); retryAfter > 0 {
			waitTime = retryAfter
		}

		if config.Jitter > 0 {
			jitter := waitTime.Seconds() * config.Jitter * (rand.Float64()*2 - 1)
			waitTime += time.Duration(jitter * float64(time.Second))
		}

		if waitTime > config.MaxInterval {
			waitTime = config.MaxInterval
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(waitTime):
		}

		interval = time.Duration(float64(interval) * config.Multiplier)
		if interval > config.MaxInterval {
			interval = config.MaxInterval
		}
	}

	return zero, &RetryError{
		Err:      lastErr,
		Attempts: config.MaxRetries + 1,
	}
}

// Retry executes a function with default retry configuration
func Retry[T any](ctx context.Context, fn RetryFunc[T]) (T, error) {
	return RetryWithBackoff(ctx, DefaultRetryConfig(), fn)
}

// RetryVoid executes a void function with retry
func RetryVoid(ctx context.Context, config *RetryConfig, fn func() error) error {
	_, err := RetryWithBackoff(ctx, config, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryError indicates all retry attempts failed
type RetryError struct {
	Err      error
	Attempts int
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error {
	return e.Err
}
