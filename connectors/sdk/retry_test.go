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
	"testing"
	"time"
)

func fastRetryConfig(maxRetries int) *RetryConfig {
	return &RetryConfig{
		MaxRetries:      maxRetries,
		InitialInterval: time.Millisecond,
		MaxInterval:     10 * time.Millisecond,
		Multiplier:      2.0,
		RetryIf:         func(error) bool { return true },
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	result, err := RetryWithBackoff(context.Background(), fastRetryConfig(3), func() (int, error) {
		attempts++
		if attempts < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 42 {
		t.Errorf("expected 42, got %d", result)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryExhaustion(t *testing.T) {
	attempts := 0
	_, err := RetryWithBackoff(context.Background(), fastRetryConfig(2), func() (int, error) {
		attempts++
		return 0, errors.New("always failing")
	})

	var retryErr *RetryError
	if !errors.As(err, &retryErr) {
		t.Fatalf("expected RetryError, got %v", err)
	}
	if retryErr.Attempts != 3 {
		t.Errorf("expected 3 recorded attempts, got %d", retryErr.Attempts)
	}
	if attempts != 3 {
		t.Errorf("expected 3 invocations, got %d", attempts)
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	attempts := 0
	permanent := errors.New("bad credentials")

	_, err := RetryWithBackoff(context.Background(), fastRetryConfig(5), func() (int, error) {
		attempts++
		return 0, &NonRetryableError{Err: permanent}
	})

	if !errors.Is(err, permanent) {
		t.Fatalf("expected the permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected a single attempt, got %d", attempts)
	}
}

func TestRetryHonorsCustomCondition(t *testing.T) {
	config := fastRetryConfig(5)
	config.RetryIf = func(err error) bool { return false }

	attempts := 0
	_, err := RetryWithBackoff(context.Background(), config, func() (int, error) {
		attempts++
		return 0, errors.New("whatever")
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("expected condition to suppress retries, got %d attempts", attempts)
	}
}

func TestRetryContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	_, err := RetryWithBackoff(ctx, fastRetryConfig(10), func() (int, error) {
		attempts++
		if attempts == 1 {
			cancel()
		}
		return 0, errors.New("transient")
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDefaultRetryCondition(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"context canceled", context.Canceled, false},
		{"rate limited", fmt.Errorf("got 429 from server"), true},
		{"service unavailable", errors.New("503 service unavailable"), true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"bad request", errors.New("400 bad request"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultRetryCondition(tt.err); got != tt.want {
				t.Errorf("DefaultRetryCondition(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryableErrorWrapping(t *testing.T) {
	inner := errors.New("throttled")
	err := &RetryableError{Err: inner, RetryAfter: 2 * time.Second}

	if !IsRetryable(err) {
		t.Error("expected IsRetryable to be true")
	}
	if GetRetryAfter(err) != 2*time.Second {
		t.Errorf("expected retry-after of 2s, got %v", GetRetryAfter(err))
	}
	if !errors.Is(err, inner) {
		t.Error("expected unwrap to reach the inner error")
	}
}

func TestRetryVoid(t *testing.T) {
	attempts := 0
	err := RetryVoid(context.Background(), fastRetryConfig(2), func() error {
		attempts++
		if attempts < 2 {
			return errors.New("transient")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}
