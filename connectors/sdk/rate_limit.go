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
	"sync"
	"time"
)

// RateLimiter implements a token bucket rate limiter. Survey platform APIs
// enforce per-tenant request quotas, so every connector throttles its
// outbound calls through one of these.
type RateLimiter struct {
	rate       float64   // tokens per second
	burst      int       // maximum burst size
	tokens     float64   // current tokens available
	lastUpdate time.Time // last time tokens were updated
	mu         sync.Mutex
}

// NewRateLimiter creates a new rate limiter
// rate: number of requests allowed per second
// burst: maximum number of requests allowed in a burst
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	return &RateLimiter{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastUpdate: time.Now(),
	}
}

func (r *RateLimiter) refillLocked() {
	now := time.Now()
	elapsed := now.Sub(r.lastUpdate).Seconds()
	r.tokens = min(float64(r.burst), r.tokens+elapsed*r.rate)
	r.lastUpdate = now
}

// Wait blocks until a token is available or the context is cancelled
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refillLocked()

		if r.tokens >= 1 {
			r.tokens--
			r.mu.Unlock()
			return nil
		}

		waitTime := time.Duration((1-r.tokens)/r.rate*1000) * time.Millisecond
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
}

// TryAcquire attempts to acquire a token without blocking
// Returns true if a token was acquired, false otherwise
func (r *RateLimiter) TryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refillLocked()

	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// Available returns the number of tokens currently available
func (r *RateLimiter) Available() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refillLocked()
	return int(r.tokens)
}

// Reset resets the rate limiter to full capacity
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = float64(r.burst)
	r.lastUpdate = time.Now()
}

// SetRate updates the rate limit dynamically
func (r *RateLimiter) SetRate(rate float64, burst int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rate = rate
	r.burst = burst
	if r.tokens > float64(burst) {
		r.tokens = float64(burst)
	}
}
