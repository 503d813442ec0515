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
	"fmt"
	"time"
)

// IntervalFunc returns the wait duration before the given attempt.
// Attempts are numbered starting at 1.
type IntervalFunc func(attempt int) time.Duration

// ConstantInterval returns an IntervalFunc that always waits d
func ConstantInterval(d time.Duration) IntervalFunc {
	return func(int) time.Duration { return d }
}

// PollProducer is invoked once per polling attempt. It returns a non-nil
// result to stop polling, (nil, nil) to keep waiting, or an error to abort.
type PollProducer[T any] func(ctx context.Context, attempt int) (*T, error)

// Poll runs a bounded polling loop against a long-running remote operation.
//
// Each attempt waits interval(attempt) first and then invokes the producer;
// the delay comes before the first invocation too, which gives fresh
// operations a chance to make progress before they are ever queried. The
// loop stops on the first non-nil result, aborts on the first producer
// error, and gives up after maxAttempts attempts.
//
// Exhaustion is not an error here: Poll returns (nil, nil) so the caller
// can distinguish "the remote side never finished" from "the remote side
// reported failure". Context cancellation aborts the wait immediately.
//
// A maxAttempts of zero or less means no attempt budget: the loop runs
// until the producer yields, errors, or the context is cancelled.
func Poll[T any](ctx context.Context, maxAttempts int, interval IntervalFunc, producer PollProducer[T]) (*T, error) {
	if interval == nil {
		return nil, fmt.Errorf("interval function is required")
	}

	for attempt := 1; maxAttempts <= 0 || attempt <= maxAttempts; attempt++ {
		wait := interval(attempt)

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		result, err := producer(ctx, attempt)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}
	}

	return nil, nil
}
