package runtime

import (
	"math/rand"
	"time"

	"github.com/wehubfusion/Daedalus/pkg/dsl"
)

const (
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 30 * time.Second
)

// BackoffDelay computes the delay before retry number attempt (1-based):
// exponential doubling from the policy's initial backoff, capped at its max,
// plus uniform jitter in [0, delay/4). A nil rng disables jitter, which keeps
// the schedule fully deterministic for tests.
func BackoffDelay(policy dsl.RetryPolicy, attempt int, rng *rand.Rand) time.Duration {
	initial := policy.InitialBackoff
	if initial <= 0 {
		initial = defaultInitialBackoff
	}
	max := policy.MaxBackoff
	if max <= 0 {
		max = defaultMaxBackoff
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			delay = max
			break
		}
	}
	if delay > max {
		delay = max
	}

	if rng != nil && delay > 0 {
		delay += time.Duration(rng.Int63n(int64(delay)/4 + 1))
	}
	return delay
}
