package engine

import (
	"time"

	"github.com/dukex/stride/pkg/models"
	"github.com/sethvargo/go-retry"
)

// backoffFor yields rc.Delay(1), rc.Delay(2), ... and stops after MaxAttempts-1
// retries. A nil rc never retries.
func backoffFor(rc *models.RetryConfig) retry.Backoff {
	var retries uint64
	if rc != nil && rc.MaxAttempts > 1 {
		retries = uint64(rc.MaxAttempts - 1)
	}

	n := 0
	multiplied := retry.BackoffFunc(func() (time.Duration, bool) {
		n++

		if rc == nil {
			return 0, true
		}

		return rc.Delay(n), false
	})

	return retry.WithMaxRetries(retries, multiplied)
}
