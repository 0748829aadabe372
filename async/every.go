// Package async contains scheduling helpers shared by the long-running
// orchestrator services.
package async

import (
	"context"
	"reflect"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "async")

// RunEvery invokes f on a fixed period until ctx is cancelled. The first
// invocation happens one full period after the call, so callers can finish
// their own startup before a sweep begins.
func RunEvery(ctx context.Context, period time.Duration, f func()) {
	name := runtime.FuncForPC(reflect.ValueOf(f).Pointer()).Name()
	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				f()
			case <-ctx.Done():
				log.WithField("function", name).Debug("Stopping periodic runner")
				return
			}
		}
	}()
}
