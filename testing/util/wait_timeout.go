// Package util provides small helpers shared by service tests.
package util

import (
	"sync"
	"time"
)

// WaitTimeout waits for wg up to timeout. It reports whether the timeout
// fired before the group resolved.
func WaitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return false
	case <-time.After(timeout):
		return true
	}
}
