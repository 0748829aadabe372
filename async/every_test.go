package async_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dchisholm125/kestrel-hq-sub001/async"
)

func TestRunEvery_TicksUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var ticks int32
	async.RunEvery(ctx, 20*time.Millisecond, func() {
		atomic.AddInt32(&ticks, 1)
	})

	time.Sleep(100 * time.Millisecond)
	if atomic.LoadInt32(&ticks) == 0 {
		t.Fatal("Function never ran")
	}

	cancel()
	time.Sleep(50 * time.Millisecond)
	settled := atomic.LoadInt32(&ticks)

	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&ticks); got != settled {
		t.Errorf("Function kept running after cancel: %d ticks, want %d", got, settled)
	}
}
