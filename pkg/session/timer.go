package session

import (
	"sync"
	"time"
)

// oneShotTimer is a single-shot countdown. Arm schedules fn after d,
// replacing any pending countdown; the timer disarms itself on firing and
// will not fire again until re-armed.
type oneShotTimer struct {
	mu sync.Mutex
	t  *time.Timer
}

func (o *oneShotTimer) Arm(d time.Duration, fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.t != nil {
		o.t.Stop()
	}
	o.t = time.AfterFunc(d, fn)
}

func (o *oneShotTimer) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.t != nil {
		o.t.Stop()
		o.t = nil
	}
}

// repeatingTimer invokes fn at a fixed interval between Start and Stop.
// Start replaces any running cycle. fn runs on the timer goroutine and must
// not block.
type repeatingTimer struct {
	mu   sync.Mutex
	stop chan struct{}
}

func (r *repeatingTimer) Start(d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		close(r.stop)
	}
	stop := make(chan struct{})
	r.stop = stop

	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn()
			case <-stop:
				return
			}
		}
	}()
}

func (r *repeatingTimer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		close(r.stop)
		r.stop = nil
	}
}
