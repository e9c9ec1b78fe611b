package watcher

import (
	"context"
	"time"
)

// debouncer coalesces bursts of events per path. Expired paths are delivered
// on fired; the receiver must call done so the timer is released. Only the
// goroutine that owns the debouncer may call its methods.
type debouncer struct {
	delay  time.Duration
	timers map[string]*time.Timer
	fired  chan string
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{
		delay:  delay,
		timers: make(map[string]*time.Timer),
		fired:  make(chan string),
	}
}

// schedule (re)starts the quiet period for path
func (d *debouncer) schedule(ctx context.Context, path string) {
	if timer, ok := d.timers[path]; ok {
		timer.Reset(d.delay)
		return
	}
	d.timers[path] = time.AfterFunc(d.delay, func() {
		select {
		case d.fired <- path:
		case <-ctx.Done():
		}
	})
}

// done forgets the timer of a delivered path
func (d *debouncer) done(path string) {
	delete(d.timers, path)
}

func (d *debouncer) pending() int {
	return len(d.timers)
}

func (d *debouncer) stop() {
	for path, timer := range d.timers {
		timer.Stop()
		delete(d.timers, path)
	}
}
