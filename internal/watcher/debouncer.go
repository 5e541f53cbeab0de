package watcher

import (
	"sync"
	"time"
)

// Trigger asks for one sync pair to be re-run after local edits
// settled down.
type Trigger struct {
	ConfigID  string
	Timestamp time.Time
}

// Debouncer coalesces rapid file events into one trigger per sync pair.
// Each new event for a pair resets that pair's timer; the trigger fires
// once the pair has been quiet for the full delay.
type Debouncer struct {
	delay   time.Duration
	pending map[string]*time.Timer
	mu      sync.Mutex
	output  chan Trigger
	stopped bool
}

// NewDebouncer creates a debouncer with the given quiet period.
func NewDebouncer(delayMs int) *Debouncer {
	return &Debouncer{
		delay:   time.Duration(delayMs) * time.Millisecond,
		pending: make(map[string]*time.Timer),
		output:  make(chan Trigger, 16),
	}
}

// Triggers returns the channel of debounced sync triggers.
func (d *Debouncer) Triggers() <-chan Trigger {
	return d.output
}

// Touch notes activity for a pair, starting or resetting its timer.
func (d *Debouncer) Touch(configID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if timer, ok := d.pending[configID]; ok {
		timer.Reset(d.delay)
		return
	}

	d.pending[configID] = time.AfterFunc(d.delay, func() {
		d.fire(configID)
	})
}

func (d *Debouncer) fire(configID string) {
	d.mu.Lock()
	delete(d.pending, configID)
	stopped := d.stopped
	d.mu.Unlock()

	if stopped {
		return
	}

	select {
	case d.output <- Trigger{ConfigID: configID, Timestamp: time.Now()}:
	default:
		// Channel full means a trigger for some pair is already queued
		// behind a slow consumer; dropping is safe, the next event for
		// this pair re-arms the timer.
	}
}

// Stop cancels pending timers and stops emitting triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for id, timer := range d.pending {
		timer.Stop()
		delete(d.pending, id)
	}
}

// PendingCount returns the number of pairs with an armed timer.
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
