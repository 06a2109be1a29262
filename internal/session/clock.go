package session

import (
	"sync"
	"time"
)

// TickInterval is the granularity of a countdown.
const TickInterval = time.Second

// Ticker delivers ticks on C until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a Ticker with the given period.
type TickerFunc func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker is the TickerFunc backed by time.Ticker.
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// Clock runs at most one countdown at a time. Callbacks are invoked from the
// countdown goroutine, never while the clock's own lock is held, so they may
// call back into Start or Cancel.
type Clock struct {
	mu        sync.Mutex
	newTicker TickerFunc
	stop      chan struct{}
}

// NewClock creates a Clock. A nil newTicker uses NewRealTicker.
func NewClock(newTicker TickerFunc) *Clock {
	if newTicker == nil {
		newTicker = NewRealTicker
	}
	return &Clock{newTicker: newTicker}
}

// Start cancels any running countdown and begins a new one of the given
// length. onTick receives the seconds left after every tick, down to 0;
// onExpire then runs exactly once. A countdown of zero or fewer seconds
// expires without ticking.
func (c *Clock) Start(seconds int, onTick func(secondsLeft int), onExpire func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelLocked()
	stop := make(chan struct{})
	c.stop = stop

	if seconds <= 0 {
		go func() {
			if !stopped(stop) {
				onExpire()
			}
		}()
		return
	}

	ticker := c.newTicker(TickInterval)
	go run(ticker, stop, seconds, onTick, onExpire)
}

func run(ticker Ticker, stop <-chan struct{}, seconds int, onTick func(int), onExpire func()) {
	defer ticker.Stop()

	for left := seconds; left > 0; {
		select {
		case <-stop:
			return
		case <-ticker.C():
		}
		if stopped(stop) {
			return
		}
		left--
		if onTick != nil {
			onTick(left)
		}
	}

	if !stopped(stop) && onExpire != nil {
		onExpire()
	}
}

// Cancel stops the running countdown, if any. It does not wait for a callback
// that is already executing.
func (c *Clock) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()
}

func (c *Clock) cancelLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

func stopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
