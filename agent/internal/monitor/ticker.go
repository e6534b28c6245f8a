package monitor

import "time"

// Ticker is the scheduling seam of the background cycle.
type Ticker interface {
	C() <-chan time.Time
	Stop()
	Reset(d time.Duration)
}

// TickerFunc creates a Ticker that fires every d.
type TickerFunc func(d time.Duration) Ticker

type stdTicker struct{ t *time.Ticker }

func (s stdTicker) C() <-chan time.Time   { return s.t.C }
func (s stdTicker) Stop()                 { s.t.Stop() }
func (s stdTicker) Reset(d time.Duration) { s.t.Reset(d) }

func newStdTicker(d time.Duration) Ticker { return stdTicker{time.NewTicker(d)} }
