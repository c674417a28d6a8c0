// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package node

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"periph.io/x/conn/v3/gpio"
)

// Source identifies a radio interrupt line.
type Source int

const (
	DIO0 Source = iota // TxDone, RxDone
	DIO1               // RxTimeout
	DIO5               // ModeReady
	numSources
)

func (s Source) String() string {
	switch s {
	case DIO0:
		return "DIO0"
	case DIO1:
		return "DIO1"
	case DIO5:
		return "DIO5"
	}
	return "DIO?"
}

const noTimestamp = -1

// Timestamps holds the time each interrupt source last fired. Slots are written by the
// interrupt path and consumed by the duty cycle, each one atomically.
type Timestamps struct {
	slots [numSources]atomic.Duration
}

func (t *Timestamps) init() {
	for i := range t.slots {
		t.slots[i].Store(noTimestamp)
	}
}

// Record notes that src fired at.
func (t *Timestamps) Record(src Source, at time.Duration) {
	if src >= 0 && src < numSources {
		t.slots[src].Store(at)
	}
}

// Clear forgets any pending timestamp of src.
func (t *Timestamps) Clear(src Source) { t.slots[src].Store(noTimestamp) }

// Take consumes the timestamp of src, ok is false if it has not fired since the last
// Clear or Take.
func (t *Timestamps) Take(src Source) (at time.Duration, ok bool) {
	at = t.slots[src].Swap(noTimestamp)
	return at, at != noTimestamp
}

// OnInterrupt records that src fired now on the precision clock. It only touches the
// timestamp table and may be called from any goroutine at any time.
func (s *Session) OnInterrupt(src Source) {
	s.irq.Record(src, s.precision.Now())
}

// WatchInterrupts configures the DIO pins for rising edges and starts one goroutine per pin
// turning edges into OnInterrupt calls until stop is closed. From then on the receive
// windows rely on the timestamps instead of polling the pins.
func (s *Session) WatchInterrupts(stop <-chan struct{}) error {
	pins := map[Source]gpio.PinIn{DIO0: s.opts.Pins.DIO0, DIO1: s.opts.Pins.DIO1, DIO5: s.opts.Pins.DIO5}
	for src, p := range pins {
		if p == nil {
			delete(pins, src)
			continue
		}
		if err := p.In(gpio.Float, gpio.RisingEdge); err != nil {
			return errors.Wrapf(err, "node: cannot watch %s", src)
		}
	}
	for src, p := range pins {
		go s.watch(src, p, stop)
	}
	s.irqActive.Store(true)
	return nil
}

func (s *Session) watch(src Source, p gpio.PinIn, stop <-chan struct{}) {
	for {
		if p.WaitForEdge(100 * time.Millisecond) {
			s.OnInterrupt(src)
		}
		select {
		case <-stop:
			s.irqActive.Store(s.opts.ExternalIRQs)
			if err := p.In(gpio.Float, gpio.NoEdge); err != nil {
				s.log("%s cannot disable edge detection: %s", src, err)
			}
			s.log("%s interrupt goroutine exiting", src)
			return
		default:
		}
	}
}
