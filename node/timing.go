// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package node

import (
	"time"

	"github.com/henriheimann/stm32-hal-rfm95/lorawan"
	"github.com/henriheimann/stm32-hal-rfm95/sx1276"
)

// RxTiming is the policy placing the receive windows relative to the end of an uplink.
//
// A window nominally opens Delay after TxDone (RX1Delay for RX1, one second more for RX2).
// The precision clock may drift by up to DriftNsPerS nanoseconds per second, so the radio
// is put in receive drift+WakeupMargin early and its symbol timeout is widened to cover
// the same amount on both sides of the nominal start:
//
//	drift   = Delay * DriftNsPerS / 1e9
//	open    = Delay - (drift + WakeupMargin)
//	symbols = MinRxSymbols + ceil(2*(drift + WakeupMargin) / Tsym), at most 1023
//	timeout = symbols*Tsym + TimeOnAir(64 bytes) + ReceiveSlack
//
// A window that sees neither RxDone nor RxTimeout within timeout fails with
// ErrReceiveTimeout.
type RxTiming struct {
	RX1Delay     time.Duration // whole seconds up to MaxRX1Delay, default 1s, a persisted rx1 delay takes precedence
	DriftNsPerS  uint32        // precision clock drift budget
	MinRxSymbols uint16        // preamble symbols needed to lock, default 6
	WakeupMargin time.Duration // fixed uncertainty of the window start, default 2ms
	ReceiveSlack time.Duration // default 50ms
}

// MaxRX1Delay is the longest RX1 delay LoRaWAN can express.
const MaxRX1Delay = 15 * time.Second

func (t *RxTiming) setDefaults() {
	if t.RX1Delay <= 0 {
		t.RX1Delay = time.Second
	}
	if t.MinRxSymbols == 0 {
		t.MinRxSymbols = 6
	}
	if t.WakeupMargin <= 0 {
		t.WakeupMargin = 2 * time.Millisecond
	}
	if t.ReceiveSlack <= 0 {
		t.ReceiveSlack = 50 * time.Millisecond
	}
}

// window is the schedule of one receive window.
type window struct {
	open    time.Duration // after TxDone, when RX single is started
	symbols uint16        // symbol timeout
	timeout time.Duration // after open, bound for RxDone or RxTimeout
}

func (t *RxTiming) window(delay time.Duration, c sx1276.Config) window {
	drift := time.Duration(int64(delay) * int64(t.DriftNsPerS) / int64(time.Second))
	early := drift + t.WakeupMargin
	if early > delay {
		early = delay
	}
	tsym := c.SymbolTime()
	n := int64(t.MinRxSymbols) + (2*int64(early)+int64(tsym)-1)/int64(tsym)
	if n > 0x3FF {
		n = 0x3FF
	}
	return window{
		open:    delay - early,
		symbols: uint16(n),
		timeout: time.Duration(n)*tsym + c.TimeOnAir(lorawan.MaxFrameSize) + t.ReceiveSlack,
	}
}
