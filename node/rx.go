// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package node

import (
	"time"

	"github.com/pkg/errors"

	"github.com/henriheimann/stm32-hal-rfm95/lorawan"
	"github.com/henriheimann/stm32-hal-rfm95/sx1276"
)

// Downlink is an authenticated downlink with the window it arrived in.
type Downlink struct {
	lorawan.Downlink
	Window int // 1 or 2
	Rssi   int // dBm
	Snr    int // dB
}

// SendReceive transmits payload like Send and then opens the receive windows selected by
// the ReceiveMode option. It returns the downlink, or nil if none was received. Frames that
// fail authentication are dropped silently. A window the radio closes with RxTimeout is
// empty; one it never closes at all fails with ErrReceiveTimeout. An error after a
// successful transmission leaves the tx counter advanced.
func (s *Session) SendReceive(payload []byte) (*Downlink, error) {
	txDone, ch, err := s.transmit(payload)
	if err != nil || s.opts.ReceiveMode == ReceiveNone {
		return nil, err
	}

	d, err := s.receive(1, txDone, ch, s.uplink)
	if d != nil || err != nil || s.opts.ReceiveMode == ReceiveRX1 {
		return d, err
	}
	return s.receive(2, txDone, s.opts.RX2Channel, s.rx2)
}

// receive runs RX single for window win, placed relative to txDone on the precision clock.
func (s *Session) receive(win int, txDone time.Duration, ch lorawan.Channel, c sx1276.Config) (*Downlink, error) {
	delay := s.rx1Delay
	if win == 2 {
		delay += time.Second
	}
	w := s.opts.Timing.window(delay, c)
	start, open := txDone+delay, txDone+w.open

	// Leave enough time to wake the radio and program it before the window opens.
	s.sleepUntil(open - s.opts.WakeupTimeout - s.opts.Timing.WakeupMargin)
	s.irq.Clear(DIO5)
	if err := s.radio.SetMode(sx1276.MODE_STANDBY); err != nil {
		return nil, s.abort(err)
	}
	if _, _, ok := s.await(s.opts.WakeupTimeout, true, DIO5); !ok {
		return nil, s.abort(ErrWakeupTimeout)
	}
	if err := s.configureRx(ch, c, w.symbols); err != nil {
		return nil, s.abort(err)
	}
	s.irq.Clear(DIO0)
	s.irq.Clear(DIO1)

	s.sleepUntil(open)
	if err := s.radio.SetMode(sx1276.MODE_RX_SINGLE); err != nil {
		return nil, s.abort(err)
	}
	src, at, ok := s.await(w.timeout, !s.irqActive.Load(), DIO0, DIO1)
	switch {
	case !ok:
		s.log("RX%d: no answer from radio within %s", win, w.timeout)
		return nil, s.abort(ErrReceiveTimeout)
	case src == DIO1:
		s.log("RX%d: empty", win)
		return nil, s.abort(nil)
	}

	pkt, err := s.radio.ReadPacket()
	if err != nil {
		if errors.Is(err, sx1276.ErrCRC) || errors.Is(err, sx1276.ErrNoPacket) {
			s.log("RX%d: dropped: %s", win, err)
			err = nil
		}
		return nil, s.abort(err)
	}
	if err := s.radio.Sleep(); err != nil {
		return nil, err
	}

	dl, err := s.opts.Keys.DecodeDownlink(s.cipher, s.rxCount, pkt.Payload)
	if err != nil {
		s.log("RX%d: discarded %d bytes: %s", win, len(pkt.Payload), err)
		return nil, nil
	}
	s.rxCount = dl.FCnt + 1
	s.log("RX%d: fcnt=%d port=%d len=%d rssi=%d snr=%d at %s", win, dl.FCnt, dl.FPort,
		len(dl.Payload), pkt.Rssi, pkt.Snr, at-start)
	s.save()
	return &Downlink{Downlink: *dl, Window: win, Rssi: pkt.Rssi, Snr: pkt.Snr}, nil
}

func (s *Session) configureRx(ch lorawan.Channel, c sx1276.Config, symbols uint16) error {
	if err := s.radio.SetFrequency(ch); err != nil {
		return err
	}
	if err := s.radio.SetModem(c); err != nil {
		return err
	}
	if err := s.radio.SetSymbolTimeout(symbols); err != nil {
		return err
	}
	if err := s.radio.SetIQ(true); err != nil {
		return err
	}
	if err := s.radio.SetFIFOPointer(sx1276.FIFO_RX_BASE); err != nil {
		return err
	}
	if err := s.radio.ClearIRQ(); err != nil {
		return err
	}
	return s.radio.MapDIO(sx1276.DIO0_RXDONE | sx1276.DIO1_RXTIMEOUT)
}

// sleepUntil blocks until the precision clock reaches t.
func (s *Session) sleepUntil(t time.Duration) {
	for d := t - s.precision.Now(); d > 0; d = t - s.precision.Now() {
		s.clock.Sleep(d)
	}
}
