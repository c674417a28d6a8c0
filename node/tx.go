// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package node

import (
	"time"

	"github.com/henriheimann/stm32-hal-rfm95/lorawan"
	"github.com/henriheimann/stm32-hal-rfm95/sx1276"
)

// Send transmits payload as an unconfirmed uplink on AppPort without listening for a
// downlink. On success the tx counter has advanced by one and was offered to the store.
func (s *Session) Send(payload []byte) error {
	_, _, err := s.transmit(payload)
	return err
}

// transmit runs one uplink through Standby, AwaitReady, Configured, Transmitting and back
// to Sleep. It returns the precision time of TxDone and the channel used.
func (s *Session) transmit(payload []byte) (time.Duration, lorawan.Channel, error) {
	var ch lorawan.Channel
	if !s.initialized {
		return 0, ch, ErrNotInitialized
	}
	frame, err := s.opts.Keys.EncodeUplink(s.cipher, s.txCount, payload)
	if err != nil {
		return 0, ch, err
	}
	idx, ch := s.plan.Select(lorawan.ChannelSelector(frame))

	// Standby, AwaitReady
	s.irq.Clear(DIO5)
	if err := s.radio.SetMode(sx1276.MODE_STANDBY); err != nil {
		return 0, ch, s.abort(err)
	}
	if _, _, ok := s.await(s.opts.WakeupTimeout, true, DIO5); !ok {
		return 0, ch, s.abort(ErrWakeupTimeout)
	}

	// Configured
	if err := s.configureTx(ch, frame); err != nil {
		return 0, ch, s.abort(err)
	}

	// Transmitting
	s.irq.Clear(DIO0)
	if err := s.radio.SetMode(sx1276.MODE_TX); err != nil {
		return 0, ch, s.abort(err)
	}
	_, done, ok := s.await(s.opts.SendTimeout, true, DIO0)
	if !ok {
		return 0, ch, s.abort(ErrSendTimeout)
	}

	// The frame is on the air, its counter value must never be used again.
	s.txCount++
	s.log("sent fcnt=%d len=%d channel=%d (%s)", s.txCount-1, len(frame), idx, ch)
	s.save()
	if err := s.radio.Sleep(); err != nil {
		s.log("sleep after TX failed: %s", err)
	}
	return done, ch, nil
}

func (s *Session) configureTx(ch lorawan.Channel, frame []byte) error {
	if err := s.radio.SetFrequency(ch); err != nil {
		return err
	}
	if err := s.radio.SetModem(s.uplink); err != nil {
		return err
	}
	if err := s.radio.SetIQ(false); err != nil {
		return err
	}
	if err := s.radio.LoadFIFO(sx1276.FIFO_TX_BASE, frame); err != nil {
		return err
	}
	if err := s.radio.ClearIRQ(); err != nil {
		return err
	}
	return s.radio.MapDIO(sx1276.DIO0_TXDONE)
}
