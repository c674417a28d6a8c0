// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package lorawan

import (
	"crypto/subtle"
	"encoding/binary"

	"github.com/pkg/errors"
)

// Reasons for discarding a received frame.
var (
	ErrMalformed = errors.New("lorawan: malformed frame")
	ErrMType     = errors.New("lorawan: not a data downlink")
	ErrDevAddr   = errors.New("lorawan: frame for another device")
	ErrMIC       = errors.New("lorawan: MIC mismatch")
	ErrReplay    = errors.New("lorawan: replayed frame counter")
)

// Downlink is a verified and decrypted data downlink.
type Downlink struct {
	Confirmed bool
	ADR       bool
	ACK       bool
	FPending  bool
	FCnt      uint16
	FOpts     []byte // MAC commands, not interpreted
	HasPort   bool
	FPort     uint8
	Payload   []byte // decrypted FRMPayload
}

const minDownlinkSize = 1 + 7 + MICSize

// DecodeDownlink parses a data downlink addressed to k.DevAddr, verifies its MIC and
// decrypts the payload. Frames whose counter is below minFCnt are rejected as replays.
// The frame is not modified.
func (k *Keys) DecodeDownlink(c Cipher, minFCnt uint16, frame []byte) (*Downlink, error) {
	if len(frame) < minDownlinkSize {
		return nil, errors.WithMessagef(ErrMalformed, "%d bytes", len(frame))
	}
	d := &Downlink{}
	switch frame[0] {
	case UnconfirmedDataDown:
	case ConfirmedDataDown:
		d.Confirmed = true
	default:
		return nil, errors.WithMessagef(ErrMType, "MHDR %#02x", frame[0])
	}
	addr := k.DevAddr.wire()
	if subtle.ConstantTimeCompare(frame[1:5], addr[:]) != 1 {
		return nil, ErrDevAddr
	}
	fctrl := frame[5]
	d.ADR = fctrl&0x80 != 0
	d.ACK = fctrl&0x20 != 0
	d.FPending = fctrl&0x10 != 0
	d.FCnt = binary.LittleEndian.Uint16(frame[6:8])
	optsEnd := 8 + int(fctrl&0x0F)
	body := len(frame) - MICSize
	if optsEnd > body {
		return nil, errors.WithMessage(ErrMalformed, "FOpts overrun")
	}

	mic, err := c.MIC(k.NwkSKey, DirDownlink, k.DevAddr, uint32(d.FCnt), frame[:body])
	if err != nil {
		return nil, errors.Wrap(err, "lorawan: mic")
	}
	if subtle.ConstantTimeCompare(mic[:], frame[body:]) != 1 {
		return nil, ErrMIC
	}
	if d.FCnt < minFCnt {
		return nil, errors.WithMessagef(ErrReplay, "FCnt %d, expected at least %d", d.FCnt, minFCnt)
	}

	d.FOpts = append([]byte(nil), frame[8:optsEnd]...)
	if optsEnd == body {
		return d, nil
	}
	d.HasPort = true
	d.FPort = frame[optsEnd]
	d.Payload = append([]byte(nil), frame[optsEnd+1:body]...)
	key := k.AppSKey
	if d.FPort == 0 {
		key = k.NwkSKey
	}
	if err := c.Crypt(key, DirDownlink, k.DevAddr, uint32(d.FCnt), d.Payload); err != nil {
		return nil, errors.Wrap(err, "lorawan: decrypt")
	}
	return d, nil
}
