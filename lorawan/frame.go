// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package lorawan

import (
	"encoding/binary"

	"github.com/pkg/errors"

	rfm95 "github.com/henriheimann/stm32-hal-rfm95"
)

// MHDR values, LoRaWAN R1 major version.
const (
	UnconfirmedDataUp   = 0x40
	UnconfirmedDataDown = 0x60
	ConfirmedDataUp     = 0x80
	ConfirmedDataDown   = 0xA0
)

const (
	HeaderSize     = 9  // MHDR, DevAddr, FCtrl, FCnt, FPort of an uplink
	MICSize        = 4  //
	Overhead       = HeaderSize + MICSize
	MaxFrameSize   = 64 // radio FIFO capacity
	MaxPayloadSize = MaxFrameSize - Overhead
	AppPort        = 1 // FPort used for uplinks
)

// ErrFrameTooLarge is the contract violation of passing a payload that does not fit the
// radio FIFO once framed.
var ErrFrameTooLarge = errors.Wrap(rfm95.ErrContract, "lorawan: frame exceeds FIFO capacity")

// EncodeUplink assembles an unconfirmed data uplink carrying payload on AppPort:
//
//	40 | DevAddr (reversed) | FCtrl 00 | FCnt LE16 | FPort 01 | FRMPayload | MIC
//
// The payload is encrypted with the AppSKey and the MIC computed with the NwkSKey, both
// using fcnt and the uplink direction.
func (k *Keys) EncodeUplink(c Cipher, fcnt uint16, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, errors.WithMessagef(ErrFrameTooLarge, "%d byte payload", len(payload))
	}
	frame := make([]byte, HeaderSize, len(payload)+Overhead)
	frame[0] = UnconfirmedDataUp
	addr := k.DevAddr.wire()
	copy(frame[1:5], addr[:])
	frame[5] = 0x00 // FCtrl: no ADR, no ACK, no FOpts
	binary.LittleEndian.PutUint16(frame[6:8], fcnt)
	frame[8] = AppPort
	frame = append(frame, payload...)

	if err := c.Crypt(k.AppSKey, DirUplink, k.DevAddr, uint32(fcnt), frame[HeaderSize:]); err != nil {
		return nil, errors.Wrap(err, "lorawan: encrypt")
	}
	mic, err := c.MIC(k.NwkSKey, DirUplink, k.DevAddr, uint32(fcnt), frame)
	if err != nil {
		return nil, errors.Wrap(err, "lorawan: mic")
	}
	return append(frame, mic[:]...), nil
}

// ChannelSelector returns the byte of a frame used to pick its channel: the last MIC byte.
// Tying the hop to the authenticated content makes it deterministic per frame.
func ChannelSelector(frame []byte) byte {
	if len(frame) == 0 {
		return 0
	}
	return frame[len(frame)-1]
}
