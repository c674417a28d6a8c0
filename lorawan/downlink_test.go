// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package lorawan_test

import (
	"testing"

	blorawan "github.com/brocaar/lorawan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/henriheimann/stm32-hal-rfm95/lorawan"
)

// downlink builds a downlink frame the way a network server does.
func downlink(t *testing.T, k lorawan.Keys, mtype blorawan.MType, fcnt uint16, port *uint8, payload []byte, opts bool) []byte {
	mac := &blorawan.MACPayload{
		FHDR: blorawan.FHDR{
			DevAddr: blorawan.DevAddr(k.DevAddr),
			FCtrl:   blorawan.FCtrl{ACK: true},
			FCnt:    uint32(fcnt),
		},
		FPort: port,
	}
	if opts {
		mac.FHDR.FOpts = []blorawan.Payload{&blorawan.MACCommand{CID: blorawan.DevStatusReq}}
	}
	if port != nil {
		mac.FRMPayload = []blorawan.Payload{&blorawan.DataPayload{Bytes: append([]byte(nil), payload...)}}
	}
	phy := blorawan.PHYPayload{
		MHDR:       blorawan.MHDR{MType: mtype, Major: blorawan.LoRaWANR1},
		MACPayload: mac,
	}
	key := k.AppSKey
	if port != nil && *port == 0 {
		key = k.NwkSKey
	}
	if port != nil {
		require.NoError(t, phy.EncryptFRMPayload(blorawan.AES128Key(key)))
	}
	require.NoError(t, phy.SetDownlinkDataMIC(blorawan.LoRaWAN1_0, 0, blorawan.AES128Key(k.NwkSKey)))
	b, err := phy.MarshalBinary()
	require.NoError(t, err)
	return b
}

func port(p uint8) *uint8 { return &p }

func TestDecodeDownlink(t *testing.T) {
	c := lorawan.AESCipher{}
	tests := map[string]struct {
		mtype   blorawan.MType
		fcnt    uint16
		port    *uint8
		payload []byte
		opts    bool
	}{
		"unconfirmed":   {blorawan.UnconfirmedDataDown, 5, port(1), []byte("ok"), false},
		"confirmed":     {blorawan.ConfirmedDataDown, 6, port(10), []byte("confirmed payload > 16 bytes"), false},
		"fopts":         {blorawan.UnconfirmedDataDown, 7, port(2), []byte{1, 2, 3}, true},
		"port 0":        {blorawan.UnconfirmedDataDown, 8, port(0), []byte{0x06}, false},
		"ack only":      {blorawan.UnconfirmedDataDown, 9, nil, nil, false},
		"ack and fopts": {blorawan.UnconfirmedDataDown, 9, nil, nil, true},
	}
	for n, tc := range tests {
		frame := downlink(t, testKeys, tc.mtype, tc.fcnt, tc.port, tc.payload, tc.opts)
		orig := append([]byte(nil), frame...)
		d, err := testKeys.DecodeDownlink(c, 5, frame)
		if err != nil {
			t.Fatalf("%s: %s", n, err)
		}
		assert.Equal(t, orig, frame, n)
		assert.Equal(t, tc.mtype == blorawan.ConfirmedDataDown, d.Confirmed, n)
		assert.True(t, d.ACK, n)
		assert.Equal(t, tc.fcnt, d.FCnt, n)
		assert.Equal(t, tc.port != nil, d.HasPort, n)
		if tc.port != nil {
			assert.Equal(t, *tc.port, d.FPort, n)
			assert.Equal(t, tc.payload, d.Payload, n)
		}
		if tc.opts {
			assert.Equal(t, []byte{byte(blorawan.DevStatusReq)}, d.FOpts, n)
		} else {
			assert.Empty(t, d.FOpts, n)
		}
	}
}

func TestDecodeDownlinkRejects(t *testing.T) {
	c := lorawan.AESCipher{}
	good := downlink(t, testKeys, blorawan.UnconfirmedDataDown, 20, port(1), []byte("data"), false)

	flip := func(i int) []byte {
		b := append([]byte(nil), good...)
		b[i] ^= 0x01
		return b
	}
	other := testKeys
	other.DevAddr[3]++
	uplink, err := testKeys.EncodeUplink(c, 20, []byte("data"))
	require.NoError(t, err)

	tests := map[string]struct {
		frame []byte
		min   uint16
		err   error
	}{
		"short":        {good[:11], 0, lorawan.ErrMalformed},
		"uplink":       {uplink, 0, lorawan.ErrMType},
		"other device": {downlink(t, other, blorawan.UnconfirmedDataDown, 20, port(1), []byte("data"), false), 0, lorawan.ErrDevAddr},
		"payload bit":  {flip(len(good) - 5), 0, lorawan.ErrMIC},
		"mic bit":      {flip(len(good) - 1), 0, lorawan.ErrMIC},
		"fcnt bit":     {flip(6), 0, lorawan.ErrMIC},
		"replay":       {good, 21, lorawan.ErrReplay},
	}
	for n, tc := range tests {
		_, err := testKeys.DecodeDownlink(c, tc.min, tc.frame)
		assert.ErrorIs(t, err, tc.err, n)
	}

	d, err := testKeys.DecodeDownlink(c, 20, good)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), d.Payload)
}
