// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package lorawan_test

import (
	"bytes"
	"testing"

	blorawan "github.com/brocaar/lorawan"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rfm95 "github.com/henriheimann/stm32-hal-rfm95"
	"github.com/henriheimann/stm32-hal-rfm95/lorawan"
)

var testKeys = lorawan.Keys{
	DevAddr: lorawan.DevAddr{0x26, 0x01, 0x1B, 0xDA},
	NwkSKey: lorawan.AES128Key{0x2B, 0x7E, 0x15, 0x16, 0x28, 0xAE, 0xD2, 0xA6, 0xAB, 0xF7, 0x15, 0x88, 0x09, 0xCF, 0x4F, 0x3C},
	AppSKey: lorawan.AES128Key{0x3C, 0x4F, 0xCF, 0x09, 0x88, 0x15, 0xF7, 0xAB, 0xA6, 0xD2, 0xAE, 0x28, 0x16, 0x15, 0x7E, 0x2B},
}

// reference builds the same uplink with an independent network-server implementation.
func reference(t *testing.T, k lorawan.Keys, fcnt uint16, payload []byte) []byte {
	port := uint8(lorawan.AppPort)
	phy := blorawan.PHYPayload{
		MHDR: blorawan.MHDR{MType: blorawan.UnconfirmedDataUp, Major: blorawan.LoRaWANR1},
		MACPayload: &blorawan.MACPayload{
			FHDR:       blorawan.FHDR{DevAddr: blorawan.DevAddr(k.DevAddr), FCnt: uint32(fcnt)},
			FPort:      &port,
			FRMPayload: []blorawan.Payload{&blorawan.DataPayload{Bytes: append([]byte(nil), payload...)}},
		},
	}
	require.NoError(t, phy.EncryptFRMPayload(blorawan.AES128Key(k.AppSKey)))
	require.NoError(t, phy.SetUplinkDataMIC(blorawan.LoRaWAN1_0, 0, 0, 0,
		blorawan.AES128Key(k.NwkSKey), blorawan.AES128Key(k.NwkSKey)))
	b, err := phy.MarshalBinary()
	require.NoError(t, err)
	return b
}

func TestEncodeUplinkScenario(t *testing.T) {
	k := lorawan.Keys{DevAddr: lorawan.DevAddr{0x01, 0x02, 0x03, 0x04}}
	frame, err := k.EncodeUplink(lorawan.AESCipher{}, 0, []byte("hi"))
	require.NoError(t, err)

	assert.Len(t, frame, 15)
	assert.Equal(t, []byte{0x40, 0x04, 0x03, 0x02, 0x01, 0x00, 0x00, 0x00, 0x01}, frame[:9])
	assert.Equal(t, reference(t, k, 0, []byte("hi")), frame)

	var plan = lorawan.DefaultPlan()
	idx, ch := plan.Select(lorawan.ChannelSelector(frame))
	assert.Equal(t, int(frame[14]&0x07), idx)
	assert.Equal(t, lorawan.EU868[idx], ch)
}

func TestEncodeUplinkInterop(t *testing.T) {
	tests := map[string]struct {
		fcnt    uint16
		payload []byte
	}{
		"empty":      {1, nil},
		"one block":  {7, []byte("0123456789abcdef")},
		"two blocks": {0x1234, []byte("0123456789abcdefg")},
		"max":        {0xFFFF, bytes.Repeat([]byte{0xA5}, lorawan.MaxPayloadSize)},
	}
	for n, tc := range tests {
		frame, err := testKeys.EncodeUplink(lorawan.AESCipher{}, tc.fcnt, tc.payload)
		if err != nil {
			t.Fatalf("%s: %s", n, err)
		}
		if want := reference(t, testKeys, tc.fcnt, tc.payload); !bytes.Equal(frame, want) {
			t.Fatalf("%s: got\n%x expected\n%x", n, frame, want)
		}
		if len(frame) != len(tc.payload)+lorawan.Overhead {
			t.Fatalf("%s: frame length %d", n, len(frame))
		}
	}
}

func TestEncodeUplinkTooLarge(t *testing.T) {
	_, err := testKeys.EncodeUplink(lorawan.AESCipher{}, 0, make([]byte, lorawan.MaxPayloadSize+1))
	assert.True(t, rfm95.IsContractViolation(err))
	assert.True(t, errors.Is(err, lorawan.ErrFrameTooLarge))
}

func TestCryptRoundTrip(t *testing.T) {
	c := lorawan.AESCipher{}
	for _, fcnt := range []uint32{0, 1, 255, 256, 0x7FFF, 0xFFFF} {
		for l := 0; l+lorawan.Overhead <= lorawan.MaxFrameSize; l++ {
			plain := make([]byte, l)
			for i := range plain {
				plain[i] = byte(i*7 + int(fcnt))
			}
			buf := append([]byte(nil), plain...)
			require.NoError(t, c.Crypt(testKeys.AppSKey, lorawan.DirUplink, testKeys.DevAddr, fcnt, buf))
			if l > 0 && bytes.Equal(buf, plain) {
				t.Fatalf("fcnt %d len %d: not encrypted", fcnt, l)
			}
			require.NoError(t, c.Crypt(testKeys.AppSKey, lorawan.DirUplink, testKeys.DevAddr, fcnt, buf))
			if !bytes.Equal(buf, plain) {
				t.Fatalf("fcnt %d len %d: round trip got %x", fcnt, l, buf)
			}
		}
	}
}

func TestCryptMatchesReference(t *testing.T) {
	data := []byte("downlink payload bytes")
	want, err := blorawan.EncryptFRMPayload(blorawan.AES128Key(testKeys.AppSKey), false,
		blorawan.DevAddr(testKeys.DevAddr), 42, append([]byte(nil), data...))
	require.NoError(t, err)

	buf := append([]byte(nil), data...)
	require.NoError(t, lorawan.AESCipher{}.Crypt(testKeys.AppSKey, lorawan.DirDownlink, testKeys.DevAddr, 42, buf))
	assert.Equal(t, want, buf)
}

func TestMIC(t *testing.T) {
	c := lorawan.AESCipher{}
	msg := []byte{0x40, 0xDA, 0x1B, 0x01, 0x26, 0x00, 0x01, 0x00, 0x01, 0xAA, 0xBB}
	m1, err := c.MIC(testKeys.NwkSKey, lorawan.DirUplink, testKeys.DevAddr, 1, msg)
	require.NoError(t, err)
	m2, err := c.MIC(testKeys.NwkSKey, lorawan.DirUplink, testKeys.DevAddr, 1, msg)
	require.NoError(t, err)
	assert.Equal(t, m1, m2)

	variants := map[string]func() ([4]byte, error){
		"fcnt": func() ([4]byte, error) {
			return c.MIC(testKeys.NwkSKey, lorawan.DirUplink, testKeys.DevAddr, 2, msg)
		},
		"direction": func() ([4]byte, error) {
			return c.MIC(testKeys.NwkSKey, lorawan.DirDownlink, testKeys.DevAddr, 1, msg)
		},
		"key": func() ([4]byte, error) {
			return c.MIC(testKeys.AppSKey, lorawan.DirUplink, testKeys.DevAddr, 1, msg)
		},
		"bit": func() ([4]byte, error) {
			m := append([]byte(nil), msg...)
			m[10] ^= 0x01
			return c.MIC(testKeys.NwkSKey, lorawan.DirUplink, testKeys.DevAddr, 1, m)
		},
	}
	for n, f := range variants {
		m, err := f()
		require.NoError(t, err)
		if m == m1 {
			t.Fatalf("changing %s did not change the MIC", n)
		}
	}
}

func TestParseKeys(t *testing.T) {
	a, err := lorawan.ParseDevAddr("26011bda")
	require.NoError(t, err)
	assert.Equal(t, testKeys.DevAddr, a)
	assert.Equal(t, "26011bda", a.String())

	k, err := lorawan.ParseKey("2B7E151628AED2A6ABF7158809CF4F3C")
	require.NoError(t, err)
	assert.Equal(t, testKeys.NwkSKey, k)
	assert.NotContains(t, k.String(), "2b7e")

	_, err = lorawan.ParseKey("2B7E")
	assert.Error(t, err)
	_, err = lorawan.ParseDevAddr("zz011bda")
	assert.Error(t, err)
}

func TestDirections(t *testing.T) {
	assert.NotEqual(t, lorawan.DirUplink, lorawan.DirDownlink)
	var d lorawan.Downlink
	assert.False(t, d.HasPort)
}
