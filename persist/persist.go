// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package persist stores the anti-replay frame counters and the channel configuration of a
// node across restarts.
//
// The record has a fixed 56 byte little-endian layout:
//
//	off  size  field
//	  0     1  magic, 0xAB
//	  1     2  rx frame counter
//	  3     2  tx frame counter
//	  5     1  RX1 delay in seconds
//	  6    48  16 channels, Frf register triple each
//	 54     2  channel enable mask
//
// Stores move whole records and never interpret them; it is up to the reader to check the
// magic and fall back to defaults when it does not match.
package persist

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/henriheimann/stm32-hal-rfm95/lorawan"
)

const (
	Magic = 0xAB
	Size  = 1 + 2 + 2 + 1 + 3*lorawan.MaxChannels + 2
)

// ErrSize is returned when decoding a record of the wrong length.
var ErrSize = errors.New("persist: bad record size")

// Config is the persisted state of a node.
type Config struct {
	Magic          byte
	RxFrameCounter uint16
	TxFrameCounter uint16
	RX1Delay       byte // seconds, 0 selects the default
	Channels       [lorawan.MaxChannels]lorawan.Channel
	ChannelMask    uint16
}

// Default returns a valid record with zero counters and the EU868 plan.
func Default() Config {
	p := lorawan.DefaultPlan()
	return Config{Magic: Magic, RX1Delay: 1, Channels: p.Channels, ChannelMask: p.Mask}
}

// Valid reports whether the record carries the expected format tag.
func (c *Config) Valid() bool { return c.Magic == Magic }

// Plan returns the channel plan held by the record.
func (c *Config) Plan() lorawan.ChannelPlan {
	return lorawan.ChannelPlan{Channels: c.Channels, Mask: c.ChannelMask}
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (c *Config) MarshalBinary() ([]byte, error) {
	b := make([]byte, Size)
	b[0] = c.Magic
	binary.LittleEndian.PutUint16(b[1:], c.RxFrameCounter)
	binary.LittleEndian.PutUint16(b[3:], c.TxFrameCounter)
	b[5] = c.RX1Delay
	for i, ch := range c.Channels {
		copy(b[6+3*i:], ch[:])
	}
	binary.LittleEndian.PutUint16(b[Size-2:], c.ChannelMask)
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. It does not check the magic.
func (c *Config) UnmarshalBinary(b []byte) error {
	if len(b) != Size {
		return errors.WithMessagef(ErrSize, "got %d bytes, want %d", len(b), Size)
	}
	c.Magic = b[0]
	c.RxFrameCounter = binary.LittleEndian.Uint16(b[1:])
	c.TxFrameCounter = binary.LittleEndian.Uint16(b[3:])
	c.RX1Delay = b[5]
	for i := range c.Channels {
		copy(c.Channels[i][:], b[6+3*i:])
	}
	c.ChannelMask = binary.LittleEndian.Uint16(b[Size-2:])
	return nil
}

// Store loads and saves records. Load returns nil, nil when nothing has been saved yet.
type Store interface {
	Load() (*Config, error)
	Save(c *Config) error
}
