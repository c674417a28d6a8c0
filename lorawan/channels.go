// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package lorawan

import (
	"periph.io/x/conn/v3/physic"

	"github.com/henriheimann/stm32-hal-rfm95/sx1276"
)

// Channel is a carrier frequency as the SX1276 Frf register triple, MSB first.
type Channel [3]byte

// ChannelAt returns the channel closest below f.
func ChannelAt(f physic.Frequency) Channel { return Channel(sx1276.Frf(f)) }

// Frequency returns the carrier frequency of the channel.
func (c Channel) Frequency() physic.Frequency { return sx1276.Frequency(c) }

func (c Channel) String() string { return c.Frequency().String() }

// MaxChannels is the size of a channel plan.
const MaxChannels = 16

// EU868 is the EU863-870 8-channel plan: the three mandatory join channels at 868.1, 868.3
// and 868.5MHz followed by 867.1 through 867.9MHz.
var EU868 = [8]Channel{
	{0xD9, 0x06, 0x66}, // 868.1MHz
	{0xD9, 0x13, 0x33}, // 868.3MHz
	{0xD9, 0x20, 0x00}, // 868.5MHz
	{0xD8, 0xC6, 0x66}, // 867.1MHz
	{0xD8, 0xD3, 0x33}, // 867.3MHz
	{0xD8, 0xE0, 0x00}, // 867.5MHz
	{0xD8, 0xEC, 0xCC}, // 867.7MHz
	{0xD8, 0xF9, 0x99}, // 867.9MHz
}

// EU868RX2 is the default RX2 channel, 869.525MHz at SF9BW125.
var EU868RX2 = Channel{0xD9, 0x61, 0x99}

// EU868RX2Config is the modem configuration of the RX2 window.
const EU868RX2Config = "SF9BW125"

// ChannelPlan is a table of up to 16 channels with an enable bit per index.
type ChannelPlan struct {
	Channels [MaxChannels]Channel
	Mask     uint16
}

// DefaultPlan returns the compiled-in EU868 plan with channels 0-7 enabled.
func DefaultPlan() ChannelPlan {
	var p ChannelPlan
	copy(p.Channels[:], EU868[:])
	p.Mask = 0x00FF
	return p
}

// Enabled lists the indexes of the usable channels.
func (p ChannelPlan) Enabled() []int {
	var idx []int
	for i, c := range p.Channels {
		if p.Mask&(1<<uint(i)) != 0 && c != (Channel{}) {
			idx = append(idx, i)
		}
	}
	return idx
}

// Select maps a channel selector byte to a channel. With the default plan this is the
// selector masked to 3 bits. A plan without usable channels falls back to EU868.
func (p ChannelPlan) Select(sel byte) (int, Channel) {
	idx := p.Enabled()
	if len(idx) == 0 {
		i := int(sel & 0x07)
		return i, EU868[i]
	}
	i := idx[int(sel)%len(idx)]
	return i, p.Channels[i]
}
