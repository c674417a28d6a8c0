// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package sx1276

import (
	"time"

	"periph.io/x/conn/v3/physic"
)

// Config describes the SX127x configuration to achieve a specific bandwidth, spreading factor,
// and coding rate.
type Config struct {
	Conf1 byte   // ModemConfig1: bw, coding rate, implicit/expl header
	Conf2 byte   // ModemConfig2: spreading factor, tx continuous, crc, symb timeout msb
	Conf3 byte   // ModemConfig3: low data rate opt, AGC
	Info  string // human readable description
}

// Configs is the table of supported configurations and their corresponding register settings,
// keyed by the LoRaWAN data rate name. In order to operate at a new data rate the table can be
// extended by the client.
var Configs = map[string]Config{
	"SF7BW125":  {0x72, 0x74, 0x04, "125kHz, 4/5, SF7, EU868 DR5"},
	"SF8BW125":  {0x72, 0x84, 0x04, "125kHz, 4/5, SF8, EU868 DR4"},
	"SF9BW125":  {0x72, 0x94, 0x04, "125kHz, 4/5, SF9, EU868 DR3"},
	"SF10BW125": {0x72, 0xA4, 0x04, "125kHz, 4/5, SF10, EU868 DR2"},
	"SF11BW125": {0x72, 0xB4, 0x0C, "125kHz, 4/5, SF11, EU868 DR1, low data rate optimize"},
	"SF12BW125": {0x72, 0xC4, 0x0C, "125kHz, 4/5, SF12, EU868 DR0, low data rate optimize"},
}

// DefaultConfig is the uplink data rate used unless told otherwise.
const DefaultConfig = "SF7BW125"

var bandwidths = [...]physic.Frequency{
	7800 * physic.Hertz, 10400 * physic.Hertz, 15600 * physic.Hertz, 20800 * physic.Hertz,
	31250 * physic.Hertz, 41700 * physic.Hertz, 62500 * physic.Hertz, 125 * physic.KiloHertz,
	250 * physic.KiloHertz, 500 * physic.KiloHertz,
}

// SpreadingFactor returns the spreading factor, 6..12.
func (c Config) SpreadingFactor() int { return int(c.Conf2 >> 4) }

// Bandwidth returns the signal bandwidth, or 0 for a reserved setting.
func (c Config) Bandwidth() physic.Frequency {
	i := int(c.Conf1 >> 4)
	if i >= len(bandwidths) {
		return 0
	}
	return bandwidths[i]
}

// CodingRate returns the denominator of the 4/x coding rate.
func (c Config) CodingRate() int { return 4 + int(c.Conf1>>1&0x07) }

// SymbolTime returns the duration of one LoRa symbol, 2^SF / BW.
func (c Config) SymbolTime() time.Duration {
	bw := c.Bandwidth()
	if bw == 0 {
		return 0
	}
	return bw.Period() << uint(c.SpreadingFactor())
}

// TimeOnAir returns how long a frame of n bytes occupies the channel, preamble included.
// See the SX1276 datasheet section 4.1.1.7.
func (c Config) TimeOnAir(n int) time.Duration {
	tsym := c.SymbolTime()
	sf := c.SpreadingFactor()
	var crc, ih, de int
	if c.Conf2&0x04 != 0 {
		crc = 1
	}
	if c.Conf1&0x01 != 0 {
		ih = 1
	}
	if c.Conf3&0x08 != 0 {
		de = 1
	}
	num := 8*n - 4*sf + 28 + 16*crc - 20*ih
	den := 4 * (sf - 2*de)
	symbols := 8
	if num > 0 && den > 0 {
		symbols += (num + den - 1) / den * c.CodingRate()
	}
	preamble := tsym * (4*PREAMBLE_LEN + 17) / 4
	return preamble + time.Duration(symbols)*tsym
}

// Frf returns the carrier frequency register triple for a frequency, MSB first.
// The synthesizer step is 32MHz / 2^19 = 61.03515625Hz.
func Frf(f physic.Frequency) [3]byte {
	v := uint64(f/physic.Hertz) << 19 / 32000000
	return [3]byte{byte(v >> 16), byte(v >> 8), byte(v)}
}

// Frequency is the inverse of Frf, truncated to a whole Hertz.
func Frequency(frf [3]byte) physic.Frequency {
	v := uint64(frf[0])<<16 | uint64(frf[1])<<8 | uint64(frf[2])
	return physic.Frequency(v*32000000>>19) * physic.Hertz
}
