// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package sx1276

const (
	REG_FIFO        = 0x00
	REG_OPMODE      = 0x01
	REG_FRFMSB      = 0x06
	REG_FRFMID      = 0x07
	REG_FRFLSB      = 0x08
	REG_PACONFIG    = 0x09
	REG_OCP         = 0x0B
	REG_LNA         = 0x0C
	REG_FIFOPTR     = 0x0D
	REG_FIFOTXBASE  = 0x0E
	REG_FIFORXBASE  = 0x0F
	REG_FIFORXCURR  = 0x10
	REG_IRQMASK     = 0x11
	REG_IRQFLAGS    = 0x12
	REG_RXBYTES     = 0x13
	REG_MODEMSTAT   = 0x18
	REG_PKTSNR      = 0x19
	REG_PKTRSSI     = 0x1A
	REG_MODEMCONF1  = 0x1D
	REG_MODEMCONF2  = 0x1E
	REG_SYMBTIMEOUT = 0x1F
	REG_PREAMBLEMSB = 0x20
	REG_PREAMBLELSB = 0x21
	REG_PAYLENGTH   = 0x22
	REG_PAYMAX      = 0x23
	REG_MODEMCONF3  = 0x26
	REG_DETECTOPT   = 0x31
	REG_INVERTIQ    = 0x33
	REG_DETECTTHR   = 0x37
	REG_SYNC        = 0x39
	REG_INVERTIQ2   = 0x3B
	REG_DIOMAPPING1 = 0x40
	REG_DIOMAPPING2 = 0x41
	REG_VERSION     = 0x42
	REG_PADAC       = 0x4D
)

const (
	MODE_SLEEP = iota
	MODE_STANDBY
	MODE_FS_TX     // frequency synthesis TX
	MODE_TX        // TX
	MODE_FS_RX     // frequency synthesis RX
	MODE_RX_CONT   // RX continuous
	MODE_RX_SINGLE // RX single
	MODE_CAD       // channel activity detection
)

// MODE_LORA selects the LoRa modem, it can only be changed while the radio sleeps.
const MODE_LORA = 0x80

const (
	// IRQ mask and flags registers
	IRQ_RXTIMEOUT = 1 << 7
	IRQ_RXDONE    = 1 << 6
	IRQ_CRCERR    = 1 << 5
	IRQ_VALIDHDR  = 1 << 4
	IRQ_TXDONE    = 1 << 3
	IRQ_CADDONE   = 1 << 2
	IRQ_FHSCHG    = 1 << 1
	IRQ_CADDETECT = 1 << 0
)

const (
	// DIO mapping 1: DIO0 in bits 7-6, DIO1 in bits 5-4
	DIO0_RXDONE    = 0x00
	DIO0_TXDONE    = 0x40
	DIO1_RXTIMEOUT = 0x00
	// DIO mapping 2: DIO5 in bits 5-4
	DIO5_MODEREADY = 0x00
)

const (
	VERSION       = 0x12 // content of REG_VERSION on an SX1276
	SYNC_WORD     = 0x34 // LoRaWAN public network
	FIFO_TX_BASE  = 0x80
	FIFO_RX_BASE  = 0x00
	FIFO_SIZE     = 64   // largest frame handled in either direction
	PADAC_DEFAULT = 0x84 // PA_BOOST up to 17dBm
	PADAC_20DBM   = 0x87 // PA_BOOST at 20dBm
	INVERTIQ_TX   = 0x27 // IQ not inverted, used for uplinks
	INVERTIQ2_TX  = 0x1D
	INVERTIQ_RX   = 0x66 // IQ inverted on RX, used for downlinks
	INVERTIQ2_RX  = 0x19
	PREAMBLE_LEN  = 8
)

// register values to initialize the chip, this array has pairs of <address, data>
var configRegs = []byte{
	REG_OPMODE, MODE_SLEEP, // FSK sleep, LoRa bit can only change in sleep
	REG_OPMODE, MODE_LORA | MODE_SLEEP,
	REG_OCP, 0x2B, // over-current protection @100mA
	REG_LNA, 0x23, // max LNA gain, boost on
	REG_FIFOTXBASE, FIFO_TX_BASE,
	REG_FIFORXBASE, FIFO_RX_BASE,
	REG_FIFOPTR, FIFO_TX_BASE,
	REG_IRQMASK, 0x00, // all interrupts enabled
	REG_PREAMBLEMSB, 0x00, REG_PREAMBLELSB, PREAMBLE_LEN,
	REG_PAYMAX, FIFO_SIZE,
	REG_DETECTOPT, 0x03, // detection optimize for SF7-12
	REG_DETECTTHR, 0x0A,
	REG_SYNC, SYNC_WORD,
	REG_INVERTIQ, INVERTIQ_TX,
	REG_INVERTIQ2, INVERTIQ2_TX,
	REG_DIOMAPPING1, DIO0_TXDONE,
	REG_DIOMAPPING2, DIO5_MODEREADY,
	REG_IRQFLAGS, 0xFF, // clear all flags
}

// PAConfig is the decoded content of REG_PACONFIG.
//
//	bit  7    PaSelect: 1 = PA_BOOST pin, 0 = RFO pin
//	bits 6-4  MaxPower: Pmax = 10.8 + 0.6*MaxPower dBm
//	bits 3-0  OutputPower: Pout = 17 - (15 - OutputPower) dBm on PA_BOOST
type PAConfig struct {
	PABoost     bool
	MaxPower    byte
	OutputPower byte
}

// Encode packs the fields into the register value.
func (c PAConfig) Encode() byte {
	v := (c.MaxPower&0x07)<<4 | c.OutputPower&0x0F
	if c.PABoost {
		v |= 0x80
	}
	return v
}

// DecodePAConfig splits a REG_PACONFIG value into its fields.
func DecodePAConfig(v byte) PAConfig {
	return PAConfig{PABoost: v&0x80 != 0, MaxPower: v >> 4 & 0x07, OutputPower: v & 0x0F}
}
