// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// The SX1276 package interfaces with a HopeRF RFM95/96/97/98 LoRA radio connected to an SPI bus.
//
// The RFM9x modules use a Semtech SX1276 radio chip. Note that the SX1276, SX1277, SX1278, and
// SX1279 all function identically and only differ in which RF bands they support.
//
// The Radio type is a thin register layer: every method performs a fixed sequence of
// single-register transactions and returns. Sequencing those into transmit and receive
// cycles, and waiting for the DIO lines, is left to the caller (see package node).
//
// Every register transaction is bounded by an I/O timeout. A transaction that fails or times
// out is reported as an *IOError and is never retried, retry policy belongs to the caller.
//
// Limitations
//
// This driver uses the SX1276 in LoRA mode only and only the explicit header mode is
// supported. Only the PA_BOOST output is used because RFM9x modules don't have the RFO pins
// connected to anything.
//
// The methods on the Radio object are not concurrency safe.
package sx1276

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"

	rfm95 "github.com/henriheimann/stm32-hal-rfm95"
)

const (
	DefaultIOTimeout = 10 * time.Millisecond
	settleTime       = 10 * time.Millisecond // from power-on until the chip answers
	resetPulse       = time.Millisecond
	resetWait        = 5 * time.Millisecond
)

var (
	ErrVersion      = errors.New("sx1276: unexpected chip version")
	ErrInvalidPower = errors.Wrap(rfm95.ErrContract, "sx1276: power must be 2..17 or 20 dBm")
	ErrNoPacket     = errors.New("sx1276: no packet received")
	ErrCRC          = errors.New("sx1276: packet CRC error")
)

// IOError reports a register transaction that did not complete.
type IOError struct {
	Op  string // "read" or "write"
	Reg byte
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("sx1276: %s of register %#02x failed: %v", e.Op, e.Reg, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Radio represents a Semtech SX127x LoRA radio.
type Radio struct {
	bus       rfm95.Bus    // SPI device to access the radio
	nss       gpio.PinOut  // chip select, nil when the bus drives it
	reset     gpio.PinOut  // reset line, nil if not connected
	clock     rfm95.Clock  // time source for reset and power-on delays
	ioTimeout time.Duration // bound for each register transaction
	conf2     byte          // ModemConfig2 as last written, sans symbol timeout bits
	log       LogPrintf     // function to use for logging
}

// RadioOpts contains options used when initilizing a Radio.
type RadioOpts struct {
	NSS       gpio.PinOut   // chip select pin if the bus does not frame transactions
	Reset     gpio.PinOut   // reset pin, optional
	Clock     rfm95.Clock   // defaults to rfm95.SystemClock()
	IOTimeout time.Duration // defaults to DefaultIOTimeout
	Logger    LogPrintf     // function to use for logging
}

// RxPacket is a received packet with stats.
type RxPacket struct {
	Payload []byte // payload, excluding length & crc
	Snr     int    // signal-to-noise in dB for packet
	Rssi    int    // rssi in dBm for packet
}

// LogPrintf is a function used by the driver to print logging info.
type LogPrintf func(format string, v ...interface{})

// New returns a Radio on the given bus. It does not touch the hardware, call Init for that.
func New(bus rfm95.Bus, opts RadioOpts) *Radio {
	r := &Radio{
		bus: bus, nss: opts.NSS, reset: opts.Reset, clock: opts.Clock,
		ioTimeout: opts.IOTimeout,
		log:       func(format string, v ...interface{}) {},
	}
	if r.clock == nil {
		r.clock = rfm95.SystemClock()
	}
	if r.ioTimeout <= 0 {
		r.ioTimeout = DefaultIOTimeout
	}
	r.SetLogger(opts.Logger)
	return r
}

// SetLogger sets a logging function, nil may be used to disable logging, which is the default.
func (r *Radio) SetLogger(l LogPrintf) {
	if l != nil {
		r.log = func(format string, v ...interface{}) { l("sx1276: "+format, v...) }
	} else {
		r.log = func(format string, v ...interface{}) {}
	}
}

// Init resets the chip, checks its identity and loads the base LoRa configuration, leaving
// the radio asleep in LoRa mode.
func (r *Radio) Init() error {
	if now := r.clock.Now(); now < settleTime {
		r.clock.Sleep(settleTime - now)
	}
	if err := r.Reset(); err != nil {
		return err
	}
	if err := r.CheckVersion(); err != nil {
		return err
	}

	// Write the configuration into the registers.
	for i := 0; i < len(configRegs)-1; i += 2 {
		if err := r.WriteReg(configRegs[i], configRegs[i+1]); err != nil {
			return err
		}
	}
	if err := r.SetModem(Configs[DefaultConfig]); err != nil {
		return err
	}
	r.log("initialized")
	return nil
}

// Reset pulses the reset line low and waits for the chip to come back. It does nothing if
// no reset pin was provided.
func (r *Radio) Reset() error {
	if r.reset == nil {
		return nil
	}
	if err := r.reset.Out(gpio.Low); err != nil {
		return errors.Wrap(err, "sx1276: reset")
	}
	r.clock.Sleep(resetPulse)
	if err := r.reset.Out(gpio.High); err != nil {
		return errors.Wrap(err, "sx1276: reset")
	}
	r.clock.Sleep(resetWait)
	return nil
}

// CheckVersion verifies that the chip on the bus is an SX1276.
func (r *Radio) CheckVersion() error {
	v, err := r.ReadReg(REG_VERSION)
	if err != nil {
		return err
	}
	if v != VERSION {
		return errors.Wrapf(ErrVersion, "got %#02x, want %#02x", v, VERSION)
	}
	r.log("version %#x", v)
	return nil
}

// SetMode switches the LoRa modem to one of the MODE_* operating modes.
func (r *Radio) SetMode(mode byte) error {
	return r.WriteReg(REG_OPMODE, MODE_LORA|mode&0x07)
}

// Sleep puts the radio into its lowest power mode.
func (r *Radio) Sleep() error { return r.SetMode(MODE_SLEEP) }

// PowerConfig returns the PA register values for a transmit power in dBm.
// Valid values are 2..17 and 20, anything else is a contract violation.
func PowerConfig(dBm int) (pa PAConfig, dac byte, err error) {
	switch {
	case dBm >= 2 && dBm <= 17:
		return PAConfig{PABoost: true, MaxPower: 7, OutputPower: byte(dBm - 2)}, PADAC_DEFAULT, nil
	case dBm == 20:
		return PAConfig{PABoost: true, MaxPower: 7, OutputPower: 15}, PADAC_20DBM, nil
	}
	return PAConfig{}, 0, errors.WithMessagef(ErrInvalidPower, "got %d", dBm)
}

// SetPower configures the radio for the specified output power using the PA_BOOST amplifier.
// Invalid values are rejected before any register is written.
func (r *Radio) SetPower(dBm int) error {
	pa, dac, err := PowerConfig(dBm)
	if err != nil {
		return err
	}
	r.log("SetPower %ddBm", dBm)
	if err := r.WriteReg(REG_PACONFIG, pa.Encode()); err != nil {
		return err
	}
	return r.WriteReg(REG_PADAC, dac)
}

// SetFrequency programs the carrier frequency register triple, see Frf.
func (r *Radio) SetFrequency(frf [3]byte) error {
	for i, reg := range []byte{REG_FRFMSB, REG_FRFMID, REG_FRFLSB} {
		if err := r.WriteReg(reg, frf[i]); err != nil {
			return err
		}
	}
	return nil
}

// SetModem programs bandwidth, coding rate, spreading factor, CRC and the low data rate
// optimization from one of the Configs entries. The AGC is always turned on.
func (r *Radio) SetModem(c Config) error {
	r.conf2 = c.Conf2 &^ 0x03
	if err := r.WriteReg(REG_MODEMCONF1, c.Conf1&^1); err != nil { // explicit header
		return err
	}
	if err := r.WriteReg(REG_MODEMCONF2, r.conf2); err != nil {
		return err
	}
	return r.WriteReg(REG_MODEMCONF3, c.Conf3|0x04)
}

// SetSymbolTimeout sets how many symbols a single reception waits for a preamble. The value
// has 10 bits, the top two live in ModemConfig2 which must have been set with SetModem.
func (r *Radio) SetSymbolTimeout(symbols uint16) error {
	if symbols > 0x3FF {
		return errors.WithMessagef(rfm95.ErrContract, "sx1276: symbol timeout %d exceeds 10 bits", symbols)
	}
	if err := r.WriteReg(REG_MODEMCONF2, r.conf2|byte(symbols>>8)); err != nil {
		return err
	}
	return r.WriteReg(REG_SYMBTIMEOUT, byte(symbols))
}

// SetIQ selects IQ inversion: uplinks are sent normal, downlinks are received inverted.
func (r *Radio) SetIQ(inverted bool) error {
	iq, iq2 := byte(INVERTIQ_TX), byte(INVERTIQ2_TX)
	if inverted {
		iq, iq2 = INVERTIQ_RX, INVERTIQ2_RX
	}
	if err := r.WriteReg(REG_INVERTIQ, iq); err != nil {
		return err
	}
	return r.WriteReg(REG_INVERTIQ2, iq2)
}

// MapDIO writes the DIO mapping 1 register, e.g. DIO0_TXDONE.
func (r *Radio) MapDIO(mapping byte) error { return r.WriteReg(REG_DIOMAPPING1, mapping) }

// ClearIRQ clears all interrupt flags.
func (r *Radio) ClearIRQ() error { return r.WriteReg(REG_IRQFLAGS, 0xFF) }

// IRQFlags returns the pending IRQ_* flags.
func (r *Radio) IRQFlags() (byte, error) { return r.ReadReg(REG_IRQFLAGS) }

// LoadFIFO sets the payload length, points the FIFO at base and writes data into it
// byte by byte.
func (r *Radio) LoadFIFO(base byte, data []byte) error {
	if len(data) == 0 || len(data) > FIFO_SIZE {
		return errors.WithMessagef(rfm95.ErrContract, "sx1276: frame of %d bytes does not fit the FIFO", len(data))
	}
	if err := r.WriteReg(REG_PAYLENGTH, byte(len(data))); err != nil {
		return err
	}
	if err := r.WriteReg(REG_FIFOPTR, base); err != nil {
		return err
	}
	for _, b := range data {
		if err := r.WriteReg(REG_FIFO, b); err != nil {
			return err
		}
	}
	return nil
}

// SetFIFOPointer points the FIFO access register at addr, used to set up reception.
func (r *Radio) SetFIFOPointer(addr byte) error { return r.WriteReg(REG_FIFOPTR, addr) }

// ReadPacket fetches a received packet from the FIFO together with its signal quality.
// It fails with ErrNoPacket if RxDone is not flagged and with ErrCRC on a corrupt packet.
func (r *Radio) ReadPacket() (*RxPacket, error) {
	irq, err := r.ReadReg(REG_IRQFLAGS)
	if err != nil {
		return nil, err
	}
	switch {
	case irq&IRQ_RXDONE == 0:
		return nil, ErrNoPacket
	case irq&IRQ_CRCERR != 0:
		return nil, ErrCRC
	}

	// Grab the payload
	n, err := r.ReadReg(REG_RXBYTES)
	if err != nil {
		return nil, err
	}
	ptr, err := r.ReadReg(REG_FIFORXCURR)
	if err != nil {
		return nil, err
	}
	if err := r.WriteReg(REG_FIFOPTR, ptr); err != nil {
		return nil, err
	}
	pkt := &RxPacket{Payload: make([]byte, n)}
	for i := range pkt.Payload {
		if pkt.Payload[i], err = r.ReadReg(REG_FIFO); err != nil {
			return nil, err
		}
	}

	// Grab SNR and RSSI, HF port formulas
	rawSnr, err := r.ReadReg(REG_PKTSNR)
	if err != nil {
		return nil, err
	}
	rawRssi, err := r.ReadReg(REG_PKTRSSI)
	if err != nil {
		return nil, err
	}
	pkt.Snr = int(int8(rawSnr)) / 4
	rssi := int(rawRssi)
	if pkt.Snr < 0 {
		pkt.Rssi = -157 + rssi + pkt.Snr
	} else {
		pkt.Rssi = -157 + rssi + rssi>>4
	}
	r.log("rx %d bytes, rssi %ddBm, snr %ddB", n, pkt.Rssi, pkt.Snr)
	return pkt, nil
}

// Dump reads registers 0x01 through 0x4F, index 0 (the FIFO) is left at zero.
func (r *Radio) Dump() ([0x50]byte, error) {
	var regs [0x50]byte
	for i := 1; i < len(regs); i++ {
		v, err := r.ReadReg(byte(i))
		if err != nil {
			return regs, err
		}
		regs[i] = v
	}
	return regs, nil
}

// LogRegs is a debug helper function to print almost all the sx1276's registers.
func (r *Radio) LogRegs() {
	regs, err := r.Dump()
	if err != nil {
		r.log("cannot dump registers: %s", err)
		return
	}
	r.log("     0  1  2  3  4  5  6  7  8  9  A  B  C  D  E  F")
	for i := 0; i < len(regs); i += 16 {
		line := fmt.Sprintf("%02x:", i)
		for j := 0; j < 16 && i+j < len(regs); j++ {
			line += fmt.Sprintf(" %02x", regs[i+j])
		}
		r.log(line)
	}
}

// WriteReg writes one register: address with the top bit set followed by the data byte.
func (r *Radio) WriteReg(addr, data byte) error {
	var rBuf [2]byte
	if err := r.tx([]byte{addr | 0x80, data}, rBuf[:]); err != nil {
		return &IOError{Op: "write", Reg: addr, Err: err}
	}
	return nil
}

// ReadReg reads one register: address with the top bit cleared, data clocked in on the
// second byte.
func (r *Radio) ReadReg(addr byte) (byte, error) {
	var rBuf [2]byte
	if err := r.tx([]byte{addr & 0x7f, 0}, rBuf[:]); err != nil {
		return 0, &IOError{Op: "read", Reg: addr, Err: err}
	}
	return rBuf[1], nil
}

// tx brackets one bus transaction with the chip select, if we drive it.
func (r *Radio) tx(w, rb []byte) error {
	if r.nss == nil {
		return r.bus.Tx(w, rb, r.ioTimeout)
	}
	if err := r.nss.Out(gpio.Low); err != nil {
		return err
	}
	err := r.bus.Tx(w, rb, r.ioTimeout)
	if err2 := r.nss.Out(gpio.High); err == nil {
		err = err2
	}
	return err
}
