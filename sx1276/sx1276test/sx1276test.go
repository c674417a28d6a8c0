// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package sx1276test provides an in-memory model of an SX1276 for tests.
//
// The model implements rfm95.Bus and reacts to register writes the way the chip does as far
// as the drivers care: the FIFO pointer auto-increments, writing the IRQ flags clears them,
// entering TX captures the frame and flags TxDone, entering RX single delivers a queued
// downlink or flags RxTimeout. The DIO0, DIO1 and DIO5 lines are gpiotest pins whose levels
// follow the flags and the DIO mapping.
package sx1276test

import (
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/henriheimann/stm32-hal-rfm95/sx1276"
)

// Access is one register write seen on the bus.
type Access struct {
	Reg byte
	Val byte
}

// Packet is a canned downlink with the signal quality register values to report.
type Packet struct {
	Frame []byte
	Rssi  byte // raw REG_PKTRSSI
	Snr   byte // raw REG_PKTSNR, two's complement quarter dB
}

// Radio is the register model. The exported knobs may be changed between operations.
type Radio struct {
	DIO0, DIO1, DIO5 *gpiotest.Pin

	NoModeReady bool          // DIO5 never rises
	NoTxDone    bool          // transmissions never complete
	Err         error         // returned by every transaction when set
	OnIRQ       func(dio int) // called after DIO0 or DIO1 rises, outside the bus lock

	mu        sync.Mutex
	regs      [0x80]byte
	fifo      [256]byte
	writes    []Access
	count     int
	sent      [][]byte
	rxCount   int
	downlinks []Packet
}

// New returns a model fresh out of reset.
func New() *Radio {
	f := &Radio{
		DIO0: &gpiotest.Pin{N: "DIO0", Num: 0, EdgesChan: make(chan gpio.Level, 4)},
		DIO1: &gpiotest.Pin{N: "DIO1", Num: 1, EdgesChan: make(chan gpio.Level, 4)},
		DIO5: &gpiotest.Pin{N: "DIO5", Num: 5, EdgesChan: make(chan gpio.Level, 4)},
	}
	f.regs[sx1276.REG_OPMODE] = 0x09
	f.regs[sx1276.REG_PACONFIG] = 0x4F
	f.regs[sx1276.REG_PADAC] = 0x84
	f.regs[sx1276.REG_VERSION] = sx1276.VERSION
	return f
}

// Tx implements rfm95.Bus for two-byte register transactions.
func (f *Radio) Tx(w, r []byte, timeout time.Duration) error {
	f.mu.Lock()
	if f.Err != nil {
		err := f.Err
		f.mu.Unlock()
		return err
	}
	f.count++
	var irqs []int
	addr := w[0] & 0x7f
	if w[0]&0x80 != 0 {
		f.writes = append(f.writes, Access{addr, w[1]})
		irqs = f.write(addr, w[1])
	} else {
		r[1] = f.read(addr)
	}
	hook := f.OnIRQ
	f.mu.Unlock()

	if hook != nil {
		for _, dio := range irqs {
			hook(dio)
		}
	}
	return nil
}

func (f *Radio) read(addr byte) byte {
	if addr == sx1276.REG_FIFO {
		v := f.fifo[f.regs[sx1276.REG_FIFOPTR]]
		f.regs[sx1276.REG_FIFOPTR]++
		return v
	}
	return f.regs[addr]
}

func (f *Radio) write(addr, v byte) []int {
	switch addr {
	case sx1276.REG_FIFO:
		f.fifo[f.regs[sx1276.REG_FIFOPTR]] = v
		f.regs[sx1276.REG_FIFOPTR]++
		return nil
	case sx1276.REG_IRQFLAGS:
		f.regs[addr] &^= v
		return f.updatePins()
	case sx1276.REG_OPMODE:
		return f.setMode(v)
	case sx1276.REG_VERSION:
		return nil // read-only
	}
	f.regs[addr] = v
	return f.updatePins()
}

func (f *Radio) setMode(v byte) []int {
	cur := f.regs[sx1276.REG_OPMODE]
	if cur&0x07 != sx1276.MODE_SLEEP {
		// long range mode can only change in sleep
		v = v&^sx1276.MODE_LORA | cur&sx1276.MODE_LORA
	}
	f.regs[sx1276.REG_OPMODE] = v
	if v&sx1276.MODE_LORA == 0 {
		return f.updatePins()
	}
	switch v & 0x07 {
	case sx1276.MODE_TX:
		if f.NoTxDone {
			break
		}
		base := f.regs[sx1276.REG_FIFOTXBASE]
		frame := make([]byte, f.regs[sx1276.REG_PAYLENGTH])
		for i := range frame {
			frame[i] = f.fifo[byte(int(base)+i)]
		}
		f.sent = append(f.sent, frame)
		f.regs[sx1276.REG_IRQFLAGS] |= sx1276.IRQ_TXDONE
		f.regs[sx1276.REG_OPMODE] = sx1276.MODE_LORA | sx1276.MODE_STANDBY
	case sx1276.MODE_RX_SINGLE:
		var p Packet
		if len(f.downlinks) > 0 {
			p = f.downlinks[0]
			f.downlinks = f.downlinks[1:]
		}
		f.rxCount++
		if len(p.Frame) == 0 {
			f.regs[sx1276.REG_IRQFLAGS] |= sx1276.IRQ_RXTIMEOUT
		} else {
			base := f.regs[sx1276.REG_FIFORXBASE]
			for i, b := range p.Frame {
				f.fifo[byte(int(base)+i)] = b
			}
			f.regs[sx1276.REG_FIFORXCURR] = base
			f.regs[sx1276.REG_RXBYTES] = byte(len(p.Frame))
			f.regs[sx1276.REG_PKTRSSI] = p.Rssi
			f.regs[sx1276.REG_PKTSNR] = p.Snr
			f.regs[sx1276.REG_IRQFLAGS] |= sx1276.IRQ_RXDONE
		}
		f.regs[sx1276.REG_OPMODE] = sx1276.MODE_LORA | sx1276.MODE_STANDBY
	}
	return f.updatePins()
}

// updatePins recomputes the DIO levels and returns the interrupt lines that rose.
func (f *Radio) updatePins() []int {
	flags := f.regs[sx1276.REG_IRQFLAGS]
	dio0 := f.regs[sx1276.REG_DIOMAPPING1] & 0xC0
	dio1 := f.regs[sx1276.REG_DIOMAPPING1] & 0x30
	mode := f.regs[sx1276.REG_OPMODE]

	var rose []int
	if set(f.DIO0, dio0 == sx1276.DIO0_TXDONE && flags&sx1276.IRQ_TXDONE != 0 ||
		dio0 == sx1276.DIO0_RXDONE && flags&sx1276.IRQ_RXDONE != 0) {
		rose = append(rose, 0)
	}
	if set(f.DIO1, dio1 == sx1276.DIO1_RXTIMEOUT && flags&sx1276.IRQ_RXTIMEOUT != 0) {
		rose = append(rose, 1)
	}
	set(f.DIO5, !f.NoModeReady && mode&0x07 != sx1276.MODE_SLEEP)
	return rose
}

// set drives a pin and reports a rising edge, which is also queued on its EdgesChan.
func set(p *gpiotest.Pin, high bool) bool {
	l := gpio.Level(high)
	was := p.Read()
	p.Out(l)
	if l == gpio.High && was == gpio.Low {
		select {
		case p.EdgesChan <- gpio.High:
		default:
		}
		return true
	}
	return false
}

// QueueDownlink arranges for the next RX single to receive p. A packet without a frame
// makes that reception time out.
func (f *Radio) QueueDownlink(p Packet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downlinks = append(f.downlinks, p)
}

// Reg returns the current content of a register.
func (f *Radio) Reg(addr byte) byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regs[addr]
}

// SetReg changes a register without side effects.
func (f *Radio) SetReg(addr, v byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs[addr] = v
}

// Writes returns the register writes seen so far, oldest first.
func (f *Radio) Writes() []Access {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Access(nil), f.writes...)
}

// Transactions returns the number of bus transactions seen so far.
func (f *Radio) Transactions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

// Sent returns the frames transmitted so far.
func (f *Radio) Sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

// Receptions returns how many times RX single was entered.
func (f *Radio) Receptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rxCount
}

// ClearLog forgets the recorded writes, transactions, frames and receptions.
func (f *Radio) ClearLog() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes, f.count, f.sent, f.rxCount = nil, 0, nil, 0
}

// Mode returns the low three bits of the op mode register.
func (f *Radio) Mode() byte { return f.Reg(sx1276.REG_OPMODE) & 0x07 }

// Clock is a fake rfm95.Clock, Sleep advances time instantly.
type Clock struct {
	mu  sync.Mutex
	now time.Duration
}

// NewClock returns a Clock reading start.
func NewClock(start time.Duration) *Clock { return &Clock{now: start} }

func (c *Clock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Sleep(d time.Duration) {
	if d <= 0 {
		d = time.Microsecond
	}
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}
