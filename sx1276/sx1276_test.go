// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package sx1276_test

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"

	rfm95 "github.com/henriheimann/stm32-hal-rfm95"
	"github.com/henriheimann/stm32-hal-rfm95/sx1276"
	"github.com/henriheimann/stm32-hal-rfm95/sx1276/sx1276test"
)

func newRadio(t *testing.T) (*sx1276.Radio, *sx1276test.Radio) {
	f := sx1276test.New()
	r := sx1276.New(f, sx1276.RadioOpts{Clock: sx1276test.NewClock(0), Logger: t.Logf})
	return r, f
}

func TestSetPower(t *testing.T) {
	for p := 2; p <= 17; p++ {
		r, f := newRadio(t)
		require.NoError(t, r.SetPower(p))
		pa := sx1276.DecodePAConfig(f.Reg(sx1276.REG_PACONFIG))
		if int(pa.OutputPower) != p-2 || !pa.PABoost || pa.MaxPower != 7 {
			t.Fatalf("power %d: got %+v", p, pa)
		}
		if v := f.Reg(sx1276.REG_PADAC); v != sx1276.PADAC_DEFAULT {
			t.Fatalf("power %d: PA DAC %#x", p, v)
		}
	}

	r, f := newRadio(t)
	require.NoError(t, r.SetPower(20))
	assert.Equal(t, byte(0xFF), f.Reg(sx1276.REG_PACONFIG))
	assert.Equal(t, byte(sx1276.PADAC_20DBM), f.Reg(sx1276.REG_PADAC))
}

func TestSetPowerInvalid(t *testing.T) {
	for _, p := range []int{-3, 0, 1, 18, 19, 21, 127} {
		r, f := newRadio(t)
		err := r.SetPower(p)
		if !rfm95.IsContractViolation(err) || !errors.Is(err, sx1276.ErrInvalidPower) {
			t.Fatalf("power %d: expected contract violation, got %v", p, err)
		}
		if n := f.Transactions(); n != 0 {
			t.Fatalf("power %d: %d bus transactions before rejecting", p, n)
		}
	}
}

func TestPAConfig(t *testing.T) {
	tests := map[string]struct {
		cfg sx1276.PAConfig
		reg byte
	}{
		"boost 17dBm": {sx1276.PAConfig{PABoost: true, MaxPower: 7, OutputPower: 15}, 0xFF},
		"boost 2dBm":  {sx1276.PAConfig{PABoost: true, MaxPower: 7, OutputPower: 0}, 0xF0},
		"rfo reset":   {sx1276.PAConfig{PABoost: false, MaxPower: 4, OutputPower: 15}, 0x4F},
	}
	for n, tc := range tests {
		if got := tc.cfg.Encode(); got != tc.reg {
			t.Fatalf("%s: encoded %#x, expected %#x", n, got, tc.reg)
		}
		if got := sx1276.DecodePAConfig(tc.reg); got != tc.cfg {
			t.Fatalf("%s: decoded %+v, expected %+v", n, got, tc.cfg)
		}
	}
}

func TestInit(t *testing.T) {
	r, f := newRadio(t)
	require.NoError(t, r.Init())

	// The first two op mode writes must put the chip to sleep and then switch to LoRa.
	var modes []byte
	for _, w := range f.Writes() {
		if w.Reg == sx1276.REG_OPMODE {
			modes = append(modes, w.Val)
		}
	}
	require.True(t, len(modes) >= 2)
	assert.Equal(t, byte(sx1276.MODE_SLEEP), modes[0])
	assert.Equal(t, byte(sx1276.MODE_LORA|sx1276.MODE_SLEEP), modes[1])

	assert.Equal(t, byte(sx1276.MODE_LORA|sx1276.MODE_SLEEP), f.Reg(sx1276.REG_OPMODE))
	assert.Equal(t, byte(0x34), f.Reg(sx1276.REG_SYNC))
	assert.Equal(t, byte(0x80), f.Reg(sx1276.REG_FIFOTXBASE))
	assert.Equal(t, byte(0x00), f.Reg(sx1276.REG_FIFORXBASE))
	assert.Equal(t, byte(64), f.Reg(sx1276.REG_PAYMAX))
	assert.Equal(t, byte(8), f.Reg(sx1276.REG_PREAMBLELSB))
	assert.Equal(t, byte(sx1276.INVERTIQ_TX), f.Reg(sx1276.REG_INVERTIQ))
	assert.Equal(t, byte(0x74), f.Reg(sx1276.REG_MODEMCONF2))
}

func TestInitWaitsForPowerOn(t *testing.T) {
	f := sx1276test.New()
	clk := sx1276test.NewClock(2 * time.Millisecond)
	r := sx1276.New(f, sx1276.RadioOpts{Clock: clk})
	require.NoError(t, r.Init())
	assert.True(t, clk.Now() >= 10*time.Millisecond)
}

func TestInitReset(t *testing.T) {
	f := sx1276test.New()
	clk := sx1276test.NewClock(time.Second)
	rst := &gpiotest.Pin{N: "RESET", L: gpio.High}
	r := sx1276.New(f, sx1276.RadioOpts{Clock: clk, Reset: rst})
	require.NoError(t, r.Init())
	assert.Equal(t, gpio.High, rst.Read())
	assert.True(t, clk.Now()-time.Second >= 6*time.Millisecond)
}

func TestInitBadVersion(t *testing.T) {
	r, f := newRadio(t)
	f.SetReg(sx1276.REG_VERSION, 0x22)
	err := r.Init()
	assert.True(t, errors.Is(err, sx1276.ErrVersion), "got %v", err)
	assert.False(t, rfm95.IsContractViolation(err))
}

// recBus checks the framing of each transaction.
type recBus struct {
	t   *testing.T
	nss *gpiotest.Pin
	w   [][]byte
	err error
}

func (b *recBus) Tx(w, r []byte, timeout time.Duration) error {
	if b.nss != nil && b.nss.Read() != gpio.Low {
		b.t.Fatalf("transaction with NSS high")
	}
	if timeout != sx1276.DefaultIOTimeout {
		b.t.Fatalf("timeout %s", timeout)
	}
	b.w = append(b.w, append([]byte(nil), w...))
	r[1] = 0x5A
	return b.err
}

func TestRegisterFraming(t *testing.T) {
	nss := &gpiotest.Pin{N: "NSS", L: gpio.High}
	bus := &recBus{t: t, nss: nss}
	r := sx1276.New(bus, sx1276.RadioOpts{NSS: nss})

	v, err := r.ReadReg(0x42)
	require.NoError(t, err)
	assert.Equal(t, byte(0x5A), v)
	require.NoError(t, r.WriteReg(0x01, 0x81))
	_, err = r.ReadReg(0x81) // top bit is forced off on reads

	require.NoError(t, err)
	assert.Equal(t, [][]byte{{0x42, 0}, {0x81, 0x81}, {0x01, 0}}, bus.w)
	assert.Equal(t, gpio.High, nss.Read())
}

func TestIOError(t *testing.T) {
	bus := &recBus{t: t, err: rfm95.ErrBusTimeout}
	r := sx1276.New(bus, sx1276.RadioOpts{})

	_, err := r.ReadReg(sx1276.REG_VERSION)
	var ioErr *sx1276.IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "read", ioErr.Op)
	assert.Equal(t, byte(sx1276.REG_VERSION), ioErr.Reg)
	assert.True(t, errors.Is(err, rfm95.ErrBusTimeout))

	// no retries
	err = r.WriteReg(sx1276.REG_OPMODE, 0x81)
	assert.True(t, errors.Is(err, rfm95.ErrBusTimeout))
	assert.Len(t, bus.w, 2)
}

func TestLoadFIFO(t *testing.T) {
	r, f := newRadio(t)
	frame := []byte{0x40, 1, 2, 3, 4, 5}
	require.NoError(t, r.LoadFIFO(sx1276.FIFO_TX_BASE, frame))
	assert.Equal(t, byte(len(frame)), f.Reg(sx1276.REG_PAYLENGTH))
	assert.Equal(t, byte(sx1276.FIFO_TX_BASE+len(frame)), f.Reg(sx1276.REG_FIFOPTR))

	w := f.Writes()
	assert.Equal(t, sx1276test.Access{Reg: sx1276.REG_PAYLENGTH, Val: 6}, w[0])
	assert.Equal(t, sx1276test.Access{Reg: sx1276.REG_FIFOPTR, Val: sx1276.FIFO_TX_BASE}, w[1])

	f.ClearLog()
	err := r.LoadFIFO(sx1276.FIFO_TX_BASE, make([]byte, 65))
	assert.True(t, rfm95.IsContractViolation(err))
	assert.Zero(t, f.Transactions())
}

func TestSymbolTimeout(t *testing.T) {
	r, f := newRadio(t)
	require.NoError(t, r.SetModem(sx1276.Configs["SF9BW125"]))
	require.NoError(t, r.SetSymbolTimeout(0x2A5))
	assert.Equal(t, byte(0x96), f.Reg(sx1276.REG_MODEMCONF2))
	assert.Equal(t, byte(0xA5), f.Reg(sx1276.REG_SYMBTIMEOUT))

	assert.True(t, rfm95.IsContractViolation(r.SetSymbolTimeout(1024)))
}

func TestReadPacket(t *testing.T) {
	r, f := newRadio(t)
	require.NoError(t, r.Init())

	_, err := r.ReadPacket()
	assert.Equal(t, sx1276.ErrNoPacket, err)

	f.QueueDownlink(sx1276test.Packet{Frame: []byte{0x60, 1, 2, 3}, Rssi: 100, Snr: 0xF8})
	require.NoError(t, r.MapDIO(sx1276.DIO0_RXDONE|sx1276.DIO1_RXTIMEOUT))
	require.NoError(t, r.SetMode(sx1276.MODE_RX_SINGLE))
	assert.Equal(t, gpio.High, f.DIO0.Read())

	pkt, err := r.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 1, 2, 3}, pkt.Payload)
	assert.Equal(t, -2, pkt.Snr)
	assert.Equal(t, -157+100-2, pkt.Rssi)

	require.NoError(t, r.ClearIRQ())
	assert.Equal(t, gpio.Low, f.DIO0.Read())
}

func TestTimeOnAir(t *testing.T) {
	tests := map[string]struct {
		cfg  string
		n    int
		tsym time.Duration
		toa  time.Duration
	}{
		"SF7 13 bytes":  {"SF7BW125", 13, 1024 * time.Microsecond, 46336 * time.Microsecond},
		"SF9 64 bytes":  {"SF9BW125", 64, 4096 * time.Microsecond, 390144 * time.Microsecond},
		"SF12 13 bytes": {"SF12BW125", 13, 32768 * time.Microsecond, 1155072 * time.Microsecond},
	}
	for n, tc := range tests {
		c := sx1276.Configs[tc.cfg]
		if got := c.SymbolTime(); got != tc.tsym {
			t.Fatalf("%s: symbol time %s, expected %s", n, got, tc.tsym)
		}
		if got := c.TimeOnAir(tc.n); got != tc.toa {
			t.Fatalf("%s: time on air %s, expected %s", n, got, tc.toa)
		}
	}
}

func TestFrf(t *testing.T) {
	assert.Equal(t, [3]byte{0xD9, 0x06, 0x66}, sx1276.Frf(868100*physic.KiloHertz))
	assert.Equal(t, [3]byte{0xD9, 0x61, 0x99}, sx1276.Frf(869525*physic.KiloHertz))
	assert.Equal(t, 868500*physic.KiloHertz, sx1276.Frequency([3]byte{0xD9, 0x20, 0x00}))
}
