// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package node runs the LoRaWAN duty cycle of an RFM95 end-device activated by
// personalization.
//
// A Session owns the radio, the session keys and the frame counters. Send transmits one
// uplink, SendReceive additionally listens in the RX1 and RX2 windows that follow it. Each
// wait on the radio is bounded: a radio that does not wake up or does not finish sending is
// put back to sleep and reported with ErrWakeupTimeout or ErrSendTimeout, leaving the
// counters untouched. A receive window the radio never closes is reported with
// ErrReceiveTimeout after the uplink has been counted.
//
// The DIO lines can either be polled or, once interrupts are configured, timestamped
// asynchronously via OnInterrupt; the receive windows then work off those timestamps.
// A Session is not safe for concurrent use except for OnInterrupt.
package node

import (
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"periph.io/x/conn/v3/gpio"

	rfm95 "github.com/henriheimann/stm32-hal-rfm95"
	"github.com/henriheimann/stm32-hal-rfm95/lorawan"
	"github.com/henriheimann/stm32-hal-rfm95/persist"
	"github.com/henriheimann/stm32-hal-rfm95/sx1276"
)

const (
	DefaultWakeupTimeout = 10 * time.Millisecond
	DefaultSendTimeout   = 1000 * time.Millisecond
	DefaultPollInterval  = 100 * time.Microsecond
	DefaultPower         = 17

	// BatteryUnknown is reported when no battery hook is configured.
	BatteryUnknown = 255
)

var (
	ErrWakeupTimeout  = errors.New("node: radio did not become ready")
	ErrSendTimeout    = errors.New("node: transmission did not complete")
	ErrReceiveTimeout = errors.New("node: receive window did not close")
	ErrNotInitialized = errors.New("node: session is not initialized")
)

// ReceiveMode selects which receive windows SendReceive opens.
type ReceiveMode int

const (
	ReceiveNone   ReceiveMode = iota // transmit only
	ReceiveRX1                       // RX1 only
	ReceiveRX1RX2                    // RX2 if RX1 got nothing
)

// ParseReceiveMode accepts "none", "rx1" and "rx1rx2".
func ParseReceiveMode(s string) (ReceiveMode, error) {
	switch s {
	case "none", "":
		return ReceiveNone, nil
	case "rx1":
		return ReceiveRX1, nil
	case "rx1rx2":
		return ReceiveRX1RX2, nil
	}
	return 0, errors.Errorf("node: unknown receive mode %q", s)
}

// Pins are the radio's interrupt lines. DIO0 and DIO5 are required, DIO1 is only used
// to end empty receive windows early.
type Pins struct {
	DIO0 gpio.PinIn // TxDone, RxDone
	DIO1 gpio.PinIn // RxTimeout
	DIO5 gpio.PinIn // ModeReady
}

// LogPrintf is a function used to print logging info.
type LogPrintf func(format string, v ...interface{})

// Options configure a Session. Zero values select the documented defaults.
type Options struct {
	Keys lorawan.Keys
	Pins Pins

	Clock     rfm95.Clock    // coarse time source for timeouts, defaults to rfm95.SystemClock()
	Precision rfm95.Clock    // time source for receive windows, defaults to Clock
	Cipher    lorawan.Cipher // defaults to lorawan.AESCipher
	Store     persist.Store  // optional, counters start at zero and are not saved without it

	Random  func(max byte) byte // optional
	Battery func() byte         // optional, 0 external power, 1..254 level, 255 unknown

	Power        int    // dBm, defaults to DefaultPower
	DataRate     string // uplink and RX1 entry in sx1276.Configs, defaults to sx1276.DefaultConfig
	RX2Channel   lorawan.Channel
	RX2DataRate  string
	ReceiveMode  ReceiveMode
	Timing       RxTiming
	ExternalIRQs bool // the caller invokes OnInterrupt from its own edge handlers

	WakeupTimeout time.Duration
	SendTimeout   time.Duration
	PollInterval  time.Duration

	Logger LogPrintf
}

// Session is the handle of one end-device.
type Session struct {
	radio     *sx1276.Radio
	opts      Options
	clock     rfm95.Clock
	precision rfm95.Clock
	cipher    lorawan.Cipher
	uplink    sx1276.Config
	rx2       sx1276.Config
	irq       Timestamps
	irqActive atomic.Bool // interrupts are timestamped, no need to poll
	log       LogPrintf

	initialized bool
	txCount     uint16
	rxCount     uint16
	rx1Delay    time.Duration
	plan        lorawan.ChannelPlan
}

// New returns a Session driving radio. Call Init before anything else.
func New(radio *sx1276.Radio, opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = rfm95.SystemClock()
	}
	if opts.Precision == nil {
		opts.Precision = opts.Clock
	}
	if opts.Cipher == nil {
		opts.Cipher = lorawan.AESCipher{}
	}
	if opts.Power == 0 {
		opts.Power = DefaultPower
	}
	if opts.DataRate == "" {
		opts.DataRate = sx1276.DefaultConfig
	}
	if opts.RX2Channel == (lorawan.Channel{}) {
		opts.RX2Channel = lorawan.EU868RX2
	}
	if opts.RX2DataRate == "" {
		opts.RX2DataRate = lorawan.EU868RX2Config
	}
	if opts.WakeupTimeout <= 0 {
		opts.WakeupTimeout = DefaultWakeupTimeout
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	opts.Timing.setDefaults()

	s := &Session{
		radio: radio, opts: opts,
		clock: opts.Clock, precision: opts.Precision, cipher: opts.Cipher,
		plan: lorawan.DefaultPlan(), rx1Delay: opts.Timing.RX1Delay,
		log: func(format string, v ...interface{}) {},
	}
	if l := opts.Logger; l != nil {
		s.log = func(format string, v ...interface{}) { l("node: "+format, v...) }
	}
	s.irq.init()
	s.irqActive.Store(opts.ExternalIRQs)
	return s
}

// Init brings up the radio, sets the transmit power and restores the persisted counters and
// channel plan. A persisted record with the wrong format tag is ignored.
func (s *Session) Init() error {
	s.initialized = false
	if s.opts.Pins.DIO0 == nil || s.opts.Pins.DIO5 == nil {
		return rfm95.Contractf("node: DIO0 and DIO5 pins are required")
	}
	var ok bool
	if s.uplink, ok = sx1276.Configs[s.opts.DataRate]; !ok {
		return rfm95.Contractf("node: unknown data rate %q", s.opts.DataRate)
	}
	if s.rx2, ok = sx1276.Configs[s.opts.RX2DataRate]; !ok {
		return rfm95.Contractf("node: unknown RX2 data rate %q", s.opts.RX2DataRate)
	}
	if _, _, err := sx1276.PowerConfig(s.opts.Power); err != nil {
		return err
	}
	if d := s.opts.Timing.RX1Delay; d%time.Second != 0 || d > MaxRX1Delay {
		return rfm95.Contractf("node: RX1 delay %s is not 1..15 whole seconds", d)
	}

	if err := s.radio.Init(); err != nil {
		return err
	}
	if err := s.radio.SetPower(s.opts.Power); err != nil {
		return err
	}
	s.restore()
	s.initialized = true
	return nil
}

// restore seeds counters and plan from the store, falling back to defaults.
func (s *Session) restore() {
	s.txCount, s.rxCount = 0, 0
	s.plan = lorawan.DefaultPlan()
	s.rx1Delay = s.opts.Timing.RX1Delay
	if s.opts.Store == nil {
		return
	}
	c, err := s.opts.Store.Load()
	switch {
	case err != nil:
		s.log("cannot load config, using defaults: %s", err)
		return
	case c == nil:
		s.log("no saved config, using defaults")
		return
	case !c.Valid():
		s.log("saved config has magic %#02x, using defaults", c.Magic)
		return
	}
	s.txCount, s.rxCount = c.TxFrameCounter, c.RxFrameCounter
	switch d := time.Duration(c.RX1Delay) * time.Second; {
	case d > MaxRX1Delay:
		s.log("saved rx1 delay %s out of range, using %s", d, s.rx1Delay)
	case d != 0:
		s.rx1Delay = d
	}
	if p := c.Plan(); len(p.Enabled()) > 0 {
		s.plan = p
	}
	s.log("restored tx=%d rx=%d rx1=%s channels=%d", s.txCount, s.rxCount, s.rx1Delay, len(s.plan.Enabled()))
}

// record returns the persisted form of the session.
func (s *Session) record() persist.Config {
	return persist.Config{
		Magic:          persist.Magic,
		RxFrameCounter: s.rxCount,
		TxFrameCounter: s.txCount,
		RX1Delay:       byte(s.rx1Delay / time.Second),
		Channels:       s.plan.Channels,
		ChannelMask:    s.plan.Mask,
	}
}

// save offers the counters to the store, failures are only logged.
func (s *Session) save() {
	if s.opts.Store == nil {
		return
	}
	c := s.record()
	if err := s.opts.Store.Save(&c); err != nil {
		s.log("cannot save config: %s", err)
	}
}

// SetPower changes the transmit power, see sx1276.PowerConfig for the valid values.
func (s *Session) SetPower(dBm int) error {
	if _, _, err := sx1276.PowerConfig(dBm); err != nil {
		return err
	}
	if !s.initialized {
		return ErrNotInitialized
	}
	if err := s.radio.SetPower(dBm); err != nil {
		return err
	}
	s.opts.Power = dBm
	return nil
}

// Counters returns the tx and rx frame counters.
func (s *Session) Counters() (tx, rx uint16) { return s.txCount, s.rxCount }

// Plan returns the channel plan in use.
func (s *Session) Plan() lorawan.ChannelPlan { return s.plan }

// Battery returns the battery level from the hook, or BatteryUnknown.
func (s *Session) Battery() byte {
	if s.opts.Battery == nil {
		return BatteryUnknown
	}
	return s.opts.Battery()
}

// Random returns a random byte in [0, max] from the hook or math/rand.
func (s *Session) Random(max byte) byte {
	if s.opts.Random != nil {
		return s.opts.Random(max)
	}
	return byte(rand.Intn(int(max) + 1))
}

// abort puts the radio back to sleep after a failure and returns err.
func (s *Session) abort(err error) error {
	if e := s.radio.Sleep(); e != nil {
		s.log("cannot put radio to sleep: %s", e)
	}
	return err
}

// await waits until one of srcs fires or timeout passes on the coarse clock. Pin levels
// are polled unless interrupts are timestamped or pollPins is false, and the precision
// time of the event is returned.
func (s *Session) await(timeout time.Duration, pollPins bool, srcs ...Source) (Source, time.Duration, bool) {
	deadline := s.clock.Now() + timeout
	for {
		for _, src := range srcs {
			if at, ok := s.irq.Take(src); ok {
				return src, at, true
			}
			if !pollPins {
				continue
			}
			if p := s.pin(src); p != nil && p.Read() == gpio.High {
				return src, s.precision.Now(), true
			}
		}
		if s.clock.Now() >= deadline {
			return 0, 0, false
		}
		s.clock.Sleep(s.opts.PollInterval)
	}
}

func (s *Session) pin(src Source) gpio.PinIn {
	switch src {
	case DIO0:
		return s.opts.Pins.DIO0
	case DIO1:
		return s.opts.Pins.DIO1
	case DIO5:
		return s.opts.Pins.DIO5
	}
	return nil
}
