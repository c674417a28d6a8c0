// Copyright 2017 by Thorsten von Eicken, see LICENSE file

// Package spimux shares one SPI bus and its single chip select between two radios.
package spimux

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"

	rfm95 "github.com/henriheimann/stm32-hal-rfm95"
)

// Conn is the bus of one radio behind a chip select demultiplexer.
//
// The SPI CS line drives the enable input of a demux (e.g. a 74LVC1G19) and an extra gpio
// drives its select input, so that CS reaches either Y0 or Y1. Tx drives the select pin for
// this radio and performs the transaction while holding a lock shared by both halves, so
// a register access of one radio never interleaves with the other. A pull-down on the
// select input keeps both radios deselected while the pin is not driven.
//
// Both radios share the clock rate and mode of the underlying bus.
type Conn struct {
	mu  *sync.Mutex
	bus rfm95.Bus
	pin gpio.PinOut
	sel gpio.Level
}

// New returns two buses on top of bus, the first one driving the select pin Low and
// the second one High.
func New(bus rfm95.Bus, pin gpio.PinOut) (*Conn, *Conn) {
	mu := &sync.Mutex{}
	return &Conn{mu, bus, pin, gpio.Low}, &Conn{mu, bus, pin, gpio.High}
}

// Select returns the half of New(bus, pin) matching level.
func Select(bus rfm95.Bus, pin gpio.PinOut, level gpio.Level) *Conn {
	lo, hi := New(bus, pin)
	if level {
		return hi
	}
	return lo
}

// Tx implements rfm95.Bus.
func (c *Conn) Tx(w, r []byte, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.pin.Out(c.sel); err != nil {
		return errors.Wrapf(err, "spimux: cannot select %s", c.sel)
	}
	return c.bus.Tx(w, r, timeout)
}

// Level returns the select pin level addressing this radio.
func (c *Conn) Level() gpio.Level { return c.sel }
