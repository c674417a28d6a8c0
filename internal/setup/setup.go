// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package setup turns the configuration into the objects the commands run: the radio on
// its SPI port and pins, the session keys, the persistence store and the node options.
package setup

import (
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	rfm95 "github.com/henriheimann/stm32-hal-rfm95"
	"github.com/henriheimann/stm32-hal-rfm95/internal/config"
	"github.com/henriheimann/stm32-hal-rfm95/lorawan"
	"github.com/henriheimann/stm32-hal-rfm95/node"
	"github.com/henriheimann/stm32-hal-rfm95/persist"
	"github.com/henriheimann/stm32-hal-rfm95/spimux"
	"github.com/henriheimann/stm32-hal-rfm95/sx1276"
)

// Hardware is an opened radio.
type Hardware struct {
	Radio *sx1276.Radio
	Pins  node.Pins
	close func() error
}

// Close releases the SPI port.
func (h *Hardware) Close() error { return h.close() }

func pin(name string) (gpio.PinIO, error) {
	if name == "" {
		return nil, nil
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, errors.Errorf("cannot open pin %s", name)
	}
	return p, nil
}

// Radio initializes the host drivers and opens the radio described by c. The radio itself
// is not initialized.
func Radio(c config.Config) (*Hardware, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "host init error")
	}

	var pins [6]gpio.PinIO
	for i, name := range []string{c.Radio.NSSPin, c.Radio.ResetPin, c.Radio.DIO0Pin,
		c.Radio.DIO1Pin, c.Radio.DIO5Pin, c.Radio.CSMuxPin} {
		p, err := pin(name)
		if err != nil {
			return nil, err
		}
		pins[i] = p
	}
	nss, reset, dio0, dio1, dio5, mux := pins[0], pins[1], pins[2], pins[3], pins[4], pins[5]

	port, err := spireg.Open(c.Radio.SPIPort)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open SPI port %q", c.Radio.SPIPort)
	}
	bus, err := rfm95.Connect(port, physic.Frequency(c.Radio.SPISpeed)*physic.Hertz, nss != nil)
	if err != nil {
		port.Close()
		return nil, err
	}
	if mux != nil {
		bus = spimux.Select(bus, mux, gpio.Level(c.Radio.CSMuxValue))
	}

	opts := sx1276.RadioOpts{Logger: log.Debugf}
	if nss != nil {
		opts.NSS = nss
	}
	if reset != nil {
		opts.Reset = reset
	}
	h := &Hardware{Radio: sx1276.New(bus, opts), close: port.Close}
	if dio0 != nil {
		h.Pins.DIO0 = dio0
	}
	if dio1 != nil {
		h.Pins.DIO1 = dio1
	}
	if dio5 != nil {
		h.Pins.DIO5 = dio5
	}

	log.WithFields(log.Fields{
		"port":  port,
		"nss":   c.Radio.NSSPin,
		"reset": c.Radio.ResetPin,
		"mux":   c.Radio.CSMuxPin,
	}).Info("setup: radio opened")
	return h, nil
}

// Keys parses the ABP session keys.
func Keys(c config.Config) (lorawan.Keys, error) {
	var k lorawan.Keys
	var err error
	if k.DevAddr, err = lorawan.ParseDevAddr(c.LoRaWAN.DevAddr); err != nil {
		return k, errors.Wrap(err, "lorawan.dev_addr")
	}
	if k.NwkSKey, err = lorawan.ParseKey(c.LoRaWAN.NwkSKey); err != nil {
		return k, errors.Wrap(err, "lorawan.nwk_s_key")
	}
	if k.AppSKey, err = lorawan.ParseKey(c.LoRaWAN.AppSKey); err != nil {
		return k, errors.Wrap(err, "lorawan.app_s_key")
	}
	return k, nil
}

// Store returns the persistence store selected by store.type, nil for "none".
func Store(c config.Config, addr lorawan.DevAddr) (persist.Store, error) {
	switch strings.ToLower(c.Store.Type) {
	case "", "none":
		return nil, nil
	case "file":
		if c.Store.File == "" {
			return nil, errors.New("store.file must be set")
		}
		return persist.NewFileStore(c.Store.File), nil
	case "redis":
		opt, err := redis.ParseURL(c.Store.RedisURL)
		if err != nil {
			return nil, errors.Wrap(err, "redis url error")
		}
		return persist.NewRedisStore(redis.NewClient(opt), addr), nil
	}
	return nil, errors.Errorf("unknown store type %q", c.Store.Type)
}

// Options returns the node options described by c, without pins and clock.
func Options(c config.Config) (node.Options, error) {
	keys, err := Keys(c)
	if err != nil {
		return node.Options{}, err
	}
	mode, err := node.ParseReceiveMode(c.LoRaWAN.ReceiveMode)
	if err != nil {
		return node.Options{}, err
	}
	store, err := Store(c, keys.DevAddr)
	if err != nil {
		return node.Options{}, err
	}
	o := node.Options{
		Keys:         keys,
		Power:        c.Radio.Power,
		DataRate:     c.Radio.DataRate,
		RX2DataRate:  c.LoRaWAN.RX2DataRate,
		ReceiveMode:  mode,
		ExternalIRQs: c.Radio.Interrupts,
		Timing: node.RxTiming{
			RX1Delay:     c.LoRaWAN.RX1Delay,
			DriftNsPerS:  c.LoRaWAN.DriftNsPerS,
			MinRxSymbols: c.LoRaWAN.MinRxSymbols,
		},
		Logger: log.Debugf,
	}
	if store != nil {
		o.Store = store
	}
	return o, nil
}
