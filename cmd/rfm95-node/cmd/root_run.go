// Copyright (c) 2016 by Thorsten von Eicken, see LICENSE file for details

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/henriheimann/stm32-hal-rfm95/internal/bridge"
	"github.com/henriheimann/stm32-hal-rfm95/internal/config"
	"github.com/henriheimann/stm32-hal-rfm95/internal/metrics"
	"github.com/henriheimann/stm32-hal-rfm95/internal/runner"
	"github.com/henriheimann/stm32-hal-rfm95/internal/setup"
	"github.com/henriheimann/stm32-hal-rfm95/node"
	"github.com/henriheimann/stm32-hal-rfm95/thread"
)

var (
	hw      *setup.Hardware
	session *node.Session
	mq      *bridge.Bridge
	stop    = make(chan struct{})
)

func run(cmd *cobra.Command, args []string) error {
	tasks := []func() error{
		setLogLevel,
		printStartMessage,
		setupMetrics,
		setupRadio,
		setupSession,
		setupInterrupts,
		setupBridge,
	}

	for _, t := range tasks {
		if err := t(); err != nil {
			log.Fatal(err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- newRunner().Run(ctx) }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	log.WithField("signal", <-sigChan).Info("signal received")
	log.Warning("stopping rfm95-node")
	cancel()
	select {
	case <-done:
	case s := <-sigChan:
		log.WithField("signal", s).Info("signal received, stopping immediately")
	}

	close(stop)
	if mq != nil {
		mq.Close()
	}
	return hw.Close()
}

func setLogLevel() error {
	log.SetLevel(log.Level(uint8(config.C.General.LogLevel)))
	return nil
}

func printStartMessage() error {
	log.WithFields(log.Fields{
		"version":      version,
		"dev_addr":     config.C.LoRaWAN.DevAddr,
		"data_rate":    config.C.Radio.DataRate,
		"receive_mode": config.C.LoRaWAN.ReceiveMode,
		"store":        config.C.Store.Type,
	}).Info("starting rfm95-node")
	return nil
}

func setupMetrics() error {
	if err := metrics.Setup(config.C.Metrics.Bind); err != nil {
		return errors.Wrap(err, "setup metrics error")
	}
	return nil
}

func setupRadio() error {
	var err error
	hw, err = setup.Radio(config.C)
	if err != nil {
		return errors.Wrap(err, "setup radio error")
	}
	return nil
}

func setupSession() error {
	opts, err := setup.Options(config.C)
	if err != nil {
		return errors.Wrap(err, "setup session error")
	}
	opts.Pins = hw.Pins
	session = node.New(hw.Radio, opts)
	if err := session.Init(); err != nil {
		return errors.Wrap(err, "init session error")
	}
	tx, rx := session.Counters()
	log.WithFields(log.Fields{
		"tx_f_cnt": tx,
		"rx_f_cnt": rx,
		"channels": len(session.Plan().Enabled()),
	}).Info("session initialized")
	return nil
}

func setupInterrupts() error {
	if !config.C.Radio.Interrupts {
		return nil
	}
	if err := session.WatchInterrupts(stop); err != nil {
		return errors.Wrap(err, "setup interrupts error")
	}
	return nil
}

func setupBridge() error {
	if config.C.MQTT.Server == "" {
		return nil
	}
	var err error
	mq, err = bridge.New(bridge.Config{
		Server:      config.C.MQTT.Server,
		Username:    config.C.MQTT.Username,
		Password:    config.C.MQTT.Password,
		ClientID:    config.C.MQTT.ClientID,
		TopicPrefix: config.C.MQTT.TopicPrefix + "/" + config.C.LoRaWAN.DevAddr,
		QOS:         config.C.MQTT.QOS,
	})
	if err != nil {
		return errors.Wrap(err, "setup mqtt bridge error")
	}
	return nil
}

func newRunner() *runner.Runner {
	r := &runner.Runner{
		Node:     session,
		Interval: config.C.Node.Interval,
	}
	if mq != nil {
		r.Pub = mq
		r.Requests = mq.TxChan()
	}
	if config.C.Node.Realtime {
		r.Setup = func() error { return thread.Realtime(thread.DefaultPriority) }
	}
	return r
}
