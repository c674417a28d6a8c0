// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package runner drives a node session: periodic uplinks carrying the battery level and a
// random byte, uplinks requested over MQTT, and the reporting of their outcome.
package runner

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/henriheimann/stm32-hal-rfm95/internal/bridge"
	"github.com/henriheimann/stm32-hal-rfm95/internal/metrics"
	"github.com/henriheimann/stm32-hal-rfm95/node"
	"github.com/henriheimann/stm32-hal-rfm95/varint"
)

// Node is the part of node.Session driven by the runner.
type Node interface {
	SendReceive(payload []byte) (*node.Downlink, error)
	Battery() byte
	Random(max byte) byte
	Counters() (tx, rx uint16)
}

// Publisher reports uplinks and downlinks, see bridge.Bridge.
type Publisher interface {
	PublishRx(d *node.Downlink) error
	PublishStatus(s bridge.Status) error
}

// Runner owns the session: all calls into it happen on the goroutine executing Run.
type Runner struct {
	Node     Node
	Pub      Publisher // optional
	Requests <-chan bridge.TxRequest
	Interval time.Duration // periodic uplinks, 0 disables them

	// Setup runs on the Run goroutine before the first uplink, e.g. to lock it to a
	// realtime thread.
	Setup func() error
}

// Payload returns the periodic uplink payload: battery level and a random byte, varint
// encoded.
func (r *Runner) Payload() []byte {
	return varint.Encode([]int{int(r.Node.Battery()), int(r.Node.Random(255))})
}

// Run sends uplinks until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	if r.Setup != nil {
		if err := r.Setup(); err != nil {
			log.WithError(err).Warning("runner: setup failed, continuing")
		}
	}
	tx, rx := r.Node.Counters()
	metrics.Counters(tx, rx)

	var tick <-chan time.Time
	if r.Interval > 0 {
		t := time.NewTicker(r.Interval)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
			r.Uplink(r.Payload())
		case req := <-r.Requests:
			r.Uplink(req.Payload)
		}
	}
}

// Uplink sends payload, opens the receive windows and reports the outcome.
func (r *Runner) Uplink(payload []byte) *node.Downlink {
	d, err := r.Node.SendReceive(payload)
	tx, rx := r.Node.Counters()
	metrics.Counters(tx, rx)

	st := bridge.Status{FCnt: tx, Size: len(payload), Downlink: d != nil, Time: time.Now().UTC().Format(time.RFC3339)}
	if err != nil {
		metrics.Failure(err)
		st.Error = err.Error()
		log.WithError(err).WithFields(log.Fields{
			"size":   len(payload),
			"reason": metrics.Reason(err),
		}).Error("runner: uplink failed")
	} else {
		metrics.Uplink()
		log.WithFields(log.Fields{
			"f_cnt": tx - 1,
			"size":  len(payload),
		}).Info("runner: uplink sent")
	}

	if d != nil {
		metrics.Downlink(d.Window)
		log.WithFields(log.Fields{
			"f_cnt":  d.FCnt,
			"f_port": d.FPort,
			"size":   len(d.Payload),
			"window": d.Window,
			"rssi":   d.Rssi,
			"snr":    d.Snr,
		}).Info("runner: downlink received")
	}

	if r.Pub == nil {
		return d
	}
	if d != nil {
		if err := r.Pub.PublishRx(d); err != nil {
			log.WithError(err).Error("runner: publish downlink error")
		}
	}
	if err := r.Pub.PublishStatus(st); err != nil {
		log.WithError(err).Error("runner: publish status error")
	}
	return d
}
