// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package metrics exposes the node counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	rfm95 "github.com/henriheimann/stm32-hal-rfm95"
	"github.com/henriheimann/stm32-hal-rfm95/node"
	"github.com/henriheimann/stm32-hal-rfm95/sx1276"
)

const reason = "reason"

var (
	uc = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rfm95_uplink_count",
		Help: "The number of uplinks transmitted.",
	})
	dc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rfm95_downlink_count",
		Help: "The number of authenticated downlinks received (per receive window).",
	}, []string{"window"})
	fc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rfm95_failure_count",
		Help: "The number of failed uplinks (per reason).",
	}, []string{reason})
	tg = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rfm95_tx_frame_counter",
		Help: "The uplink frame counter of the session.",
	})
	rg = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rfm95_rx_frame_counter",
		Help: "The next expected downlink frame counter of the session.",
	})
)

// Uplink counts a transmitted uplink.
func Uplink() { uc.Inc() }

// Downlink counts a downlink received in window (1 or 2).
func Downlink(window int) {
	w := "rx1"
	if window == 2 {
		w = "rx2"
	}
	dc.With(prometheus.Labels{"window": w}).Inc()
}

// Failure counts a failed uplink, labelled by the kind of err.
func Failure(err error) { fc.With(prometheus.Labels{reason: Reason(err)}).Inc() }

// Counters publishes the session frame counters.
func Counters(tx, rx uint16) {
	tg.Set(float64(tx))
	rg.Set(float64(rx))
}

// Reason classifies err for the failure counter.
func Reason(err error) string {
	var ioErr *sx1276.IOError
	switch {
	case errors.Is(err, node.ErrWakeupTimeout):
		return "wakeup_timeout"
	case errors.Is(err, node.ErrSendTimeout):
		return "send_timeout"
	case errors.Is(err, node.ErrReceiveTimeout):
		return "receive_timeout"
	case errors.Is(err, node.ErrNotInitialized):
		return "not_initialized"
	case rfm95.IsContractViolation(err):
		return "contract"
	case errors.As(err, &ioErr):
		return "bus"
	}
	return "other"
}

// Setup serves the metrics on bind, if set.
func Setup(bind string) error {
	if bind == "" {
		return nil
	}

	log.WithFields(log.Fields{
		"bind":     bind,
		"endpoint": "/metrics",
	}).Info("metrics: setting up metrics endpoint")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := http.Server{
		Handler: mux,
		Addr:    bind,
	}

	go func() {
		err := server.ListenAndServe()
		log.WithError(err).Error("metrics: metrics server error")
	}()

	return nil
}
