// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package bridge connects a node to an MQTT broker: uplink requests come in on
// <prefix>/tx, downlinks go out on <prefix>/rx and the outcome of every uplink on
// <prefix>/status. All payloads are JSON.
package bridge

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/henriheimann/stm32-hal-rfm95/lorawan"
	"github.com/henriheimann/stm32-hal-rfm95/node"
)

// Config holds the broker settings.
type Config struct {
	Server      string
	Username    string
	Password    string
	ClientID    string
	TopicPrefix string
	QOS         uint8
}

// TxRequest asks for an uplink with the given application payload.
type TxRequest struct {
	Payload []byte `json:"payload"`
}

// RxEvent describes a downlink.
type RxEvent struct {
	FCnt     uint16 `json:"fCnt"`
	FPort    *uint8 `json:"fPort,omitempty"`
	Payload  []byte `json:"payload"`
	ACK      bool   `json:"ack"`
	FPending bool   `json:"fPending"`
	Window   int    `json:"window"`
	Rssi     int    `json:"rssi"`
	Snr      int    `json:"snr"`
}

// Status describes the outcome of an uplink.
type Status struct {
	FCnt     uint16 `json:"fCnt"` // tx counter after the uplink
	Size     int    `json:"size"`
	Downlink bool   `json:"downlink"`
	Error    string `json:"error,omitempty"`
	Time     string `json:"time"`
}

// publisher is the part of paho.Client used to publish.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// Bridge is a handle onto a broker connection.
type Bridge struct {
	conn   publisher
	client paho.Client
	config Config
	tx     chan TxRequest
}

// New connects to the broker. The connection re-establishes itself after a disconnect and
// the tx subscription is renewed on every connect.
func New(c Config) (*Bridge, error) {
	if c.ClientID == "" {
		hostname, _ := os.Hostname()
		c.ClientID = "rfm95-node-" + hostname
	}
	b := &Bridge{config: c, tx: make(chan TxRequest, 10)}

	opts := paho.NewClientOptions()
	opts.AddBroker(c.Server)
	opts.SetUsername(c.Username)
	opts.SetPassword(c.Password)
	opts.SetClientID(c.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(b.onConnected)
	opts.SetConnectionLostHandler(b.onConnectionLost)

	log.WithFields(log.Fields{
		"server":    c.Server,
		"client_id": c.ClientID,
		"prefix":    c.TopicPrefix,
	}).Info("bridge: connecting to mqtt broker")

	b.client = paho.NewClient(opts)
	b.conn = b.client
	if token := b.client.Connect(); !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		err := token.Error()
		if err == nil {
			err = errors.New("timeout")
		}
		return nil, errors.Wrap(err, "bridge: connect to mqtt broker")
	}
	return b, nil
}

// Close disconnects from the broker.
func (b *Bridge) Close() error {
	if b.client != nil {
		b.client.Disconnect(250)
	}
	return nil
}

// TxChan returns the uplink requests received from the broker.
func (b *Bridge) TxChan() <-chan TxRequest { return b.tx }

func (b *Bridge) topic(suffix string) string {
	return fmt.Sprintf("%s/%s", b.config.TopicPrefix, suffix)
}

func (b *Bridge) onConnected(c paho.Client) {
	topic := b.topic("tx")
	log.WithField("topic", topic).Info("bridge: connected to mqtt broker, subscribing")
	token := c.Subscribe(topic, b.config.QOS, func(c paho.Client, m paho.Message) {
		b.handleTx(m.Topic(), m.Payload())
	})
	if token.Wait() && token.Error() != nil {
		log.WithError(token.Error()).WithField("topic", topic).Error("bridge: subscribe error")
	}
}

func (b *Bridge) onConnectionLost(c paho.Client, err error) {
	log.WithError(err).Error("bridge: mqtt connection error")
}

// handleTx queues an uplink request, dropping it if the queue is full.
func (b *Bridge) handleTx(topic string, payload []byte) {
	var req TxRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		log.WithError(err).WithField("topic", topic).Error("bridge: cannot decode tx request")
		return
	}
	if len(req.Payload) > lorawan.MaxPayloadSize {
		log.WithFields(log.Fields{
			"topic": topic,
			"size":  len(req.Payload),
		}).Error("bridge: tx payload too large")
		return
	}
	select {
	case b.tx <- req:
	default:
		log.WithField("topic", topic).Warning("bridge: tx queue full, request dropped")
	}
}

func (b *Bridge) publish(suffix string, v interface{}) error {
	bb, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "bridge: marshal json")
	}
	topic := b.topic(suffix)
	if token := b.conn.Publish(topic, b.config.QOS, false, bb); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "bridge: publish to %s", topic)
	}
	return nil
}

// PublishRx publishes a downlink.
func (b *Bridge) PublishRx(d *node.Downlink) error {
	ev := RxEvent{
		FCnt:     d.FCnt,
		Payload:  d.Payload,
		ACK:      d.ACK,
		FPending: d.FPending,
		Window:   d.Window,
		Rssi:     d.Rssi,
		Snr:      d.Snr,
	}
	if d.HasPort {
		port := d.FPort
		ev.FPort = &port
	}
	return b.publish("rx", ev)
}

// PublishStatus publishes the outcome of an uplink.
func (b *Bridge) PublishStatus(s Status) error {
	return b.publish("status", s)
}
