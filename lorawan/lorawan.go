// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package lorawan implements the LoRaWAN 1.0 data frame format as seen by an end-device
// activated by personalization: uplink assembly, downlink verification and the EU863-870
// channel plan.
//
// Encryption and integrity are delegated to a Cipher so that keys only ever travel as
// arguments of a single frame operation.
package lorawan

import (
	"encoding/hex"

	"github.com/pkg/errors"
)

// DevAddr is a device address as provisioned, most significant byte first. It goes over the
// air in the reverse order.
type DevAddr [4]byte

func (a DevAddr) String() string { return hex.EncodeToString(a[:]) }

// wire returns the address in frame byte order.
func (a DevAddr) wire() [4]byte { return [4]byte{a[3], a[2], a[1], a[0]} }

// ParseDevAddr decodes 8 hex digits.
func ParseDevAddr(s string) (DevAddr, error) {
	var a DevAddr
	err := parseHex(a[:], s)
	return a, errors.Wrap(err, "lorawan: dev addr")
}

// AES128Key is a network or application session key.
type AES128Key [16]byte

// String does not reveal the key.
func (k AES128Key) String() string { return "<aes128 key>" }

// ParseKey decodes 32 hex digits.
func ParseKey(s string) (AES128Key, error) {
	var k AES128Key
	err := parseHex(k[:], s)
	return k, errors.Wrap(err, "lorawan: key")
}

func parseHex(dst []byte, s string) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(b) != len(dst) {
		return errors.Errorf("need %d hex digits, got %d", 2*len(dst), len(s))
	}
	copy(dst, b)
	return nil
}

// Direction tells the crypto blocks which way a frame travels.
type Direction byte

const (
	DirUplink   Direction = 0
	DirDownlink Direction = 1
)

// Keys is the session of a device activated by personalization.
type Keys struct {
	DevAddr DevAddr
	NwkSKey AES128Key // integrity, and encryption of port 0
	AppSKey AES128Key // encryption of application ports
}
