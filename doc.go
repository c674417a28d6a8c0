// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package rfm95 drives an SX1276-family (HopeRF RFM95) LoRa transceiver as a LoRaWAN
// end-device using activation by personalization.
//
// The root package holds the hardware capabilities the drivers consume, a timeout-bounded
// byte exchange on an SPI bus and a monotonic clock, together with adapters onto
// periph.io. The chip itself is handled by the sx1276 package, LoRaWAN framing and crypto
// by the lorawan package, counter persistence by the persist package and the transmit and
// receive duty cycle by the node package. Simple commands exercising a real radio can be
// found in the cmd directory tree.
package rfm95
