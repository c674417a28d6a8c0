// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package lorawan

import (
	"crypto/aes"
	"encoding/binary"

	"github.com/jacobsa/crypto/cmac"
	"github.com/pkg/errors"
)

// Cipher is the cryptographic engine used to secure frames.
type Cipher interface {
	// Crypt encrypts or decrypts a FRMPayload in place.
	Crypt(key AES128Key, dir Direction, addr DevAddr, fcnt uint32, buf []byte) error
	// MIC computes the message integrity code over msg, which is MHDR through FRMPayload.
	MIC(key AES128Key, dir Direction, addr DevAddr, fcnt uint32, msg []byte) ([4]byte, error)
}

// AESCipher implements the LoRaWAN 1.0 AES-128 keystream and AES-CMAC integrity code.
type AESCipher struct{}

// block fills in the fields shared by the A_i and B_0 blocks.
func block(tag byte, dir Direction, addr DevAddr, fcnt uint32) [aes.BlockSize]byte {
	var b [aes.BlockSize]byte
	b[0] = tag
	b[5] = byte(dir)
	w := addr.wire()
	copy(b[6:10], w[:])
	binary.LittleEndian.PutUint32(b[10:14], fcnt)
	return b
}

func (AESCipher) Crypt(key AES128Key, dir Direction, addr DevAddr, fcnt uint32, buf []byte) error {
	if len(buf) > 255*aes.BlockSize {
		return errors.New("lorawan: payload too large to encrypt")
	}
	c, err := aes.NewCipher(key[:])
	if err != nil {
		return err
	}
	a := block(0x01, dir, addr, fcnt)
	var s [aes.BlockSize]byte
	for i := 0; i < len(buf); i += aes.BlockSize {
		a[15] = byte(i/aes.BlockSize + 1)
		c.Encrypt(s[:], a[:])
		for j := 0; j < aes.BlockSize && i+j < len(buf); j++ {
			buf[i+j] ^= s[j]
		}
	}
	return nil
}

func (AESCipher) MIC(key AES128Key, dir Direction, addr DevAddr, fcnt uint32, msg []byte) ([4]byte, error) {
	var mic [4]byte
	if len(msg) > 255 {
		return mic, errors.New("lorawan: message too large for MIC")
	}
	b0 := block(0x49, dir, addr, fcnt)
	b0[15] = byte(len(msg))

	hash, err := cmac.New(key[:])
	if err != nil {
		return mic, errors.Wrap(err, "lorawan: cmac")
	}
	hash.Write(b0[:])
	hash.Write(msg)
	copy(mic[:], hash.Sum(nil))
	return mic, nil
}
