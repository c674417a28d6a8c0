// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package varint implements the compact signed varint encoding used for application
// payloads: each value is zig-zag folded and written big-endian in 7-bit groups, the last
// byte of a value carrying the 0x80 stop bit.
//
// Reference: http://jeelabs.org/article/1620c/
package varint

import "github.com/pkg/errors"

// ErrTruncated is returned by Decode when the last value has no stop bit.
var ErrTruncated = errors.New("varint: truncated value")

// Append appends the encoding of vals to buf.
func Append(buf []byte, vals ...int) []byte {
	for _, v := range vals {
		if v == 0 {
			buf = append(buf, 0x80)
			continue
		}
		u := uint64(v << 1)
		if v < 0 {
			u = ^u
		}
		var temp [10]byte
		i := len(temp)
		for ; u != 0; u >>= 7 {
			i--
			temp[i] = byte(u & 0x7f)
		}
		temp[len(temp)-1] |= 0x80
		buf = append(buf, temp[i:]...)
	}
	return buf
}

// Encode encodes vals into a new buffer.
func Encode(vals []int) []byte { return Append([]byte{}, vals...) }

// Decode decodes buf into the values it holds.
func Decode(buf []byte) ([]int, error) {
	res := []int{}
	var val uint64
	for i, b := range buf {
		val = val<<7 | uint64(b&0x7f)
		if b&0x80 == 0 {
			if i == len(buf)-1 {
				return res, errors.Wrapf(ErrTruncated, "after %d values", len(res))
			}
			continue
		}
		if val&1 == 0 {
			res = append(res, int(val>>1))
		} else {
			res = append(res, int(^(val >> 1)))
		}
		val = 0
	}
	return res, nil
}
