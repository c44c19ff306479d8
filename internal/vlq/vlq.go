// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package vlq implements the 7-bit variable-length quantity encoding used
// for packet lengths and, when extended addressing or flags are enabled,
// for addresses and the flags field.
//
// Encoding emits 7 data bits per byte, least-significant group first, with
// bit 7 set as a continuation marker on every emitted byte except the last.
// A value of zero still emits one byte.
package vlq

// MaxBytes32 is the maximum number of encoded bytes a decoder accepts for a
// 32-bit field before treating the stream as malformed (an overlong
// encoding).
const MaxBytes32 = 5

// Len returns the number of bytes Encode would emit for v.
func Len(v uint32) int {
	n := 0
	for {
		n++
		v >>= 7
		if v == 0 {
			break
		}
	}
	return n
}

// Encode appends the VLQ7 encoding of v to dst and returns the number of
// bytes written. dst must have room for Len(v) bytes.
func Encode(v uint32, dst []byte) int {
	n := 0
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		dst[n] = b
		n++
		if v == 0 {
			break
		}
	}
	return n
}

// Decoder accumulates a VLQ7 value one byte at a time.
type Decoder struct {
	acc   uint32
	index int
}

// Reset clears the decoder for a new field.
func (d *Decoder) Reset() { *d = Decoder{} }

// Push folds in the next wire byte. done reports whether this byte
// terminated the field (bit 7 clear). ok is false if the encoding has
// exceeded the maximum width for a 32-bit field; callers must treat that as
// a protocol error and must not call Push again without a Reset.
func (d *Decoder) Push(b byte) (done, ok bool) {
	if d.index >= MaxBytes32 {
		return false, false
	}
	d.acc |= uint32(b&0x7F) << (7 * uint(d.index))
	d.index++
	if b&0x80 == 0 {
		return true, true
	}
	return false, true
}

// Value returns the accumulated value so far.
func (d *Decoder) Value() uint32 { return d.acc }
