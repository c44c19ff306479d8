// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vlq

import "testing"

func decodeAll(t *testing.T, bs []byte) (uint32, bool) {
	t.Helper()
	var d Decoder
	for i, b := range bs {
		done, ok := d.Push(b)
		if !ok {
			return 0, false
		}
		if done {
			return d.Value(), true
		}
		if i == len(bs)-1 {
			t.Fatalf("ran out of bytes before a terminal byte")
		}
	}
	return 0, false
}

func TestRoundTrip(t *testing.T) {
	cases := []uint32{0, 1, 63, 127, 128, 16383, 16384, 2097151, 2097152, 0xFFFFFFFF}
	for _, v := range cases {
		var buf [MaxBytes32]byte
		n := Encode(v, buf[:])
		if n != Len(v) {
			t.Fatalf("Encode(%d) wrote %d bytes, Len says %d", v, n, Len(v))
		}
		got, ok := decodeAll(t, buf[:n])
		if !ok {
			t.Fatalf("decode failed for %d", v)
		}
		if got != v {
			t.Fatalf("round trip %d -> %v -> %d", v, buf[:n], got)
		}
	}
}

func TestZeroIsOneByte(t *testing.T) {
	if got := Len(0); got != 1 {
		t.Fatalf("Len(0) = %d, want 1", got)
	}
	var buf [MaxBytes32]byte
	n := Encode(0, buf[:])
	if n != 1 || buf[0] != 0x00 {
		t.Fatalf("Encode(0) = %v, want [0x00]", buf[:n])
	}
}

func TestMaxIsFiveBytes(t *testing.T) {
	if got := Len(0xFFFFFFFF); got != MaxBytes32 {
		t.Fatalf("Len(max uint32) = %d, want %d", got, MaxBytes32)
	}
}

func TestContinuationBitOnAllButLast(t *testing.T) {
	var buf [MaxBytes32]byte
	n := Encode(16384, buf[:]) // 3 bytes: 0x80, 0x80, 0x01
	if n != 3 {
		t.Fatalf("Encode(16384) wrote %d bytes, want 3", n)
	}
	for i := 0; i < n-1; i++ {
		if buf[i]&0x80 == 0 {
			t.Fatalf("byte %d missing continuation bit: %#x", i, buf[i])
		}
	}
	if buf[n-1]&0x80 != 0 {
		t.Fatalf("last byte has continuation bit set: %#x", buf[n-1])
	}
}

func TestOverlongEncodingRejected(t *testing.T) {
	var d Decoder
	// Six continuation bytes in a row exceed MaxBytes32 (5) before a
	// terminal byte ever appears.
	for i := 0; i < MaxBytes32; i++ {
		done, ok := d.Push(0x80)
		if done || !ok {
			t.Fatalf("byte %d: done=%v ok=%v, want false,true", i, done, ok)
		}
	}
	_, ok := d.Push(0x80)
	if ok {
		t.Fatalf("6th continuation byte should be rejected as overlong")
	}
}

func TestResetAllowsReuse(t *testing.T) {
	var d Decoder
	d.Push(0x80)
	d.Push(0x01)
	d.Reset()
	done, ok := d.Push(0x05)
	if !done || !ok || d.Value() != 5 {
		t.Fatalf("after Reset, Push(5) = done=%v ok=%v value=%d, want true,true,5", done, ok, d.Value())
	}
}
