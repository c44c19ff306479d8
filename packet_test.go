// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pkt

import (
	"bytes"
	"errors"
	"testing"

	"pgregory.net/rapid"
)

// newPair accepts both *testing.T and *rapid.T, so the property tests below
// can share it.
func newPair(t interface{ Fatal(args ...any) }, ringSize int, addr uint32, opts ...Option) (*Packet, *RingBuffer, *RingBuffer) {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}
	tx, err := NewRingBuffer(make([]byte, ringSize))
	if err != nil {
		t.Fatal(err)
	}
	rx, err := NewRingBuffer(make([]byte, ringSize))
	if err != nil {
		t.Fatal(err)
	}
	p, err := NewPacket(tx, rx, addr, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return p, tx, rx
}

// S1: encode classic-profile frame, verify wire layout, decode it back.
func TestS1_EncodeWireLayoutAndDecode(t *testing.T) {
	const ourAddr, destAddr, cmd = 0x12, 0x11, 0x85
	payload := []byte("Hello World\r\n")

	enc, tx, _ := newPair(t, 64, ourAddr, WithClassicProfile())
	res, err := enc.Write(destAddr, 0, cmd, payload)
	if res != ResultOK || err != nil {
		t.Fatalf("Write = %v,%v, want ResultOK,nil", res, err)
	}

	wire := make([]byte, tx.Full())
	tx.Read(wire)

	want := []byte{0xAA, ourAddr, destAddr, cmd, byte(len(payload))}
	want = append(want, payload...)
	if !bytes.HasPrefix(wire, want) {
		t.Fatalf("wire prefix = % X, want % X", wire[:len(want)], want)
	}
	if len(wire) != len(want)+1+1 { // +1 crc8 +1 stop
		t.Fatalf("wire length = %d, want %d", len(wire), len(want)+2)
	}
	if wire[len(wire)-1] != 0x55 {
		t.Fatalf("last byte = %#x, want 0x55", wire[len(wire)-1])
	}

	dec, _, rx := newPair(t, 64, destAddr, WithClassicProfile())
	rx.Write(wire)
	res, err = dec.Read()
	if res != ResultValid || err != nil {
		t.Fatalf("decode = %v,%v, want Valid,nil", res, err)
	}
	if dec.From() != ourAddr || dec.To() != destAddr || dec.Cmd() != cmd {
		t.Fatalf("decoded from=%d to=%d cmd=%d, want %d,%d,%d", dec.From(), dec.To(), dec.Cmd(), ourAddr, destAddr, cmd)
	}
	if !bytes.Equal(dec.Data(), payload) {
		t.Fatalf("decoded payload = %q, want %q", dec.Data(), payload)
	}
	if !dec.IsForMe() {
		t.Fatal("IsForMe() = false, want true")
	}
}

// S2: feed the encoded frame one byte at a time; only the final call
// returns Valid, every earlier call returns WaitData or InProgress.
func TestS2_ByteAtATimeChunking(t *testing.T) {
	enc, tx, _ := newPair(t, 64, 0x12, WithClassicProfile())
	enc.Write(0x11, 0, 0x85, []byte("Hello World\r\n"))
	wire := make([]byte, tx.Full())
	tx.Read(wire)

	dec, _, rx := newPair(t, 64, 0x11, WithClassicProfile())
	for i, b := range wire {
		rx.Write([]byte{b})
		res, err := dec.Read()
		if i < len(wire)-1 {
			if res != ResultWaitData && res != ResultInProgress {
				t.Fatalf("byte %d: res=%v, want WaitData or InProgress", i, res)
			}
		} else {
			if res != ResultValid || err != nil {
				t.Fatalf("final byte: res=%v err=%v, want Valid,nil", res, err)
			}
		}
	}
}

// S3: a corrupted payload byte yields ErrCrc; parser resets cleanly so a
// fresh valid frame immediately afterward still decodes.
func TestS3_CRCMismatchThenResync(t *testing.T) {
	enc, tx, _ := newPair(t, 128, 0x12, WithClassicProfile())
	enc.Write(0x11, 0, 0x85, []byte("Hello World\r\n"))
	wire := make([]byte, tx.Full())
	tx.Read(wire)

	corrupt := append([]byte(nil), wire...)
	corrupt[7] ^= 0x01 // flip LSB of a payload byte

	dec, _, rx := newPair(t, 128, 0x11, WithClassicProfile())
	rx.Write(corrupt)
	res, err := dec.Read()
	if res != ResultErrCRC || !errors.Is(err, ErrCRC) {
		t.Fatalf("corrupted frame: res=%v err=%v, want ErrCRC", res, err)
	}

	rx.Write(wire)
	res, err = dec.Read()
	if res != ResultValid || err != nil {
		t.Fatalf("resync frame: res=%v err=%v, want Valid,nil", res, err)
	}
}

// S4: a wrong STOP byte yields ErrStop.
func TestS4_BadStopByte(t *testing.T) {
	enc, tx, _ := newPair(t, 64, 0x12, WithClassicProfile())
	enc.Write(0x11, 0, 0x85, []byte("Hello World\r\n"))
	wire := make([]byte, tx.Full())
	tx.Read(wire)
	wire[len(wire)-1] = 0x00

	dec, _, rx := newPair(t, 64, 0x11, WithClassicProfile())
	rx.Write(wire)
	res, err := dec.Read()
	if res != ResultErrStop || !errors.Is(err, ErrStop) {
		t.Fatalf("res=%v err=%v, want ErrStop", res, err)
	}
}

// S5: a frame that can't fit in a small TX ring is refused with ErrMem and
// leaves the ring untouched.
func TestS5_EncodeOverflowRefusal(t *testing.T) {
	enc, tx, _ := newPair(t, 64, 0x12, WithClassicProfile(), WithMaxDataLen(256))
	payload := bytes.Repeat([]byte{0x42}, 256)
	res, err := enc.Write(0x11, 0, 0x85, payload)
	if res != ResultErrMem || !errors.Is(err, ErrMem) {
		t.Fatalf("res=%v err=%v, want ErrMem", res, err)
	}
	if tx.Full() != 0 {
		t.Fatalf("tx.Full() = %d, want 0 (untouched)", tx.Full())
	}
}

// S6: CRC-32 + extended addressing + flags round trip exactly.
func TestS6_NetworkedProfileRoundTrip(t *testing.T) {
	const from, to, flags, cmd = 0x12345678, 0x87654321, 0xACCE550F, 0x85
	payload := []byte("Hello World123456789\r\n")

	enc, tx, _ := newPair(t, 128, from, WithNetworkedProfile())
	res, err := enc.Write(to, flags, cmd, payload)
	if res != ResultOK || err != nil {
		t.Fatalf("Write = %v,%v", res, err)
	}
	wire := make([]byte, tx.Full())
	tx.Read(wire)

	dec, _, rx := newPair(t, 128, to, WithNetworkedProfile())
	rx.Write(wire)
	res, err = dec.Read()
	if res != ResultValid || err != nil {
		t.Fatalf("decode = %v,%v, want Valid,nil", res, err)
	}
	if dec.From() != from || dec.To() != to || dec.Cmd() != cmd || dec.Flags() != flags {
		t.Fatalf("decoded from=%#x to=%#x cmd=%#x flags=%#x, want %#x,%#x,%#x,%#x",
			dec.From(), dec.To(), dec.Cmd(), dec.Flags(), from, to, cmd, flags)
	}
	if !bytes.Equal(dec.Data(), payload) {
		t.Fatalf("decoded payload = %q, want %q", dec.Data(), payload)
	}
}

func TestPayloadCapResetsParser(t *testing.T) {
	enc, tx, _ := newPair(t, 512, 0x12, WithClassicProfile(), WithMaxDataLen(512))
	enc.Write(0x11, 0, 0x85, bytes.Repeat([]byte{0x7A}, 32))
	wire := make([]byte, tx.Full())
	tx.Read(wire)

	dec, _, rx := newPair(t, 512, 0x11, WithClassicProfile(), WithMaxDataLen(8))
	rx.Write(wire)
	res, err := dec.Read()
	if res != ResultErrMem || !errors.Is(err, ErrMem) {
		t.Fatalf("res=%v err=%v, want ErrMem", res, err)
	}

	enc2, tx2, _ := newPair(t, 512, 0x12, WithClassicProfile(), WithMaxDataLen(512))
	enc2.Write(0x11, 0, 0x85, []byte("ok"))
	wire2 := make([]byte, tx2.Full())
	tx2.Read(wire2)
	rx.Write(wire2)
	res, err = dec.Read()
	if res != ResultValid || err != nil {
		t.Fatalf("after oversized frame, res=%v err=%v, want Valid,nil", res, err)
	}
}

func TestProcessTimeout(t *testing.T) {
	dec, _, rx := newPair(t, 64, 0x11, WithClassicProfile(), WithInprogTimeout(50))
	rx.Write([]byte{0xAA, 0x12}) // start + from byte; frame left incomplete

	var timedOut bool
	dec.SetEventCallback(func(p *Packet, evt EventType) {
		if evt == EvtTimeout {
			timedOut = true
		}
	})

	// First call actually consumes the two buffered bytes, so it is not a
	// timeout candidate regardless of t: the link just produced data.
	res, _ := dec.Process(0)
	if res != ResultInProgress || timedOut {
		t.Fatalf("first Process = %v timedOut=%v, want InProgress,false", res, timedOut)
	}
	// No new bytes arrive from here on; the idle clock starts at t=0.
	res, _ = dec.Process(49)
	if res != ResultInProgress || timedOut {
		t.Fatalf("Process(49) = %v timedOut=%v, want InProgress,false", res, timedOut)
	}
	res, _ = dec.Process(50)
	if res != ResultInProgress || !timedOut {
		t.Fatalf("Process(50) = %v timedOut=%v, want InProgress,true", res, timedOut)
	}
	// The reset took effect for the next call: no data, no partial frame.
	res, _ = dec.Process(51)
	if res != ResultWaitData {
		t.Fatalf("Process(51) after timeout reset = %v, want WaitData", res)
	}
}

func TestProcessTimeout_WrapSafe(t *testing.T) {
	dec, _, rx := newPair(t, 64, 0x11, WithClassicProfile(), WithInprogTimeout(10))
	rx.Write([]byte{0xAA, 0x12})

	nearWrap := ^uint32(0) - 2 // a variable, so nearWrap+5 wraps at run time
	dec.Process(nearWrap)
	res, _ := dec.Process(nearWrap + 5) // wraps past zero to 2; unsigned subtraction still gives elapsed = 5
	if res != ResultInProgress {
		t.Fatalf("res=%v, want InProgress (elapsed < timeout across wrap)", res)
	}
}

func TestRelay_ForwardsValidFrames(t *testing.T) {
	srcTx, _ := NewRingBuffer(make([]byte, 128))
	srcRx, _ := NewRingBuffer(make([]byte, 128))
	src, err := NewPacket(srcTx, srcRx, 0x01, WithClassicProfile())
	if err != nil {
		t.Fatal(err)
	}

	dstTx, _ := NewRingBuffer(make([]byte, 128))
	dstRx, _ := NewRingBuffer(make([]byte, 128))
	dst, err := NewPacket(dstTx, dstRx, 0x01, WithNetworkedProfile())
	if err != nil {
		t.Fatal(err)
	}

	relay, err := NewRelay(src, dst)
	if err != nil {
		t.Fatal(err)
	}

	enc, encTx, _ := newPair(t, 128, 0x01, WithClassicProfile())
	enc.Write(0x02, 0, 0x85, []byte("relayed"))
	wire := make([]byte, encTx.Full())
	encTx.Read(wire)
	srcRx.Write(wire)

	res, err := relay.Pump(0)
	if res != ResultValid || err != nil {
		t.Fatalf("Pump = %v,%v, want Valid,nil", res, err)
	}

	out := make([]byte, dstTx.Full())
	dstTx.Read(out)

	verify, _, verifyRx := newPair(t, 128, 0x02, WithNetworkedProfile())
	verifyRx.Write(out)
	res, err = verify.Read()
	if res != ResultValid || err != nil {
		t.Fatalf("re-decode relayed frame = %v,%v, want Valid,nil", res, err)
	}
	if !bytes.Equal(verify.Data(), []byte("relayed")) {
		t.Fatalf("relayed payload = %q, want %q", verify.Data(), "relayed")
	}
}

// Property: for any valid configuration and message whose payload fits
// MAX_DATA_LEN, encode-then-decode recovers the exact fields, regardless
// of how the wire bytes are chunked across Read calls.
func TestRapid_EncodeDecodeRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		extended := rapid.Bool().Draw(t, "extended")
		useFlags := rapid.Bool().Draw(t, "useFlags")
		useCmd := rapid.Bool().Draw(t, "useCmd")
		crc32 := rapid.Bool().Draw(t, "crc32")

		var opts []Option
		if extended {
			opts = append(opts, WithExtendedAddressing())
		} else {
			opts = append(opts, WithAddressing())
		}
		if useFlags {
			opts = append(opts, WithFlags())
		} else {
			opts = append(opts, WithoutFlags())
		}
		if useCmd {
			opts = append(opts, WithCommand())
		} else {
			opts = append(opts, WithoutCommand())
		}
		if crc32 {
			opts = append(opts, WithCRC32())
		} else {
			opts = append(opts, WithCRC8())
		}

		var from, to uint32
		if extended {
			from = rapid.Uint32().Draw(t, "from")
			to = rapid.Uint32().Draw(t, "to")
		} else {
			from = uint32(rapid.IntRange(0, 255).Draw(t, "from"))
			to = uint32(rapid.IntRange(0, 255).Draw(t, "to"))
		}
		var flags uint32
		if useFlags {
			flags = rapid.Uint32().Draw(t, "flags")
		}
		var cmd uint8
		if useCmd {
			cmd = uint8(rapid.IntRange(0, 255).Draw(t, "cmd"))
		}
		payload := rapid.SliceOfN(rapid.Byte(), 0, 200).Draw(t, "payload")

		enc, tx, _ := newPair(t, 1024, from, opts...)
		res, err := enc.Write(to, flags, cmd, payload)
		if res != ResultOK || err != nil {
			t.Fatalf("Write = %v,%v", res, err)
		}
		wire := make([]byte, tx.Full())
		tx.Read(wire)

		// Chunk the wire bytes arbitrarily to exercise chunking invariance.
		chunkSizes := rapid.SliceOfN(rapid.IntRange(1, 7), 1, len(wire)+1).Draw(t, "chunks")

		dec, _, rx := newPair(t, 1024, to, opts...)
		var result Result
		pos := 0
		for _, cs := range chunkSizes {
			if pos >= len(wire) {
				break
			}
			end := pos + cs
			if end > len(wire) {
				end = len(wire)
			}
			rx.Write(wire[pos:end])
			pos = end
			result, err = dec.Read()
			if result == ResultValid {
				break
			}
			if err != nil {
				t.Fatalf("unexpected error mid-stream: %v", err)
			}
		}
		for result != ResultValid && pos < len(wire) {
			rx.Write(wire[pos : pos+1])
			pos++
			result, err = dec.Read()
		}

		if result != ResultValid || err != nil {
			t.Fatalf("final result=%v err=%v, want Valid,nil", result, err)
		}
		if dec.From() != from || dec.To() != to {
			t.Fatalf("from/to = %#x,%#x want %#x,%#x", dec.From(), dec.To(), from, to)
		}
		if useCmd && dec.Cmd() != cmd {
			t.Fatalf("cmd = %#x want %#x", dec.Cmd(), cmd)
		}
		if useFlags && dec.Flags() != flags {
			t.Fatalf("flags = %#x want %#x", dec.Flags(), flags)
		}
		if !bytes.Equal(dec.Data(), payload) {
			t.Fatalf("payload = %v want %v", dec.Data(), payload)
		}
	})
}

// Property: flipping any single bit in a payload byte (part of the
// CRC-covered region) of a valid frame is detected. CRC-32 must report
// ErrCRC for every flip; for CRC-8 the test accepts either ErrCRC or an
// undetected Valid.
func TestRapid_CRCSensitivity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		crc32 := rapid.Bool().Draw(t, "crc32")
		opt := WithCRC8()
		if crc32 {
			opt = WithCRC32()
		}
		payload := rapid.SliceOfN(rapid.Byte(), 1, 64).Draw(t, "payload")

		enc, tx, _ := newPair(t, 512, 0x01, WithClassicProfile(), opt)
		enc.Write(0x02, 0, 0x55, payload)
		wire := make([]byte, tx.Full())
		tx.Read(wire)

		// CRC-covered region is everything between START and the CRC field:
		// addr(2) + cmd(1) + len-byte(s) + payload. Flip a bit in the
		// payload, which is always covered.
		flipIdx := 5 + rapid.IntRange(0, len(payload)-1).Draw(t, "flipIdx")
		flipBit := uint(rapid.IntRange(0, 7).Draw(t, "flipBit"))
		corrupt := append([]byte(nil), wire...)
		corrupt[flipIdx] ^= 1 << flipBit

		dec, _, rx := newPair(t, 512, 0x02, WithClassicProfile(), opt)
		rx.Write(corrupt)
		res, err := dec.Read()
		if crc32 {
			if res != ResultErrCRC {
				t.Fatalf("CRC-32: res=%v, want ErrCRC for every single-bit flip", res)
			}
		} else if res != ResultErrCRC && res != ResultValid {
			t.Fatalf("CRC-8: res=%v, want ErrCRC or (rarely) an undetected Valid", res)
		}
		_ = err
	})
}

// Property: arbitrary prefix garbage (never containing a byte equal to
// 0xAA by construction) followed by a valid frame still decodes.
func TestRapid_ResyncAfterGarbage(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		garbage := rapid.SliceOfN(rapid.IntRange(0, 254), 0, 40).Draw(t, "garbage")
		payload := rapid.SliceOfN(rapid.Byte(), 0, 32).Draw(t, "payload")

		enc, tx, _ := newPair(t, 256, 0x01, WithClassicProfile())
		enc.Write(0x02, 0, 0x11, payload)
		wire := make([]byte, tx.Full())
		tx.Read(wire)

		stream := make([]byte, 0, len(garbage)+len(wire))
		for _, g := range garbage {
			b := byte(g)
			if b == 0xAA { // must not contain a spurious START byte
				b = 0x00
			}
			stream = append(stream, b)
		}
		stream = append(stream, wire...)

		dec, _, rx := newPair(t, 256+64, 0x02, WithClassicProfile())
		rx.Write(stream)
		var res Result
		var err error
		for {
			res, err = dec.Read()
			if res == ResultValid || (err != nil && res != ResultInProgress) {
				break
			}
			if rx.Full() == 0 {
				break
			}
		}
		if res != ResultValid || err != nil {
			t.Fatalf("res=%v err=%v, want Valid,nil after %d garbage bytes", res, err, len(garbage))
		}
		if !bytes.Equal(dec.Data(), payload) {
			t.Fatalf("payload = %v want %v", dec.Data(), payload)
		}
	})
}
