// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pkt

import "sync/atomic"

// RingBuffer is a fixed-capacity, single-producer/single-consumer byte FIFO.
//
// One goroutine (or ISR-equivalent execution context) may call Write,
// Advance, and the producer-side accessors; a different goroutine may call
// Read, Skip, Peek, and the consumer-side accessors; both may call Free/Full
// concurrently with the other side. Reset, Skip, Advance, and Find are not
// safe against a concurrent operation on the opposite side — callers must
// quiesce the other side first.
//
// The buffer never exposes its full capacity: one byte of backing storage
// is always kept as a sentinel slot so that "empty" (w == r) and "full"
// ((w+1) % len(storage) == r) remain distinguishable without a separate
// counter. Usable capacity is therefore len(storage)-1 bytes.
type RingBuffer struct {
	buf []byte
	w   atomic.Uint32 // producer-owned write index, [0, len(buf))
	r   atomic.Uint32 // consumer-owned read index, [0, len(buf))

	evtFn  RingEventFunc
	evtCtx any
}

// NewRingBuffer wraps storage as a ring buffer. storage is used directly as
// backing memory (no copy, no allocation); it must not be modified by the
// caller afterward. Usable capacity is len(storage)-1 bytes.
func NewRingBuffer(storage []byte) (*RingBuffer, error) {
	if len(storage) < 2 {
		return nil, ErrInvalidArgument
	}
	return &RingBuffer{buf: storage}, nil
}

// SetEventCallback installs fn to be invoked after Write, Read, Skip,
// Advance, and Reset operations. Pass a nil fn to disable. ctx is an
// arbitrary value handed back to fn unchanged; it lets callers avoid
// relying on ambient state inside the callback.
func (rb *RingBuffer) SetEventCallback(fn RingEventFunc, ctx any) {
	rb.evtFn = fn
	rb.evtCtx = ctx
}

func (rb *RingBuffer) sendEvt(evt EventType, n int) {
	if rb.evtFn != nil {
		rb.evtFn(rb, evt, n, rb.evtCtx)
	}
}

// Free reports how many bytes can currently be written without overwriting
// unread data.
func (rb *RingBuffer) Free() int {
	size := uint32(len(rb.buf))
	w := rb.w.Load()
	r := rb.r.Load()
	var full uint32
	switch {
	case w == r:
		full = size
	case r > w:
		full = r - w
	default:
		full = size - (w - r)
	}
	return int(full - 1)
}

// Full reports how many bytes are currently available to read.
func (rb *RingBuffer) Full() int {
	size := uint32(len(rb.buf))
	w := rb.w.Load()
	r := rb.r.Load()
	switch {
	case w == r:
		return 0
	case w > r:
		return int(w - r)
	default:
		return int(size - (r - w))
	}
}

// Write copies up to len(src) bytes into the buffer and returns how many
// bytes were actually written (0 if the buffer is full). It never blocks.
func (rb *RingBuffer) Write(src []byte) int {
	if len(src) == 0 {
		return 0
	}
	btw := rb.Free()
	if btw > len(src) {
		btw = len(src)
	}
	if btw == 0 {
		return 0
	}
	size := len(rb.buf)
	w := int(rb.w.Load())

	tocopy := size - w
	if tocopy > btw {
		tocopy = btw
	}
	copy(rb.buf[w:w+tocopy], src[:tocopy])
	w += tocopy
	rem := btw - tocopy
	if rem > 0 {
		copy(rb.buf[0:rem], src[tocopy:btw])
		w = rem
	}
	if w >= size {
		w = 0
	}
	rb.w.Store(uint32(w))

	rb.sendEvt(EvtWrite, btw)
	return btw
}

// Read copies up to len(dst) bytes out of the buffer and returns how many
// bytes were actually read (0 if the buffer is empty). It never blocks.
func (rb *RingBuffer) Read(dst []byte) int {
	if len(dst) == 0 {
		return 0
	}
	btr := rb.Full()
	if btr > len(dst) {
		btr = len(dst)
	}
	if btr == 0 {
		return 0
	}
	size := len(rb.buf)
	r := int(rb.r.Load())

	tocopy := size - r
	if tocopy > btr {
		tocopy = btr
	}
	copy(dst[:tocopy], rb.buf[r:r+tocopy])
	r += tocopy
	rem := btr - tocopy
	if rem > 0 {
		copy(dst[tocopy:btr], rb.buf[0:rem])
		r = rem
	}
	if r >= size {
		r = 0
	}
	rb.r.Store(uint32(r))

	rb.sendEvt(EvtRead, btr)
	return btr
}

// Peek copies up to len(dst) bytes starting skip bytes after the current
// read position, without advancing it. It returns 0 if skip is at or past
// the number of readable bytes.
func (rb *RingBuffer) Peek(skip int, dst []byte) int {
	if len(dst) == 0 || skip < 0 {
		return 0
	}
	full := rb.Full()
	if skip >= full {
		return 0
	}
	size := len(rb.buf)
	r := int(rb.r.Load())
	r += skip
	full -= skip
	if r >= size {
		r -= size
	}

	btp := full
	if btp > len(dst) {
		btp = len(dst)
	}
	tocopy := size - r
	if tocopy > btp {
		tocopy = btp
	}
	copy(dst[:tocopy], rb.buf[r:r+tocopy])
	rem := btp - tocopy
	if rem > 0 {
		copy(dst[tocopy:btp], rb.buf[0:rem])
	}
	return btp
}

// Skip advances the read position by up to n bytes (clamped to the number
// of readable bytes) without copying anything out, as if that many bytes
// had been read and discarded. It reports the number of bytes skipped.
func (rb *RingBuffer) Skip(n int) int {
	if n <= 0 {
		return 0
	}
	full := rb.Full()
	if n > full {
		n = full
	}
	if n == 0 {
		return 0
	}
	size := len(rb.buf)
	r := int(rb.r.Load()) + n
	if r >= size {
		r -= size
	}
	rb.r.Store(uint32(r))
	rb.sendEvt(EvtRead, n)
	return n
}

// Advance moves the write position forward by up to n bytes (clamped to
// the number of free bytes) without copying anything in. It is meant for
// hardware (DMA) producers that write directly into the slice returned by
// LinearWritePtr and then report how much they wrote.
func (rb *RingBuffer) Advance(n int) int {
	if n <= 0 {
		return 0
	}
	free := rb.Free()
	if n > free {
		n = free
	}
	if n == 0 {
		return 0
	}
	size := len(rb.buf)
	w := int(rb.w.Load()) + n
	if w >= size {
		w -= size
	}
	rb.w.Store(uint32(w))
	rb.sendEvt(EvtWrite, n)
	return n
}

// LinearReadPtr returns the contiguous, readable region starting at the
// current read position, up to the end of the backing array (it does not
// wrap). Its length may be less than Full() or zero. The returned slice
// aliases the buffer's backing storage for zero-copy consumption; callers
// must call Skip to actually consume what they process.
func (rb *RingBuffer) LinearReadPtr() []byte {
	size := len(rb.buf)
	w := int(rb.w.Load())
	r := int(rb.r.Load())
	var n int
	switch {
	case w > r:
		n = w - r
	case r > w:
		n = size - r
	default:
		n = 0
	}
	return rb.buf[r : r+n]
}

// LinearWritePtr returns the contiguous, writable region starting at the
// current write position, up to the end of the backing array (it does not
// wrap). Its length may be less than Free() or zero. The returned slice
// aliases the buffer's backing storage for zero-copy production (e.g. DMA);
// callers must call Advance to actually publish what they produced.
func (rb *RingBuffer) LinearWritePtr() []byte {
	size := len(rb.buf)
	w := int(rb.w.Load())
	r := int(rb.r.Load())
	var n int
	if w >= r {
		n = size - w
		if r == 0 {
			n--
		}
	} else {
		n = r - w - 1
	}
	if n < 0 {
		n = 0
	}
	return rb.buf[w : w+n]
}

// Find searches for needle starting start bytes after the current read
// position and returns its offset relative to the read position, and
// whether it was found. Find is not safe against a concurrent operation on
// either side of the buffer.
func (rb *RingBuffer) Find(needle []byte, start int) (idx int, ok bool) {
	if len(needle) == 0 || start < 0 {
		return 0, false
	}
	size := len(rb.buf)
	full := rb.Full()
	if full < len(needle)+start {
		return 0, false
	}
	base := int(rb.r.Load())
	for skip := start; skip+len(needle) <= full; skip++ {
		r := base + skip
		if r >= size {
			r -= size
		}
		match := true
		for i := 0; i < len(needle); i++ {
			if rb.buf[r] != needle[i] {
				match = false
				break
			}
			r++
			if r >= size {
				r = 0
			}
		}
		if match {
			return skip, true
		}
	}
	return 0, false
}

// Reset clears both indices, discarding all buffered data. Not safe against
// a concurrent read or write.
func (rb *RingBuffer) Reset() {
	rb.w.Store(0)
	rb.r.Store(0)
	rb.sendEvt(EvtReset, 0)
}
