// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pkt

// EventType identifies the kind of operation that triggered an event
// callback. Delivery is synchronous on the calling goroutine; a callback
// must not call back into the RingBuffer or Packet instance that invoked it.
type EventType uint8

const (
	EvtPreRead EventType = iota
	EvtPostRead
	EvtRead
	EvtPreWrite
	EvtPostWrite
	EvtWrite
	EvtPacket
	EvtTimeout
	EvtReset
)

func (t EventType) String() string {
	switch t {
	case EvtPreRead:
		return "pre-read"
	case EvtPostRead:
		return "post-read"
	case EvtRead:
		return "read"
	case EvtPreWrite:
		return "pre-write"
	case EvtPostWrite:
		return "post-write"
	case EvtWrite:
		return "write"
	case EvtPacket:
		return "packet"
	case EvtTimeout:
		return "timeout"
	case EvtReset:
		return "reset"
	default:
		return "unknown"
	}
}

// RingEventFunc is invoked by a RingBuffer after write, read, skip, advance
// or reset operations. n is the number of bytes actually processed by the
// operation (0 for reset). ctx is the value registered alongside the
// callback, handed back unchanged.
type RingEventFunc func(rb *RingBuffer, evt EventType, n int, ctx any)

// PacketEventFunc is invoked by a Packet for read/write/process operations.
type PacketEventFunc func(p *Packet, evt EventType)
