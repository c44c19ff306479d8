// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import "code.hybscloud.com/pkt"

// loopback is an in-memory stand-in for a serial port: writes to it land
// directly in its own read buffer, so pktcat can demo framing/decoding
// without any attached hardware.
type loopback struct {
	buf *pkt.RingBuffer
}

func newLoopback() *loopback {
	rb, err := pkt.NewRingBuffer(make([]byte, ringSize))
	if err != nil {
		panic(err) // ringSize is a compile-time constant >= 2
	}
	return &loopback{buf: rb}
}

func (l *loopback) Read(p []byte) (int, error) {
	n := l.buf.Read(p)
	if n == 0 {
		return 0, nil
	}
	return n, nil
}

func (l *loopback) Write(p []byte) (int, error) {
	return l.buf.Write(p), nil
}
