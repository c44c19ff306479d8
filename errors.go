// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pkt

import (
	"errors"

	"code.hybscloud.com/iox"
)

var (
	// ErrInvalidArgument reports a nil ring buffer, undersized storage, or
	// other misuse detectable without looking at wire bytes.
	ErrInvalidArgument = errors.New("pkt: invalid argument")

	// ErrMem reports that a frame could not be produced (not enough room in
	// the TX ring) or could not be received (a decoded length exceeds the
	// payload scratch buffer). Terminal; the decoder is fully reset before
	// this error is returned.
	ErrMem = errors.New("pkt: insufficient memory")

	// ErrCRC reports an integrity check failure on a received frame.
	// Terminal; the decoder is fully reset before this error is returned.
	ErrCRC = errors.New("pkt: crc mismatch")

	// ErrStop reports a missing or wrong STOP byte. Terminal; the decoder
	// is fully reset before this error is returned.
	ErrStop = errors.New("pkt: missing stop byte")

	// ErrProtocol reports that the decoder reached an unreachable state, or
	// an overlong variable-length field. Terminal.
	ErrProtocol = errors.New("pkt: protocol error")
)

// These are provided as package-level aliases so callers wiring a
// non-blocking transport directly into a RingBuffer don't need to import
// iox themselves.
var (
	// ErrWouldBlock means "no further progress without waiting". It is an
	// expected, non-failure control-flow signal for non-blocking transports
	// feeding a RingBuffer from outside the core (see cmd/pktcat).
	ErrWouldBlock = iox.ErrWouldBlock

	// ErrMore means "this completion is usable and more completions will
	// follow". Not io.EOF, not "try later".
	ErrMore = iox.ErrMore
)
