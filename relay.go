// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pkt

// Relay pumps decoded frames from one Packet to another, re-encoding each
// valid frame onto the destination's TX ring. It is the packet-oriented
// counterpart of a raw byte-stream forwarder: instead of copying bytes
// verbatim, it decodes, validates (CRC, STOP), and re-serialises, so a
// Relay sitting between two differently configured links (say, CRC-8 on
// one side and CRC-32 on the other) still produces well-formed frames on
// both sides.
type Relay struct {
	src *Packet
	dst *Packet
}

// NewRelay returns a Relay that decodes frames arriving on src and
// re-encodes them onto dst.
func NewRelay(src, dst *Packet) (*Relay, error) {
	if src == nil || dst == nil {
		return nil, ErrInvalidArgument
	}
	return &Relay{src: src, dst: dst}, nil
}

// Pump drives one decode attempt on the source (via Packet.Process, so
// inactivity timeouts apply) and, on a valid frame, re-encodes it onto the
// destination. The source's verdict is returned; a write failure on the
// destination is returned as the error alongside it.
func (r *Relay) Pump(t uint32) (Result, error) {
	res, err := r.src.Process(t)
	if res != ResultValid {
		return res, err
	}
	if _, werr := r.dst.Write(r.src.To(), r.src.Flags(), r.src.Cmd(), r.src.Data()); werr != nil {
		return res, werr
	}
	return res, nil
}
