// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pkt

import (
	"code.hybscloud.com/pkt/internal/crc"
	"code.hybscloud.com/pkt/internal/vlq"
)

const (
	startByte byte = 0xAA
	stopByte  byte = 0x55
)

// state identifies where the decoder is within a single frame.
type state uint8

const (
	stateStart state = iota
	stateFrom
	stateTo
	stateFlags
	stateCmd
	stateLen
	stateData
	stateCrc
	stateStop
)

// Result is the verdict of a decode or encode operation.
type Result uint8

const (
	// ResultWaitData means no START byte has been seen yet; the RX ring is
	// either empty or holds only noise ahead of the next frame.
	ResultWaitData Result = iota
	// ResultInProgress means a frame is partway through decoding; more
	// bytes are needed to reach a terminal verdict.
	ResultInProgress
	// ResultValid means a complete frame was decoded and its fields are
	// available via From, To, Cmd, Flags, Data and DataLen. From, To, Cmd,
	// Flags and DataLen keep their values until the next ResultValid; the
	// bytes behind Data are overwritten as soon as a later frame's payload
	// starts arriving.
	ResultValid
	// ResultOK means an encode operation completed; it never comes from
	// Read or Process.
	ResultOK
	// ResultErr means the decoder reached an unreachable state or an
	// overlong variable-length field.
	ResultErr
	// ResultErrMem means a received length exceeds the payload buffer, or
	// an encode could not fit the TX ring.
	ResultErrMem
	// ResultErrCRC means the trailing integrity check did not match.
	ResultErrCRC
	// ResultErrStop means the byte following the integrity check (or the
	// payload, when CRC is disabled) was not the STOP byte.
	ResultErrStop
)

func (r Result) String() string {
	switch r {
	case ResultWaitData:
		return "wait-data"
	case ResultInProgress:
		return "in-progress"
	case ResultValid:
		return "valid"
	case ResultOK:
		return "ok"
	case ResultErr:
		return "error"
	case ResultErrMem:
		return "error-mem"
	case ResultErrCRC:
		return "error-crc"
	case ResultErrStop:
		return "error-stop"
	default:
		return "unknown"
	}
}

const (
	flagAddr uint8 = 1 << iota
	flagAddrExtended
	flagFlags
	flagCmd
	flagCRC
	flagCRC32
)

func initialFlags(cfg Config) uint8 {
	var f uint8
	if cfg.UseAddr {
		f |= flagAddr
	}
	if cfg.AddrExtended {
		f |= flagAddrExtended
	}
	if cfg.UseFlags {
		f |= flagFlags
	}
	if cfg.UseCmd {
		f |= flagCmd
	}
	if cfg.UseCRC {
		f |= flagCRC
	}
	if cfg.CRC32 {
		f |= flagCRC32
	}
	return f
}

func setFlag(flags *uint8, bit uint8, enable bool) {
	if enable {
		*flags |= bit
	} else {
		*flags &^= bit
	}
}

// parserState is the decoder's in-progress scratch state. It is fully
// zeroed on every terminal verdict (Valid, or any Err*), so fields read
// through it never leak between frames.
type parserState struct {
	state state

	crc8    crc.CRC8
	crc32   crc.CRC32
	crcData uint32

	from, to uint32
	flags    uint32
	cmd      uint8
	length   int
	index    int

	vlq vlq.Decoder
}

// Packet decodes and encodes frames against a pair of ring buffers: rx is
// fed by a transport and drained by Read/Process; tx is filled by Write and
// drained toward a transport. A single Packet is not safe for concurrent
// use by more than one decoding goroutine and one encoding goroutine at a
// time — the same restriction as the underlying RingBuffers.
type Packet struct {
	tx, rx *RingBuffer
	cfg    Config

	addr  uint32 // local device address, compared against To() for IsForMe
	flags uint8  // runtime dynamic-feature bits, see Set*Enabled

	lastRxTime uint32

	evtFn PacketEventFunc

	data []byte // payload scratch buffer, capacity cfg.MaxDataLen

	hasValid    bool
	lastFrom    uint32
	lastTo      uint32
	lastCmd     uint8
	lastFlags   uint32
	lastDataLen int

	m parserState
}

// NewPacket constructs a Packet reading from rx and writing to tx, for a
// device at localAddr. Options configure the wire-format feature set;
// without any, the defaults match the reference library (addressing +
// command + CRC-8, non-extended, no flags, 256-byte payload cap).
func NewPacket(tx, rx *RingBuffer, localAddr uint32, opts ...Option) (*Packet, error) {
	if tx == nil || rx == nil {
		return nil, ErrInvalidArgument
	}
	cfg := defaultConfig
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.MaxDataLen <= 0 {
		return nil, ErrInvalidArgument
	}
	p := &Packet{
		tx:    tx,
		rx:    rx,
		cfg:   cfg,
		addr:  localAddr,
		flags: initialFlags(cfg),
		data:  make([]byte, cfg.MaxDataLen),
	}
	return p, nil
}

// SetEventCallback installs fn to be invoked around Read/Write/Process
// operations. Pass nil to disable.
func (p *Packet) SetEventCallback(fn PacketEventFunc) { p.evtFn = fn }

func (p *Packet) sendEvt(evt EventType) {
	if p.evtFn != nil {
		p.evtFn(p, evt)
	}
}

// SetAddr changes the local device address used by IsForMe.
func (p *Packet) SetAddr(addr uint32) { p.addr = addr }

// Addr returns the local device address.
func (p *Packet) Addr() uint32 { return p.addr }

// Reset discards any partially decoded frame and returns the decoder to
// stateStart. It does not affect the last successfully decoded frame's
// fields, nor pending TX data.
func (p *Packet) Reset() { p.resetFrame() }

func (p *Packet) resetFrame() { p.m = parserState{} }

// --- feature gating -------------------------------------------------------

func (p *Packet) addrEnabled() bool {
	if p.cfg.DynamicAddr {
		return p.flags&flagAddr != 0
	}
	return p.cfg.UseAddr
}

func (p *Packet) addrExtendedEnabled() bool {
	if p.cfg.DynamicAddrExtended {
		return p.flags&flagAddrExtended != 0
	}
	return p.cfg.AddrExtended
}

func (p *Packet) flagsEnabled() bool {
	if p.cfg.DynamicFlags {
		return p.flags&flagFlags != 0
	}
	return p.cfg.UseFlags
}

func (p *Packet) cmdEnabled() bool {
	if p.cfg.DynamicCmd {
		return p.flags&flagCmd != 0
	}
	return p.cfg.UseCmd
}

func (p *Packet) crcEnabled() bool {
	if p.cfg.DynamicCRC {
		return p.flags&flagCRC != 0
	}
	return p.cfg.UseCRC
}

func (p *Packet) crc32Enabled() bool {
	if p.cfg.DynamicCRC32 {
		return p.flags&flagCRC32 != 0
	}
	return p.cfg.CRC32
}

// SetAddrEnabled toggles address-field presence at runtime. A no-op unless
// the instance was configured with WithDynamicAddr.
func (p *Packet) SetAddrEnabled(enable bool) {
	if p.cfg.DynamicAddr {
		setFlag(&p.flags, flagAddr, enable)
	}
}

// SetAddrExtendedEnabled toggles VLQ7 vs. fixed-byte addressing at runtime.
// A no-op unless the instance was configured with WithDynamicAddrExtended.
func (p *Packet) SetAddrExtendedEnabled(enable bool) {
	if p.cfg.DynamicAddrExtended {
		setFlag(&p.flags, flagAddrExtended, enable)
	}
}

// SetFlagsEnabled toggles flags-field presence at runtime. A no-op unless
// the instance was configured with WithDynamicFlags.
func (p *Packet) SetFlagsEnabled(enable bool) {
	if p.cfg.DynamicFlags {
		setFlag(&p.flags, flagFlags, enable)
	}
}

// SetCmdEnabled toggles command-byte presence at runtime. A no-op unless
// the instance was configured with WithDynamicCmd.
func (p *Packet) SetCmdEnabled(enable bool) {
	if p.cfg.DynamicCmd {
		setFlag(&p.flags, flagCmd, enable)
	}
}

// SetCRCEnabled toggles integrity-check presence at runtime. A no-op unless
// the instance was configured with WithDynamicCRC.
func (p *Packet) SetCRCEnabled(enable bool) {
	if p.cfg.DynamicCRC {
		setFlag(&p.flags, flagCRC, enable)
	}
}

// SetCRC32Enabled toggles CRC-8 vs. CRC-32 at runtime. A no-op unless the
// instance was configured with WithDynamicCRC32.
func (p *Packet) SetCRC32Enabled(enable bool) {
	if p.cfg.DynamicCRC32 {
		setFlag(&p.flags, flagCRC32, enable)
	}
}

// --- accessors -------------------------------------------------------------

// From returns the source address of the last decoded frame. Meaningful
// only once a ResultValid has been observed.
func (p *Packet) From() uint32 { return p.lastFrom }

// To returns the destination address of the last decoded frame.
func (p *Packet) To() uint32 { return p.lastTo }

// Cmd returns the command byte of the last decoded frame.
func (p *Packet) Cmd() uint8 { return p.lastCmd }

// Flags returns the flags field of the last decoded frame.
func (p *Packet) Flags() uint32 { return p.lastFlags }

// Data returns the payload of the last decoded frame. The returned slice
// aliases the Packet's internal scratch buffer and is only valid until the
// next Read/Process call makes progress.
func (p *Packet) Data() []byte { return p.data[:p.lastDataLen] }

// DataLen returns the payload length of the last decoded frame.
func (p *Packet) DataLen() int { return p.lastDataLen }

// IsForMe reports whether the last decoded frame's destination matches
// Addr. False if no frame has been decoded yet.
func (p *Packet) IsForMe() bool { return p.hasValid && p.lastTo == p.addr }

// IsBroadcast reports whether the last decoded frame's destination is the
// configured broadcast address. False if no frame has been decoded yet.
func (p *Packet) IsBroadcast() bool { return p.hasValid && p.lastTo == p.cfg.Broadcast }

// --- CRC helpers ------------------------------------------------------------

func (p *Packet) initCRC() {
	if !p.crcEnabled() {
		return
	}
	if p.crc32Enabled() {
		p.m.crc32.Reset()
	} else {
		p.m.crc8 = crc.CRC8{}
	}
}

func (p *Packet) crcUpdate(b byte) {
	if !p.crcEnabled() {
		return
	}
	if p.crc32Enabled() {
		p.m.crc32.Update(b)
	} else {
		p.m.crc8.Update(b)
	}
}

func (p *Packet) crcWidth() int {
	if p.crc32Enabled() {
		return 4
	}
	return 1
}

func (p *Packet) crcSum() uint32 {
	if p.crc32Enabled() {
		return p.m.crc32.Sum()
	}
	return uint32(p.m.crc8.Sum())
}

// --- decoder ----------------------------------------------------------------

// nextState computes the state to move to after cur has been fully
// consumed, walking From->Flags->Cmd->Len in order and skipping whichever
// of those fields are currently disabled. Falling through an unconditional
// chain mirrors the field-order walk described for the wire format: each
// case either returns the next enabled state or falls into the check for
// the state after it.
func (p *Packet) nextState(cur state) state {
	switch cur {
	case stateStart:
		if p.addrEnabled() {
			return stateFrom
		}
		fallthrough
	case stateTo:
		if p.flagsEnabled() {
			return stateFlags
		}
		fallthrough
	case stateFlags:
		if p.cmdEnabled() {
			return stateCmd
		}
		fallthrough
	case stateCmd:
		return stateLen
	case stateLen:
		if p.m.length > 0 {
			return stateData
		}
		fallthrough
	case stateData:
		if p.crcEnabled() {
			return stateCrc
		}
		fallthrough
	case stateCrc:
		return stateStop
	case stateFrom:
		return stateTo
	default:
		return stateStop
	}
}

// step folds one byte into the decoder. terminal reports whether result/err
// are a final verdict for the frame in progress.
func (p *Packet) step(b byte) (result Result, err error, terminal bool) {
	switch p.m.state {
	case stateStart:
		if b == startByte {
			p.resetFrame()
			p.initCRC()
			p.m.state = p.nextState(stateStart)
		}
		return 0, nil, false

	case stateFrom:
		p.crcUpdate(b)
		if p.addrExtendedEnabled() {
			done, ok := p.m.vlq.Push(b)
			if !ok {
				p.resetFrame()
				return ResultErr, ErrProtocol, true
			}
			if !done {
				return 0, nil, false
			}
			p.m.from = p.m.vlq.Value()
			p.m.vlq.Reset()
		} else {
			p.m.from = uint32(b)
		}
		p.m.state = stateTo
		return 0, nil, false

	case stateTo:
		p.crcUpdate(b)
		if p.addrExtendedEnabled() {
			done, ok := p.m.vlq.Push(b)
			if !ok {
				p.resetFrame()
				return ResultErr, ErrProtocol, true
			}
			if !done {
				return 0, nil, false
			}
			p.m.to = p.m.vlq.Value()
			p.m.vlq.Reset()
		} else {
			p.m.to = uint32(b)
		}
		p.m.state = p.nextState(stateTo)
		return 0, nil, false

	case stateFlags:
		p.crcUpdate(b)
		done, ok := p.m.vlq.Push(b)
		if !ok {
			p.resetFrame()
			return ResultErr, ErrProtocol, true
		}
		if !done {
			return 0, nil, false
		}
		p.m.flags = p.m.vlq.Value()
		p.m.vlq.Reset()
		p.m.state = p.nextState(stateFlags)
		return 0, nil, false

	case stateCmd:
		p.crcUpdate(b)
		p.m.cmd = b
		p.m.state = p.nextState(stateCmd)
		return 0, nil, false

	case stateLen:
		p.crcUpdate(b)
		done, ok := p.m.vlq.Push(b)
		if !ok {
			p.resetFrame()
			return ResultErr, ErrProtocol, true
		}
		if !done {
			return 0, nil, false
		}
		p.m.length = int(p.m.vlq.Value())
		p.m.vlq.Reset()
		p.m.state = p.nextState(stateLen)
		return 0, nil, false

	case stateData:
		if p.m.index >= len(p.data) {
			p.resetFrame()
			return ResultErrMem, ErrMem, true
		}
		p.data[p.m.index] = b
		p.m.index++
		p.crcUpdate(b)
		if p.m.index == p.m.length {
			p.m.state = p.nextState(stateData)
			p.m.index = 0
		}
		return 0, nil, false

	case stateCrc:
		width := p.crcWidth()
		if p.m.index < width {
			p.m.crcData |= uint32(b) << (8 * uint(p.m.index))
			p.m.index++
		}
		if p.m.index < width {
			return 0, nil, false
		}
		if p.crcSum() != p.m.crcData {
			p.resetFrame()
			return ResultErrCRC, ErrCRC, true
		}
		p.m.state = stateStop
		p.m.index = 0
		return 0, nil, false

	case stateStop:
		if b == stopByte {
			p.lastFrom = p.m.from
			p.lastTo = p.m.to
			p.lastCmd = p.m.cmd
			p.lastFlags = p.m.flags
			p.lastDataLen = p.m.length
			p.hasValid = true
			p.resetFrame()
			return ResultValid, nil, true
		}
		p.resetFrame()
		return ResultErrStop, ErrStop, true

	default:
		p.resetFrame()
		return ResultErr, ErrProtocol, true
	}
}

// Read drains whatever is currently available on the RX ring, advancing
// the decoder one byte at a time, and returns as soon as a terminal
// verdict is reached or the ring runs dry. It never blocks.
func (p *Packet) Read() (Result, error) {
	res, err, _ := p.readAndTrack()
	return res, err
}

// readAndTrack is Read's implementation, additionally reporting whether
// any byte was actually consumed from rx this call. Process uses that to
// distinguish "stuck with no new data" (a timeout candidate) from "still
// working through freshly arrived bytes" (not a timeout candidate, even
// if the verdict is InProgress).
func (p *Packet) readAndTrack() (result Result, err error, consumed bool) {
	p.sendEvt(EvtPreRead)

	var buf [1]byte
	for p.rx.Read(buf[:]) == 1 {
		consumed = true
		res, err, terminal := p.step(buf[0])
		if terminal {
			p.sendEvt(EvtPostRead)
			p.sendEvt(EvtRead)
			return res, err, consumed
		}
	}

	p.sendEvt(EvtPostRead)
	if consumed {
		p.sendEvt(EvtRead)
	}
	if p.m.state == stateStart {
		return ResultWaitData, nil, consumed
	}
	return ResultInProgress, nil, consumed
}

// --- encoder ----------------------------------------------------------------

func (p *Packet) minMem(to uint32, flags uint32, payloadLen int) int {
	n := 2 // start + stop
	if p.addrEnabled() {
		if p.addrExtendedEnabled() {
			n += vlq.Len(p.addr) + vlq.Len(to)
		} else {
			n += 2
		}
	}
	if p.flagsEnabled() {
		n += vlq.Len(flags)
	}
	if p.cmdEnabled() {
		n++
	}
	n += vlq.Len(uint32(payloadLen))
	n += payloadLen
	if p.crcEnabled() {
		n += p.crcWidth()
	}
	return n
}

// Write serialises a frame (to, flags, cmd, payload) into the TX ring.
// Fields disabled by configuration are accepted but not placed on the
// wire. The write is atomic: either the whole frame fits, or nothing is
// written and ErrMem is returned.
func (p *Packet) Write(to uint32, flags uint32, cmd uint8, payload []byte) (Result, error) {
	p.sendEvt(EvtPreWrite)

	need := p.minMem(to, flags, len(payload))
	if p.tx.Free() < need {
		p.sendEvt(EvtPostWrite)
		return ResultErrMem, ErrMem
	}

	frame := make([]byte, 0, need)
	frame = append(frame, startByte)

	var c8 crc.CRC8
	var c32 crc.CRC32
	if p.crc32Enabled() {
		c32.Reset()
	}
	put := func(bs ...byte) {
		frame = append(frame, bs...)
		if !p.crcEnabled() {
			return
		}
		for _, b := range bs {
			if p.crc32Enabled() {
				c32.Update(b)
			} else {
				c8.Update(b)
			}
		}
	}

	if p.addrEnabled() {
		if p.addrExtendedEnabled() {
			var tmp [vlq.MaxBytes32]byte
			n := vlq.Encode(p.addr, tmp[:])
			put(tmp[:n]...)
			n = vlq.Encode(to, tmp[:])
			put(tmp[:n]...)
		} else {
			put(byte(p.addr), byte(to))
		}
	}
	if p.flagsEnabled() {
		var tmp [vlq.MaxBytes32]byte
		n := vlq.Encode(flags, tmp[:])
		put(tmp[:n]...)
	}
	if p.cmdEnabled() {
		put(cmd)
	}
	{
		var tmp [vlq.MaxBytes32]byte
		n := vlq.Encode(uint32(len(payload)), tmp[:])
		put(tmp[:n]...)
	}
	if len(payload) > 0 {
		put(payload...)
	}
	if p.crcEnabled() {
		var sum uint32
		if p.crc32Enabled() {
			sum = c32.Sum()
		} else {
			sum = uint32(c8.Sum())
		}
		width := p.crcWidth()
		for i := 0; i < width; i++ {
			frame = append(frame, byte(sum))
			sum >>= 8
		}
	}
	frame = append(frame, stopByte)

	n := p.tx.Write(frame)
	p.sendEvt(EvtPostWrite)
	if n != len(frame) {
		return ResultErrMem, ErrMem
	}
	p.sendEvt(EvtWrite)
	return ResultOK, nil
}

// --- session / process driver ----------------------------------------------

// Process drives one decode attempt and applies the inactivity timeout: if
// a frame is partway through decoding and t has advanced at least
// cfg.InprogTimeoutMs since the last progress, the partial frame is
// discarded, EvtTimeout fires, and ResultErr-equivalent state is cleared.
// t is a free-running millisecond counter; wraparound is handled via
// unsigned subtraction.
func (p *Packet) Process(t uint32) (Result, error) {
	res, err, consumed := p.readAndTrack()
	switch {
	case res == ResultValid:
		p.lastRxTime = t
		p.sendEvt(EvtPacket)
	case consumed:
		// Bytes arrived this tick, even if no terminal verdict was
		// reached yet — the link is active, so the idle clock resets.
		p.lastRxTime = t
	case p.m.state != stateStart && t-p.lastRxTime >= p.cfg.InprogTimeoutMs:
		p.Reset()
		p.lastRxTime = t
		p.sendEvt(EvtTimeout)
	}
	return res, err
}
