// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pkt

// Config configures a Packet instance's wire-format feature set.
//
// The reference C implementation expresses each feature's presence as one
// of three compile-time modes (globally disabled / globally enabled /
// dynamically toggleable via a runtime flag byte). That three-valued
// distinction collapses here into a plain struct of bools plus a parallel
// set of "Dynamic*" bools: a feature is either fixed for the instance's
// lifetime, or — when its Dynamic flag is set — toggleable at runtime via
// the matching Set*Enabled method. A toggle takes effect immediately, for
// the encoder and for the next byte the decoder consumes; it is not
// deferred to the next frame boundary, so toggling while a frame is being
// decoded changes how the rest of that frame is parsed (the decoder's
// accumulators stay bounded). Runtime branches on bools are cheap; there is no need to
// special-case the "globally enabled" and "dynamically enabled but
// currently on" cases separately.
type Config struct {
	// UseAddr enables the from/to address fields.
	UseAddr bool
	// AddrExtended switches addresses from a fixed single byte to a VLQ7
	// encoding (up to 32 bits). Only meaningful when UseAddr is set.
	AddrExtended bool
	// UseFlags enables the 32-bit VLQ7-encoded flags field.
	UseFlags bool
	// UseCmd enables the single command byte.
	UseCmd bool
	// UseCRC enables the trailing integrity check.
	UseCRC bool
	// CRC32 selects the 32-bit CRC instead of the 8-bit one. Only
	// meaningful when UseCRC is set.
	CRC32 bool

	// DynamicAddr, DynamicAddrExtended, DynamicFlags, DynamicCmd,
	// DynamicCRC, and DynamicCRC32 mark the corresponding feature as
	// runtime-toggleable via Packet.SetAddrEnabled and friends. Toggling a
	// feature whose Dynamic bit is clear is a no-op.
	DynamicAddr         bool
	DynamicAddrExtended bool
	DynamicFlags        bool
	DynamicCmd          bool
	DynamicCRC          bool
	DynamicCRC32        bool

	// MaxDataLen bounds the payload scratch buffer. A received frame whose
	// advertised length exceeds this returns ErrMem.
	MaxDataLen int

	// Broadcast is the "to" address value meaning "all devices". For
	// non-extended (single-byte) addressing this defaults to 0xFF. When
	// WithExtendedAddressing or WithNetworkedProfile is applied, a value
	// still at 0xFF (and, for WithNetworkedProfile, also 0) is replaced
	// with the maximum representable 32-bit value, since 0xFF would
	// otherwise collide with a legitimate low-range extended address.
	Broadcast uint32

	// InprogTimeoutMs is the inactivity window, in the same millisecond
	// units passed to Packet.Process, after which a partially received
	// frame is discarded and an EvtTimeout event fires.
	InprogTimeoutMs uint32
}

const defaultMaxDataLen = 256
const defaultBroadcastAddr = 0xFF
const defaultExtendedBroadcastAddr = 0xFFFFFFFF
const defaultInprogTimeoutMs = 100

// defaultConfig matches the reference library's compile-time defaults:
// addressing and command enabled, CRC-8 enabled, extended addressing and
// flags disabled.
var defaultConfig = Config{
	UseAddr:         true,
	UseCmd:          true,
	UseCRC:          true,
	MaxDataLen:      defaultMaxDataLen,
	Broadcast:       defaultBroadcastAddr,
	InprogTimeoutMs: defaultInprogTimeoutMs,
}

// Option configures a Config during Packet construction.
type Option func(*Config)

// WithAddressing enables the from/to address fields as single raw bytes.
func WithAddressing() Option {
	return func(c *Config) { c.UseAddr = true; c.AddrExtended = false }
}

// WithExtendedAddressing enables the from/to address fields, VLQ7-encoded
// up to 32 bits, and switches the broadcast sentinel accordingly unless a
// caller-supplied WithBroadcastAddr option overrides it.
func WithExtendedAddressing() Option {
	return func(c *Config) {
		c.UseAddr = true
		c.AddrExtended = true
		if c.Broadcast == defaultBroadcastAddr {
			c.Broadcast = defaultExtendedBroadcastAddr
		}
	}
}

// WithoutAddressing disables the from/to address fields entirely.
func WithoutAddressing() Option {
	return func(c *Config) { c.UseAddr = false; c.AddrExtended = false }
}

// WithFlags enables the 32-bit VLQ7-encoded flags field.
func WithFlags() Option {
	return func(c *Config) { c.UseFlags = true }
}

// WithoutFlags disables the flags field.
func WithoutFlags() Option {
	return func(c *Config) { c.UseFlags = false }
}

// WithCommand enables the single command byte.
func WithCommand() Option {
	return func(c *Config) { c.UseCmd = true }
}

// WithoutCommand disables the command byte.
func WithoutCommand() Option {
	return func(c *Config) { c.UseCmd = false }
}

// WithCRC8 enables the trailing 8-bit integrity check (the default).
func WithCRC8() Option {
	return func(c *Config) { c.UseCRC = true; c.CRC32 = false }
}

// WithCRC32 enables the trailing 32-bit integrity check.
func WithCRC32() Option {
	return func(c *Config) { c.UseCRC = true; c.CRC32 = true }
}

// WithoutCRC disables the trailing integrity check entirely.
func WithoutCRC() Option {
	return func(c *Config) { c.UseCRC = false; c.CRC32 = false }
}

// WithMaxDataLen overrides the payload scratch buffer size (default 256).
func WithMaxDataLen(n int) Option {
	return func(c *Config) { c.MaxDataLen = n }
}

// WithBroadcastAddr overrides the "to" address value meaning "all devices".
func WithBroadcastAddr(addr uint32) Option {
	return func(c *Config) { c.Broadcast = addr }
}

// WithInprogTimeout overrides the inactivity window (in milliseconds,
// default 100) used by Packet.Process to discard a stalled partial decode.
func WithInprogTimeout(ms uint32) Option {
	return func(c *Config) { c.InprogTimeoutMs = ms }
}

// WithDynamicAddr marks address presence as runtime-toggleable via
// Packet.SetAddrEnabled. It does not by itself enable addressing.
func WithDynamicAddr() Option {
	return func(c *Config) { c.DynamicAddr = true }
}

// WithDynamicAddrExtended marks extended-vs-fixed addressing as
// runtime-toggleable via Packet.SetAddrExtendedEnabled.
func WithDynamicAddrExtended() Option {
	return func(c *Config) { c.DynamicAddrExtended = true }
}

// WithDynamicFlags marks flags presence as runtime-toggleable via
// Packet.SetFlagsEnabled.
func WithDynamicFlags() Option {
	return func(c *Config) { c.DynamicFlags = true }
}

// WithDynamicCmd marks command-byte presence as runtime-toggleable via
// Packet.SetCmdEnabled.
func WithDynamicCmd() Option {
	return func(c *Config) { c.DynamicCmd = true }
}

// WithDynamicCRC marks CRC presence as runtime-toggleable via
// Packet.SetCRCEnabled.
func WithDynamicCRC() Option {
	return func(c *Config) { c.DynamicCRC = true }
}

// WithDynamicCRC32 marks the CRC-8-vs-CRC-32 choice as runtime-toggleable
// via Packet.SetCRC32Enabled.
func WithDynamicCRC32() Option {
	return func(c *Config) { c.DynamicCRC32 = true }
}
