// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pkt

// Profile option helpers and mapping.
//
// Single source of truth — named link scenario -> concrete Config:
//   - Minimal    -> no addressing, no flags, no command, no CRC: two devices
//     wired point-to-point with nothing to lose by trusting the link.
//   - Classic    -> addressing + command + CRC-8, non-extended, no flags:
//     the reference library's own compile-time defaults.
//   - Networked  -> extended (VLQ7) addressing + flags + command + CRC-32:
//     many devices sharing a bus, each wanting per-frame metadata and a
//     stronger integrity check.
//
// These are starting points, not exclusive presets: later options in the
// same NewPacket call still override individual fields.

// WithMinimalProfile configures a bare point-to-point link: no addressing,
// no flags, no command byte, no CRC. Only the payload length survives.
func WithMinimalProfile() Option {
	return func(c *Config) {
		c.UseAddr, c.AddrExtended = false, false
		c.UseFlags = false
		c.UseCmd = false
		c.UseCRC, c.CRC32 = false, false
	}
}

// WithClassicProfile configures addressing + command + CRC-8, non-extended,
// no flags — the reference library's compile-time default configuration.
func WithClassicProfile() Option {
	return func(c *Config) {
		c.UseAddr, c.AddrExtended = true, false
		c.UseFlags = false
		c.UseCmd = true
		c.UseCRC, c.CRC32 = true, false
	}
}

// WithNetworkedProfile configures extended (VLQ7) addressing, flags,
// command, and CRC-32 for a multi-device bus where frames carry per-message
// metadata and need a stronger integrity check than CRC-8 provides.
func WithNetworkedProfile() Option {
	return func(c *Config) {
		c.UseAddr, c.AddrExtended = true, true
		if c.Broadcast == defaultBroadcastAddr || c.Broadcast == 0 {
			c.Broadcast = defaultExtendedBroadcastAddr
		}
		c.UseFlags = true
		c.UseCmd = true
		c.UseCRC, c.CRC32 = true, true
	}
}
