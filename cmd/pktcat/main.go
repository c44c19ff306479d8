// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command pktcat is a demo bridge between a serial transport and the pkt
// framing codec. It is glue, not core: it owns the transport, the clock,
// and optional fan-out to Redis, none of which the core package needs to
// know about.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.bug.st/serial"

	"code.hybscloud.com/pkt"
)

const (
	ringSize = 4096
)

func main() {
	var (
		port      = pflag.StringP("port", "p", "", "serial port device (e.g. /dev/ttyUSB0)")
		pipe      = pflag.Bool("pipe", false, "use an in-memory loopback instead of a real serial port")
		baud      = pflag.IntP("baud", "b", 115200, "serial baud rate")
		localAddr = pflag.Uint32("local-addr", 1, "this device's address")
		profile   = pflag.String("profile", "classic", "wire profile: minimal, classic, networked")
		redisAddr = pflag.String("publish-redis", "", "redis address (host:port) to publish decoded frames to; disabled if empty")
		redisChan = pflag.String("redis-channel", "pkt.frames", "redis pub/sub channel for decoded frames")
		verbose   = pflag.BoolP("verbose", "v", false, "debug logging")
	)
	pflag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	opt, err := profileOption(*profile)
	if err != nil {
		logger.Fatal("invalid profile", "profile", *profile, "err", err)
	}

	rx, err := pkt.NewRingBuffer(make([]byte, ringSize))
	if err != nil {
		logger.Fatal("new rx ring", "err", err)
	}
	tx, err := pkt.NewRingBuffer(make([]byte, ringSize))
	if err != nil {
		logger.Fatal("new tx ring", "err", err)
	}

	p, err := pkt.NewPacket(tx, rx, *localAddr, opt)
	if err != nil {
		logger.Fatal("new packet", "err", err)
	}

	var pub *redis.Client
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if *redisAddr != "" {
		pub = redis.NewClient(&redis.Options{Addr: *redisAddr})
		defer pub.Close()
		if err := pub.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping", "addr", *redisAddr, "err", err)
		}
		logger.Info("publishing decoded frames to redis", "addr", *redisAddr, "channel", *redisChan)
	}

	transport, closeTransport, err := openTransport(*port, *baud, *pipe)
	if err != nil {
		logger.Fatal("open transport", "err", err)
	}
	defer closeTransport()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go pumpIn(transport, rx, logger, done)
	go pumpOut(transport, tx, logger, done)

	logger.Info("pktcat running", "local-addr", *localAddr, "profile", *profile)

	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	start := time.Now()
	for {
		select {
		case <-sigCh:
			logger.Info("shutting down")
			close(done)
			return
		case now := <-ticker.C:
			t := uint32(now.Sub(start).Milliseconds())
			res, perr := p.Process(t)
			switch res {
			case pkt.ResultValid:
				logger.Info("frame",
					"from", p.From(), "to", p.To(), "cmd", p.Cmd(), "flags", p.Flags(),
					"data", hex.EncodeToString(p.Data()), "for-me", p.IsForMe(), "broadcast", p.IsBroadcast())
				if pub != nil {
					if err := pub.Publish(ctx, *redisChan, p.Data()).Err(); err != nil {
						logger.Error("redis publish", "err", err)
					}
				}
			case pkt.ResultErrCRC, pkt.ResultErrStop, pkt.ResultErrMem, pkt.ResultErr:
				logger.Warn("decode error", "result", res, "err", perr)
			}
		}
	}
}

func profileOption(name string) (pkt.Option, error) {
	switch name {
	case "minimal":
		return pkt.WithMinimalProfile(), nil
	case "classic":
		return pkt.WithClassicProfile(), nil
	case "networked":
		return pkt.WithNetworkedProfile(), nil
	default:
		return nil, pkt.ErrInvalidArgument
	}
}

// openTransport opens a real serial port, or — when pipe is set — an
// in-memory loopback io.ReadWriter useful for local testing without
// hardware attached.
func openTransport(name string, baud int, pipe bool) (rw interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}, closeFn func(), err error) {
	if pipe {
		lp := newLoopback()
		return lp, func() {}, nil
	}
	mode := &serial.Mode{BaudRate: baud}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, nil, err
	}
	return port, func() { _ = port.Close() }, nil
}

// pumpIn copies bytes from the transport into rx until done is closed or
// the transport errors out. A non-blocking transport may report
// pkt.ErrWouldBlock or pkt.ErrMore instead of waiting for more bytes; both
// are treated as "nothing to do this tick", not a failure.
func pumpIn(r interface{ Read([]byte) (int, error) }, rx *pkt.RingBuffer, logger *log.Logger, done <-chan struct{}) {
	buf := make([]byte, 512)
	for {
		select {
		case <-done:
			return
		default:
		}
		n, err := r.Read(buf)
		if n > 0 {
			if w := rx.Write(buf[:n]); w != n {
				logger.Warn("rx ring overrun", "dropped", n-w)
			}
		}
		switch {
		case err == nil:
		case errors.Is(err, pkt.ErrWouldBlock) || errors.Is(err, pkt.ErrMore):
			time.Sleep(time.Millisecond)
		default:
			logger.Error("transport read", "err", err)
			return
		}
	}
}

// pumpOut drains tx to the transport until done is closed.
func pumpOut(w interface{ Write([]byte) (int, error) }, tx *pkt.RingBuffer, logger *log.Logger, done <-chan struct{}) {
	buf := make([]byte, 512)
	for {
		select {
		case <-done:
			return
		default:
		}
		n := tx.Read(buf)
		if n == 0 {
			time.Sleep(time.Millisecond)
			continue
		}
		if _, err := w.Write(buf[:n]); err != nil {
			if errors.Is(err, pkt.ErrWouldBlock) || errors.Is(err, pkt.ErrMore) {
				time.Sleep(time.Millisecond)
				continue
			}
			logger.Error("transport write", "err", err)
			return
		}
	}
}
