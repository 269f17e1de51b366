// Package devicesim is an in-process Beddit sensor reachable over TCP.
//
// It speaks the device side of the command channel and streams checksummed
// frames while started. Tests and the simulator example use it to exercise
// the host stack without hardware.
package devicesim

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-beddit/beddit"
	"github.com/arloliu/go-beddit/logger"
)

// Default simulator settings.
const (
	DefaultAnswer        = "OK\n"
	DefaultFrameInterval = 10 * time.Millisecond
	DefaultSamples       = 8
)

// SampleFunc returns the interleaved samples of the frame with packetNumber.
type SampleFunc func(packetNumber uint32) []uint16

// Device is a simulated sensor listening on a TCP address.
type Device struct {
	ln     net.Listener
	cfg    *deviceConfig
	logger logger.Logger

	conns   *xsync.MapOf[uint64, *deviceConn]
	corrupt *xsync.MapOf[uint32, struct{}]

	nextConnID atomic.Uint64
	packet     atomic.Uint32
	accepted   atomic.Uint64
	keepAlives atomic.Uint64
	framesSent atomic.Uint64
	cmdMu      sync.Mutex
	commands   []string
	wg         sync.WaitGroup
	closed     atomic.Bool
}

type deviceConfig struct {
	answer   string
	interval time.Duration
	samples  SampleFunc
	logger   logger.Logger
}

// Option configures a Device.
type Option func(*deviceConfig)

// WithAnswer sets the 3-byte handshake answer.
func WithAnswer(answer string) Option {
	return func(cfg *deviceConfig) { cfg.answer = answer }
}

// WithFrameInterval sets the spacing between streamed frames.
func WithFrameInterval(d time.Duration) Option {
	return func(cfg *deviceConfig) { cfg.interval = d }
}

// WithSamples sets the sample generator.
func WithSamples(f SampleFunc) Option {
	return func(cfg *deviceConfig) { cfg.samples = f }
}

// WithLogger sets the simulator logger.
func WithLogger(l logger.Logger) Option {
	return func(cfg *deviceConfig) { cfg.logger = l }
}

// RampSamples generates DefaultSamples interleaved values: channel 1 counts
// up from the packet number and channel 2 is twice channel 1.
func RampSamples(packetNumber uint32) []uint16 {
	out := make([]uint16, DefaultSamples)
	for i := 0; i < DefaultSamples/2; i++ {
		v := uint16(packetNumber) + uint16(i) //nolint:gosec // truncation intended
		out[2*i] = v
		out[2*i+1] = 2 * v
	}

	return out
}

// Listen starts a device on addr, for example "127.0.0.1:0".
func Listen(addr string, opts ...Option) (*Device, error) {
	cfg := &deviceConfig{
		answer:   DefaultAnswer,
		interval: DefaultFrameInterval,
		samples:  RampSamples,
		logger:   logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	d := &Device{
		ln:      ln,
		cfg:     cfg,
		logger:  cfg.logger.With("component", "devicesim"),
		conns:   xsync.NewMapOf[uint64, *deviceConn](),
		corrupt: xsync.NewMapOf[uint32, struct{}](),
	}

	d.wg.Add(1)
	go d.acceptLoop()

	return d, nil
}

// Addr returns the listening address.
func (d *Device) Addr() string { return d.ln.Addr().String() }

// Accepted returns how many host connections were accepted.
func (d *Device) Accepted() uint64 { return d.accepted.Load() }

// ActiveConns returns the number of open host connections.
func (d *Device) ActiveConns() int { return d.conns.Size() }

// KeepAlives returns how many CONT commands were received.
func (d *Device) KeepAlives() uint64 { return d.keepAlives.Load() }

// FramesSent returns how many frames were written.
func (d *Device) FramesSent() uint64 { return d.framesSent.Load() }

// Commands returns every command received, newline stripped, in order.
func (d *Device) Commands() []string {
	d.cmdMu.Lock()
	defer d.cmdMu.Unlock()

	return append([]string(nil), d.commands...)
}

// CorruptPacket makes the frame with packetNumber go out with a broken checksum.
func (d *Device) CorruptPacket(packetNumber uint32) {
	d.corrupt.Store(packetNumber, struct{}{})
}

// NextPacket returns the packet number the next frame will carry.
func (d *Device) NextPacket() uint32 { return d.packet.Load() + 1 }

// DropConnections closes every open host connection.
func (d *Device) DropConnections() {
	d.conns.Range(func(_ uint64, c *deviceConn) bool {
		c.close()
		return true
	})
}

// Close stops listening and closes all connections.
func (d *Device) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}

	err := d.ln.Close()
	d.DropConnections()
	d.wg.Wait()

	return err
}

func (d *Device) acceptLoop() {
	defer d.wg.Done()

	for {
		conn, err := d.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				d.logger.Warn("devicesim: accept failed", "error", err)
			}

			return
		}

		d.accepted.Add(1)
		id := d.nextConnID.Add(1)

		ctx, cancel := context.WithCancel(context.Background())
		dc := &deviceConn{id: id, conn: conn, cancel: cancel}
		d.conns.Store(id, dc)

		d.wg.Add(2)
		go d.commandLoop(dc)
		go d.streamLoop(ctx, dc)
	}
}

func (d *Device) commandLoop(dc *deviceConn) {
	defer d.wg.Done()
	defer d.conns.Delete(dc.id)
	defer dc.close()

	r := bufio.NewReader(dc.conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}

		cmd := strings.TrimSuffix(line, "\n")
		d.recordCommand(cmd)

		switch {
		case cmd == "OK":
			if err := dc.write([]byte(d.cfg.answer)); err != nil {
				return
			}
		case cmd == "START" || strings.HasPrefix(cmd, "START "):
			dc.streaming.Store(true)
		case cmd == "STOP":
			dc.streaming.Store(false)
		case cmd == "CONT":
			d.keepAlives.Add(1)
		default:
			d.logger.Debug("devicesim: unknown command", "cmd", cmd)
		}
	}
}

func (d *Device) streamLoop(ctx context.Context, dc *deviceConn) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !dc.streaming.Load() {
				continue
			}

			if err := dc.write(d.nextFrame()); err != nil {
				dc.close()
				return
			}

			d.framesSent.Add(1)
		}
	}
}

func (d *Device) nextFrame() []byte {
	pn := d.packet.Add(1)
	samples := d.cfg.samples(pn)

	payload := make([]byte, 0, 2*len(samples))
	for _, v := range samples {
		payload = append(payload, byte(v), byte(v>>8))
	}

	wire, err := beddit.EncodeFrame(pn, payload)
	if err != nil {
		d.logger.Error("devicesim: encode frame", "packet", pn, "error", err)
		return nil
	}

	if _, ok := d.corrupt.LoadAndDelete(pn); ok {
		wire[len(wire)-1] ^= 0xFF
	}

	return wire
}

func (d *Device) recordCommand(cmd string) {
	d.cmdMu.Lock()
	defer d.cmdMu.Unlock()

	d.commands = append(d.commands, cmd)
}

type deviceConn struct {
	id        uint64
	conn      net.Conn
	cancel    context.CancelFunc
	streaming atomic.Bool
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *deviceConn) write(p []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_, err := c.conn.Write(p)

	return err
}

func (c *deviceConn) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.conn.Close()
	})
}
