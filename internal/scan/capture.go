package scan

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"

	"github.com/veritag/veritag/pkg/metrics"
)

// State of the capture loop.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateDecoded
)

func (s State) String() string {
	switch s {
	case StateScanning:
		return "scanning"
	case StateDecoded:
		return "decoded"
	default:
		return "idle"
	}
}

// TopicDecoded is the event bus topic carrying decoded payload text.
const TopicDecoded = "scan.decoded"

// ErrNotIdle is returned by Start when a session is already active.
var ErrNotIdle = errors.New("scan: capture not idle")

const (
	// DefaultSampleInterval targets 10 samples per second.
	DefaultSampleInterval = 100 * time.Millisecond

	// Non-detections are the common case while no code is in view. The
	// first few are reported individually, then every 50th, the rest are
	// dropped.
	missReportFirst = 5
	missReportEvery = 50
)

// FrameSource supplies camera frames to the capture loop. NextFrame blocks
// until a frame is available or ctx is done.
type FrameSource interface {
	NextFrame(ctx context.Context) (image.Image, error)
	Close() error
}

// DecodeHandler receives the payload of a successful decode, once per
// scanning session until Rearm.
type DecodeHandler func(text string)

// MissHandler receives the session miss count for every non-detection that
// passes the rate limit.
type MissHandler func(count int)

// Capture samples a frame source and decodes QR codes. After the first
// successful decode the loop latches into StateDecoded and ignores further
// codes until Rearm; Stop releases the source synchronously.
type Capture struct {
	decoder  *Decoder
	bus      EventBus.Bus
	interval time.Duration
	onDecode DecodeHandler
	onMiss   MissHandler

	mu        sync.Mutex
	state     State
	source    FrameSource
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce *sync.Once
	misses    int
}

// Option configures a Capture.
type Option func(*Capture)

// WithSampleInterval overrides the 10/s sampling rate.
func WithSampleInterval(d time.Duration) Option {
	return func(c *Capture) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithDecodeHandler registers the decode callback.
func WithDecodeHandler(h DecodeHandler) Option {
	return func(c *Capture) { c.onDecode = h }
}

// WithMissHandler registers a diagnostics callback for rate-limited
// non-detection reports.
func WithMissHandler(h MissHandler) Option {
	return func(c *Capture) { c.onMiss = h }
}

func NewCapture(bus EventBus.Bus, opts ...Option) *Capture {
	c := &Capture{
		decoder:  NewDecoder(),
		bus:      bus,
		interval: DefaultSampleInterval,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current loop state.
func (c *Capture) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start begins sampling the source. Only valid from StateIdle.
func (c *Capture) Start(source FrameSource) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return ErrNotIdle
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.source = source
	c.cancel = cancel
	c.done = make(chan struct{})
	c.closeOnce = new(sync.Once)
	c.state = StateScanning
	c.misses = 0

	go c.loop(ctx, source)

	zap.L().Info("capture started", zap.Duration("sample_interval", c.interval))
	return nil
}

// Rearm returns a latched loop to StateScanning so the next decode fires
// again. No-op unless latched.
func (c *Capture) Rearm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDecoded {
		c.state = StateScanning
		c.misses = 0
	}
}

// Stop cancels the loop and closes the frame source before returning; the
// state is StateIdle only after both are done. Safe to call repeatedly,
// concurrently and from deferred teardown paths; the source is closed
// exactly once per session.
func (c *Capture) Stop() {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	done := c.done
	source := c.source
	closeOnce := c.closeOnce
	c.mu.Unlock()

	cancel()
	<-done

	closeOnce.Do(func() {
		if err := source.Close(); err != nil {
			zap.L().Warn("frame source close failed", zap.Error(err))
		}
	})

	c.mu.Lock()
	c.state = StateIdle
	c.source = nil
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()

	zap.L().Info("capture stopped")
}

func (c *Capture) loop(ctx context.Context, source FrameSource) {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sample(ctx, source)
		}
	}
}

func (c *Capture) sample(ctx context.Context, source FrameSource) {
	frame, err := source.NextFrame(ctx)
	if err != nil {
		if ctx.Err() == nil {
			zap.L().Debug("frame source error", zap.Error(err))
		}
		return
	}

	text, err := c.decoder.Decode(frame)
	if err != nil {
		c.reportMiss(err)
		return
	}

	c.mu.Lock()
	if c.state != StateScanning {
		// Latched: a code was already handled this session.
		c.mu.Unlock()
		return
	}
	c.state = StateDecoded
	c.misses = 0
	handler := c.onDecode
	c.mu.Unlock()

	metrics.IncrCounter("scan_decoded")
	zap.L().Info("qr code decoded", zap.Int("payload_len", len(text)))

	if c.bus != nil {
		c.bus.Publish(TopicDecoded, text)
	}
	if handler != nil {
		handler(text)
	}
}

func (c *Capture) reportMiss(err error) {
	c.mu.Lock()
	if c.state != StateScanning {
		c.mu.Unlock()
		return
	}
	c.misses++
	n := c.misses
	c.mu.Unlock()

	metrics.IncrCounter("scan_miss")
	if n <= missReportFirst || n%missReportEvery == 0 {
		zap.L().Debug("no qr code in frame", zap.Int("miss_count", n), zap.Error(err))
		if n == missReportFirst {
			zap.L().Debug("suppressing further non-detection reports")
		}
		if c.onMiss != nil {
			c.onMiss(n)
		}
	}
}

// MissCount returns the number of non-detections in the current scanning
// session.
func (c *Capture) MissCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.misses
}
