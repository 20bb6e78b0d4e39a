// consumer.go — Consumer loop assembly: one outbound connection,
// Reassembler, SymbolCache, LatencyHistogram and EventReactor wired
// together, including exponential-backoff reconnect.
//
// Grounded on main.go's top-level wiring style and on
// main_linux.go/main_darwin.go's runPublisher-style "connect, register,
// loop, return error to trigger restart" shape — generalized here into
// an explicit backoff/reconnect state machine instead of an unconditional
// outer for-loop, bounding retries at 5 attempts.
package consumer

import (
	"errors"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"tickfeed/internal/blockpool"
	"tickfeed/internal/histogram"
	"tickfeed/internal/lifecycle"
	"tickfeed/internal/netio"
	"tickfeed/internal/reactor"
	"tickfeed/internal/reassembler"
	"tickfeed/internal/symbolcache"
	"tickfeed/internal/wire"
)

// Config holds the consumer's runtime parameters.
type Config struct {
	Host             string
	Port             int
	ConnectTimeout   time.Duration
	SubscribeSymbols []uint16 // empty = all
	ReconnectEnabled bool
	RecvBufBytes     int
	DumpPath         string
	SymbolNames      []string // display-only, see internal/symbolnames
}

var ErrMaxRetriesExceeded = errors.New("consumer: max reconnect attempts exceeded")

const (
	waitTimeout       = 100 * time.Millisecond
	recvScratchSize   = 4 << 20
	backoffInitial    = 100 * time.Millisecond
	backoffCap        = 30 * time.Second
	maxReconnectTries = 5

	// dumpQueueDepth bounds both the BlockPool's arena and the channel
	// ferrying filled blocks to the dump writer goroutine: the hot loop
	// never waits on disk, it either gets a block immediately or drops
	// the sample.
	dumpQueueDepth = 1024
)

// Stats is the read-only snapshot exposed by the diagnostics endpoint.
type Stats struct {
	Frames         uint64  `json:"frames"`
	Trades         uint64  `json:"trades"`
	Quotes         uint64  `json:"quotes"`
	Gaps           uint64  `json:"gaps"`
	ChecksumErrors uint64  `json:"checksum_errors"`
	Malformed      uint64  `json:"malformed"`
	ReconnectCount int     `json:"reconnect_count"`
	DumpDropped    uint64  `json:"dump_dropped"`
	P50Ns          uint64  `json:"p50_ns"`
	P99Ns          uint64  `json:"p99_ns"`
	MaxNs          uint64  `json:"max_ns"`
}

// dumpChunk carries one pool-backed block of raw frame bytes from the
// event loop to the dump writer goroutine. n is the portion of block
// actually in use; block is always blockpool's fixed size.
type dumpChunk struct {
	block []byte
	n     int
}

// Consumer owns the outbound connection and runs the single-threaded
// read/reassemble/apply loop.
type Consumer struct {
	cfg   Config
	log   *zap.Logger
	ctrl  *lifecycle.Controller
	react reactor.Reactor

	fd    int
	re    *reassembler.Reassembler
	cache *symbolcache.Cache
	hist  *histogram.Histogram

	dumpFile *os.File
	recv     [recvScratchSize]byte

	// Raw-frame dump goes through a BlockPool instead of writing
	// straight from the reassembler's buffer, so the event loop never
	// blocks on disk I/O: it copies into a pooled block and hands it to
	// dumpWriter over dumpCh. dumpPool is nil whenever dumping is off.
	dumpPool   *blockpool.Pool
	dumpCh     chan dumpChunk
	dumpDone   chan struct{}
	dumpFailed atomic.Bool
	dumpDropped atomic.Uint64

	reconnectCount atomic.Int64
}

// New constructs a Consumer without connecting yet.
func New(cfg Config, log *zap.Logger) (*Consumer, error) {
	r, err := reactor.New()
	if err != nil {
		return nil, err
	}
	c := &Consumer{
		cfg:   cfg,
		log:   log,
		ctrl:  lifecycle.New(),
		react: r,
		re:    reassembler.New(),
		cache: symbolcache.New(),
		hist:  histogram.New(false),
		fd:    -1,
	}
	if cfg.DumpPath != "" {
		f, err := os.OpenFile(cfg.DumpPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			log.Warn("failed to open dump file, continuing without it", zap.Error(err))
		} else {
			c.dumpFile = f
			c.dumpPool = blockpool.New(wire.MaxFrameSize, dumpQueueDepth)
			c.dumpCh = make(chan dumpChunk, dumpQueueDepth)
			c.dumpDone = make(chan struct{})
			go c.runDumpWriter()
		}
	}
	return c, nil
}

// Stop requests graceful shutdown of the Run loop.
func (c *Consumer) Stop() { c.ctrl.Stop() }

// Cache exposes the SymbolCache for the presentation collaborator.
func (c *Consumer) Cache() *symbolcache.Cache { return c.cache }

// Histogram exposes the LatencyHistogram for the presentation collaborator.
func (c *Consumer) Histogram() *histogram.Histogram { return c.hist }

// Stats returns a point-in-time snapshot for the diagnostics endpoint.
// Every field read here is an atomic counter so this is safe to call
// concurrently with the owning Run loop, per StatsFunc's contract.
func (c *Consumer) Stats() Stats {
	return Stats{
		Frames:         c.re.Counters.Frames.Load(),
		Trades:         c.re.Counters.Trades.Load(),
		Quotes:         c.re.Counters.Quotes.Load(),
		Gaps:           c.re.Counters.Gaps.Load(),
		ChecksumErrors: c.re.Counters.ChecksumErrors.Load(),
		Malformed:      c.re.Counters.Malformed.Load(),
		ReconnectCount: int(c.reconnectCount.Load()),
		DumpDropped:    c.dumpDropped.Load(),
		P50Ns:          c.hist.Percentile(0.50),
		P99Ns:          c.hist.Percentile(0.99),
		MaxNs:          c.hist.Max(),
	}
}

// Run connects, runs the read loop, and transparently reconnects with
// exponential backoff on disconnect until Stop is called or retries are
// exhausted.
func (c *Consumer) Run() error {
	defer c.closeDump()
	if err := c.connectAndRegister(); err != nil {
		return err
	}
	c.sendInitialSubscription()

	for c.ctrl.Running() {
		err := c.readLoop()
		c.teardownConn()
		if !c.ctrl.Running() {
			return nil
		}
		if err == nil {
			continue // Stop() flipped between readLoop's checks
		}
		if !c.cfg.ReconnectEnabled {
			return err
		}
		if rerr := c.reconnectWithBackoff(); rerr != nil {
			return rerr
		}
	}
	return nil
}

func (c *Consumer) connectAndRegister() error {
	fd, err := netio.Connect(c.cfg.Host, c.cfg.Port, c.cfg.ConnectTimeout)
	if err != nil {
		return err
	}
	if err := netio.SetNodelay(fd); err != nil {
		netio.Close(fd)
		return err
	}
	recvBuf := c.cfg.RecvBufBytes
	if recvBuf == 0 {
		recvBuf = recvScratchSize
	}
	if err := netio.SetRecvBuf(fd, recvBuf); err != nil {
		netio.Close(fd)
		return err
	}
	if err := c.react.Register(fd); err != nil {
		netio.Close(fd)
		return err
	}
	c.fd = fd
	c.log.Info("connected", zap.String("host", c.cfg.Host), zap.Int("port", c.cfg.Port))
	return nil
}

func (c *Consumer) sendInitialSubscription() {
	if len(c.cfg.SubscribeSymbols) == 0 {
		return
	}
	buf := make([]byte, 3+2*len(c.cfg.SubscribeSymbols))
	n := wire.EncodeSubscription(c.cfg.SubscribeSymbols, buf)
	netio.Write(c.fd, buf[:n])
}

// readLoop drains readiness events until the peer closes, an
// unrecoverable error occurs, or Stop is called.
func (c *Consumer) readLoop() error {
	for c.ctrl.Running() {
		events, err := c.react.Wait(waitTimeout)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			continue
		}
		for {
			n, rerr := netio.Read(c.fd, c.recv[:])
			if rerr != nil {
				if netio.IsTransient(rerr) {
					break
				}
				return rerr
			}
			if n == 0 {
				return errors.New("consumer: peer closed")
			}
			c.re.Ingest(c.recv[:n])
			c.re.Drain(c.callbacks())
		}
	}
	return nil
}

func (c *Consumer) callbacks() reassembler.Callbacks {
	now := func() uint64 { return uint64(time.Now().UnixNano()) }
	recordLatency := func(tsNs uint64) {
		n := now()
		if n > tsNs {
			c.hist.Record(n - tsNs)
		}
	}
	return reassembler.Callbacks{
		OnRaw: func(h wire.Header, kind wire.Kind, raw []byte) {
			c.dumpFrame(raw)
		},
		OnTrade: func(h wire.Header, t wire.Trade) {
			recordLatency(h.TsNs)
			c.cache.ApplyTrade(h.SymbolID, t.Price, t.Qty, h.TsNs)
		},
		OnQuote: func(h wire.Header, q wire.Quote) {
			recordLatency(h.TsNs)
			c.cache.ApplyQuote(h.SymbolID, q.BidPx, q.BidQty, q.AskPx, q.AskQty, h.TsNs)
		},
		OnHeartbeat: func(h wire.Header) {
			recordLatency(h.TsNs)
		},
		OnGap: func(expected, received uint32) {
			c.log.Warn("sequence gap", zap.Uint32("expected", expected), zap.Uint32("received", received))
		},
	}
}

// dumpFrame copies raw, still-framed wire bytes into a pool-backed block
// and hands it to the dump writer goroutine, so a slow disk never stalls
// the read loop. If the pool is exhausted or the writer is backed up,
// the sample is dropped and counted rather than waited for; a prior
// write failure disables dumping entirely.
func (c *Consumer) dumpFrame(raw []byte) {
	if c.dumpPool == nil || c.dumpFailed.Load() {
		return
	}
	block, ok := c.dumpPool.Allocate()
	if !ok {
		c.dumpDropped.Add(1)
		return
	}
	n := copy(block, raw)
	select {
	case c.dumpCh <- dumpChunk{block: block, n: n}:
	default:
		c.dumpPool.Deallocate(block)
		c.dumpDropped.Add(1)
	}
}

// runDumpWriter drains dumpCh on its own goroutine, writing each block to
// the dump file and returning it to the pool. It is the BlockPool's only
// consumer; dumpFrame on the event loop thread is its only producer.
func (c *Consumer) runDumpWriter() {
	defer close(c.dumpDone)
	for chunk := range c.dumpCh {
		if _, err := c.dumpFile.Write(chunk.block[:chunk.n]); err != nil {
			c.log.Warn("dump write failed, disabling further dumps", zap.Error(err))
			c.dumpFailed.Store(true)
		}
		c.dumpPool.Deallocate(chunk.block)
	}
}

func (c *Consumer) teardownConn() {
	if c.fd >= 0 {
		c.react.Deregister(c.fd)
		netio.Close(c.fd)
		c.fd = -1
	}
}

func (c *Consumer) closeDump() {
	if c.dumpCh != nil {
		close(c.dumpCh)
		<-c.dumpDone
	}
	if c.dumpFile != nil {
		c.dumpFile.Close()
	}
	c.react.Close()
}

// reconnectWithBackoff implements the reconnect policy: initial 100ms,
// doubling per failed attempt, capped at 30s, reset to 100ms on
// success, fatal after 5 attempts.
func (c *Consumer) reconnectWithBackoff() error {
	delay := backoffInitial
	for attempt := 1; attempt <= maxReconnectTries; attempt++ {
		if !c.sleepInterruptible(delay) {
			return nil
		}
		c.reconnectCount.Add(1)
		if err := c.connectAndRegister(); err == nil {
			c.sendInitialSubscription()
			return nil
		}
		delay *= 2
		if delay > backoffCap {
			delay = backoffCap
		}
	}
	return ErrMaxRetriesExceeded
}

// sleepInterruptible waits up to d, polling the running flag in small
// slices so Stop() is observed promptly. Returns false if Stop fired.
func (c *Consumer) sleepInterruptible(d time.Duration) bool {
	const slice = 10 * time.Millisecond
	for remaining := d; remaining > 0; remaining -= slice {
		if !c.ctrl.Running() {
			return false
		}
		s := slice
		if remaining < s {
			s = remaining
		}
		time.Sleep(s)
	}
	return c.ctrl.Running()
}
