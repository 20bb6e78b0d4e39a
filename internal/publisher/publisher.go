// publisher.go — Publisher loop assembly: listening socket,
// SubscriberTable, TickSource and EventReactor wired together in one
// ordered loop iteration: drain readiness, emit due ticks, emit due
// heartbeats.
//
// Grounded on main.go's top-level "construct collaborators, then loop"
// style and main_linux.go/main_darwin.go's per-platform reactor
// construction, generalized from a single upstream connection to a
// listening server fanning out to many.
package publisher

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"tickfeed/internal/lifecycle"
	"tickfeed/internal/netio"
	"tickfeed/internal/reactor"
	"tickfeed/internal/subscriber"
	"tickfeed/internal/symbolcache"
	"tickfeed/internal/ticksource"
	"tickfeed/internal/wire"
)

// Config holds the publisher's runtime parameters.
type Config struct {
	Port           int
	NumSymbols     int
	TickRate       int // clamped to [1, 500000] by the caller
	Market         ticksource.MarketCondition
	FaultInjection bool
	SendBufBytes   int
	SymbolNames    []string // display-only, see internal/symbolnames
}

// Stats is the read-only snapshot exposed by the diagnostics endpoint.
type Stats struct {
	Subscribers         int    `json:"subscribers"`
	TicksEmitted        uint64 `json:"ticks_emitted"`
	Heartbeats          uint64 `json:"heartbeats"`
	Sequence            uint32 `json:"sequence"`
	OversizedSubscribes uint64 `json:"oversized_subscribes"`
}

// Publisher owns the listening endpoint and runs the single-threaded
// broadcast loop.
type Publisher struct {
	cfg       Config
	log       *zap.Logger
	ctrl      *lifecycle.Controller
	listenFd  int
	react     reactor.Reactor
	table     *subscriber.Table
	ticks     *ticksource.TickSource
	scratch   [wire.MaxFrameSize]byte

	lastTick time.Time
	lastHB   time.Time

	// Accessed from the diagnostics HTTP handler goroutine as well as
	// the loop thread, so both are atomics rather than plain uint64s.
	ticksEmitted        atomic.Uint64
	heartbeats          atomic.Uint64
	oversizedSubscribes atomic.Uint64
}

// New binds the listening socket and constructs the reactor; it does
// not start the loop.
func New(cfg Config, log *zap.Logger) (*Publisher, error) {
	fd, err := netio.Listen("", cfg.Port)
	if err != nil {
		return nil, err
	}
	r, err := reactor.New()
	if err != nil {
		netio.Close(fd)
		return nil, err
	}
	if err := r.Register(fd); err != nil {
		r.Close()
		netio.Close(fd)
		return nil, err
	}
	ts := ticksource.New(cfg.NumSymbols, uint64(time.Now().UnixNano()))
	ts.SetMarketCondition(cfg.Market)
	ts.SetFaultInjection(cfg.FaultInjection)

	now := time.Now()
	return &Publisher{
		cfg:      cfg,
		log:      log,
		ctrl:     lifecycle.New(),
		listenFd: fd,
		react:    r,
		table:    subscriber.New(),
		ticks:    ts,
		lastTick: now,
		lastHB:   now,
	}, nil
}

// Stop requests graceful shutdown of the Run loop.
func (p *Publisher) Stop() { p.ctrl.Stop() }

// BoundPort returns the TCP port the listening socket is bound to,
// useful when Config.Port is 0 and the kernel assigned an ephemeral one.
func (p *Publisher) BoundPort() (int, error) {
	return netio.LocalPort(p.listenFd)
}

// Stats returns a point-in-time snapshot for the diagnostics endpoint.
// Every field read here is either an atomic counter or, for Subscribers,
// backed by one, so this is safe to call concurrently with the owning
// Run loop, per StatsFunc's contract.
func (p *Publisher) Stats() Stats {
	return Stats{
		Subscribers:         p.table.Len(),
		TicksEmitted:        p.ticksEmitted.Load(),
		Heartbeats:          p.heartbeats.Load(),
		Sequence:            p.ticks.CurrentSequence(),
		OversizedSubscribes: p.oversizedSubscribes.Load(),
	}
}

const (
	waitTimeout  = 1 * time.Millisecond
	tickBurstCap = 100
	heartbeatDue = 1 * time.Second
)

// Run executes the loop until Stop is called or an unrecoverable error
// occurs on the listening socket itself.
func (p *Publisher) Run() error {
	defer p.closeAll()
	for p.ctrl.Running() {
		events, err := p.react.Wait(waitTimeout)
		if err != nil {
			return err
		}
		for _, ev := range events {
			p.handleReady(ev)
		}

		if p.cfg.TickRate > 0 {
			interval := time.Second / time.Duration(p.cfg.TickRate)
			elapsed := time.Since(p.lastTick)
			if elapsed >= interval {
				n := int(elapsed / interval)
				if n > tickBurstCap {
					n = tickBurstCap
				}
				for i := 0; i < n; i++ {
					p.emitAndBroadcastTick()
				}
				p.lastTick = p.lastTick.Add(time.Duration(n) * interval)
			}
		}

		if time.Since(p.lastHB) >= heartbeatDue {
			p.broadcastHeartbeat()
			p.lastHB = time.Now()
		}
	}
	return nil
}

func (p *Publisher) handleReady(ev reactor.Event) {
	if ev.Fd == p.listenFd {
		p.drainAccept()
		return
	}
	e := p.table.Get(ev.Fd)
	if e == nil {
		return
	}
	if ev.Err {
		p.detach(ev.Fd, "peer error")
		return
	}
	p.readSubscription(e)
}

func (p *Publisher) drainAccept() {
	for {
		fd, peer, err := netio.Accept(p.listenFd)
		if err != nil {
			if netio.IsTransient(err) {
				return
			}
			p.log.Warn("accept failed", zap.Error(err))
			return
		}
		if err := subscriber.Attach(p.table, fd, peer); err != nil {
			p.log.Warn("attach failed", zap.Error(err), zap.String("peer", peer))
			netio.Close(fd)
			continue
		}
		if err := p.react.Register(fd); err != nil {
			p.log.Warn("reactor register failed", zap.Error(err))
			p.table.Detach(fd, "register failed")
			continue
		}
		p.log.Info("subscriber connected", zap.String("peer", peer), zap.Int("fd", fd))
	}
}

const maxSubscriptionFrame = 3 + 2*symbolcache.MaxSymbols

func (p *Publisher) readSubscription(e *subscriber.Entry) {
	var subBuf [maxSubscriptionFrame]byte
	n, err := netio.Read(e.Fd, subBuf[:])
	if err != nil {
		if netio.IsTransient(err) {
			return
		}
		p.detach(e.Fd, "read error")
		return
	}
	if n == 0 {
		p.detach(e.Fd, "peer closed")
		return
	}
	ids, all, ok, oversized := wire.DecodeSubscription(subBuf[:n])
	if oversized {
		p.oversizedSubscribes.Add(1)
		p.log.Warn("rejected oversized subscription frame", zap.Int("fd", e.Fd))
		return
	}
	if !ok {
		// A subscription frame straddling two reads is dropped silently
		// rather than buffered across calls; the subscriber simply keeps
		// its previous subscription until the next clean read.
		return
	}
	if all {
		subscriber.SetSubscription(e, nil)
	} else {
		subscriber.SetSubscription(e, ids)
	}
}

func (p *Publisher) detach(fd int, reason string) {
	p.react.Deregister(fd)
	p.table.Detach(fd, reason)
	p.log.Info("subscriber detached", zap.Int("fd", fd), zap.String("reason", reason))
}

func (p *Publisher) emitAndBroadcastTick() {
	n, symbolID := p.ticks.EmitTick(p.scratch[:])
	if n == 0 {
		return // fault-injected drop: sequence still advanced, nothing to send
	}
	p.ticksEmitted.Add(1)
	_, disconnects := p.table.Broadcast(p.scratch[:n], symbolID)
	for _, d := range disconnects {
		p.detach(d.Fd, "send error")
	}
}

func (p *Publisher) broadcastHeartbeat() {
	n := p.ticks.EmitHeartbeat(p.scratch[:])
	p.heartbeats.Add(1)
	// Heartbeats go to every subscriber regardless of their per-symbol
	// subscription filter, but still go through the same backpressure
	// accounting as a regular tick broadcast.
	_, disconnects := p.table.BroadcastAll(p.scratch[:n])
	for _, d := range disconnects {
		p.detach(d.Fd, "send error")
	}
}

func (p *Publisher) closeAll() {
	p.table.ForEach(func(e *subscriber.Entry) {
		netio.Close(e.Fd)
	})
	p.react.Close()
	netio.Close(p.listenFd)
}
