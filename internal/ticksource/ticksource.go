// ticksource.go — stochastic per-symbol tick generator: geometric
// Brownian motion price path, cached-pair Box-Muller normal sampling,
// bid/ask spread simulation, and fault injection.
//
// Grounded on original_source/include/tick_generator.h for the exact
// update rule, the cached-pair Box-Muller optimization, and the
// market-condition drift constants; math/rand/v2 replaces
// std::mt19937+std::normal_distribution because no example repo in the
// pack reaches for a third-party RNG either.
package ticksource

import (
	"math"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"tickfeed/internal/wire"
)

// MarketCondition selects the drift applied to every symbol.
type MarketCondition int

const (
	Neutral MarketCondition = iota
	Bullish
	Bearish
)

func driftFor(m MarketCondition) float64 {
	switch m {
	case Bullish:
		return 0.05
	case Bearish:
		return -0.05
	default:
		return 0.0
	}
}

const (
	minPrice   = 1.0
	maxPrice   = 100_000.0
	tradeRatio = 0.30
	defaultDt  = 0.001
)

type symbolState struct {
	price      float64
	bidPrice   float64
	askPrice   float64
	volatility float64
	drift      float64
	bidQty     uint32
	askQty     uint32
	lastTrdQty uint32
}

// TickSource is a pure producer: no I/O, no blocking, purely
// in-memory state advance plus wire encoding.
type TickSource struct {
	symbols []symbolState
	// seq is bumped only from the owning loop thread but read by
	// CurrentSequence from the diagnostics HTTP handler goroutine, so
	// it's an atomic rather than a plain uint32.
	seq    atomic.Uint32
	dt     float64
	market MarketCondition

	rng *rand.Rand

	hasSpare bool
	spare    float64

	faultInject bool
	faultTick   uint64
}

// New constructs a TickSource for numSymbols symbols, seeded once from
// seed.
func New(numSymbols int, seed uint64) *TickSource {
	ts := &TickSource{
		symbols: make([]symbolState, numSymbols),
		dt:      defaultDt,
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
	ts.reset()
	return ts
}

func (ts *TickSource) reset() {
	for i := range ts.symbols {
		ts.symbols[i] = symbolState{
			price:      100.0 + float64(i),
			bidPrice:   100.0 + float64(i),
			askPrice:   100.0 + float64(i),
			volatility: 0.01 + 0.002*float64(i%10),
			drift:      driftFor(ts.market),
			bidQty:     100,
			askQty:     100,
		}
	}
	ts.seq.Store(0)
	ts.hasSpare = false
}

// Reset restores every symbol's price path to its initial value.
func (ts *TickSource) Reset() { ts.reset() }

// SetMarketCondition rewrites drift across every symbol.
func (ts *TickSource) SetMarketCondition(m MarketCondition) {
	ts.market = m
	d := driftFor(m)
	for i := range ts.symbols {
		ts.symbols[i].drift = d
	}
}

// SetTimeStep overrides the GBM integration step (default 1ms).
func (ts *TickSource) SetTimeStep(dt float64) { ts.dt = dt }

// SetFaultInjection enables or disables the one-in-100 dropped-tick
// fault injection that still advances the sequence number.
func (ts *TickSource) SetFaultInjection(enabled bool) { ts.faultInject = enabled }

// generateNormal returns one standard-normal sample via the cached-pair
// Box-Muller transform: each call to the underlying uniform generator
// pair yields two normal samples, so every other call is free.
func (ts *TickSource) generateNormal() float64 {
	if ts.hasSpare {
		ts.hasSpare = false
		return ts.spare
	}
	var u1, u2 float64
	for {
		u1 = ts.rng.Float64()
		if u1 > 1e-300 {
			break
		}
	}
	u2 = ts.rng.Float64()
	r := math.Sqrt(-2 * math.Log(u1))
	theta := 2 * math.Pi * u2
	z0 := r * math.Cos(theta)
	z1 := r * math.Sin(theta)
	ts.spare = z1
	ts.hasSpare = true
	return z0
}

func (ts *TickSource) updatePrice(s *symbolState) {
	dw := ts.generateNormal() * math.Sqrt(ts.dt)
	ds := s.drift*s.price*ts.dt + s.volatility*s.price*dw
	p := s.price + ds
	if p < minPrice {
		p = minPrice
	}
	if p > maxPrice {
		p = maxPrice
	}
	s.price = p
}

func (ts *TickSource) updateSpread(s *symbolState) {
	halfSpread := (0.0005 + ts.rng.Float64()*0.0015) // small fixed range
	spreadUnit := math.Round(s.price*halfSpread*100) / 100
	s.bidPrice = s.price - spreadUnit
	s.askPrice = s.price + spreadUnit
	if s.bidPrice < 0 {
		s.bidPrice = 0
	}
}

func randomWalkQty(rng *rand.Rand, q uint32) uint32 {
	delta := rng.IntN(21) - 10 // [-10, 10]
	nq := int64(q) + int64(delta)
	if nq < 1 {
		nq = 1
	}
	return uint32(nq)
}

func nowNs() uint64 { return uint64(time.Now().UnixNano()) }

// EmitTick advances one randomly chosen symbol's price by one step and
// encodes the resulting Trade or Quote frame into out, returning the
// number of bytes written and the chosen symbol id.
func (ts *TickSource) EmitTick(out []byte) (length int, symbolID uint16) {
	idx := ts.rng.IntN(len(ts.symbols))
	s := &ts.symbols[idx]
	ts.updatePrice(s)
	ts.updateSpread(s)

	if ts.faultInject {
		ts.faultTick++
		if ts.faultTick%100 == 0 {
			ts.seq.Add(1) // bump sequence but discard the tick: deliberate gap
			return 0, uint16(idx)
		}
	}

	seq := ts.seq.Add(1)
	h := wire.Header{Seq: seq, TsNs: nowNs(), SymbolID: uint16(idx)}

	if ts.rng.Float64() < tradeRatio {
		perturb := 1 + (ts.rng.Float64()-0.5)*0.002
		px := s.price * perturb
		s.lastTrdQty = randomWalkQty(ts.rng, s.lastTrdQty|1)
		n := wire.EncodeTrade(h, wire.Trade{Price: px, Qty: s.lastTrdQty}, out)
		return n, uint16(idx)
	}

	s.bidQty = randomWalkQty(ts.rng, s.bidQty)
	s.askQty = randomWalkQty(ts.rng, s.askQty)
	n := wire.EncodeQuote(h, wire.Quote{
		BidPx: s.bidPrice, BidQty: s.bidQty,
		AskPx: s.askPrice, AskQty: s.askQty,
	}, out)
	return n, uint16(idx)
}

// EmitHeartbeat encodes a Heartbeat frame carrying the next sequence
// number into out.
func (ts *TickSource) EmitHeartbeat(out []byte) int {
	seq := ts.seq.Add(1)
	h := wire.Header{Seq: seq, TsNs: nowNs()}
	return wire.EncodeHeartbeat(h, out)
}

// CurrentSequence returns the most recently stamped sequence number.
func (ts *TickSource) CurrentSequence() uint32 { return ts.seq.Load() }
