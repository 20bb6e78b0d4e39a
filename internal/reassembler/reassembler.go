// reassembler.go — streaming frame reassembly over a growable byte
// buffer, with single-byte resync on malformed or invalid frames.
//
// Grounded on ws_io.go's ensureRoom/compaction loop (readFrame),
// generalized from WebSocket framing to this package's fixed-header,
// fixed-length binary frames. Growth bounds: 4 MiB initial, doubling to
// a 16 MiB hard cap.
package reassembler

import (
	"sync/atomic"

	"tickfeed/internal/wire"
)

const (
	initialCapacity = 4 << 20
	maxCapacity     = 16 << 20
)

// Callbacks groups the per-frame-kind handlers invoked by Drain. Each
// slice argument is a reference into the Reassembler's internal buffer
// and must not be retained past the callback's return.
type Callbacks struct {
	OnTrade     func(h wire.Header, t wire.Trade)
	OnQuote     func(h wire.Header, q wire.Quote)
	OnHeartbeat func(h wire.Header)
	OnGap       func(expected, received uint32)
	// OnRaw, if set, fires for every successfully checksummed frame
	// (trade, quote, or heartbeat) with its undecoded wire bytes, ahead
	// of the kind-specific callback. raw is a slice into the
	// Reassembler's internal buffer and must not be retained.
	OnRaw func(h wire.Header, kind wire.Kind, raw []byte)
}

// Counters tracks per-kind and per-error frame totals. Every field is an
// atomic.Uint64 — the Reassembler's own loop is the only writer, but the
// diagnostics endpoint reads these fields from a separate HTTP handler
// goroutine, so plain uint64s would race.
type Counters struct {
	Frames         atomic.Uint64
	Trades         atomic.Uint64
	Quotes         atomic.Uint64
	Gaps           atomic.Uint64
	ChecksumErrors atomic.Uint64
	Malformed      atomic.Uint64
}

// Reassembler accumulates bytes from a TCP stream and emits a callback
// for each complete, valid frame it can parse out of them.
type Reassembler struct {
	buf []byte
	r   int
	w   int

	haveExpected bool
	expectedSeq  uint32

	Counters Counters
}

// New returns an empty reassembler with the spec's initial 4 MiB
// capacity.
func New() *Reassembler {
	return &Reassembler{buf: make([]byte, initialCapacity)}
}

// Ingest appends b to the internal buffer, compacting or growing as
// needed. If the buffer is already at its hard cap and has no room, the
// ingest is dropped and Malformed is incremented — the TCP session
// itself is unaffected; the caller simply stops delivering more bytes
// until Drain frees space.
func (re *Reassembler) Ingest(b []byte) {
	need := len(b)
	if need == 0 {
		return
	}
	if cap(re.buf)-re.w < need {
		// Compact first.
		used := re.w - re.r
		copy(re.buf, re.buf[re.r:re.w])
		re.r, re.w = 0, used
		for cap(re.buf)-re.w < need {
			if len(re.buf) >= maxCapacity {
				re.Counters.Malformed.Add(1)
				return
			}
			newCap := len(re.buf) * 2
			if newCap > maxCapacity {
				newCap = maxCapacity
			}
			grown := make([]byte, newCap)
			copy(grown, re.buf[:re.w])
			re.buf = grown
		}
	}
	re.w += copy(re.buf[re.w:re.w+need], b)
}

// ParseResult is the outcome of one ParseOne call.
type ParseResult int

const (
	NeedMore ParseResult = iota
	Ok
	Gap
	Invalid
	ChecksumError
)

// ParseOne attempts to parse a single frame starting at the read
// cursor, invoking the matching callback on success. It never blocks
// and always makes forward progress on malformed input (advances the
// read cursor by at least one byte).
func (re *Reassembler) ParseOne(cb Callbacks) ParseResult {
	avail := re.w - re.r
	if avail < wire.HeaderSize {
		return NeedMore
	}
	region := re.buf[re.r:re.w]
	kindVal := uint16(region[0]) | uint16(region[1])<<8
	kind := wire.Kind(kindVal)
	l := wire.SizeOf(kind)
	if l == 0 {
		re.r++
		re.Counters.Malformed.Add(1)
		return Invalid
	}
	if l > wire.MaxFrameSize {
		re.r++
		re.Counters.Malformed.Add(1)
		return Invalid
	}
	if avail < l {
		return NeedMore
	}
	frame := re.buf[re.r : re.r+l]
	if !wire.VerifyChecksum(frame) {
		re.r++
		re.Counters.ChecksumErrors.Add(1)
		return ChecksumError
	}

	result := Ok
	h, _, _ := wire.ViewAs(kind, frame)
	if !re.haveExpected {
		re.haveExpected = true
		re.expectedSeq = h.Seq + 1
	} else if h.Seq != re.expectedSeq {
		re.Counters.Gaps.Add(1)
		if cb.OnGap != nil {
			cb.OnGap(re.expectedSeq, h.Seq)
		}
		re.expectedSeq = h.Seq + 1
		result = Gap
	} else {
		re.expectedSeq = h.Seq + 1
	}

	if cb.OnRaw != nil {
		cb.OnRaw(h, kind, frame)
	}

	switch kind {
	case wire.KindTrade:
		_, t := wire.DecodeTrade(frame)
		re.Counters.Trades.Add(1)
		if cb.OnTrade != nil {
			cb.OnTrade(h, t)
		}
	case wire.KindQuote:
		_, q := wire.DecodeQuote(frame)
		re.Counters.Quotes.Add(1)
		if cb.OnQuote != nil {
			cb.OnQuote(h, q)
		}
	case wire.KindHeartbeat:
		if cb.OnHeartbeat != nil {
			cb.OnHeartbeat(h)
		}
	}
	re.Counters.Frames.Add(1)
	re.r += l
	return result
}

// Drain repeatedly calls ParseOne until it returns NeedMore or the
// buffer is empty, then resets the cursors to the start of the buffer
// once fully drained (an implicit, zero-cost compaction).
func (re *Reassembler) Drain(cb Callbacks) {
	for re.r < re.w {
		if re.ParseOne(cb) == NeedMore {
			break
		}
	}
	if re.r == re.w {
		re.r, re.w = 0, 0
	}
}

// ExpectedSeq returns the 32-bit counter the reassembler expects the
// next accepted frame's sequence number to equal.
func (re *Reassembler) ExpectedSeq() uint32 { return re.expectedSeq }
