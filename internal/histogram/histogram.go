// histogram.go — LatencyHistogram: fixed-width linear buckets plus
// overflow, atomic relaxed counters, CAS-maintained min/max.
//
// Grounded on control/control.go's style of small package-level atomics
// with inlinable accessors, generalized into a struct so Publisher and
// Consumer can each own an independent instance.
package histogram

import (
	"fmt"
	"io"
	"math"
	"sync/atomic"
)

const (
	NumBuckets    = 1000
	BucketWidthNs = 1000 // 1us buckets, covering [0, 1ms)
	MaxTrackedNs  = NumBuckets * BucketWidthNs
	ringSize      = 1 << 20
)

// Histogram records latency samples in nanoseconds without locks.
// Safe for any number of concurrent Record callers and concurrent
// readers of the query methods.
type Histogram struct {
	buckets  [NumBuckets + 1]uint64 // last slot is overflow
	count    uint64
	sum      uint64
	min      uint64
	max      uint64
	ring     []uint64
	ringHead uint64
	keepRing bool
}

// New returns a histogram with min initialized to "unset" (MaxUint64)
// so the first sample always wins the CAS race. keepRing enables the
// raw-sample ring buffer used only for optional export; the ring's
// backing storage is allocated only when keepRing is true, so callers
// that don't need it never pay for it.
func New(keepRing bool) *Histogram {
	h := &Histogram{keepRing: keepRing}
	if keepRing {
		h.ring = make([]uint64, ringSize)
	}
	atomic.StoreUint64(&h.min, math.MaxUint64)
	return h
}

// Record adds one sample. Never blocks, never allocates.
//
//go:nosplit
func (h *Histogram) Record(ns uint64) {
	var idx int
	if ns < MaxTrackedNs {
		idx = int(ns / BucketWidthNs)
	} else {
		idx = NumBuckets
	}
	atomic.AddUint64(&h.buckets[idx], 1)
	atomic.AddUint64(&h.count, 1)
	atomic.AddUint64(&h.sum, ns)
	casMin(&h.min, ns)
	casMax(&h.max, ns)
	if h.keepRing {
		i := atomic.AddUint64(&h.ringHead, 1) - 1
		atomic.StoreUint64(&h.ring[i&(ringSize-1)], ns)
	}
}

//go:nosplit
func casMin(p *uint64, v uint64) {
	for {
		cur := atomic.LoadUint64(p)
		if v >= cur {
			return
		}
		if atomic.CompareAndSwapUint64(p, cur, v) {
			return
		}
	}
}

//go:nosplit
func casMax(p *uint64, v uint64) {
	for {
		cur := atomic.LoadUint64(p)
		if v <= cur {
			return
		}
		if atomic.CompareAndSwapUint64(p, cur, v) {
			return
		}
	}
}

// Count returns the total number of recorded samples.
func (h *Histogram) Count() uint64 { return atomic.LoadUint64(&h.count) }

// Sum returns the running sum of all sample values in nanoseconds.
func (h *Histogram) Sum() uint64 { return atomic.LoadUint64(&h.sum) }

// Min returns the smallest recorded sample, or 0 if none recorded.
func (h *Histogram) Min() uint64 {
	v := atomic.LoadUint64(&h.min)
	if v == math.MaxUint64 {
		return 0
	}
	return v
}

// Max returns the largest recorded sample.
func (h *Histogram) Max() uint64 { return atomic.LoadUint64(&h.max) }

// Mean returns sum/count, or 0 if no samples recorded.
func (h *Histogram) Mean() float64 {
	c := h.Count()
	if c == 0 {
		return 0
	}
	return float64(h.Sum()) / float64(c)
}

// Percentile scans buckets in order and returns the midpoint of the
// bucket in which the cumulative count first reaches ceil(p*total). For
// the overflow bucket it returns the observed max instead of a bucket
// midpoint, since the overflow bucket has no fixed width.
func (h *Histogram) Percentile(p float64) uint64 {
	total := h.Count()
	if total == 0 {
		return 0
	}
	target := uint64(math.Ceil(p * float64(total)))
	if target == 0 {
		target = 1
	}
	var cum uint64
	for i := 0; i < NumBuckets; i++ {
		cum += atomic.LoadUint64(&h.buckets[i])
		if cum >= target {
			lo := uint64(i) * BucketWidthNs
			return lo + BucketWidthNs/2
		}
	}
	return h.Max()
}

// Reset clears all counters; callers must ensure no concurrent Record
// is racing a Reset (there is no coordination protocol for this, unlike
// SymbolCache's reset, since the spec places no such requirement on the
// histogram).
func (h *Histogram) Reset() {
	for i := range h.buckets {
		atomic.StoreUint64(&h.buckets[i], 0)
	}
	atomic.StoreUint64(&h.count, 0)
	atomic.StoreUint64(&h.sum, 0)
	atomic.StoreUint64(&h.min, math.MaxUint64)
	atomic.StoreUint64(&h.max, 0)
	atomic.StoreUint64(&h.ringHead, 0)
}

// ExportCSV writes one line per non-empty bucket "start_ns,end_ns,count"
// and, if the overflow bucket is non-empty, a terminal line
// "MAX_TRACKED,inf,overflow_count".
func (h *Histogram) ExportCSV(w io.Writer) error {
	for i := 0; i < NumBuckets; i++ {
		c := atomic.LoadUint64(&h.buckets[i])
		if c == 0 {
			continue
		}
		start := uint64(i) * BucketWidthNs
		end := start + BucketWidthNs
		if _, err := fmt.Fprintf(w, "%d,%d,%d\n", start, end, c); err != nil {
			return err
		}
	}
	if c := atomic.LoadUint64(&h.buckets[NumBuckets]); c > 0 {
		if _, err := fmt.Fprintf(w, "%d,inf,%d\n", uint64(MaxTrackedNs), c); err != nil {
			return err
		}
	}
	return nil
}
