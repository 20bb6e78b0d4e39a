// codec.go — WireCodec: encode/decode of the three frame kinds and the
// XOR checksum defined over 4-byte little-endian words.
//
// Grounded on protocol.h's calculate_checksum and on ws_io.go's
// length-prefixed, buffer-relative decode style (readFrame), adapted from
// a WebSocket frame to this package's fixed-header + fixed-payload wire
// format. encoding/binary is used instead of unsafe struct casts: Go's
// struct alignment does not reproduce this packed, checksum-trailed wire
// layout.
package wire

import (
	"encoding/binary"
	"math"
)

func f64bits(f float64) uint64     { return math.Float64bits(f) }
func f64frombits(u uint64) float64 { return math.Float64frombits(u) }

// checksum computes the XOR-of-4-byte-words checksum over b exactly as
// defined in protocol.h: full little-endian uint32 words are XORed
// together; any trailing remainder bytes are folded into the running
// checksum at byte offset (i mod 4) * 8 rather than ignored.
//
//go:nosplit
//go:inline
func checksum(b []byte) uint32 {
	var c uint32
	n := len(b)
	full := n - n%4
	for i := 0; i < full; i += 4 {
		c ^= binary.LittleEndian.Uint32(b[i : i+4])
	}
	for i := full; i < n; i++ {
		c ^= uint32(b[i]) << uint((i%4)*8)
	}
	return c
}

func putHeader(out []byte, h Header) {
	binary.LittleEndian.PutUint16(out[0:2], uint16(h.Kind))
	binary.LittleEndian.PutUint32(out[2:6], h.Seq)
	binary.LittleEndian.PutUint64(out[6:14], h.TsNs)
	binary.LittleEndian.PutUint16(out[14:16], h.SymbolID)
}

func getHeader(b []byte) Header {
	return Header{
		Kind:     Kind(binary.LittleEndian.Uint16(b[0:2])),
		Seq:      binary.LittleEndian.Uint32(b[2:6]),
		TsNs:     binary.LittleEndian.Uint64(b[6:14]),
		SymbolID: binary.LittleEndian.Uint16(b[14:16]),
	}
}

// EncodeTrade writes a 32-byte Trade frame (header h forced to
// KindTrade) into out, which must have length >= TradeSize, and returns
// the number of bytes written.
func EncodeTrade(h Header, p Trade, out []byte) int {
	h.Kind = KindTrade
	putHeader(out, h)
	binary.LittleEndian.PutUint64(out[16:24], f64bits(p.Price))
	binary.LittleEndian.PutUint32(out[24:28], p.Qty)
	c := checksum(out[:TradeSize-ChecksumSize])
	binary.LittleEndian.PutUint32(out[TradeSize-ChecksumSize:TradeSize], c)
	return TradeSize
}

// EncodeQuote writes a 44-byte Quote frame into out.
func EncodeQuote(h Header, p Quote, out []byte) int {
	h.Kind = KindQuote
	putHeader(out, h)
	binary.LittleEndian.PutUint64(out[16:24], f64bits(p.BidPx))
	binary.LittleEndian.PutUint32(out[24:28], p.BidQty)
	binary.LittleEndian.PutUint64(out[28:36], f64bits(p.AskPx))
	binary.LittleEndian.PutUint32(out[36:40], p.AskQty)
	c := checksum(out[:QuoteSize-ChecksumSize])
	binary.LittleEndian.PutUint32(out[QuoteSize-ChecksumSize:QuoteSize], c)
	return QuoteSize
}

// EncodeHeartbeat writes a 20-byte Heartbeat frame into out.
func EncodeHeartbeat(h Header, out []byte) int {
	h.Kind = KindHeartbeat
	putHeader(out, h)
	c := checksum(out[:HeartbeatSize-ChecksumSize])
	binary.LittleEndian.PutUint32(out[HeartbeatSize-ChecksumSize:HeartbeatSize], c)
	return HeartbeatSize
}

// DecodeTrade parses a complete Trade frame from b (len(b) must equal
// TradeSize and the checksum must already have been verified by the
// caller, typically the Reassembler).
func DecodeTrade(b []byte) (Header, Trade) {
	h := getHeader(b)
	t := Trade{
		Price: f64frombits(binary.LittleEndian.Uint64(b[16:24])),
		Qty:   binary.LittleEndian.Uint32(b[24:28]),
	}
	return h, t
}

// DecodeQuote parses a complete Quote frame from b.
func DecodeQuote(b []byte) (Header, Quote) {
	h := getHeader(b)
	q := Quote{
		BidPx:  f64frombits(binary.LittleEndian.Uint64(b[16:24])),
		BidQty: binary.LittleEndian.Uint32(b[24:28]),
		AskPx:  f64frombits(binary.LittleEndian.Uint64(b[28:36])),
		AskQty: binary.LittleEndian.Uint32(b[36:40]),
	}
	return h, q
}

// DecodeHeartbeat parses a complete Heartbeat frame from b.
func DecodeHeartbeat(b []byte) Header {
	return getHeader(b)
}

// VerifyChecksum recomputes the checksum over b[:len(b)-4] and compares
// it to the trailing 4 bytes.
//
//go:nosplit
//go:inline
func VerifyChecksum(b []byte) bool {
	n := len(b)
	if n < ChecksumSize {
		return false
	}
	want := binary.LittleEndian.Uint32(b[n-ChecksumSize:])
	return checksum(b[:n-ChecksumSize]) == want
}

// ViewAs returns a Header decoded from b along with the raw payload+
// checksum slice, without copying. kind must already be known valid and
// len(b) must equal SizeOf(kind); callers (the Reassembler) enforce
// this before calling.
func ViewAs(kind Kind, b []byte) (Header, []byte, error) {
	if SizeOf(kind) == 0 {
		return Header{}, nil, ErrInvalidKind
	}
	return getHeader(b), b[HeaderSize : len(b)-ChecksumSize], nil
}
