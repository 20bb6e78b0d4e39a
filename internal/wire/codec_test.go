package wire

import "testing"

func TestEncodeDecodeQuoteRoundTrip(t *testing.T) {
	h := Header{Seq: 7, TsNs: 1_000_000_000, SymbolID: 42}
	q := Quote{BidPx: 100.25, BidQty: 1000, AskPx: 100.75, AskQty: 2000}
	buf := make([]byte, QuoteSize)
	n := EncodeQuote(h, q, buf)
	if n != QuoteSize {
		t.Fatalf("encoded length = %d, want %d", n, QuoteSize)
	}
	if !VerifyChecksum(buf) {
		t.Fatalf("checksum did not verify on fresh encode")
	}
	gh, gq := DecodeQuote(buf)
	gh.Kind = KindQuote
	if gh != (Header{Kind: KindQuote, Seq: 7, TsNs: 1_000_000_000, SymbolID: 42}) {
		t.Fatalf("header mismatch: %+v", gh)
	}
	if gq != q {
		t.Fatalf("payload mismatch: %+v", gq)
	}
}

func TestEncodeDecodeTradeRoundTrip(t *testing.T) {
	h := Header{Seq: 99, TsNs: 42, SymbolID: 1}
	tr := Trade{Price: 55.5, Qty: 10}
	buf := make([]byte, TradeSize)
	EncodeTrade(h, tr, buf)
	_, got := DecodeTrade(buf)
	if got != tr {
		t.Fatalf("trade mismatch: %+v", got)
	}
}

func TestEncodeHeartbeat(t *testing.T) {
	buf := make([]byte, HeartbeatSize)
	n := EncodeHeartbeat(Header{Seq: 3}, buf)
	if n != HeartbeatSize {
		t.Fatalf("heartbeat length = %d", n)
	}
	if !VerifyChecksum(buf) {
		t.Fatalf("heartbeat checksum invalid")
	}
	got := DecodeHeartbeat(buf)
	if got.Seq != 3 || got.Kind != KindHeartbeat {
		t.Fatalf("decoded heartbeat header wrong: %+v", got)
	}
}

func TestChecksumDetectsCorruption(t *testing.T) {
	h := Header{Kind: KindQuote, Seq: 7, TsNs: 1_000_000_000, SymbolID: 42}
	q := Quote{BidPx: 100.25, BidQty: 1000, AskPx: 100.75, AskQty: 2000}
	buf := make([]byte, QuoteSize)
	EncodeQuote(h, q, buf)
	buf[20] ^= 0xFF // corrupt a payload byte inside the checksummed region
	if VerifyChecksum(buf) {
		t.Fatalf("expected checksum mismatch after corruption")
	}
}

func TestSizeOfInvalidKind(t *testing.T) {
	if SizeOf(Kind(99)) != 0 {
		t.Fatalf("SizeOf(unknown kind) should be 0")
	}
}

func TestChecksumRemainderFold(t *testing.T) {
	// 5 bytes: one full word plus one remainder byte exercised at
	// offset (4 % 4) * 8 == 0.
	a := checksum([]byte{1, 2, 3, 4, 5})
	b := checksum([]byte{1, 2, 3, 4})
	if a == b {
		t.Fatalf("remainder byte must affect checksum")
	}
}
