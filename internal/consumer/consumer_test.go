package consumer

import (
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"tickfeed/internal/publisher"
	"tickfeed/internal/ticksource"
)

func freePort(t *testing.T) int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("freePort: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestConsumerReceivesTicksFromPublisher(t *testing.T) {
	port := freePort(t)
	pub, err := publisher.New(publisher.Config{
		Port:       port,
		NumSymbols: 4,
		TickRate:   2000,
		Market:     ticksource.Neutral,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("publisher.New: %v", err)
	}
	go pub.Run()
	defer pub.Stop()

	cons, err := New(Config{
		Host:           "127.0.0.1",
		Port:           port,
		ConnectTimeout: 2 * time.Second,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("consumer.New: %v", err)
	}
	defer cons.Stop()

	done := make(chan error, 1)
	go func() { done <- cons.Run() }()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cons.Stats().Frames > 0 || cons.Stats().Trades > 0 || cons.Stats().Quotes > 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("consumer never observed a frame, stats=%+v", cons.Stats())
}

func TestConsumerPopulatesSymbolCache(t *testing.T) {
	port := freePort(t)
	pub, err := publisher.New(publisher.Config{
		Port:       port,
		NumSymbols: 2,
		TickRate:   5000,
		Market:     ticksource.Bullish,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("publisher.New: %v", err)
	}
	go pub.Run()
	defer pub.Stop()

	cons, err := New(Config{
		Host:           "127.0.0.1",
		Port:           port,
		ConnectTimeout: 2 * time.Second,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("consumer.New: %v", err)
	}
	defer cons.Stop()
	go cons.Run()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		st := cons.Cache().Snapshot(0)
		if st.LastPx > 0 || st.BestBid > 0 || st.BestAsk > 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("symbol cache entry 0 was never populated")
}
