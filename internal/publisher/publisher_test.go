package publisher

import (
	"fmt"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"
)

func freePort(t *testing.T) int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("freePort: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestPublisherAcceptsAndBroadcasts(t *testing.T) {
	port := freePort(t)
	log := zap.NewNop()
	pub, err := New(Config{Port: port, NumSymbols: 5, TickRate: 1000}, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	go pub.Run()
	defer pub.Stop()

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	var conn net.Conn
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("expected at least one frame, read failed: %v", err)
	}
	if n == 0 {
		t.Fatalf("expected non-empty read")
	}
}

func TestPublisherHeartbeatReachesSubscriberWithNoTicks(t *testing.T) {
	port := freePort(t)
	log := zap.NewNop()
	pub, err := New(Config{Port: port, NumSymbols: 3, TickRate: 0}, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	go pub.Run()
	defer pub.Stop()

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	var conn net.Conn
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// TickRate is 0 so the only traffic possible is the 1Hz heartbeat.
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("expected a heartbeat frame, read failed: %v", err)
	}
	if n == 0 {
		t.Fatalf("expected non-empty read")
	}
}
