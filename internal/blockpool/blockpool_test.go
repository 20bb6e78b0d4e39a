package blockpool

import "testing"

func TestAllocateDeallocateRoundTrip(t *testing.T) {
	p := New(64, 4)
	var got [][]byte
	for i := 0; i < 4; i++ {
		b, ok := p.Allocate()
		if !ok {
			t.Fatalf("unexpected exhaustion at %d", i)
		}
		got = append(got, b)
	}
	if _, ok := p.Allocate(); ok {
		t.Fatalf("expected exhaustion on 5th allocation")
	}
	for _, b := range got {
		p.Deallocate(b)
	}
	if p.Available() != 4 {
		t.Fatalf("available = %d, want 4", p.Available())
	}
}

func TestAllocatedAccounting(t *testing.T) {
	p := New(64, 8)
	b1, _ := p.Allocate()
	b2, _ := p.Allocate()
	if p.Allocated() != 2 {
		t.Fatalf("allocated = %d, want 2", p.Allocated())
	}
	p.Deallocate(b1)
	p.Deallocate(b2)
	if p.Allocated() != 0 {
		t.Fatalf("allocated = %d, want 0", p.Allocated())
	}
}

func TestResetFreesAllBlocks(t *testing.T) {
	p := New(64, 2)
	p.Allocate()
	p.Allocate()
	p.Reset()
	if p.Available() != 2 {
		t.Fatalf("available after reset = %d, want 2", p.Available())
	}
}

func TestConcurrentAllocateDeallocate(t *testing.T) {
	p := New(64, 64)
	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func() {
			for i := 0; i < 1000; i++ {
				b, ok := p.Allocate()
				if ok {
					p.Deallocate(b)
				}
			}
			done <- struct{}{}
		}()
	}
	for g := 0; g < 8; g++ {
		<-done
	}
	if p.Allocated() != 0 {
		t.Fatalf("allocated after stress = %d, want 0", p.Allocated())
	}
}
