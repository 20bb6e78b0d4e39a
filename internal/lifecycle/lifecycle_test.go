package lifecycle

import "testing"

func TestStopStopsRunning(t *testing.T) {
	c := New()
	if !c.Running() {
		t.Fatalf("expected fresh controller to be running")
	}
	c.Stop()
	if c.Running() {
		t.Fatalf("expected controller to stop running after Stop")
	}
}

func TestIndependentInstancesDoNotShareState(t *testing.T) {
	a, b := New(), New()
	a.Stop()
	if !b.Running() {
		t.Fatalf("stopping one controller must not affect another")
	}
}
