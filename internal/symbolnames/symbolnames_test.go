package symbolnames

import "testing"

func TestNameFallsBackToSynthetic(t *testing.T) {
	if got := Name(7, nil); got != "SYM007" {
		t.Fatalf("got %q, want SYM007", got)
	}
}

func TestNameUsesProvidedTable(t *testing.T) {
	names := []string{"RELIANCE", "TCS", "INFY"}
	if got := Name(1, names); got != "TCS" {
		t.Fatalf("got %q, want TCS", got)
	}
}

func TestNameFallsBackWhenIndexOutOfRange(t *testing.T) {
	names := []string{"RELIANCE"}
	if got := Name(5, names); got != "SYM005" {
		t.Fatalf("got %q, want SYM005", got)
	}
}

func TestNameFallsBackOnEmptyEntry(t *testing.T) {
	names := []string{"RELIANCE", ""}
	if got := Name(1, names); got != "SYM001" {
		t.Fatalf("got %q, want SYM001", got)
	}
}
