package obs

import "testing"

func TestInitAcceptsValidLevel(t *testing.T) {
	if err := Init("debug", false); err != nil {
		t.Fatal(err)
	}
	if L() == nil {
		t.Fatal("L() returned nil logger")
	}
}

func TestInitRejectsInvalidLevel(t *testing.T) {
	if err := Init("not-a-level", false); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestNamedReturnsScopedLogger(t *testing.T) {
	if err := Init("info", true); err != nil {
		t.Fatal(err)
	}
	if Named("dispatch") == nil {
		t.Fatal("Named returned nil")
	}
}
