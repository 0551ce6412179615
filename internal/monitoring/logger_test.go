package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) { called = true })
	Logf("test message")
	if !called {
		t.Error("custom logger was not called")
	}

	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("no-op logger should not reach the previous logger")
	}
}

func TestComponent(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) { got = fmt.Sprintf(format, v...) })

	logf := Component("trajectory")
	logf("dropped %d samples", 3)
	if want := "[trajectory] dropped 3 samples"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	// Swapping the logger after Component was called still takes effect.
	got = ""
	SetLogger(nil)
	logf("ignored")
	if got != "" {
		t.Errorf("expected muted logger, got %q", got)
	}
}
