package xerrors

import (
	"errors"
	"runtime"
	"strings"
	"testing"
)

var errSentinel = errors.New("sentinel")

func stackContains(pcs []uintptr, substr string) bool {
	frames := runtime.CallersFrames(pcs)
	for {
		fr, more := frames.Next()
		if strings.Contains(fr.Function, substr) {
			return true
		}
		if !more {
			return false
		}
	}
}

// New / Newf

func TestNew_Message(t *testing.T) {
	if got := New("redis unreachable").Error(); got != "redis unreachable" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestNew_StackContainsCaller(t *testing.T) {
	var hs interface{ StackPCs() []uintptr }
	if !errors.As(New("boom"), &hs) {
		t.Fatal("New should carry a stack")
	}
	if !stackContains(hs.StackPCs(), "TestNew_StackContainsCaller") {
		t.Fatal("stack should contain the calling test")
	}
}

func TestNewf_Formats(t *testing.T) {
	err := Newf("invalid port %d for %s", 70000, "ops")
	if err.Error() != "invalid port 70000 for ops" {
		t.Fatalf("Error() = %q", err.Error())
	}
}

// Wrap / Wrapf

func TestWrap_NilStaysNil(t *testing.T) {
	if Wrap(nil, "x") != nil || Wrapf(nil, "x %d", 1) != nil {
		t.Fatal("wrapping nil must return nil")
	}
}

func TestWrap_PreservesChain(t *testing.T) {
	err := Wrap(errSentinel, "save report")
	if !errors.Is(err, errSentinel) {
		t.Fatal("errors.Is should see the sentinel through Wrap")
	}
	if err.Error() != "save report: sentinel" {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestWrapf_RecordsPC(t *testing.T) {
	err := Wrapf(errSentinel, "put s3://%s", "bucket")
	var hp interface{ PC() uintptr }
	if !errors.As(err, &hp) || hp.PC() == 0 {
		t.Fatal("Wrapf should record the wrapping frame")
	}
}

// WithStack / EnsureTrace

func TestWithStack_Nil(t *testing.T) {
	if WithStack(nil) != nil || EnsureTrace(nil) != nil {
		t.Fatal("nil in, nil out")
	}
}

func TestEnsureTrace_DoesNotRestack(t *testing.T) {
	orig := New("first")
	if got := EnsureTrace(orig); got != orig {
		t.Fatal("EnsureTrace should return an already-stacked error unchanged")
	}
}

func TestEnsureTrace_AddsStack(t *testing.T) {
	err := EnsureTrace(errSentinel)
	var hs interface{ StackPCs() []uintptr }
	if !errors.As(err, &hs) || len(hs.StackPCs()) == 0 {
		t.Fatal("EnsureTrace should attach a stack to a bare error")
	}
	if !errors.Is(err, errSentinel) {
		t.Fatal("chain lost")
	}
}
