package pacing

import (
	"context"
	"testing"
	"time"
)

func TestWait_ZeroDelayNeverBlocks(t *testing.T) {
	start := time.Now()
	if err := New(0, 0).Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Millisecond {
		t.Errorf("zero delay waited %v", elapsed)
	}
}

func TestWait_NilPacer(t *testing.T) {
	var p *Pacer
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("nil pacer should be a no-op, got %v", err)
	}
}

func TestWait_Delays(t *testing.T) {
	start := time.Now()
	if err := New(20*time.Millisecond, 0).Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("waited only %v, want at least the base delay", elapsed)
	}
}

func TestWait_JitterStaysBounded(t *testing.T) {
	p := New(10*time.Millisecond, 0.5)
	for i := 0; i < 5; i++ {
		start := time.Now()
		if err := p.Wait(context.Background()); err != nil {
			t.Fatalf("Wait: %v", err)
		}
		if elapsed := time.Since(start); elapsed < 4*time.Millisecond || elapsed > 100*time.Millisecond {
			t.Errorf("jittered wait %v outside plausible bounds", elapsed)
		}
	}
}

func TestWait_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := New(time.Hour, 0).Wait(ctx); err == nil {
		t.Fatal("expected context error")
	}
}
