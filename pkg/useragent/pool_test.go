package useragent

import (
	"strings"
	"testing"
)

func TestNewPool_Defaults(t *testing.T) {
	p := NewPool(nil)
	if p.Size() != len(DefaultPool) {
		t.Errorf("size = %d, want %d", p.Size(), len(DefaultPool))
	}
	if ua := p.Next(); !strings.HasPrefix(ua, "Mozilla/5.0") {
		t.Errorf("default UA %q does not look like a browser", ua)
	}
}

func TestPool_RoundRobin(t *testing.T) {
	p := NewPool([]string{"ua-a", "ua-b", "ua-c"})

	got := []string{p.Next(), p.Next(), p.Next(), p.Next()}
	want := []string{"ua-a", "ua-b", "ua-c", "ua-a"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Next()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPool_Random(t *testing.T) {
	p := NewPool([]string{"ua-a", "ua-b"})
	for i := 0; i < 20; i++ {
		ua := p.Random()
		if ua != "ua-a" && ua != "ua-b" {
			t.Fatalf("Random() = %q, not in pool", ua)
		}
	}
}

func TestPool_CopiesInput(t *testing.T) {
	src := []string{"ua-a"}
	p := NewPool(src)
	src[0] = "mutated"
	if got := p.Next(); got != "ua-a" {
		t.Errorf("pool shares caller's slice: %q", got)
	}
}
