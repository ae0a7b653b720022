package syncx

import (
	"sync"
	"testing"
)

func TestGuardGetSet(t *testing.T) {
	g := NewGuard(float32(0))
	g.Set(0.5)
	if got := g.Get(); got != 0.5 {
		t.Errorf("Get() = %v, want 0.5", got)
	}
}

func TestGuardUpdate(t *testing.T) {
	g := NewGuard(10)
	g.Update(func(v *int) { *v += 5 })
	if got := g.Get(); got != 15 {
		t.Errorf("Get() = %d, want 15", got)
	}
}

func TestGuardSwap(t *testing.T) {
	g := NewGuard("a")
	old := g.Swap("b")
	if old != "a" || g.Get() != "b" {
		t.Errorf("Swap: old=%q now=%q", old, g.Get())
	}
}

func TestGuardConcurrent(t *testing.T) {
	g := NewGuard(0)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Update(func(v *int) { *v++ })
		}()
	}
	wg.Wait()
	if got := g.Get(); got != 100 {
		t.Errorf("Get() = %d, want 100", got)
	}
}
