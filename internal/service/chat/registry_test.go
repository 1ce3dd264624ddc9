package chat

import (
	"testing"
	"time"
)

func TestRunRegistryRegisterAndGet(t *testing.T) {
	registry := NewRunRegistry(time.Minute, time.Minute)
	log := NewLog("run-1", nil)

	if !registry.Register("run-1", log) {
		t.Fatal("first register returned false")
	}
	if registry.Register("run-1", NewLog("run-1", nil)) {
		t.Error("duplicate register returned true")
	}

	if got := registry.Get("run-1"); got != log {
		t.Errorf("got %v, want the registered log", got)
	}
	if got := registry.Get("unknown"); got != nil {
		t.Errorf("got %v for unknown run, want nil", got)
	}
	if registry.Count() != 1 {
		t.Errorf("got count %d, want 1", registry.Count())
	}
}

func TestRunRegistryRemove(t *testing.T) {
	registry := NewRunRegistry(time.Minute, time.Minute)
	registry.Register("run-1", NewLog("run-1", nil))

	registry.Remove("run-1")
	registry.Remove("run-1") // idempotent

	if registry.Get("run-1") != nil {
		t.Error("log still present after remove")
	}
}

func TestRunRegistryCleanupEvictsClosedLogs(t *testing.T) {
	registry := NewRunRegistry(time.Minute, time.Millisecond)

	open := NewLog("open", nil)
	closed := NewLog("closed", nil)
	closed.Close()

	registry.Register("open", open)
	registry.Register("closed", closed)

	// First sweep only starts the retention clock.
	registry.cleanup()
	if registry.Count() != 2 {
		t.Fatalf("got count %d after first sweep, want 2", registry.Count())
	}

	time.Sleep(5 * time.Millisecond)
	registry.cleanup()

	if registry.Get("closed") != nil {
		t.Error("closed log survived retention")
	}
	if registry.Get("open") == nil {
		t.Error("open log was evicted")
	}
}
