package process

import (
	"context"
	"os/exec"
	"sync"
	"testing"
	"time"
)

func TestSupervisorSpawnCapturesOutput(t *testing.T) {
	var mu sync.Mutex
	var lines []OutputLine
	sup := NewSupervisor(WithOutputCallback(func(l OutputLine) {
		mu.Lock()
		lines = append(lines, l)
		mu.Unlock()
	}))

	cmd := exec.Command("sh", "-c", "echo hello; echo Traceback >&2")
	proc, err := sup.Spawn("test", cmd)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	select {
	case <-proc.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("process never exited")
	}
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(lines) != 2 {
		t.Fatalf("expected 2 captured lines, got %d: %+v", len(lines), lines)
	}
}

func TestSupervisorSpawnTracksLifecycle(t *testing.T) {
	var events []LifecycleEvent
	var mu sync.Mutex
	sup := NewSupervisor(WithLifecycleCallback(func(ev LifecycleEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}))

	proc, err := sup.Spawn("test", exec.Command("true"))
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	<-proc.Done()
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 {
		t.Fatalf("expected spawned+exited events, got %+v", events)
	}
	if events[0].Kind != LifecycleSpawned || events[1].Kind != LifecycleExited {
		t.Fatalf("unexpected event kinds: %+v", events)
	}
}

func TestSupervisorStopWithGraceKillsAfterTimeout(t *testing.T) {
	sup := NewSupervisor()
	cmd := exec.Command("sh", "-c", "trap '' TERM; sleep 30")
	proc, err := sup.Spawn("stubborn", cmd)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	start := time.Now()
	if err := sup.StopWithGrace(proc.ID, 200*time.Millisecond); err != nil {
		t.Fatalf("StopWithGrace: %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Fatalf("StopWithGrace took too long, group kill may not have worked")
	}
	if proc.IsRunning() {
		t.Fatalf("process still running after StopWithGrace")
	}
}

func TestSupervisorProbeAvailability(t *testing.T) {
	sup := NewSupervisor()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sup.ProbeAvailability(ctx, "sh", "this is not python"); err == nil {
		t.Fatalf("expected ProbeAvailability to fail for a non-python interpreter invoked with import syntax")
	}
}

func TestSupervisorDuplicateIDRejected(t *testing.T) {
	sup := NewSupervisor()
	if _, err := sup.SpawnWithID("dup", "a", exec.Command("sleep", "1")); err != nil {
		t.Fatalf("first spawn: %v", err)
	}
	if _, err := sup.SpawnWithID("dup", "b", exec.Command("sleep", "1")); err == nil {
		t.Fatalf("expected duplicate id to be rejected")
	}
	sup.Shutdown(time.Second)
}
