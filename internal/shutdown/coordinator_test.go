package shutdown

import (
	"testing"
	"time"
)

func TestRequestSetsFlagOnce(t *testing.T) {
	c := New()
	if c.Requested() {
		t.Fatal("fresh coordinator should not be set")
	}

	c.Request()
	c.Request() // second call is a no-op, must not panic
	if !c.Requested() {
		t.Fatal("coordinator should be set after Request")
	}

	select {
	case <-c.Done():
	default:
		t.Fatal("Done channel should be closed after Request")
	}
}

func TestWaitReturnsEarlyOnRequest(t *testing.T) {
	c := New()

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Request()
	}()

	start := time.Now()
	if !c.Wait(5 * time.Second) {
		t.Fatal("Wait should report shutdown requested")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Wait did not return promptly on request: %v", elapsed)
	}
}

func TestWaitTimesOutWhenUnset(t *testing.T) {
	c := New()
	if c.Wait(10 * time.Millisecond) {
		t.Fatal("Wait should report false when shutdown was not requested")
	}
}

func TestInstallAndStopIdempotent(t *testing.T) {
	c := New()
	c.Install()
	c.Install()
	c.Stop()
	c.Stop()
}
