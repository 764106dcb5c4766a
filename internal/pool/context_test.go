package pool

import "testing"

func TestNewContextDefaults(t *testing.T) {
	c := NewContext("http://proxy:8080", true, "/data/contexts/x", []string{"premium", "eu"})
	if c.ID == "" {
		t.Error("expected a generated id")
	}
	if c.Status != StatusRecreating {
		t.Errorf("new context status = %v, want recreating (not yet driver-backed)", c.Status)
	}
	if !c.Persistent {
		t.Error("expected Persistent to be true")
	}
	if !c.HasTags([]string{"premium", "eu"}) {
		t.Error("expected both constructor tags present")
	}
}

func TestContextAddRemoveTags(t *testing.T) {
	c := NewContext("", false, "", []string{"a"})
	c.AddTags("b", "c")
	if !c.HasTags([]string{"a", "b", "c"}) {
		t.Error("expected all three tags present after AddTags")
	}
	c.RemoveTags("b")
	if c.HasTags([]string{"b"}) {
		t.Error("expected tag b removed")
	}
	if !c.HasTags([]string{"a", "c"}) {
		t.Error("expected a and c to remain")
	}
}

func TestContextAssignIncrementsTotalRequests(t *testing.T) {
	c := NewContext("", false, "", nil)
	c.Status = StatusIdle
	c.Assign()
	if c.Status != StatusBusy {
		t.Errorf("status after Assign = %v, want busy", c.Status)
	}
	if c.TotalRequests != 1 {
		t.Errorf("TotalRequests after one Assign = %d, want 1", c.TotalRequests)
	}
}

func TestContextReleaseSuccessResetsConsecutiveErrors(t *testing.T) {
	c := NewContext("", false, "", nil)
	c.Status = StatusBusy
	c.ConsecutiveErrors = 3

	needsRecreate := c.Release(OutcomeSuccess, 5)

	if needsRecreate {
		t.Error("a successful release should never require recreation")
	}
	if c.ConsecutiveErrors != 0 {
		t.Errorf("ConsecutiveErrors after success = %d, want 0", c.ConsecutiveErrors)
	}
	if c.Status != StatusIdle {
		t.Errorf("status after success = %v, want idle", c.Status)
	}
}

func TestContextReleaseErrorBelowThreshold(t *testing.T) {
	c := NewContext("", false, "", nil)
	c.Status = StatusBusy

	needsRecreate := c.Release(OutcomeError, 3)

	if needsRecreate {
		t.Error("one error under threshold should not trigger recreation")
	}
	if c.Status != StatusIdle {
		t.Errorf("status after sub-threshold error = %v, want idle", c.Status)
	}
	if c.ConsecutiveErrors != 1 {
		t.Errorf("ConsecutiveErrors = %d, want 1", c.ConsecutiveErrors)
	}
	if c.TotalErrors != 1 {
		t.Errorf("TotalErrors = %d, want 1", c.TotalErrors)
	}
}

func TestContextReleaseErrorCrossesThreshold(t *testing.T) {
	c := NewContext("", false, "", nil)
	c.Status = StatusBusy
	c.ConsecutiveErrors = 2

	needsRecreate := c.Release(OutcomeError, 3)

	if !needsRecreate {
		t.Error("crossing the consecutive-error threshold should trigger recreation")
	}
	if c.Status != StatusRecreating {
		t.Errorf("status after crossing threshold = %v, want recreating", c.Status)
	}
}

func TestContextSnapshotReflectsFields(t *testing.T) {
	c := NewContext("proxy:1", true, "/tmp/x", []string{"a"})
	c.TotalRequests = 5
	c.TotalErrors = 1
	c.ConsecutiveErrors = 1

	snap := c.Snapshot()
	if snap.ID != c.ID || snap.Proxy != c.Proxy || !snap.Persistent {
		t.Error("snapshot should mirror identity fields")
	}
	if snap.TotalRequests != 5 || snap.TotalErrors != 1 || snap.ConsecutiveErrors != 1 {
		t.Error("snapshot should mirror health counters")
	}
	if len(snap.Tags) != 1 || snap.Tags[0] != "a" {
		t.Errorf("snapshot tags = %v, want [a]", snap.Tags)
	}
}
