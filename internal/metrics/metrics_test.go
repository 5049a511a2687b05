package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetRingLength_UpdatesRingLengthAndQueueDepth(t *testing.T) {
	r := New()
	r.SetRingLength(3)
	if got := testutil.ToFloat64(r.RingLength); got != 3 {
		t.Fatalf("expected RingLength 3, got %v", got)
	}
	if got := testutil.ToFloat64(r.QueueDepth); got != 3 {
		t.Fatalf("expected QueueDepth 3 with no outbox component yet, got %v", got)
	}
}

func TestSetOutboxPending_CombinesWithRingComponentInQueueDepth(t *testing.T) {
	r := New()
	r.SetRingLength(2)
	r.SetOutboxPending(5)
	if got := testutil.ToFloat64(r.QueueDepth); got != 7 {
		t.Fatalf("expected QueueDepth 2+5=7, got %v", got)
	}
	r.SetRingLength(0)
	if got := testutil.ToFloat64(r.QueueDepth); got != 5 {
		t.Fatalf("expected QueueDepth to drop to 5 after ring drains, got %v", got)
	}
}
