package ring

import (
	"testing"

	"github.com/traceprompt/audit-go/internal/metrics"
	"github.com/traceprompt/audit-go/internal/record"
)

func rec(id string) *record.Record { return &record.Record{ID: id} }

func TestPush_DropsOldestWhenFull(t *testing.T) {
	r := New(2, metrics.New())
	r.Push(rec("a"))
	r.Push(rec("b"))
	r.Push(rec("c")) // should drop "a"

	if got := r.Len(); got != 2 {
		t.Fatalf("expected length 2, got %d", got)
	}
	items := r.Drip(2)
	if items[0].ID != "b" || items[1].ID != "c" {
		t.Fatalf("expected [b c], got %+v", items)
	}
}

func TestDrip_OldestFirst(t *testing.T) {
	r := New(5, metrics.New())
	r.Push(rec("a"))
	r.Push(rec("b"))
	r.Push(rec("c"))

	out := r.Drip(2)
	if len(out) != 2 || out[0].ID != "a" || out[1].ID != "b" {
		t.Fatalf("unexpected drip order: %+v", out)
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 remaining item, got %d", r.Len())
	}
}

func TestDrip_MoreThanAvailable(t *testing.T) {
	r := New(5, metrics.New())
	r.Push(rec("a"))
	out := r.Drip(10)
	if len(out) != 1 {
		t.Fatalf("expected 1 item, got %d", len(out))
	}
}

func TestRestore_PrependsAndRespectsCapacity(t *testing.T) {
	r := New(3, metrics.New())
	r.Push(rec("c"))
	r.Restore([]*record.Record{rec("a"), rec("b")})

	if r.Len() != 3 {
		t.Fatalf("expected length 3, got %d", r.Len())
	}
	out := r.Drip(3)
	if out[0].ID != "a" || out[1].ID != "b" || out[2].ID != "c" {
		t.Fatalf("unexpected order after restore: %+v", out)
	}
}
