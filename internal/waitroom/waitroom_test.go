package waitroom

import (
	"errors"
	"testing"
	"time"
)

func TestJoinPromotesUpToCapacity(t *testing.T) {
	room := New(2, time.Minute, time.Hour)

	status, _ := room.Join("u1")
	if status != StatusDraft {
		t.Errorf("u1: expected draft under capacity, got %s", status)
	}
	status, _ = room.Join("u2")
	if status != StatusDraft {
		t.Errorf("u2: expected draft under capacity, got %s", status)
	}

	status, position := room.Join("u3")
	if status != StatusWaiting {
		t.Errorf("u3: expected waiting over capacity, got %s", status)
	}
	if position != 1 {
		t.Errorf("u3: expected waiting position 1, got %d", position)
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	room := New(1, time.Minute, time.Hour)

	room.Join("u1")
	room.Join("u2")
	statusA, posA := room.Join("u2")
	statusB, posB, err := room.Status("u2")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if statusA != statusB || posA != posB {
		t.Errorf("re-join changed state: join=(%s,%d) status=(%s,%d)", statusA, posA, statusB, posB)
	}

	m := room.Metrics()
	if m.Waiting+m.Draft+m.Connected != 2 {
		t.Errorf("expected 2 entries total, got %+v", m)
	}
}

func TestStatusPositionsAreScopedPerState(t *testing.T) {
	room := New(1, time.Minute, time.Hour)

	room.Join("drafted")
	room.Join("w1")
	room.Join("w2")

	_, position, err := room.Status("w2")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if position != 2 {
		t.Errorf("expected waiting position 2, got %d", position)
	}

	_, position, err = room.Status("drafted")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if position != 1 {
		t.Errorf("expected draft position 1, got %d", position)
	}
}

func TestConfirmRequiresDraft(t *testing.T) {
	room := New(1, time.Minute, time.Hour)

	room.Join("drafted")
	room.Join("waiting")

	duration, err := room.Confirm("drafted")
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if duration != time.Hour {
		t.Errorf("expected session duration 1h, got %v", duration)
	}

	if _, err := room.Confirm("waiting"); !errors.Is(err, ErrNotDraft) {
		t.Errorf("expected ErrNotDraft for waiting user, got %v", err)
	}
	if _, err := room.Confirm("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown user, got %v", err)
	}
}

func TestLeaveFreesCapacity(t *testing.T) {
	room := New(1, time.Minute, time.Hour)

	room.Join("u1")
	room.Join("u2")

	room.Leave("u1")

	status, _, err := room.Status("u2")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status != StatusDraft {
		t.Errorf("expected u2 promoted after leave, got %s", status)
	}

	if _, _, err := room.Status("u1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected u1 removed, got %v", err)
	}
}

func TestIdleExpiresStaleDrafts(t *testing.T) {
	room := New(1, time.Millisecond, time.Hour)

	room.Join("stale")
	room.Join("next")

	time.Sleep(5 * time.Millisecond)

	removed := room.Idle()
	if removed != 1 {
		t.Fatalf("expected 1 expired entry, got %d", removed)
	}

	status, _, err := room.Status("next")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status != StatusDraft {
		t.Errorf("expected next promoted after sweep, got %s", status)
	}
}

func TestIdleExpiresFinishedSessions(t *testing.T) {
	room := New(1, time.Minute, time.Millisecond)

	room.Join("u1")
	if _, err := room.Confirm("u1"); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	if removed := room.Idle(); removed != 1 {
		t.Errorf("expected expired session removed, got %d", removed)
	}
}

func TestOnPromoteCallback(t *testing.T) {
	room := New(1, time.Minute, time.Hour)

	var promotions []string
	room.OnPromote = func(userID string) {
		promotions = append(promotions, userID)
	}

	room.Join("u1")
	room.Join("u2")
	room.Leave("u1")

	if len(promotions) != 2 || promotions[0] != "u1" || promotions[1] != "u2" {
		t.Errorf("expected promotions [u1 u2], got %v", promotions)
	}
}

func TestMetrics(t *testing.T) {
	room := New(2, time.Minute, time.Hour)

	room.Join("c1")
	room.Confirm("c1")
	room.Join("d1")
	room.Join("w1")
	room.Join("w2")

	m := room.Metrics()
	if m.Connected != 1 || m.Draft != 1 || m.Waiting != 2 {
		t.Errorf("unexpected occupancy: %+v", m)
	}
	if m.EstimatedWait != time.Hour {
		t.Errorf("expected estimated wait of 1h for 2 waiting over capacity 2, got %v", m.EstimatedWait)
	}
}
