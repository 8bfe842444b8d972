package alerts

import (
	"strings"
	"testing"
	"time"

	"github.com/tornsidekick/sidekick/internal/domain"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func withDue(offset time.Duration) domain.Obligation {
	due := testNow.Add(offset)
	return domain.Obligation{ID: "ob-1", CounterpartyName: "Duke", DueAt: &due}
}

func TestFor_DueDateGrading(t *testing.T) {
	tests := []struct {
		name     string
		offset   time.Duration
		wantKind Kind
		wantSev  domain.Severity
		wantMsg  string
	}{
		{"overdue five days", -5 * 24 * time.Hour, KindOverdue, domain.SeverityHigh, "overdue by 5 days"},
		{"just overdue", -time.Hour, KindOverdue, domain.SeverityHigh, "overdue by 0 days"},
		{"due in two days", 2 * 24 * time.Hour, KindDueSoon, domain.SeverityMedium, "due in 2 days"},
		{"due in exactly three days", 3 * 24 * time.Hour, KindDueSoon, domain.SeverityMedium, "due in 3 days"},
		{"due in five days", 5 * 24 * time.Hour, KindDueSoon, domain.SeverityLow, "due in 5 days"},
		{"due in exactly seven days", 7 * 24 * time.Hour, KindDueSoon, domain.SeverityLow, "due in 7 days"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := For(withDue(tt.offset), testNow)
			if len(got) != 1 {
				t.Fatalf("alerts = %d, want 1", len(got))
			}
			if got[0].Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", got[0].Kind, tt.wantKind)
			}
			if got[0].Severity != tt.wantSev {
				t.Errorf("severity = %q, want %q", got[0].Severity, tt.wantSev)
			}
			if !strings.Contains(got[0].Message, tt.wantMsg) {
				t.Errorf("message = %q, want it to contain %q", got[0].Message, tt.wantMsg)
			}
		})
	}
}

func TestFor_FarDueDateNoAlert(t *testing.T) {
	if got := For(withDue(30*24*time.Hour), testNow); len(got) != 0 {
		t.Errorf("alerts for a far due date = %v, want none", got)
	}
}

func TestFor_NoDueDateNoAlert(t *testing.T) {
	o := domain.Obligation{ID: "ob-1", CounterpartyName: "Duke"}
	if got := For(o, testNow); len(got) != 0 {
		t.Errorf("alerts without due date = %v, want none", got)
	}
}

func TestFor_InactivityAlert(t *testing.T) {
	seen := testNow.Add(-9 * 24 * time.Hour)
	o := domain.Obligation{ID: "ob-1", CounterpartyName: "Duke", LastActivityAt: &seen}

	got := For(o, testNow)
	if len(got) != 1 {
		t.Fatalf("alerts = %d, want 1", len(got))
	}
	if got[0].Kind != KindInactive || got[0].Severity != domain.SeverityLow {
		t.Errorf("alert = %+v, want low-severity inactive", got[0])
	}
	if !strings.Contains(got[0].Message, "inactive for 9 days") {
		t.Errorf("message = %q", got[0].Message)
	}
}

func TestFor_RecentActivityNoAlert(t *testing.T) {
	seen := testNow.Add(-2 * 24 * time.Hour)
	o := domain.Obligation{ID: "ob-1", LastActivityAt: &seen}
	if got := For(o, testNow); len(got) != 0 {
		t.Errorf("alerts for recent activity = %v, want none", got)
	}
}

func TestFor_MultipleAlertsCoexistOrdered(t *testing.T) {
	o := withDue(-2 * 24 * time.Hour)
	seen := testNow.Add(-10 * 24 * time.Hour)
	o.LastActivityAt = &seen

	got := For(o, testNow)
	if len(got) != 2 {
		t.Fatalf("alerts = %d, want 2 (neither suppresses the other)", len(got))
	}
	if got[0].Kind != KindOverdue {
		t.Errorf("first alert = %q, want due-date alert first", got[0].Kind)
	}
	if got[1].Kind != KindInactive {
		t.Errorf("last alert = %q, want activity alert last", got[1].Kind)
	}
}

func TestFor_CompletedNeverAlerts(t *testing.T) {
	o := withDue(-10 * 24 * time.Hour)
	o.Completed = true
	if got := For(o, testNow); len(got) != 0 {
		t.Errorf("alerts for completed obligation = %v, want none", got)
	}
}

func TestForAll_PreservesOrder(t *testing.T) {
	a := withDue(-24 * time.Hour)
	a.ID = "a"
	b := withDue(2 * 24 * time.Hour)
	b.ID = "b"

	got := ForAll([]domain.Obligation{a, b}, testNow)
	if len(got) != 2 {
		t.Fatalf("alerts = %d, want 2", len(got))
	}
	if got[0].ObligationID != "a" || got[1].ObligationID != "b" {
		t.Errorf("order = %s, %s; want a, b", got[0].ObligationID, got[1].ObligationID)
	}
}
