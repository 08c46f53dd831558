package notify

import (
	"context"
	"errors"
	"testing"
)

type recorder struct {
	events []Event
	err    error
}

func (r *recorder) Notify(_ context.Context, evt Event) error {
	r.events = append(r.events, evt)
	return r.err
}

func TestMulti_DeliversToAll(t *testing.T) {
	failing := &recorder{err: errors.New("boom")}
	ok := &recorder{}
	m := Multi{failing, nil, ok}

	err := m.Notify(context.Background(), Event{Kind: KindSessionError, Title: "session s1 failed"})
	if err == nil || err.Error() != "boom" {
		t.Fatalf("err = %v, want boom", err)
	}
	if len(failing.events) != 1 || len(ok.events) != 1 {
		t.Errorf("deliveries = %d/%d, want 1/1", len(failing.events), len(ok.events))
	}
}

func TestMulti_Empty(t *testing.T) {
	if err := (Multi{}).Notify(context.Background(), Event{}); err != nil {
		t.Errorf("empty multi: %v", err)
	}
}

func TestDispatcher_SwallowsErrors(t *testing.T) {
	target := &recorder{err: errors.New("unreachable")}
	d := NewDispatcher(target)
	d.Send(context.Background(), Event{Kind: KindWithdrawalFailed})
	if len(target.events) != 1 {
		t.Errorf("events = %d, want 1", len(target.events))
	}

	var nilDispatcher *Dispatcher
	nilDispatcher.Send(context.Background(), Event{})
	NewDispatcher(nil).Send(context.Background(), Event{})
}

func TestColor(t *testing.T) {
	tests := []struct {
		severity string
		want     string
	}{
		{SeveritySuccess, "#36a64f"},
		{SeverityWarning, "#daa038"},
		{SeverityError, "#d00000"},
		{SeverityInfo, "#439fe0"},
		{"", "#439fe0"},
	}
	for _, tt := range tests {
		if got := Color(tt.severity); got != tt.want {
			t.Errorf("Color(%q) = %q, want %q", tt.severity, got, tt.want)
		}
	}
}

func TestFieldf(t *testing.T) {
	f := Fieldf("Amount", "%d sats", 42)
	if f.Name != "Amount" || f.Value != "42 sats" || !f.Short {
		t.Errorf("Fieldf = %+v", f)
	}
}
