package withdrawal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/dripyard/internal/models"
	"github.com/zulandar/dripyard/internal/notify"
	"gorm.io/gorm"
)

type fakePayout struct {
	mu   sync.Mutex
	paid []string
	err  error
}

func (f *fakePayout) Pay(_ context.Context, w models.Withdrawal) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paid = append(f.paid, w.ID)
	if f.err != nil {
		return "", f.err
	}
	return "tx-" + w.ID[:8], nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, evt notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recordingNotifier) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

// runService starts Run and returns a stop func that waits for it to exit.
func runService(t *testing.T, svc *Service) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			select {
			case err := <-done:
				if err != nil {
					t.Errorf("Run: %v", err)
				}
			case <-time.After(5 * time.Second):
				t.Error("Run did not exit")
			}
		})
	}
}

func waitStatus(t *testing.T, gdb *gorm.DB, id, want string) models.Withdrawal {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		var w models.Withdrawal
		if err := gdb.First(&w, "id = ?", id).Error; err != nil {
			t.Fatal(err)
		}
		if w.Status == want {
			return w
		}
		if time.Now().After(deadline) {
			t.Fatalf("withdrawal %s status = %q, want %q", id, w.Status, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRun_CompletesPayout(t *testing.T) {
	gdb := testDB(t)
	earn(t, gdb, "alpha", 10)
	payout := &fakePayout{}
	rec := &recordingNotifier{}
	svc := New(gdb, Opts{Payout: payout, Notifier: notify.NewDispatcher(rec)})
	stop := runService(t, svc)
	defer stop()

	w, err := svc.Request(context.Background(), segwitAddr, 5, []string{"alpha"})
	if err != nil {
		t.Fatal(err)
	}
	got := waitStatus(t, gdb, w.ID, models.WithdrawalCompleted)
	if got.TxRef == "" {
		t.Error("expected tx ref")
	}
	if got := available(t, gdb, "alpha"); got != 5 {
		t.Errorf("available = %d, want 5 after completion", got)
	}
	stop()
	if kinds := rec.kinds(); len(kinds) != 1 || kinds[0] != notify.KindWithdrawalCompleted {
		t.Errorf("notifications = %v", kinds)
	}
}

func TestRun_FailedPayoutReleasesBalance(t *testing.T) {
	gdb := testDB(t)
	earn(t, gdb, "alpha", 10)
	rec := &recordingNotifier{}
	svc := New(gdb, Opts{Payout: &fakePayout{err: errors.New("node offline")}, Notifier: notify.NewDispatcher(rec)})
	stop := runService(t, svc)
	defer stop()

	w, err := svc.Request(context.Background(), segwitAddr, 10, []string{"alpha"})
	if err != nil {
		t.Fatal(err)
	}
	got := waitStatus(t, gdb, w.ID, models.WithdrawalFailed)
	if !strings.Contains(got.Reason, "node offline") {
		t.Errorf("reason = %q", got.Reason)
	}
	if got := available(t, gdb, "alpha"); got != 10 {
		t.Errorf("available = %d, want 10", got)
	}
}

func TestRun_RecoversPreviousRun(t *testing.T) {
	gdb := testDB(t)
	earn(t, gdb, "alpha", 10)
	svc := New(gdb, Opts{})

	stuck, err := svc.Request(context.Background(), segwitAddr, 4, []string{"alpha"})
	if err != nil {
		t.Fatal(err)
	}
	gdb.Model(&models.Withdrawal{}).Where("id = ?", stuck.ID).Update("status", models.WithdrawalProcessing)
	waiting, err := svc.Request(context.Background(), segwitAddr, 3, []string{"alpha"})
	if err != nil {
		t.Fatal(err)
	}

	payout := &fakePayout{}
	restarted := New(gdb, Opts{Payout: payout})
	stop := runService(t, restarted)
	defer stop()

	failed := waitStatus(t, gdb, stuck.ID, models.WithdrawalFailed)
	if failed.Reason != "interrupted" {
		t.Errorf("reason = %q, want interrupted", failed.Reason)
	}
	waitStatus(t, gdb, waiting.ID, models.WithdrawalCompleted)
}

func TestRun_NoPayoutLeavesPending(t *testing.T) {
	gdb := testDB(t)
	earn(t, gdb, "alpha", 10)
	svc := New(gdb, Opts{})
	stop := runService(t, svc)

	w, err := svc.Request(context.Background(), segwitAddr, 5, []string{"alpha"})
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	stop()
	waitStatus(t, gdb, w.ID, models.WithdrawalPending)
}

func TestProcess_SkipsAlreadyClaimed(t *testing.T) {
	gdb := testDB(t)
	earn(t, gdb, "alpha", 10)
	payout := &fakePayout{}
	svc := New(gdb, Opts{Payout: payout})

	w, err := svc.Request(context.Background(), segwitAddr, 5, []string{"alpha"})
	if err != nil {
		t.Fatal(err)
	}
	svc.process(context.Background(), w.ID)
	svc.process(context.Background(), w.ID)
	if len(payout.paid) != 1 {
		t.Errorf("paid %d times, want 1", len(payout.paid))
	}
}

func TestWebhook_Pay(t *testing.T) {
	var got payoutRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Idempotency-Key") != "w-1" {
			t.Errorf("idempotency key = %q", r.Header.Get("Idempotency-Key"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Write([]byte(`{"tx_ref":"abc123"}`))
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL, time.Second)
	ref, err := hook.Pay(context.Background(), models.Withdrawal{
		ID: "w-1", WalletAddress: segwitAddr, AmountSats: 5, Sources: `["alpha"]`,
	})
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if ref != "abc123" {
		t.Errorf("ref = %q", ref)
	}
	if got.Amount != "0.00000005" || got.AmountSats != 5 || len(got.Sources) != 1 {
		t.Errorf("payload = %+v", got)
	}
}

func TestWebhook_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"wallet blacklisted"}`))
	}))
	defer srv.Close()

	_, err := NewWebhook(srv.URL, time.Second).Pay(context.Background(), models.Withdrawal{ID: "w-2", Sources: "[]"})
	if err == nil || !strings.Contains(err.Error(), "wallet blacklisted") {
		t.Errorf("err = %v", err)
	}
}

func TestWebhook_UnreadableSuccessBody(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"truncated json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"tx_ref":"ab`))
		}},
		{"short body", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Length", "64")
			w.Write([]byte(`{"tx_ref":`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			var buf bytes.Buffer
			hook := NewWebhook(srv.URL, time.Second)
			hook.Log = zerolog.New(&buf)
			ref, err := hook.Pay(context.Background(), models.Withdrawal{ID: "w-3", Sources: "[]"})
			if err != nil {
				t.Fatalf("Pay: %v", err)
			}
			if ref != "" {
				t.Errorf("ref = %q, want empty", ref)
			}
			if !strings.Contains(buf.String(), "payout response") || !strings.Contains(buf.String(), `"withdrawal":"w-3"`) {
				t.Errorf("log = %q", buf.String())
			}
		})
	}
}
