package ledger

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/zulandar/dripyard/internal/db"
	"github.com/zulandar/dripyard/internal/models"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.OpenInMemory()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gdb
}

func createSession(t *testing.T, gdb *gorm.DB, id string) {
	t.Helper()
	if err := gdb.Create(&models.Session{ID: id, Status: models.SessionRunning}).Error; err != nil {
		t.Fatalf("create session: %v", err)
	}
}

func TestRecord_AppendsAndBumpsSession(t *testing.T) {
	gdb := testDB(t)
	createSession(t, gdb, "s1")
	l := New(gdb)
	ctx := context.Background()

	if _, err := l.Record(ctx, "s1", "alpha", 10); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := l.Record(ctx, "s1", "beta", 25); err != nil {
		t.Fatalf("Record: %v", err)
	}

	var s models.Session
	if err := gdb.First(&s, "id = ?", "s1").Error; err != nil {
		t.Fatal(err)
	}
	if s.TotalClaims != 2 || s.TotalEarnedSats != 35 {
		t.Errorf("session counters = %d claims, %d sats", s.TotalClaims, s.TotalEarnedSats)
	}
	total, err := l.Total(ctx)
	if err != nil || total != 35 {
		t.Errorf("Total = %d, %v; want 35", total, err)
	}
}

func TestRecord_RejectsNonPositive(t *testing.T) {
	gdb := testDB(t)
	createSession(t, gdb, "s1")
	l := New(gdb)
	for _, sats := range []int64{0, -5} {
		if _, err := l.Record(context.Background(), "s1", "alpha", sats); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("Record(%d) err = %v, want ErrInvalidAmount", sats, err)
		}
	}
}

func TestRecord_UnknownSessionLeavesNoRow(t *testing.T) {
	gdb := testDB(t)
	l := New(gdb)
	if _, err := l.Record(context.Background(), "ghost", "alpha", 10); err == nil {
		t.Fatal("expected error for unknown session")
	}
	var n int64
	gdb.Model(&models.EarningsRecord{}).Count(&n)
	if n != 0 {
		t.Errorf("earnings rows = %d, want 0 after rollback", n)
	}
}

func TestRecordAttempt(t *testing.T) {
	gdb := testDB(t)
	createSession(t, gdb, "s1")
	l := New(gdb)
	ctx := context.Background()

	attempts := []models.ClaimAttempt{
		{SessionID: "s1", FaucetID: "alpha", Attempt: 1, Outcome: models.OutcomeTransient, Reason: "proxy timeout"},
		{SessionID: "s1", FaucetID: "alpha", Attempt: 2, Outcome: models.OutcomeSuccess, AmountSats: 10},
		{SessionID: "s1", FaucetID: "beta", Attempt: 1, Outcome: models.OutcomeNoPayout},
	}
	for _, a := range attempts {
		if err := l.RecordAttempt(ctx, a); err != nil {
			t.Fatalf("RecordAttempt: %v", err)
		}
	}

	var s models.Session
	gdb.First(&s, "id = ?", "s1")
	if s.TotalClaims != 1 || s.TotalEarnedSats != 10 || s.ErrorCount != 1 {
		t.Errorf("session = %+v", s)
	}
	if s.LastError != "proxy timeout" {
		t.Errorf("LastError = %q", s.LastError)
	}
	var n int64
	gdb.Model(&models.ClaimAttempt{}).Count(&n)
	if n != 3 {
		t.Errorf("attempt rows = %d, want 3", n)
	}
}

func TestBalanceFor(t *testing.T) {
	gdb := testDB(t)
	createSession(t, gdb, "s1")
	l := New(gdb)
	ctx := context.Background()

	for _, r := range []struct {
		faucet string
		sats   int64
	}{{"alpha", 10}, {"alpha", 5}, {"beta", 7}, {"gamma", 100}} {
		if _, err := l.Record(ctx, "s1", r.faucet, r.sats); err != nil {
			t.Fatal(err)
		}
	}

	gdb.Create(&models.Withdrawal{ID: "w1", WalletAddress: "x", AmountSats: 4, Sources: `["alpha"]`, Status: models.WithdrawalCompleted})
	gdb.Create(&models.WithdrawalAllocation{WithdrawalID: "w1", FaucetID: "alpha", AmountSats: 4})
	gdb.Create(&models.Withdrawal{ID: "w2", WalletAddress: "x", AmountSats: 7, Sources: `["beta"]`, Status: models.WithdrawalFailed})
	gdb.Create(&models.WithdrawalAllocation{WithdrawalID: "w2", FaucetID: "beta", AmountSats: 7})

	b, err := l.BalanceFor(ctx, []string{"alpha", "beta", "alpha", "unknown"})
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Sources) != 3 {
		t.Fatalf("sources = %+v", b.Sources)
	}
	want := []SourceBalance{
		{FaucetID: "alpha", Earned: 15, Allocated: 4, Available: 11},
		{FaucetID: "beta", Earned: 7, Allocated: 0, Available: 7},
		{FaucetID: "unknown"},
	}
	for i, w := range want {
		if b.Sources[i] != w {
			t.Errorf("Sources[%d] = %+v, want %+v", i, b.Sources[i], w)
		}
	}
	if b.Available != 18 {
		t.Errorf("Available = %d, want 18", b.Available)
	}

	empty, err := l.BalanceFor(ctx, nil)
	if err != nil || empty.Available != 0 {
		t.Errorf("BalanceFor(nil) = %+v, %v", empty, err)
	}
}

func TestRecords_Filter(t *testing.T) {
	gdb := testDB(t)
	createSession(t, gdb, "s1")
	createSession(t, gdb, "s2")
	l := New(gdb)
	ctx := context.Background()
	l.Record(ctx, "s1", "alpha", 1)
	l.Record(ctx, "s2", "alpha", 2)
	l.Record(ctx, "s1", "beta", 3)

	recs, err := l.Records(ctx, Filter{SessionID: "s1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].AmountSats != 3 {
		t.Errorf("records = %+v, want newest first", recs)
	}
	recs, _ = l.Records(ctx, Filter{FaucetID: "alpha", Limit: 1})
	if len(recs) != 1 || recs[0].AmountSats != 2 {
		t.Errorf("limited records = %+v", recs)
	}
}

func TestRecord_ConcurrentTotalsNeverDecrease(t *testing.T) {
	gdb := testDB(t)
	createSession(t, gdb, "s1")
	l := New(gdb)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Record(ctx, "s1", "alpha", 1); err != nil {
				t.Errorf("Record: %v", err)
			}
		}()
	}

	var last int64
	for i := 0; i < 20; i++ {
		total, err := l.Total(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if total < last {
			t.Fatalf("total decreased from %d to %d", last, total)
		}
		last = total
	}
	wg.Wait()

	total, _ := l.Total(ctx)
	if total != 20 {
		t.Errorf("Total = %d, want 20", total)
	}
}

func TestDedupe(t *testing.T) {
	got := Dedupe([]string{"alpha", "", "beta", "alpha", "beta", "gamma"})
	want := []string{"alpha", "beta", "gamma"}
	if !slices.Equal(got, want) {
		t.Errorf("Dedupe = %v, want %v", got, want)
	}
	if got := Dedupe(nil); len(got) != 0 {
		t.Errorf("Dedupe(nil) = %v", got)
	}
}
