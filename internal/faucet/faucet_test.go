package faucet

import (
	"context"
	"errors"
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

func validFaucet(name string) models.Faucet {
	return models.Faucet{
		Name:            name,
		URL:             "https://example.com/",
		ClaimSelector:   "#claim",
		CooldownMinutes: 60,
		Enabled:         true,
	}
}

func TestDeriveID(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Cointiply", "cointiply"},
		{"Bitcoin Aliens", "bitcoin-aliens"},
		{"  Free   Coins\tFaucet ", "free-coins-faucet"},
		{"FreeBitco.in", "freebitcoin"},
		{"BTC_Clicks!", "btcclicks"},
		{"!!!", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveID(tt.name); got != tt.want {
				t.Errorf("DeriveID(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.Faucet)
		field  string
	}{
		{"missing name", func(f *models.Faucet) { f.Name = " " }, "name"},
		{"missing url", func(f *models.Faucet) { f.URL = "" }, "url"},
		{"relative url", func(f *models.Faucet) { f.URL = "/claim" }, "url"},
		{"ftp url", func(f *models.Faucet) { f.URL = "ftp://example.com" }, "url"},
		{"missing claim selector", func(f *models.Faucet) { f.ClaimSelector = "" }, "claim_selector"},
		{"zero cooldown", func(f *models.Faucet) { f.CooldownMinutes = 0 }, "cooldown_minutes"},
		{"id mismatch", func(f *models.Faucet) { f.ID = "other" }, "id"},
		{"symbol-only name", func(f *models.Faucet) { f.Name = "???" }, "name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validFaucet("My Faucet")
			tt.mutate(&f)
			err := Validate(&f)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("Field = %q, want %q", ve.Field, tt.field)
			}
		})
	}
}

func TestValidate_FillsID(t *testing.T) {
	f := validFaucet("My Faucet")
	if err := Validate(&f); err != nil {
		t.Fatal(err)
	}
	if f.ID != "my-faucet" {
		t.Errorf("ID = %q, want my-faucet", f.ID)
	}

	g := validFaucet("My Faucet")
	g.ID = "my-faucet"
	if err := Validate(&g); err != nil {
		t.Errorf("matching id should pass: %v", err)
	}
}

func TestRegistry_AddAndList(t *testing.T) {
	r := NewRegistry(testDB(t))
	ctx := context.Background()

	for _, name := range []string{"Zeta", "Alpha", "Mid Point"} {
		if _, err := r.Add(ctx, validFaucet(name)); err != nil {
			t.Fatalf("Add(%s): %v", name, err)
		}
	}

	list, err := r.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	got := []string{}
	for _, f := range list {
		got = append(got, f.ID)
	}
	want := []string{"zeta", "alpha", "mid-point"}
	if len(got) != len(want) {
		t.Fatalf("List = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List[%d] = %s, want %s (insertion order)", i, got[i], want[i])
		}
	}
}

func TestRegistry_AddDuplicate(t *testing.T) {
	r := NewRegistry(testDB(t))
	ctx := context.Background()

	if _, err := r.Add(ctx, validFaucet("Alpha")); err != nil {
		t.Fatal(err)
	}
	_, err := r.Add(ctx, validFaucet("alpha"))
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !ve.Duplicate {
		t.Error("collision should be flagged Duplicate")
	}
	n, _ := r.Count(ctx)
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestCreate_DuplicateKeyIsValidationError(t *testing.T) {
	gdb := testDB(t)
	r := NewRegistry(gdb)
	ctx := context.Background()
	first, err := r.Add(ctx, validFaucet("Alpha"))
	if err != nil {
		t.Fatal(err)
	}

	// Insert past the id check, as a second writer racing the first would.
	dup := validFaucet("Alpha")
	dup.ID = first.ID
	dup.Seq = first.Seq + 1
	err = create(gdb.WithContext(ctx), &dup)
	var ve *ValidationError
	if !errors.As(err, &ve) || !ve.Duplicate || ve.Field != "id" {
		t.Fatalf("expected duplicate ValidationError, got %v", err)
	}
}

func TestRegistry_AddAfterSeedCollides(t *testing.T) {
	r := NewRegistry(testDB(t))
	ctx := context.Background()
	if _, err := r.Seed(ctx, Builtin()); err != nil {
		t.Fatal(err)
	}
	_, err := r.Add(ctx, validFaucet("Cointiply"))
	var ve *ValidationError
	if !errors.As(err, &ve) || !ve.Duplicate {
		t.Fatalf("expected duplicate ValidationError, got %v", err)
	}
}

func TestRegistry_GetNotFound(t *testing.T) {
	r := NewRegistry(testDB(t))
	_, err := r.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRegistry_SetEnabled(t *testing.T) {
	r := NewRegistry(testDB(t))
	ctx := context.Background()
	if _, err := r.Add(ctx, validFaucet("Alpha")); err != nil {
		t.Fatal(err)
	}

	f, err := r.SetEnabled(ctx, "alpha", false)
	if err != nil {
		t.Fatal(err)
	}
	if f.Enabled {
		t.Error("faucet should be disabled")
	}
	f, err = r.SetEnabled(ctx, "alpha", true)
	if err != nil {
		t.Fatal(err)
	}
	if !f.Enabled {
		t.Error("faucet should be enabled")
	}

	if _, err := r.SetEnabled(ctx, "ghost", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetEnabled(ghost) err = %v, want ErrNotFound", err)
	}
}

func TestRegistry_Seed(t *testing.T) {
	r := NewRegistry(testDB(t))
	ctx := context.Background()

	n, err := r.Seed(ctx, Builtin())
	if err != nil {
		t.Fatal(err)
	}
	if n != len(Builtin()) {
		t.Errorf("seeded %d, want %d", n, len(Builtin()))
	}
	n, err = r.Seed(ctx, Builtin())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("reseed inserted %d, want 0", n)
	}

	list, _ := r.List(ctx)
	if list[0].ID != "cointiply" {
		t.Errorf("first faucet = %s, want cointiply", list[0].ID)
	}
}

func TestBuiltin_UniqueAndValid(t *testing.T) {
	seen := map[string]bool{}
	for _, f := range Builtin() {
		if seen[f.ID] {
			t.Errorf("duplicate builtin id %s", f.ID)
		}
		seen[f.ID] = true
		c := f
		c.ID = ""
		if err := Validate(&c); err != nil {
			t.Errorf("builtin %s invalid: %v", f.ID, err)
		}
	}
	if len(seen) != 39 {
		t.Errorf("builtin count = %d, want 39", len(seen))
	}
}

func TestRegistry_Enabled(t *testing.T) {
	r := NewRegistry(testDB(t))
	ctx := context.Background()
	for _, name := range []string{"Alpha", "Beta", "Gamma"} {
		if _, err := r.Add(ctx, validFaucet(name)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := r.SetEnabled(ctx, "beta", false); err != nil {
		t.Fatal(err)
	}

	all, missing, err := r.Enabled(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || len(missing) != 0 {
		t.Errorf("Enabled(nil) = %d found, %v missing", len(all), missing)
	}

	found, missing, err := r.Enabled(ctx, []string{"gamma", "beta", "gamma", "ghost", "alpha"})
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 2 || found[0].ID != "gamma" || found[1].ID != "alpha" {
		t.Errorf("found = %+v, want gamma then alpha", found)
	}
	if len(missing) != 2 || missing[0] != "beta" || missing[1] != "ghost" {
		t.Errorf("missing = %v, want [beta ghost]", missing)
	}
}
