package main

import (
	"context"
	"strings"
	"testing"

	"github.com/zulandar/dripyard/internal/config"
	"github.com/zulandar/dripyard/internal/db"
	"github.com/zulandar/dripyard/internal/ledger"
	"github.com/zulandar/dripyard/internal/models"
	"github.com/zulandar/dripyard/internal/withdrawal"
)

func TestWithdrawalList(t *testing.T) {
	path := writeConfig(t)
	if _, err := run(t, "db", "init", "--config", path); err != nil {
		t.Fatalf("db init: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	ctx := context.Background()
	if err := gormDB.Create(&models.Session{ID: "s1", Status: models.SessionStopped}).Error; err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := ledger.New(gormDB).Record(ctx, "s1", "bitcoinker", 2500); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := withdrawal.New(gormDB, withdrawal.Opts{}).Request(ctx,
		"1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2", 1000, []string{"bitcoinker"}); err != nil {
		t.Fatalf("request: %v", err)
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		sqlDB.Close()
	}

	out, err := run(t, "withdrawal", "list", "--config", path)
	if err != nil {
		t.Fatalf("withdrawal list: %v", err)
	}
	for _, want := range []string{"pending", "0.00001000", "bitcoinker", "1 withdrawal(s)"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output: %s", want, out)
		}
	}

	out, err = run(t, "withdrawal", "list", "--status", "completed", "--config", path)
	if err != nil {
		t.Fatalf("withdrawal list --status: %v", err)
	}
	if !strings.Contains(out, "0 withdrawal(s)") {
		t.Errorf("expected no completed withdrawals: %s", out)
	}
}
