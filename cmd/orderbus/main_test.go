package main

import (
	"context"
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/pubsub/pstest"

	"github.com/goliatone/go-orderbus/core"
	"github.com/goliatone/go-orderbus/telemetry"
)

func TestRootCmd_RegistersSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "relay", "migrate", "setup-pubsub"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("expected %s subcommand, got %v (%v)", name, cmd, err)
		}
	}
	relayCmd, _, _ := root.Find([]string{"relay"})
	if relayCmd.Flags().Lookup("max-messages") == nil {
		t.Fatalf("expected --max-messages on relay")
	}
}

func TestOpenDatabase_MigratesSQLite(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Database.DSN = fmt.Sprintf("file:orderbus-cmd-%d?mode=memory&cache=shared&_foreign_keys=on", time.Now().UnixNano())

	client, err := openDatabase(context.Background(), cfg, true)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer client.Close()

	count, err := client.DB().NewSelect().Table("orders").Count(context.Background())
	if err != nil {
		t.Fatalf("expected orders table after migrate: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty orders table, got %d", count)
	}
}

func TestOpenDatabase_RejectsUnknownDriver(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Database.Driver = "mysql"
	if _, err := openDatabase(context.Background(), cfg, false); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}

func TestSetupPubSub_IsIdempotent(t *testing.T) {
	srv := pstest.NewServer()
	defer srv.Close()

	cfg := core.DefaultConfig()
	cfg.PubSub.ProjectID = "orderbus-cmd-test"
	cfg.PubSub.EmulatorHost = srv.Addr
	rt := &runtime{cfg: cfg, logger: telemetry.NewLogger(nil, "error")}

	for i := 0; i < 2; i++ {
		if err := setupPubSub(context.Background(), rt); err != nil {
			t.Fatalf("setup pubsub run %d: %v", i+1, err)
		}
	}
}

func TestRunRelay_RequiresEgressURL(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.PubSub.ProjectID = "orderbus-cmd-test"
	rt := &runtime{cfg: cfg, logger: telemetry.NewLogger(nil, "error")}
	if err := runRelay(context.Background(), rt); err == nil {
		t.Fatalf("expected missing egress url to fail")
	}
}
