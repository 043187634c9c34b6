package sqlite_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/delivery"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/invites"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/store"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/store/sqlite"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/store/testutil"
)

func TestSQLiteDriver(t *testing.T) {
	tempDir := t.TempDir()

	cfg := &store.DriverConfig{
		Driver:  "sqlite",
		DataDir: tempDir,
	}

	testutil.RunDriverTests(t, "sqlite", cfg)

	if _, err := os.Stat(filepath.Join(tempDir, sqlite.FileName)); os.IsNotExist(err) {
		t.Errorf("%s not created", sqlite.FileName)
	}
}

func TestSQLiteDriverRequiresDataDir(t *testing.T) {
	if _, err := store.New(&store.DriverConfig{Driver: "sqlite"}); err == nil {
		t.Error("expected error without data_dir")
	}
}

func TestSQLiteDriverSurvivesRestart(t *testing.T) {
	tempDir := t.TempDir()
	ctx := context.Background()
	cfg := &store.DriverConfig{Driver: "sqlite", DataDir: tempDir}

	driver, err := store.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := driver.Init(ctx); err != nil {
		t.Fatal(err)
	}

	lastRun := time.Unix(1700000000, 123).UTC()
	if err := driver.(delivery.Queue).Enqueue(ctx, testutil.TestJob("persisted", lastRun)); err != nil {
		t.Fatal(err)
	}
	if err := driver.(invites.TokenStore).CreateToken(ctx, testutil.TestToken("t1", "persisted-token")); err != nil {
		t.Fatal(err)
	}
	if err := driver.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := store.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := reopened.Init(ctx); err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	job, err := reopened.(delivery.Queue).Get(ctx, "persisted")
	if err != nil {
		t.Fatalf("job lost across restart: %v", err)
	}
	if !job.LastRun.Equal(lastRun) {
		t.Errorf("lastRun = %v, want %v", job.LastRun, lastRun)
	}
	if job.Share.SharedSecret() != "s3cr3t" {
		t.Errorf("secret = %q", job.Share.SharedSecret())
	}

	toks, err := reopened.(invites.TokenStore).FindTokens(ctx, "persisted-token", "bob", "receiver.example.com")
	if err != nil || len(toks) != 1 {
		t.Fatalf("token lost across restart: %v (%d)", err, len(toks))
	}
}
