package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"estate_scrooper/config"
	"estate_scrooper/models"
	"estate_scrooper/storage"
)

type fakeRunner struct {
	mu       sync.Mutex
	runs     int
	commands []models.CommandType
}

func (f *fakeRunner) RunAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	return nil
}

func (f *fakeRunner) HandleCommand(_ context.Context, cmd *models.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd.Command)
	return nil
}

type fakeWorker struct{ triggered int }

func (w *fakeWorker) Trigger() { w.triggered++ }

func TestProcessCommands(t *testing.T) {
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "sched.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	for _, c := range []models.CommandType{models.CmdPause, models.CmdBackfill, models.CmdScrapeNow} {
		if _, err := store.CreateCommand(c, nil); err != nil {
			t.Fatalf("create command: %v", err)
		}
	}

	runner := &fakeRunner{}
	worker := &fakeWorker{}
	s := New(&config.Config{}, runner, store)
	s.SetWorkers(worker)

	s.processCommands(context.Background())

	if worker.triggered != 1 {
		t.Fatalf("expected backfill trigger, got %d", worker.triggered)
	}
	if runner.runs != 1 {
		t.Fatalf("expected scrape_now to run all sites once, got %d runs", runner.runs)
	}
	if len(runner.commands) != 1 || runner.commands[0] != models.CmdPause {
		t.Fatalf("unexpected forwarded commands %v", runner.commands)
	}

	pending, err := store.GetPendingCommands()
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected all commands processed, %d left", len(pending))
	}
}

func TestScrapeNowForSiteIsForwarded(t *testing.T) {
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "sched.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	if _, err := store.CreateCommand(models.CmdScrapeNow, &models.CommandParams{Site: "mubawab"}); err != nil {
		t.Fatalf("create command: %v", err)
	}

	runner := &fakeRunner{}
	s := New(&config.Config{}, runner, store)
	s.processCommands(context.Background())

	if runner.runs != 0 {
		t.Fatalf("site-scoped scrape_now should not run every site, got %d runs", runner.runs)
	}
	if len(runner.commands) != 1 || runner.commands[0] != models.CmdScrapeNow {
		t.Fatalf("unexpected forwarded commands %v", runner.commands)
	}
}

func TestStartRejectsBadCron(t *testing.T) {
	cfg := &config.Config{Scheduler: config.SchedulerConfig{Cron: "not a cron"}}
	s := New(cfg, &fakeRunner{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err == nil {
		t.Fatalf("expected error for invalid cron expression")
	}
}
