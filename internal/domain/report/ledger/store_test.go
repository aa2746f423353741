package ledger

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"cleancity-server-go/internal/domain/report/aggregate"
	"cleancity-server-go/internal/platform/config"
	"cleancity-server-go/internal/platform/errors"
	"cleancity-server-go/internal/platform/storage"
)

func openStore(t *testing.T, driver string) Store {
	t.Helper()

	switch driver {
	case "memory":
		store, err := New(config.LedgerConfig{Driver: "memory"}, Dependencies{})
		if err != nil {
			t.Fatalf("failed to build memory store: %v", err)
		}
		return store
	case "sqlite":
		db, err := storage.Open(filepath.Join(t.TempDir(), "ledger.db"))
		if err != nil {
			t.Fatalf("failed to open sqlite database: %v", err)
		}
		store, err := New(config.LedgerConfig{Driver: "sqlite"}, Dependencies{SQLiteDB: db})
		if err != nil {
			t.Fatalf("failed to build sqlite store: %v", err)
		}
		return store
	case "redis":
		mr := miniredis.RunT(t)
		store, err := New(config.LedgerConfig{
			Driver: "redis",
			Redis:  config.LedgerRedisStore{Addr: mr.Addr()},
		}, Dependencies{})
		if err != nil {
			t.Fatalf("failed to build redis store: %v", err)
		}
		return store
	default:
		t.Fatalf("unknown driver %q", driver)
		return nil
	}
}

func sampleRecord(id string, createdAt time.Time) *aggregate.Record {
	return &aggregate.Record{
		ID:        id,
		CreatedAt: createdAt,
		Location:  aggregate.Location{Latitude: 52.52, Longitude: 13.405},
		Details:   "overflowing bin",
		Extra:     map[string]string{"quality": "70"},
	}
}

func TestStoreConformance(t *testing.T) {
	drivers := []string{"memory", "sqlite", "redis"}

	for _, driver := range drivers {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			store := openStore(t, driver)
			defer store.Close()

			base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

			t.Run("get missing", func(t *testing.T) {
				_, err := store.Get(ctx, "GR-00000000")
				if !errors.Is(err, aggregate.ErrReportNotFound) {
					t.Errorf("expected ErrReportNotFound, got %v", err)
				}
			})

			t.Run("put and get", func(t *testing.T) {
				record := sampleRecord("GR-11111111", base)
				if err := store.Put(ctx, record); err != nil {
					t.Fatalf("Put failed: %v", err)
				}
				got, err := store.Get(ctx, record.ID)
				if err != nil {
					t.Fatalf("Get failed: %v", err)
				}
				if got.Details != record.Details {
					t.Errorf("details mismatch: %q", got.Details)
				}
				if got.Location != record.Location {
					t.Errorf("location mismatch: %+v", got.Location)
				}
				if got.Extra["quality"] != "70" {
					t.Errorf("extra metadata lost: %+v", got.Extra)
				}
				if got.Verified {
					t.Error("fresh record must not be verified")
				}
			})

			t.Run("put replaces by id", func(t *testing.T) {
				first := sampleRecord("GR-22222222", base)
				if err := store.Put(ctx, first); err != nil {
					t.Fatalf("Put failed: %v", err)
				}
				second := sampleRecord("GR-22222222", base.Add(time.Second))
				second.Details = "replaced"
				if err := store.Put(ctx, second); err != nil {
					t.Fatalf("replacing Put failed: %v", err)
				}
				got, err := store.Get(ctx, "GR-22222222")
				if err != nil {
					t.Fatalf("Get failed: %v", err)
				}
				if got.Details != "replaced" {
					t.Errorf("later write must win, got %q", got.Details)
				}
			})

			t.Run("mark verified is idempotent", func(t *testing.T) {
				record := sampleRecord("GR-33333333", base)
				if err := store.Put(ctx, record); err != nil {
					t.Fatalf("Put failed: %v", err)
				}

				first, err := store.MarkVerified(ctx, record.ID, base.Add(time.Minute))
				if err != nil {
					t.Fatalf("MarkVerified failed: %v", err)
				}
				if !first.Verified || first.VerifiedAt == nil {
					t.Fatal("record not flagged verified")
				}

				again, err := store.MarkVerified(ctx, record.ID, base.Add(time.Hour))
				if err != nil {
					t.Fatalf("second MarkVerified failed: %v", err)
				}
				if !again.Verified {
					t.Error("record must stay verified")
				}
				if !again.VerifiedAt.Equal(base.Add(time.Hour)) {
					t.Errorf("second verify must refresh the timestamp, got %v", again.VerifiedAt)
				}
			})

			t.Run("mark verified missing", func(t *testing.T) {
				_, err := store.MarkVerified(ctx, "GR-99999999", base)
				if !errors.Is(err, aggregate.ErrReportNotFound) {
					t.Errorf("expected ErrReportNotFound, got %v", err)
				}
			})

			t.Run("list newest first", func(t *testing.T) {
				records, err := store.List(ctx)
				if err != nil {
					t.Fatalf("List failed: %v", err)
				}
				if len(records) < 2 {
					t.Fatalf("expected the records written above, got %d", len(records))
				}
				for i := 1; i < len(records); i++ {
					if records[i].CreatedAt.After(records[i-1].CreatedAt) {
						t.Error("records not ordered newest first")
					}
				}
			})

			t.Run("stats", func(t *testing.T) {
				stats, err := store.Stats(ctx)
				if err != nil {
					t.Fatalf("Stats failed: %v", err)
				}
				if stats.Total != 3 {
					t.Errorf("expected 3 records, got %d", stats.Total)
				}
				if stats.Verified != 1 {
					t.Errorf("expected 1 verified record, got %d", stats.Verified)
				}
			})
		})
	}
}

func TestMemoryStoreConcurrentPut(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			record := sampleRecord("GR-55555555", time.UnixMilli(int64(i)))
			_ = store.Put(ctx, record)
		}(i)
	}
	wg.Wait()

	records, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("concurrent upserts of one ID must leave one record, got %d", len(records))
	}
}

func TestFactoryRejectsUnknownDriver(t *testing.T) {
	_, err := New(config.LedgerConfig{Driver: "cassandra"}, Dependencies{})
	if err == nil {
		t.Fatal("expected an error for unknown driver")
	}
	if !errors.IsKind(err, errors.KindStorage) {
		t.Errorf("expected storage kind, got %v", err)
	}
}
