package clinic

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, DefaultConfig("Riverside Clinic", "Europe/London")), mr
}

func TestStore_GetReturnsDefaults(t *testing.T) {
	store, _ := newTestStore(t)
	cfg, err := store.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cfg.Name != "Riverside Clinic" || cfg.Timezone != "Europe/London" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}

	// Mutating the returned copy must not change the defaults.
	cfg.Name = "changed"
	again, _ := store.Get(context.Background())
	if again.Name != "Riverside Clinic" {
		t.Fatal("defaults were mutated through a returned config")
	}
}

func TestStore_SetAndGet(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	cfg := DefaultConfig("Harbor Clinic", "Asia/Tokyo")
	cfg.Phone = "+81 3 0000 0000"
	if err := store.Set(ctx, cfg); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !mr.Exists(settingsKey) {
		t.Fatalf("expected %s to be written", settingsKey)
	}

	got, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Harbor Clinic" || got.Phone != cfg.Phone || got.UpdatedAt.IsZero() {
		t.Fatalf("unexpected stored config %+v", got)
	}
}

func TestStore_SetRejectsInvalid(t *testing.T) {
	store, mr := newTestStore(t)
	if err := store.Set(context.Background(), &Config{Name: "x", Timezone: "bogus/zone"}); err == nil {
		t.Fatal("expected invalid timezone to be rejected")
	}
	if mr.Exists(settingsKey) {
		t.Fatal("invalid settings must not be stored")
	}
}

func TestStore_GetCorruptValue(t *testing.T) {
	store, mr := newTestStore(t)
	if err := mr.Set(settingsKey, "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.Get(context.Background()); err == nil {
		t.Fatal("expected decode error")
	}
}
