package credstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"autodl-console/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, KeyAccessToken); err != nil || ok {
		t.Fatalf("expected empty store, ok=%v err=%v", ok, err)
	}

	if err := s.Set(ctx, KeyAccessToken, "a1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, KeyRefreshToken, "r1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, KeyAccessToken, "a2"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if v, ok, err := s.Get(ctx, KeyAccessToken); err != nil || !ok || v != "a2" {
		t.Fatalf("get access = %q %v %v", v, ok, err)
	}
	if got := AccessToken(ctx, s); got != "a2" {
		t.Fatalf("AccessToken = %q", got)
	}

	if err := Clear(ctx, s); err != nil {
		t.Fatalf("clear: %v", err)
	}
	for _, k := range []string{KeyAccessToken, KeyRefreshToken} {
		if _, ok, err := s.Get(ctx, k); err != nil || ok {
			t.Fatalf("%s still present after clear, err=%v", k, err)
		}
	}

	// Removing an absent key is not an error.
	if err := s.Remove(ctx, KeyAccessToken); err != nil {
		t.Fatalf("remove absent: %v", err)
	}

	if err := s.Set(ctx, "user_profile", "x"); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("expected ErrUnknownKey, got %v", err)
	}
	if _, _, err := s.Get(ctx, "user_profile"); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("expected ErrUnknownKey, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestRedisStore(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	profile := "test-" + uuid.NewString()
	s := NewRedisStore(rdb, "", profile)
	exerciseStore(t, s)

	if err := s.Set(context.Background(), KeyAccessToken, "k"); err != nil {
		t.Fatalf("set: %v", err)
	}
	t.Cleanup(func() { _ = Clear(context.Background(), s) })
	if v, err := rdb.Get(context.Background(), "autodl:creds:"+profile+":access_token").Result(); err != nil || v != "k" {
		t.Fatalf("unexpected raw key value %q: %v", v, err)
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("AUTODL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("AUTODL_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	db, err := utils.OpenPostgres(ctx, dsn, utils.PostgresPoolConfig{})
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := utils.EnsureSchema(ctx, db, Schema...); err != nil {
		t.Fatalf("schema: %v", err)
	}

	exerciseStore(t, NewPostgresStore(db, "test-"+uuid.NewString()))
}

func TestMemoryStoresDoNotShareState(t *testing.T) {
	a, b := NewMemoryStore(), NewMemoryStore()
	ctx := context.Background()
	_ = a.Set(ctx, KeyAccessToken, "x")
	if _, ok, _ := b.Get(ctx, KeyAccessToken); ok {
		t.Fatalf("stores must not share state")
	}
}
