package metacache

import (
	"context"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestKey_Identity(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	base := Key("/data/a.tif", 1024, ts)
	if !strings.HasPrefix(base, "meta:") {
		t.Fatalf("key = %q", base)
	}
	if Key("/data/a.tif", 1024, ts) != base {
		t.Fatalf("key is not deterministic")
	}
	for _, other := range []string{
		Key("/data/b.tif", 1024, ts),
		Key("/data/a.tif", 1025, ts),
		Key("/data/a.tif", 1024, ts.Add(time.Second)),
	} {
		if other == base {
			t.Fatalf("distinct identity produced the same key %q", other)
		}
	}
}

func TestMemory_HitMissAndTTL(t *testing.T) {
	c, err := NewMemory(8)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	clock := time.Unix(1700000000, 0)
	c.now = func() time.Time { return clock }

	ctx := context.Background()
	if _, ok, err := c.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expected clean miss, ok=%v err=%v", ok, err)
	}

	if err := c.Put(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	val, ok, err := c.Get(ctx, "k")
	if err != nil || !ok || string(val) != "v" {
		t.Fatalf("Get = %q ok=%v err=%v", val, ok, err)
	}

	clock = clock.Add(2 * time.Minute)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatalf("entry served past its TTL")
	}
}

func TestMemory_NoTTLNeverExpires(t *testing.T) {
	c, err := NewMemory(8)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	clock := time.Unix(1700000000, 0)
	c.now = func() time.Time { return clock }

	ctx := context.Background()
	if err := c.Put(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	clock = clock.Add(1000 * time.Hour)
	if _, ok, _ := c.Get(ctx, "k"); !ok {
		t.Fatalf("zero-TTL entry expired")
	}
}

func TestMemory_Eviction(t *testing.T) {
	c, err := NewMemory(2)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		if err := c.Put(ctx, k, []byte(k), 0); err != nil {
			t.Fatalf("Put %s: %v", k, err)
		}
	}
	if _, ok, _ := c.Get(ctx, "a"); ok {
		t.Fatalf("oldest entry survived past capacity")
	}
	if _, ok, _ := c.Get(ctx, "c"); !ok {
		t.Fatalf("newest entry evicted")
	}
}

func newMiniCache(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	c, err := NewRedis(context.Background(), mr.Addr(), WithDialTimeout(time.Second))
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

func TestRedis_PutGet(t *testing.T) {
	_, c := newMiniCache(t)
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expected clean miss, ok=%v err=%v", ok, err)
	}
	if err := c.Put(ctx, "k", []byte(`{"epsg":32735}`), time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	val, ok, err := c.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get ok=%v err=%v", ok, err)
	}
	if string(val) != `{"epsg":32735}` {
		t.Fatalf("val = %q", val)
	}
}

func TestRedis_TTL(t *testing.T) {
	mr, c := newMiniCache(t)
	ctx := context.Background()

	if err := c.Put(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatalf("entry served past its TTL")
	}
}

func TestRedis_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := NewRedis(ctx, "127.0.0.1:1", WithDialTimeout(200*time.Millisecond)); err == nil {
		t.Fatalf("expected connection error")
	}
	if _, err := NewRedis(ctx, ""); err == nil {
		t.Fatalf("expected error for empty address")
	}
}
