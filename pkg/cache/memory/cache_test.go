package memory

import (
	"context"
	"net/http"
	"testing"

	"github.com/pario-ai/larder/pkg/models"
)

func TestMatchReturnsCopy(t *testing.T) {
	c := New()
	ctx := context.Background()

	_ = c.Put(ctx, models.CacheEntry{Partition: "static-v1", Signature: "s", StatusCode: http.StatusOK, Body: []byte("abc")})

	got, ok, _ := c.Match(ctx, "s")
	if !ok {
		t.Fatal("expected hit")
	}
	got.Body[0] = 'x'

	again, _, _ := c.Match(ctx, "s", "static-v1")
	if string(again.Body) != "abc" {
		t.Errorf("stored entry was mutated through a returned copy: %s", again.Body)
	}
}

func TestDeletePartition(t *testing.T) {
	c := New()
	ctx := context.Background()

	_ = c.Open(ctx, "static-v0")
	_ = c.Put(ctx, models.CacheEntry{Partition: "static-v1", Signature: "s"})

	if ok, _ := c.DeletePartition(ctx, "static-v0"); !ok {
		t.Fatal("expected delete")
	}
	names, _ := c.Partitions(ctx)
	if len(names) != 1 || names[0] != "static-v1" {
		t.Errorf("unexpected partitions %v", names)
	}
	stats, _ := c.Stats(ctx)
	if stats.Entries != 1 {
		t.Errorf("expected 1 entry, got %d", stats.Entries)
	}
}
