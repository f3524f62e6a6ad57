package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/pario-ai/larder/pkg/models"
)

func TestCacheAndGetFoodData(t *testing.T) {
	h := active(t)
	ctx := context.Background()

	_, err := h.d.HandleMessage(ctx, models.Message{
		Type:    models.MessageCacheFoodData,
		Payload: json.RawMessage(`{"entries":[{"kcal":120}]}`),
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := h.d.HandleMessage(ctx, models.Message{
		Type:    models.MessageGetCachedData,
		Payload: json.RawMessage(`"cached"`),
	})
	if err != nil {
		t.Fatal(err)
	}
	raw, ok := got.(json.RawMessage)
	if !ok || string(raw) != `{"entries":[{"kcal":120}]}` {
		t.Errorf("unexpected cached data %v", got)
	}

	// The stored entry is also what a network-first read falls back to.
	resp, err := h.d.Handle(ctx, get(FoodDataPrefix+"cached"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Header.Get("Content-Type") != "application/json" || resp.Header.Get(CacheHeader) != CacheStale {
		t.Errorf("unexpected fallback response headers %v", resp.Header)
	}
}

func TestGetCachedDataMissing(t *testing.T) {
	h := active(t)
	got, err := h.d.HandleMessage(context.Background(), models.Message{
		Type:    models.MessageGetCachedData,
		Payload: json.RawMessage(`"yesterday"`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected nil for missing key, got %v", got)
	}
}

func TestGetCachedDataNonJSON(t *testing.T) {
	h := active(t)
	ctx := context.Background()
	h.fetcher.set(http.MethodGet, FoodDataPrefix+"raw", http.StatusOK, "not json")
	if _, err := h.d.Handle(ctx, get(FoodDataPrefix+"raw")); err != nil {
		t.Fatal(err)
	}

	got, err := h.d.HandleMessage(ctx, models.Message{
		Type:    models.MessageGetCachedData,
		Payload: json.RawMessage(`"raw"`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected nil for non-JSON body, got %v", got)
	}
}

func TestHandleMessageErrors(t *testing.T) {
	h := active(t)
	ctx := context.Background()

	tests := []struct {
		name string
		msg  models.Message
	}{
		{"unknown type", models.Message{Type: "REFRESH"}},
		{"non-string key", models.Message{Type: models.MessageGetCachedData, Payload: json.RawMessage(`42`)}},
		{"invalid payload", models.Message{Type: models.MessageCacheFoodData, Payload: json.RawMessage(`{oops`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.d.HandleMessage(ctx, tt.msg); err == nil {
				t.Error("expected error")
			}
		})
	}

	_, err := h.d.HandleMessage(ctx, models.Message{Type: "REFRESH"})
	if !errors.Is(err, ErrUnknownMessage) {
		t.Errorf("expected ErrUnknownMessage, got %v", err)
	}
}

func TestSkipWaitingWhenActiveIsNoop(t *testing.T) {
	h := active(t)
	if _, err := h.d.HandleMessage(context.Background(), models.Message{Type: models.MessageSkipWaiting}); err != nil {
		t.Fatal(err)
	}
	if n := len(h.notifier.ofType(models.MessageClaimed)); n != 1 {
		t.Errorf("expected no second claim, got %d", n)
	}
}
