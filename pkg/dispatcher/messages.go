package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pario-ai/larder/pkg/models"
)

// FoodDataPrefix is where CACHE_FOOD_DATA and GET_CACHED_DATA keep their
// entries in the dynamic partition.
const FoodDataPrefix = "/api/food-data/"

// HandleMessage processes a control message from an application and returns
// the reply data, which is nil for messages that have none.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg models.Message) (any, error) {
	switch msg.Type {
	case models.MessageSkipWaiting:
		return nil, d.SkipWaiting(ctx)
	case models.MessageCacheFoodData:
		return nil, d.cacheFoodData(ctx, msg.Payload)
	case models.MessageGetCachedData:
		return d.cachedData(ctx, msg.Payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
}

func (d *Dispatcher) cacheFoodData(ctx context.Context, payload json.RawMessage) error {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	if !json.Valid(payload) {
		return fmt.Errorf("cache food data: payload is not valid JSON")
	}

	url := FoodDataPrefix + "cached"
	entry := models.CacheEntry{
		Partition:  d.cfg.DynamicPartition(),
		Signature:  d.signature(http.MethodGet, url, nil),
		Method:     http.MethodGet,
		URL:        url,
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       append([]byte(nil), payload...),
		StoredAt:   d.now().UTC(),
	}
	if err := d.cache.Put(ctx, entry); err != nil {
		return fmt.Errorf("cache food data: %w", err)
	}
	return nil
}

// cachedData returns the JSON stored for a key, or nil when there is none or
// the stored body is not JSON.
func (d *Dispatcher) cachedData(ctx context.Context, payload json.RawMessage) (any, error) {
	var key string
	if err := json.Unmarshal(payload, &key); err != nil {
		return nil, fmt.Errorf("get cached data: key must be a string: %w", err)
	}

	entry, ok := d.match(ctx, d.signature(http.MethodGet, FoodDataPrefix+key, nil))
	if !ok || !json.Valid(entry.Body) {
		return nil, nil
	}
	return json.RawMessage(entry.Body), nil
}
