package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempPrefix = "avail:idemp:"

// Idempotency stores the first response produced under a key so retried
// hold and confirm requests replay it instead of re-running.
type Idempotency struct {
	client *redis.Client
}

func NewIdempotency(client *redis.Client) *Idempotency {
	return &Idempotency{client: client}
}

type IdempResponse struct {
	Status int    `json:"status"`
	Result []byte `json:"result"`
}

func (i *Idempotency) Get(ctx context.Context, key string) (*IdempResponse, error) {
	val, err := i.client.Get(ctx, idempPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var resp IdempResponse
	err = json.Unmarshal(val, &resp)
	return &resp, err
}

// Set records the response under the key. First writer wins; a racing
// duplicate keeps the response already stored.
func (i *Idempotency) Set(ctx context.Context, key string, resp IdempResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return i.client.SetNX(ctx, idempPrefix+key, data, ttl).Err()
}
