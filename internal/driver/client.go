// Package driver resolves driver-card identifiers against the external
// driver identity service.
package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Driver is the record the driver identity service returns for a card.
type Driver struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Resolver maps a driver-card id to the driver it currently belongs to.
// A nil result with a nil error means the card is unassigned.
type Resolver interface {
	ResolveDriver(ctx context.Context, driverCardID string) (*Driver, error)
}

// Client calls the driver identity service over HTTP. An optional Redis
// cache bounds lookup load; staleness is limited to the configured TTL.
// Note that the drive-state no-change rule compares resolved driver ids, so
// a stale cache entry can suppress or emit a transition the live service
// would have decided differently during the TTL window.
type Client struct {
	http     *resty.Client
	cache    *redis.Client
	cacheTTL time.Duration
}

// NewClient builds a Client against baseURL. cache may be nil to disable
// caching. The timeout bounds every lookup so a slow identity service cannot
// stall ingestion.
func NewClient(baseURL string, timeout time.Duration, cache *redis.Client, cacheTTL time.Duration) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)
	return &Client{http: httpClient, cache: cache, cacheTTL: cacheTTL}
}

func cacheKey(driverCardID string) string {
	return "driver:card:" + driverCardID
}

// ResolveDriver returns the driver currently assigned to the card, or nil
// when the card is unknown or unassigned. Transport errors are returned to
// the caller; ingestion treats them as "no driver".
func (c *Client) ResolveDriver(ctx context.Context, driverCardID string) (*Driver, error) {
	if c.cache != nil {
		cached, err := c.cache.Get(ctx, cacheKey(driverCardID)).Result()
		if err == nil {
			var d Driver
			if err := json.Unmarshal([]byte(cached), &d); err == nil {
				return &d, nil
			}
		} else if err != redis.Nil {
			log.WithError(err).Warn("Driver cache read failed")
		}
	}

	var drivers []Driver
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("driverCardId", driverCardID).
		SetResult(&drivers).
		Get("/v1/drivers")
	if err != nil {
		return nil, fmt.Errorf("driver lookup: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("driver lookup: status %d", resp.StatusCode())
	}
	if len(drivers) == 0 {
		return nil, nil
	}
	found := drivers[0]

	if c.cache != nil {
		payload, err := json.Marshal(found)
		if err == nil {
			if err := c.cache.Set(ctx, cacheKey(driverCardID), payload, c.cacheTTL).Err(); err != nil {
				log.WithError(err).Warn("Driver cache write failed")
			}
		}
	}
	return &found, nil
}
