package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/davekm/briefline/backend/internal/models"
	"github.com/davekm/briefline/backend/pkg/utils"
)

const responseTTL = 5 * time.Minute

// Cache stores recent research responses in redis keyed by tenant,
// mode and query so repeated lookups skip the provider round trip.
type Cache struct {
	client *redis.Client
	logger *logrus.Logger
}

func New(redisURL string, logger *logrus.Logger) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info("Redis cache connected")
	return &Cache{client: client, logger: logger}, nil
}

func responseKey(tenantKey, mode, query string) string {
	return fmt.Sprintf("research:response:%s:%s:%s", tenantKey, mode, utils.MD5Hash(query))
}

func (c *Cache) CacheResearchResponse(ctx context.Context, tenantKey, mode, query string, response *models.ResearchResponse) error {
	data, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	key := responseKey(tenantKey, mode, query)
	if err := c.client.Set(ctx, key, data, responseTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache response: %w", err)
	}

	c.logger.WithField("key", key).Debug("Cached research response")
	return nil
}

func (c *Cache) GetCachedResearchResponse(ctx context.Context, tenantKey, mode, query string) (*models.ResearchResponse, error) {
	key := responseKey(tenantKey, mode, query)

	data, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached response: %w", err)
	}

	var response models.ResearchResponse
	if err := json.Unmarshal([]byte(data), &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached response: %w", err)
	}

	c.logger.WithField("key", key).Debug("Cache hit for research response")
	return &response, nil
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}
