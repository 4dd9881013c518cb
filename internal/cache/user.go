package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/domain"
	apperrors "github.com/NeFoRMaLiK-pixel/upcontacts/pkg/errors"
)

const userKeyPrefix = "user:"

// cachedUser is the public projection of a user kept in Redis. Credentials
// and one-time tokens never leave PostgreSQL.
type cachedUser struct {
	ID         int64     `json:"id"`
	Email      string    `json:"email"`
	IsVerified bool      `json:"is_verified"`
	AvatarURL  *string   `json:"avatar_url"`
	CreatedAt  time.Time `json:"created_at"`
}

// UserCache stores public user records in Redis keyed by user ID.
type UserCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewUserCache creates a Redis-backed user cache with the given entry TTL.
func NewUserCache(client redis.Cmdable, ttl time.Duration) *UserCache {
	return &UserCache{
		client: client,
		ttl:    ttl,
	}
}

// UserKey returns the Redis key for a user.
func UserKey(id int64) string {
	return userKeyPrefix + strconv.FormatInt(id, 10)
}

// Get returns the cached user or apperrors.ErrNotFound on a miss.
func (c *UserCache) Get(ctx context.Context, id int64) (*domain.User, error) {
	data, err := c.client.Get(ctx, UserKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("redis get user: %w", err)
	}

	var cu cachedUser
	if err := json.Unmarshal(data, &cu); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}

	return &domain.User{
		ID:         cu.ID,
		Email:      cu.Email,
		IsVerified: cu.IsVerified,
		AvatarURL:  cu.AvatarURL,
		CreatedAt:  cu.CreatedAt,
	}, nil
}

// Set stores the public fields of u with the configured TTL.
func (c *UserCache) Set(ctx context.Context, u *domain.User) error {
	data, err := json.Marshal(cachedUser{
		ID:         u.ID,
		Email:      u.Email,
		IsVerified: u.IsVerified,
		AvatarURL:  u.AvatarURL,
		CreatedAt:  u.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}

	if err := c.client.Set(ctx, UserKey(u.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set user: %w", err)
	}
	return nil
}

// Delete invalidates the cached user.
func (c *UserCache) Delete(ctx context.Context, id int64) error {
	if err := c.client.Del(ctx, UserKey(id)).Err(); err != nil {
		return fmt.Errorf("redis del user: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (c *UserCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
