package redis

import (
	"context"
	"strconv"
	"time"

	"freecord/internal/config"
	"freecord/internal/models"

	goredis "github.com/redis/go-redis/v9"
)

const (
	presenceKeyPrefix = "presence:"
	presenceOnlineSet = "presence:online"
)

func NewClient(cfg config.RedisConfig) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// StatusStore mirrors user status records into a presence:<id> hash and the
// presence:online set so other processes can read presence without touching
// Postgres.
type StatusStore struct {
	client *goredis.Client
}

func NewStatusStore(client *goredis.Client) *StatusStore {
	return &StatusStore{client: client}
}

func (s *StatusStore) UpdateUserStatus(ctx context.Context, userID int64, status string, at time.Time) error {
	id := strconv.FormatInt(userID, 10)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, presenceKeyPrefix+id, map[string]any{
		"status":        status,
		"last_activity": at.UTC().Format(time.RFC3339Nano),
	})
	if status == models.StatusOnline {
		pipe.SAdd(ctx, presenceOnlineSet, id)
	} else {
		pipe.SRem(ctx, presenceOnlineSet, id)
	}
	_, err := pipe.Exec(ctx)
	return err
}
