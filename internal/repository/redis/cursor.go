// Package redis persists poll cursors so a restarted relay resumes from the
// last observed counts.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vinicioflores/GreenCarrot/internal/entity"
	"github.com/vinicioflores/GreenCarrot/internal/repository"
)

const DefaultKeyPrefix = "greencarrot:relay:cursor:"

var _ repository.CursorStore = (*CursorStore)(nil)

type CursorStore struct {
	client goredis.UniversalClient
	prefix string
}

// NewCursorStore keys cursors under prefix+stream. An empty prefix means
// DefaultKeyPrefix.
func NewCursorStore(client goredis.UniversalClient, prefix string) *CursorStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &CursorStore{client: client, prefix: prefix}
}

// Dial connects to a single Redis node and checks it answers.
func Dial(ctx context.Context, addr string) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (s *CursorStore) key(stream entity.Stream) string {
	return s.prefix + string(stream)
}

func (s *CursorStore) Load(ctx context.Context, stream entity.Stream) (int64, bool, error) {
	raw, err := s.client.Get(ctx, s.key(stream)).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to load %s cursor: %w", stream, err)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("failed to parse %s cursor %q: %w", stream, raw, err)
	}
	return n, true, nil
}

func (s *CursorStore) Save(ctx context.Context, stream entity.Stream, count int64) error {
	if err := s.client.Set(ctx, s.key(stream), count, 0).Err(); err != nil {
		return fmt.Errorf("failed to save %s cursor: %w", stream, err)
	}
	return nil
}
