package logging

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSink appends episodes to a Redis stream, trimmed to roughly MaxLen
// entries.
type RedisSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisSink connects to addr and checks the server is reachable
func NewRedisSink(ctx context.Context, addr, stream string, maxLen int64) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 2 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis sink %s: %w", addr, err)
	}
	return &RedisSink{client: client, stream: stream, maxLen: maxLen}, nil
}

// WriteEpisode adds rec to the stream
func (s *RedisSink) WriteEpisode(ctx context.Context, rec EpisodeRecord) error {
	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: episodeValues(rec),
	}).Err()
	if err != nil {
		return fmt.Errorf("redis sink: xadd %s: %w", s.stream, err)
	}
	return nil
}

// Close closes the client
func (s *RedisSink) Close() error {
	return s.client.Close()
}

func episodeValues(rec EpisodeRecord) map[string]interface{} {
	return map[string]interface{}{
		"game":       rec.Game,
		"score":      rec.Score,
		"record":     rec.Record,
		"mean_score": rec.MeanScore,
		"steps":      rec.Steps,
		"length":     rec.Length,
		"death":      rec.Death.String(),
		"epsilon":    rec.Epsilon,
		"memory":     rec.Memory,
	}
}
