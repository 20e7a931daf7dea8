package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AudioPress/audiopress/logger"
	"github.com/AudioPress/audiopress/metrics/prometheus"
	"github.com/AudioPress/audiopress/records"
)

const (
	// playsKeyPrefix namespaces buffered play counters.
	playsKeyPrefix = "audiopress:stats:plays:"

	playsScanBatch = 100
)

// PlayBuffer accumulates play counts in Redis so the hot play-reporting
// path is a single INCR. The scheduled analytics job folds the buffered
// counts into record stats.
type PlayBuffer struct {
	client *redis.Client
}

// NewPlayBuffer creates a play-count buffer.
func NewPlayBuffer(client *redis.Client) *PlayBuffer {
	return &PlayBuffer{client: client}
}

// RecordPlay increments the buffered counter for contentID.
func (b *PlayBuffer) RecordPlay(ctx context.Context, contentID string) error {
	if err := b.client.Incr(ctx, playsKeyPrefix+contentID).Err(); err != nil {
		return fmt.Errorf("redis incr failed: %w", err)
	}
	return nil
}

// Flush folds every buffered counter into its record's play stats and
// clears the counters. GETDEL makes the drain atomic per key: plays
// reported during the flush land in a fresh counter for the next run.
// Counters for records that no longer exist are dropped. Returns the
// number of records updated.
func (b *PlayBuffer) Flush(ctx context.Context, store records.Store) (int, error) {
	var keys []string
	iter := b.client.Scan(ctx, 0, playsKeyPrefix+"*", playsScanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan failed: %w", err)
	}

	updated := 0
	for _, key := range keys {
		raw, err := b.client.GetDel(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return updated, fmt.Errorf("redis getdel failed: %w", err)
		}

		count, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || count <= 0 {
			continue
		}

		contentID := strings.TrimPrefix(key, playsKeyPrefix)
		record, err := store.Load(ctx, contentID)
		if err != nil {
			if errors.Is(err, records.ErrNotFound) {
				logger.DebugContext(ctx, "Dropping plays for missing record",
					"content_id", contentID, "plays", count)
				continue
			}
			return updated, err
		}

		now := time.Now().UTC()
		record.Stats.PlayCount += count
		record.Stats.LastPlayedAt = &now
		if err := store.Save(ctx, record); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

// RecordPlay registers one listener play for contentID. With a play
// buffer attached the count is folded into the record later by the
// analytics job; otherwise it is written through immediately.
func (e *Engine) RecordPlay(ctx context.Context, contentID string) error {
	if contentID == "" {
		return records.ErrInvalidContentID
	}

	prometheus.RecordPlay()

	if e.plays != nil {
		return e.plays.RecordPlay(ctx, contentID)
	}
	return e.records.IncrementPlayCount(ctx, contentID)
}
