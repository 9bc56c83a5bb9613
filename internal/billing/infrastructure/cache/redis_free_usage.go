package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
	"github.com/redis/go-redis/v9"
)

const (
	fieldIP        = "ip_address"
	fieldCreatedAt = "created_at"
	fieldUpdatedAt = "updated_at"
)

// incrementScript bumps a counter only while it is below the limit.
// KEYS[1] device hash, ARGV[1] counter field, ARGV[2] limit, ARGV[3] timestamp.
var incrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
local used = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
if used >= tonumber(ARGV[2]) then
	return 0
end
redis.call('HINCRBY', KEYS[1], ARGV[1], 1)
redis.call('HSET', KEYS[1], 'updated_at', ARGV[3])
return 1
`)

// RedisFreeUsageStore keeps device free-tier counters in Redis hashes.
// Keys are namespaced: {prefix}:free_usage:{fingerprint}
type RedisFreeUsageStore struct {
	client *redis.Client
	prefix string
}

// NewRedisFreeUsageStore creates a new store.
func NewRedisFreeUsageStore(client *redis.Client, prefix string) *RedisFreeUsageStore {
	if prefix == "" {
		prefix = "cosmiq"
	}
	return &RedisFreeUsageStore{client: client, prefix: prefix}
}

func (s *RedisFreeUsageStore) key(fingerprint string) string {
	return fmt.Sprintf("%s:free_usage:%s", s.prefix, fingerprint)
}

// Get returns the device row, or nil when the device was never seen.
func (s *RedisFreeUsageStore) Get(ctx context.Context, fingerprint string) (*domain.FreeUsage, error) {
	fields, err := s.client.HGetAll(ctx, s.key(fingerprint)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return decode(fingerprint, fields), nil
}

// GetOrCreate initializes the hash fields that are missing, then reads it.
func (s *RedisFreeUsageStore) GetOrCreate(ctx context.Context, fingerprint, ip string) (*domain.FreeUsage, error) {
	key := s.key(fingerprint)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, fieldCreatedAt, now)
		pipe.HSetNX(ctx, key, fieldUpdatedAt, now)
		pipe.HSetNX(ctx, key, fieldIP, ip)
		for _, counter := range []domain.FreeCounter{domain.CounterAsk, domain.CounterDetail, domain.CounterSynastry} {
			pipe.HSetNX(ctx, key, string(counter), 0)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, fingerprint)
}

// Increment adds one to counter while it is below limit.
func (s *RedisFreeUsageStore) Increment(ctx context.Context, fingerprint string, counter domain.FreeCounter, limit int) (bool, error) {
	if !counter.IsValid() {
		return false, fmt.Errorf("unknown free usage counter %q", counter)
	}

	n, err := incrementScript.Run(ctx, s.client,
		[]string{s.key(fingerprint)},
		string(counter), limit, time.Now().UTC().Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func decode(fingerprint string, fields map[string]string) *domain.FreeUsage {
	atoi := func(field string) int {
		n, _ := strconv.Atoi(fields[field])
		return n
	}
	parse := func(field string) time.Time {
		t, _ := time.Parse(time.RFC3339Nano, fields[field])
		return t
	}
	return &domain.FreeUsage{
		Fingerprint:  fingerprint,
		IPAddress:    fields[fieldIP],
		AskUsed:      atoi(string(domain.CounterAsk)),
		DetailUsed:   atoi(string(domain.CounterDetail)),
		SynastryUsed: atoi(string(domain.CounterSynastry)),
		CreatedAt:    parse(fieldCreatedAt),
		UpdatedAt:    parse(fieldUpdatedAt),
	}
}

var _ domain.FreeUsageStore = (*RedisFreeUsageStore)(nil)
