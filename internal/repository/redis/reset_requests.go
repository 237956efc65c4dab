package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/beridzemate00/codereview/internal/core/domain"
	"github.com/beridzemate00/codereview/internal/repository"
)

const (
	defaultResetPrefix = "codereview:reset"
	// Records outlive their expiry so lookups of stale secrets still
	// resolve to a known (expired) record before Redis evicts it.
	defaultRecordGrace = time.Hour
)

// replaceScript drops the record referenced by the email pointer and writes
// the new record, fingerprint index and pointer in one atomic step.
// KEYS: email pointer. ARGV: prefix, id, email, fingerprint, expires_ms, created_ms, ttl_ms.
var replaceScript = red.NewScript(`
local old = redis.call('GET', KEYS[1])
if old then
  local oldKey = ARGV[1] .. ':req:' .. old
  local oldFp = redis.call('HGET', oldKey, 'fingerprint')
  if oldFp then
    redis.call('DEL', ARGV[1] .. ':fp:' .. oldFp)
  end
  redis.call('DEL', oldKey)
end
local key = ARGV[1] .. ':req:' .. ARGV[2]
redis.call('HSET', key, 'id', ARGV[2], 'email', ARGV[3], 'fingerprint', ARGV[4], 'expires_at', ARGV[5], 'created_at', ARGV[6], 'consumed', '0')
redis.call('PEXPIRE', key, ARGV[7])
redis.call('SET', ARGV[1] .. ':fp:' .. ARGV[4], ARGV[2], 'PX', ARGV[7])
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[7])
return 1
`)

// reserveScript KEYS: record. ARGV: holder, now_ms, until_ms.
var reserveScript = red.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
local f = redis.call('HMGET', KEYS[1], 'consumed', 'expires_at', 'reserved_until')
if f[1] == '1' then
  return 0
end
if tonumber(f[2]) <= tonumber(ARGV[2]) then
  return 0
end
if f[3] and tonumber(f[3]) > tonumber(ARGV[2]) then
  return 0
end
redis.call('HSET', KEYS[1], 'reserved_by', ARGV[1], 'reserved_until', ARGV[3])
return 1
`)

// releaseScript KEYS: record. ARGV: holder.
var releaseScript = red.NewScript(`
local f = redis.call('HMGET', KEYS[1], 'reserved_by', 'consumed')
if f[1] == ARGV[1] and f[2] ~= '1' then
  redis.call('HDEL', KEYS[1], 'reserved_by', 'reserved_until')
  return 1
end
return 0
`)

// consumeScript KEYS: record. ARGV: holder, consumed_ms.
// Returns 0 for a missing record and -1 when holder lost the reservation.
var consumeScript = red.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
if redis.call('HGET', KEYS[1], 'reserved_by') ~= ARGV[1] then
  return -1
end
redis.call('HSET', KEYS[1], 'consumed', '1')
redis.call('HSETNX', KEYS[1], 'consumed_at', ARGV[2])
redis.call('HDEL', KEYS[1], 'reserved_until')
return 1
`)

// ResetRequestRepository stores reset requests as Redis hashes with a
// fingerprint index and a per-email pointer to the live request.
type ResetRequestRepository struct {
	client *red.Client
	prefix string
	grace  time.Duration
	now    func() time.Time
}

// NewResetRequestRepository wires a Redis client into a reset request repository.
func NewResetRequestRepository(client *red.Client, keyPrefix string) *ResetRequestRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultResetPrefix
	}

	return &ResetRequestRepository{
		client: client,
		prefix: prefix,
		grace:  defaultRecordGrace,
		now:    time.Now,
	}
}

// WithClock overrides the clock used to derive key TTLs.
func (r *ResetRequestRepository) WithClock(now func() time.Time) *ResetRequestRepository {
	if now != nil {
		r.now = now
	}
	return r
}

// Replace supersedes any request stored for req.Email.
func (r *ResetRequestRepository) Replace(ctx context.Context, req domain.ResetRequest) error {
	ttl := req.ExpiresAt.Sub(r.now()) + r.grace
	if ttl <= 0 {
		return errors.New("reset request already expired")
	}

	err := replaceScript.Run(ctx, r.client,
		[]string{r.emailKey(req.Email)},
		r.prefix,
		req.ID,
		req.Email,
		req.Fingerprint,
		req.ExpiresAt.UnixMilli(),
		req.CreatedAt.UnixMilli(),
		ttl.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("redis replace reset request: %w", err)
	}

	return nil
}

// FindByFingerprint resolves the fingerprint index and loads the record.
func (r *ResetRequestRepository) FindByFingerprint(ctx context.Context, fingerprint string) (*domain.ResetRequest, error) {
	id, err := r.client.Get(ctx, r.fingerprintKey(fingerprint)).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get reset fingerprint: %w", err)
	}

	fields, err := r.client.HGetAll(ctx, r.recordKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load reset request: %w", err)
	}
	if len(fields) == 0 {
		return nil, repository.ErrNotFound
	}

	return decodeResetRequest(fields)
}

// Reserve claims the request for holder until the given instant.
func (r *ResetRequestRepository) Reserve(ctx context.Context, id, holder string, now, until time.Time) (bool, error) {
	n, err := reserveScript.Run(ctx, r.client,
		[]string{r.recordKey(id)},
		holder,
		now.UnixMilli(),
		until.UnixMilli(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis reserve reset request: %w", err)
	}
	return n == 1, nil
}

// Release drops holder's reservation on an unconsumed request.
func (r *ResetRequestRepository) Release(ctx context.Context, id, holder string) error {
	if err := releaseScript.Run(ctx, r.client, []string{r.recordKey(id)}, holder).Err(); err != nil {
		return fmt.Errorf("redis release reset request: %w", err)
	}
	return nil
}

// Consume marks the request used by holder, keeping the first consumption
// time. The holder stays on the record so a repeated call is a no-op.
func (r *ResetRequestRepository) Consume(ctx context.Context, id, holder string, at time.Time) error {
	n, err := consumeScript.Run(ctx, r.client, []string{r.recordKey(id)}, holder, at.UnixMilli()).Int()
	if err != nil {
		return fmt.Errorf("redis consume reset request: %w", err)
	}
	switch n {
	case 0:
		return repository.ErrNotFound
	case -1:
		return repository.ErrConflict
	}
	return nil
}

// DeleteExpired is a no-op: every key carries a TTL and Redis evicts it.
func (r *ResetRequestRepository) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (r *ResetRequestRepository) recordKey(id string) string {
	return r.prefix + ":req:" + id
}

func (r *ResetRequestRepository) fingerprintKey(fingerprint string) string {
	return r.prefix + ":fp:" + fingerprint
}

func (r *ResetRequestRepository) emailKey(email string) string {
	return r.prefix + ":email:" + email
}

func decodeResetRequest(fields map[string]string) (*domain.ResetRequest, error) {
	expiresAt, err := parseMillis(fields["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("decode expires_at: %w", err)
	}
	createdAt, err := parseMillis(fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}

	req := &domain.ResetRequest{
		ID:          fields["id"],
		Email:       fields["email"],
		Fingerprint: fields["fingerprint"],
		ExpiresAt:   expiresAt,
		CreatedAt:   createdAt,
		Consumed:    fields["consumed"] == "1",
		ReservedBy:  fields["reserved_by"],
	}

	if raw, ok := fields["consumed_at"]; ok {
		at, err := parseMillis(raw)
		if err != nil {
			return nil, fmt.Errorf("decode consumed_at: %w", err)
		}
		req.ConsumedAt = &at
	}
	if raw, ok := fields["reserved_until"]; ok {
		until, err := parseMillis(raw)
		if err != nil {
			return nil, fmt.Errorf("decode reserved_until: %w", err)
		}
		req.ReservedUntil = &until
	}

	return req, nil
}

func parseMillis(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
