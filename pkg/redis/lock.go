package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when the lock is still held after all attempts
var ErrLockHeld = errors.New("lock held by another process")

// Locker provides per-key mutual exclusion across processes
// ⭐ SSOT: 종목 단위 동시 처리 방지 (스케줄러 + 수동 CLI 동시 실행)
type Locker struct {
	client *Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

// DefaultLockTTL is used when NewLocker gets a non-positive ttl
const DefaultLockTTL = time.Minute

// NewLocker creates a locker; ttl bounds how long a crashed holder blocks others
func NewLocker(client *Client, prefix string, ttl time.Duration) *Locker {
	if ttl <= 0 {
		// TTL 0 = 만료 없음 → 비정상 종료 시 영구 점유
		ttl = DefaultLockTTL
	}
	return &Locker{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		retry:  50 * time.Millisecond,
	}
}

// 소유 토큰이 일치할 때만 삭제
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// Lock blocks until the key is acquired or ctx is done.
// Disabled Redis grants every lock immediately.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	if !l.client.Enabled() {
		return func() {}, nil
	}

	fullKey := fmt.Sprintf("%s:lock:%s", l.prefix, key)
	token := uuid.NewString()
	rdb := l.client.Redis()

	for {
		ok, err := rdb.SetNX(ctx, fullKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s (%v)", ErrLockHeld, key, ctx.Err())
		case <-time.After(l.retry):
		}
	}

	unlock := func() {
		// 호출자 컨텍스트가 취소돼도 해제는 수행
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, rdb, []string{fullKey}, token).Err()
	}
	return unlock, nil
}
