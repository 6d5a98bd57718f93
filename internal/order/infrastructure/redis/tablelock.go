package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmehra2102/tableflow/internal/order/application"
	"github.com/dmehra2102/tableflow/internal/order/domain"
)

// acquireScript sets the lock when it is free or already owned by the
// caller and returns the owner with its remaining ttl.
var acquireScript = goredis.NewScript(`
local current = redis.call("GET", KEYS[1])
if not current or current == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	return {ARGV[1], tonumber(ARGV[2])}
end
return {current, redis.call("PTTL", KEYS[1])}
`)

// releaseScript deletes the lock only when it still belongs to the caller.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// TableLocker keeps one expiring key per table holding the lock owner.
type TableLocker struct {
	rdb *goredis.Client
}

func NewTableLocker(rdb *goredis.Client) *TableLocker {
	return &TableLocker{rdb: rdb}
}

func key(tableID uuid.UUID) string {
	return fmt.Sprintf("tablelock:%s", tableID)
}

// Acquire takes or refreshes the lock for holder. It never waits.
func (l *TableLocker) Acquire(ctx context.Context, tableID uuid.UUID, holder string, ttl time.Duration) (application.Lease, error) {
	res, err := acquireScript.Run(ctx, l.rdb, []string{key(tableID)}, holder, ttl.Milliseconds()).Slice()
	if err != nil {
		return application.Lease{}, err
	}
	if len(res) != 2 {
		return application.Lease{}, fmt.Errorf("acquire table lock: unexpected reply %v", res)
	}
	current, _ := res[0].(string)
	pttl, _ := res[1].(int64)
	if current != holder {
		locked := &domain.LockedError{TableID: tableID, Holder: current}
		if pttl > 0 {
			locked.ExpiresAt = time.Now().Add(time.Duration(pttl) * time.Millisecond)
		}
		return application.Lease{}, locked
	}
	return application.Lease{TableID: tableID, Holder: holder, ExpiresAt: time.Now().Add(ttl)}, nil
}

func (l *TableLocker) Release(ctx context.Context, tableID uuid.UUID, holder string) error {
	return releaseScript.Run(ctx, l.rdb, []string{key(tableID)}, holder).Err()
}

func (l *TableLocker) Current(ctx context.Context, tableID uuid.UUID) (application.Lease, bool, error) {
	k := key(tableID)
	pipe := l.rdb.Pipeline()
	get := pipe.Get(ctx, k)
	ttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return application.Lease{}, false, err
	}
	holder, err := get.Result()
	if errors.Is(err, goredis.Nil) {
		return application.Lease{}, false, nil
	}
	if err != nil {
		return application.Lease{}, false, err
	}
	lease := application.Lease{TableID: tableID, Holder: holder}
	if d := ttl.Val(); d > 0 {
		lease.ExpiresAt = time.Now().Add(d)
	}
	return lease, true, nil
}
