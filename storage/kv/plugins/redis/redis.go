// Package redis is a kv backend on top of a single Redis server.
// Conditional writes map onto SET NX/XX, keep-ttl onto SET KEEPTTL
// and previous values onto SET GET, which requires Redis 6.2 or later.
package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v9"
	"github.com/jrife/tenantkv/storage/kv"
)

const (
	// DriverName is the name under which the plugin is registered
	DriverName = "redis"
	// TempAddrEnv names the environment variable holding the address
	// of a disposable server used by NewTempBackend
	TempAddrEnv = "TENANTKV_TEST_REDIS_ADDR"
)

// deleteIfScript deletes KEYS[1] only if it holds ARGV[1]
var deleteIfScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Plugins lists the plugins provided by this package
func Plugins() []kv.Plugin {
	return []kv.Plugin{
		&RedisPlugin{},
	}
}

// RedisPlugin creates redis backends
type RedisPlugin struct {
}

// Name implements kv.Plugin.Name
func (plugin *RedisPlugin) Name() string {
	return DriverName
}

// NewBackend implements kv.Plugin.NewBackend
func (plugin *RedisPlugin) NewBackend(options kv.PluginOptions) (kv.Backend, error) {
	opts := &goredis.Options{}
	var err error

	if opts.Addr, err = options.String("addr", "127.0.0.1:6379"); err != nil {
		return nil, err
	}

	if opts.Password, err = options.String("password", ""); err != nil {
		return nil, err
	}

	if opts.DB, err = options.Int("db", 0); err != nil {
		return nil, err
	}

	if opts.PoolSize, err = options.Int("pool-size", 0); err != nil {
		return nil, err
	}

	if opts.DialTimeout, err = options.Duration("dial-timeout", 5*time.Second); err != nil {
		return nil, err
	}

	if opts.ReadTimeout, err = options.Duration("read-timeout", 3*time.Second); err != nil {
		return nil, err
	}

	if opts.WriteTimeout, err = options.Duration("write-timeout", opts.ReadTimeout); err != nil {
		return nil, err
	}

	return New(opts), nil
}

// NewTempBackend implements kv.Plugin.NewTempBackend. It connects
// to the server named by TempAddrEnv and returns nil if it is unset.
func (plugin *RedisPlugin) NewTempBackend() (kv.Backend, error) {
	addr := os.Getenv(TempAddrEnv)

	if addr == "" {
		return nil, nil
	}

	backend := New(&goredis.Options{Addr: addr})

	if err := backend.client.FlushDB(context.Background()).Err(); err != nil {
		backend.Close()

		return nil, wrapError(err)
	}

	return backend, nil
}

type redisClient interface {
	goredis.Scripter
	Get(ctx context.Context, key string) *goredis.StringCmd
	SetArgs(ctx context.Context, key string, value interface{}, a goredis.SetArgs) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
	Exists(ctx context.Context, keys ...string) *goredis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *goredis.ScanCmd
	FlushDB(ctx context.Context) *goredis.StatusCmd
	Close() error
}

var _ kv.Backend = (*RedisBackend)(nil)

// RedisBackend implements kv.Backend on a Redis server
type RedisBackend struct {
	client redisClient
}

// New connects to the server described by opts
func New(opts *goredis.Options) *RedisBackend {
	return &RedisBackend{client: goredis.NewClient(opts)}
}

// Get implements kv.Backend.Get
func (backend *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := backend.client.Get(ctx, key).Bytes()

	if err == goredis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, wrapError(err)
	}

	return value, nil
}

// Set implements kv.Backend.Set
func (backend *RedisBackend) Set(ctx context.Context, key string, value []byte, options kv.SetOptions) (kv.SetResult, error) {
	if err := options.Validate(); err != nil {
		return kv.SetResult{}, err
	}

	args := goredis.SetArgs{TTL: options.TTL, KeepTTL: options.KeepTTL, Get: options.ReturnPrevious}

	switch options.Condition {
	case kv.IfExists:
		args.Mode = "XX"
	case kv.IfAbsent:
		args.Mode = "NX"
	}

	reply, err := backend.client.SetArgs(ctx, key, value, args).Result()

	if err != nil && err != goredis.Nil {
		return kv.SetResult{}, wrapError(err)
	}

	// A nil reply means "not written" unless the reply carries the
	// previous value, in which case it means "no previous value".
	replyIsNil := err == goredis.Nil

	if !options.ReturnPrevious {
		return kv.SetResult{Written: !replyIsNil}, nil
	}

	var result kv.SetResult

	if !replyIsNil {
		result.Previous = []byte(reply)
	}

	switch options.Condition {
	case kv.IfExists:
		result.Written = !replyIsNil
	case kv.IfAbsent:
		result.Written = replyIsNil
	default:
		result.Written = true
	}

	return result, nil
}

// Delete implements kv.Backend.Delete
func (backend *RedisBackend) Delete(ctx context.Context, key string) error {
	return wrapError(backend.client.Del(ctx, key).Err())
}

// DeleteIf implements kv.Backend.DeleteIf
func (backend *RedisBackend) DeleteIf(ctx context.Context, key string, expected []byte) (bool, error) {
	deleted, err := deleteIfScript.Run(ctx, backend.client, []string{key}, expected).Int()

	if err != nil {
		return false, wrapError(err)
	}

	return deleted == 1, nil
}

// Exists implements kv.Backend.Exists
func (backend *RedisBackend) Exists(ctx context.Context, key string) (bool, error) {
	n, err := backend.client.Exists(ctx, key).Result()

	if err != nil {
		return false, wrapError(err)
	}

	return n > 0, nil
}

// Scan implements kv.Backend.Scan with SCAN MATCH COUNT. The cursor
// is the decimal form of the server's cursor.
func (backend *RedisBackend) Scan(ctx context.Context, cursor string, match string, count int64) ([]string, string, error) {
	var position uint64

	if cursor != kv.CursorStart {
		var err error

		if position, err = strconv.ParseUint(cursor, 10, 64); err != nil {
			return nil, kv.CursorStart, fmt.Errorf("invalid cursor %q: %s", cursor, err)
		}
	}

	page, next, err := backend.client.Scan(ctx, position, match, count).Result()

	if err != nil {
		return nil, kv.CursorStart, wrapError(err)
	}

	if next == 0 {
		return page, kv.CursorStart, nil
	}

	return page, strconv.FormatUint(next, 10), nil
}

// Close implements kv.Backend.Close
func (backend *RedisBackend) Close() error {
	return backend.client.Close()
}

func wrapError(err error) error {
	var netErr net.Error

	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s", kv.ErrTimeout, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %s", kv.ErrTimeout, err)
	case errors.Is(err, goredis.ErrClosed):
		return kv.ErrClosed
	}

	return fmt.Errorf("%w: %s", kv.ErrUnavailable, err)
}
