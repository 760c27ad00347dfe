// Package etcd is a kv backend on top of an etcd v3 cluster. Expiry
// is implemented with one lease per write, rounded up to the whole
// second. Scans walk the keyspace in key order and filter pages
// client-side.
package etcd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jrife/tenantkv/storage/kv"
	"go.etcd.io/etcd/client/pkg/v3/transport"
	clientv3 "go.etcd.io/etcd/client/v3"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	// DriverName is the name under which the plugin is registered
	DriverName = "etcd"
	// TempEndpointsEnv names the environment variable holding the
	// endpoints of a disposable cluster used by NewTempBackend
	TempEndpointsEnv = "TENANTKV_TEST_ETCD_ENDPOINTS"
	defaultCount     = 100
	// the smallest non-empty key
	firstKey = "\x00"
)

// Plugins lists the plugins provided by this package
func Plugins() []kv.Plugin {
	return []kv.Plugin{
		&EtcdPlugin{},
	}
}

// EtcdPlugin creates etcd backends
type EtcdPlugin struct {
}

// Name implements kv.Plugin.Name
func (plugin *EtcdPlugin) Name() string {
	return DriverName
}

// NewBackend implements kv.Plugin.NewBackend
func (plugin *EtcdPlugin) NewBackend(options kv.PluginOptions) (kv.Backend, error) {
	config, err := clientConfig(options)

	if err != nil {
		return nil, err
	}

	return New(config)
}

// NewTempBackend implements kv.Plugin.NewTempBackend. It connects
// to the cluster named by TempEndpointsEnv, clears it and returns
// nil if the variable is unset.
func (plugin *EtcdPlugin) NewTempBackend() (kv.Backend, error) {
	endpoints := os.Getenv(TempEndpointsEnv)

	if endpoints == "" {
		return nil, nil
	}

	backend, err := New(clientv3.Config{Endpoints: strings.Split(endpoints, ","), DialTimeout: 2 * time.Second})

	if err != nil {
		return nil, err
	}

	if _, err := backend.client.Delete(context.Background(), firstKey, clientv3.WithFromKey()); err != nil {
		backend.Close()

		return nil, wrapError(err)
	}

	return backend, nil
}

func clientConfig(options kv.PluginOptions) (clientv3.Config, error) {
	var config clientv3.Config
	var err error

	if config.Endpoints, err = options.Strings("endpoints", []string{"localhost:2379"}); err != nil {
		return config, err
	}

	if config.DialTimeout, err = options.Duration("dial-timeout", 2*time.Second); err != nil {
		return config, err
	}

	if config.Username, err = options.String("username", ""); err != nil {
		return config, err
	}

	if config.Password, err = options.String("password", ""); err != nil {
		return config, err
	}

	var tlsInfo transport.TLSInfo

	if tlsInfo.CertFile, err = options.String("cert-file", ""); err != nil {
		return config, err
	}

	if tlsInfo.KeyFile, err = options.String("key-file", ""); err != nil {
		return config, err
	}

	if tlsInfo.TrustedCAFile, err = options.String("cacert-file", ""); err != nil {
		return config, err
	}

	if !tlsInfo.Empty() {
		var tlsConfig *tls.Config

		if tlsConfig, err = tlsInfo.ClientConfig(); err != nil {
			return config, fmt.Errorf("could not load tls configuration: %s", err)
		}

		config.TLS = tlsConfig
	}

	return config, nil
}

var _ kv.Backend = (*EtcdBackend)(nil)

// EtcdBackend implements kv.Backend on an etcd cluster
type EtcdBackend struct {
	client *clientv3.Client
}

// New connects to the cluster described by config
func New(config clientv3.Config) (*EtcdBackend, error) {
	client, err := clientv3.New(config)

	if err != nil {
		return nil, fmt.Errorf("could not create etcd client: %s", err)
	}

	return &EtcdBackend{client: client}, nil
}

// Get implements kv.Backend.Get
func (backend *EtcdBackend) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := backend.client.Get(ctx, key)

	if err != nil {
		return nil, wrapError(err)
	}

	if len(resp.Kvs) == 0 {
		return nil, nil
	}

	return resp.Kvs[0].Value, nil
}

// Set implements kv.Backend.Set
func (backend *EtcdBackend) Set(ctx context.Context, key string, value []byte, options kv.SetOptions) (kv.SetResult, error) {
	if err := options.Validate(); err != nil {
		return kv.SetResult{}, err
	}

	put := clientv3.OpPut(key, string(value))
	var lease clientv3.LeaseID

	if options.KeepTTL {
		put = clientv3.OpPut(key, string(value), clientv3.WithIgnoreLease())
	} else if options.TTL > 0 {
		grant, err := backend.client.Grant(ctx, leaseSeconds(options.TTL))

		if err != nil {
			return kv.SetResult{}, wrapError(err)
		}

		lease = grant.ID
		put = clientv3.OpPut(key, string(value), clientv3.WithLease(lease))
	}

	exists := clientv3.Compare(clientv3.CreateRevision(key), ">", 0)
	get := clientv3.OpGet(key)
	txn := backend.client.Txn(ctx)

	switch options.Condition {
	case kv.IfExists:
		txn = txn.If(exists).Then(get, put).Else(get)
	case kv.IfAbsent:
		txn = txn.If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).Then(get, put).Else(get)
	default:
		if options.KeepTTL {
			// Keeping the lease of a key that doesn't exist is an error
			// in etcd. Such a key has no expiry to keep.
			txn = txn.If(exists).Then(get, put).Else(get, clientv3.OpPut(key, string(value)))
		} else {
			txn = txn.Then(get, put)
		}
	}

	resp, err := txn.Commit()

	if err != nil {
		backend.revoke(lease)

		return kv.SetResult{}, wrapError(err)
	}

	result := kv.SetResult{Written: resp.Succeeded || options.Condition == kv.Always}

	if !result.Written {
		backend.revoke(lease)
	}

	if options.ReturnPrevious {
		if kvs := resp.Responses[0].GetResponseRange().Kvs; len(kvs) > 0 {
			result.Previous = kvs[0].Value
		}
	}

	return result, nil
}

// revoke releases a lease that no key ended up attached to
func (backend *EtcdBackend) revoke(lease clientv3.LeaseID) {
	if lease == clientv3.NoLease {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// An orphaned lease expires on its own
	backend.client.Revoke(ctx, lease)
}

// Delete implements kv.Backend.Delete
func (backend *EtcdBackend) Delete(ctx context.Context, key string) error {
	_, err := backend.client.Delete(ctx, key)

	return wrapError(err)
}

// DeleteIf implements kv.Backend.DeleteIf
func (backend *EtcdBackend) DeleteIf(ctx context.Context, key string, expected []byte) (bool, error) {
	resp, err := backend.client.Txn(ctx).
		If(clientv3.Compare(clientv3.Value(key), "=", string(expected))).
		Then(clientv3.OpDelete(key)).
		Commit()

	if err != nil {
		return false, wrapError(err)
	}

	return resp.Succeeded, nil
}

// Exists implements kv.Backend.Exists
func (backend *EtcdBackend) Exists(ctx context.Context, key string) (bool, error) {
	resp, err := backend.client.Get(ctx, key, clientv3.WithCountOnly())

	if err != nil {
		return false, wrapError(err)
	}

	return resp.Count > 0, nil
}

// Scan implements kv.Backend.Scan. The cursor is the last key
// visited by the previous page.
func (backend *EtcdBackend) Scan(ctx context.Context, cursor string, match string, count int64) ([]string, string, error) {
	if count < 1 {
		count = defaultCount
	}

	from := cursor

	if from == kv.CursorStart {
		from = firstKey
	}

	// One extra key covers the cursor itself, which was already visited
	resp, err := backend.client.Get(ctx, from, clientv3.WithFromKey(), clientv3.WithKeysOnly(), clientv3.WithLimit(count+1))

	if err != nil {
		return nil, kv.CursorStart, wrapError(err)
	}

	var page []string
	var visited int64
	var last string
	remaining := resp.More

	for _, pair := range resp.Kvs {
		key := string(pair.Key)

		if key == cursor {
			continue
		}

		if visited == count {
			remaining = true
			break
		}

		visited++
		last = key

		if kv.Match(key, match) {
			page = append(page, key)
		}
	}

	if !remaining {
		return page, kv.CursorStart, nil
	}

	return page, last, nil
}

// Close implements kv.Backend.Close
func (backend *EtcdBackend) Close() error {
	return backend.client.Close()
}

func leaseSeconds(ttl time.Duration) int64 {
	seconds := int64((ttl + time.Second - 1) / time.Second)

	if seconds < 1 {
		return 1
	}

	return seconds
}

func wrapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s", kv.ErrTimeout, err)
	case errors.Is(err, clientv3.ErrNoAvailableEndpoints):
		return fmt.Errorf("%w: %s", kv.ErrUnavailable, err)
	}

	switch status.Code(err) {
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", kv.ErrTimeout, err)
	case codes.Unavailable:
		return fmt.Errorf("%w: %s", kv.ErrUnavailable, err)
	}

	return err
}
