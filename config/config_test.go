package config_test

import (
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jrife/tenantkv/config"
	"github.com/jrife/tenantkv/cost"
	"github.com/jrife/tenantkv/lock"
	"github.com/jrife/tenantkv/storage"
)

func writeConfig(t *testing.T, contents string) string {
	path := filepath.Join(t.TempDir(), "tenantkv.toml")

	if err := ioutil.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	return path
}

func TestDefault(t *testing.T) {
	c := config.Default()

	if err := c.Validate(); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if diff := cmp.Diff(cost.DefaultTiers(), c.Cost.Tiers()); diff != "" {
		t.Fatalf(diff)
	}

	if c.Lock.RetryDelay.Duration != lock.DefaultRetryDelay || c.Lock.RetryCount != lock.DefaultRetryCount || c.Lock.Expiry.Duration != lock.DefaultExpiry {
		t.Fatalf("unexpected lock defaults %#v", c.Lock)
	}

	if c.Backend.Plugin != "redis" || c.Backend.ScanCount != storage.DefaultScanCount {
		t.Fatalf("unexpected backend defaults %#v", c.Backend)
	}

	if c.Overflow.Plugin != "" || c.Overflow.Threshold != storage.DefaultOverflowThreshold {
		t.Fatalf("unexpected overflow defaults %#v", c.Overflow)
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
listen-addr = "0.0.0.0:9000"

[log]
level = "debug"

[log.file]
filename = "/var/log/tenantkv.log"
max-days = 7

[backend]
plugin = "etcd"
timeout = "2s"
scan-count = 64

[backend.options]
endpoints = "10.0.0.1:2379,10.0.0.2:2379"
dial-timeout = "3s"

[lock]
retry-delay = "50ms"
retry-count = 10
expiry = "1m"

[cost]
store = 100

[overflow]
plugin = "s3"
threshold = 4096
endpoint = "minio:9000"
access-key = "key"
secret-key = "secret"
bucket = "blobs"
`)

	c, err := config.Load(path)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if c.ListenAddr != "0.0.0.0:9000" || c.Log.Level != "debug" || c.Log.File.Filename != "/var/log/tenantkv.log" || c.Log.File.MaxDays != 7 {
		t.Fatalf("unexpected config %#v", c)
	}

	if c.Backend.Plugin != "etcd" || c.Backend.Timeout.Duration != 2*time.Second || c.Backend.ScanCount != 64 {
		t.Fatalf("unexpected backend config %#v", c.Backend)
	}

	endpoints, err := c.BackendOptions().Strings("endpoints", nil)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if diff := cmp.Diff([]string{"10.0.0.1:2379", "10.0.0.2:2379"}, endpoints); diff != "" {
		t.Fatalf(diff)
	}

	if timeout, _ := c.BackendOptions().Duration("dial-timeout", 0); timeout != 3*time.Second {
		t.Fatalf("expected dial-timeout to be 3s, got %s", timeout)
	}

	if c.Lock.RetryDelay.Duration != 50*time.Millisecond || c.Lock.RetryCount != 10 || c.Lock.Expiry.Duration != time.Minute {
		t.Fatalf("unexpected lock config %#v", c.Lock)
	}

	if c.Cost.Store != 100 || c.Cost.List != cost.DefaultTiers().List {
		t.Fatalf("unexpected cost config %#v", c.Cost)
	}

	if c.Overflow.Plugin != "s3" || c.Overflow.Threshold != 4096 || c.Overflow.Bucket != "blobs" {
		t.Fatalf("unexpected overflow config %#v", c.Overflow)
	}
}

func TestLoadErrors(t *testing.T) {
	testCases := map[string]struct {
		contents string
		message  string
	}{
		"undefined-item": {
			contents: "[lock]\nretries = 3\n",
			message:  "lock.retries",
		},
		"bad-duration": {
			contents: "[lock]\nretry-delay = \"soon\"\n",
			message:  "could not decode",
		},
		"negative-retry-count": {
			contents: "[lock]\nretry-count = -1\n",
			message:  "lock.retry-count",
		},
		"negative-cost": {
			contents: "[cost]\nlist = -5\n",
			message:  "costs must not be negative",
		},
	}

	for name, testCase := range testCases {
		testCase := testCase

		t.Run(name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, testCase.contents))

			if err == nil {
				t.Fatalf("expected err to not be nil")
			}

			if !strings.Contains(err.Error(), testCase.message) {
				t.Fatalf("expected err to mention %q, got %s", testCase.message, err)
			}
		})
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected err to not be nil")
	}
}
