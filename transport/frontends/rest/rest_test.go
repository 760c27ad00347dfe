package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jrife/tenantkv/cost"
	"github.com/jrife/tenantkv/lock"
	"github.com/jrife/tenantkv/service"
	"github.com/jrife/tenantkv/storage"
	"github.com/jrife/tenantkv/storage/kv"
	"github.com/jrife/tenantkv/storage/overflow"
	"github.com/jrife/tenantkv/transport/frontends"
	"github.com/jrife/tenantkv/transport/frontends/rest"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"
)

func newFrontend(t *testing.T) *rest.Frontend {
	logger := zaptest.NewLogger(t)
	backend := kv.NewFakeBackend(nil)
	registry := prometheus.NewRegistry()
	server := service.New(service.Config{
		Logger:     logger,
		Engine:     storage.New(storage.EngineConfig{Logger: logger, Backend: backend, Tiers: cost.DefaultTiers()}),
		Locks:      lock.New(lock.ManagerConfig{Logger: logger, Backend: backend, RetryDelay: time.Millisecond, RetryCount: 1, Tiers: cost.DefaultTiers()}),
		Accountant: cost.NewLedger(),
		Metrics:    service.NewMetrics(registry),
	})

	frontend := &rest.Frontend{}

	if err := frontend.Init(frontends.Options{Server: server, Logger: logger, Gatherer: registry}); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	return frontend
}

func do(t *testing.T, handler http.Handler, method string, path string, tenant string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader

	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		encoded, err := json.Marshal(body)

		if err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		reader = bytes.NewReader(encoded)
	}

	request := httptest.NewRequest(method, path, reader)

	if tenant != "" {
		request.Header.Set(rest.TenantHeader, tenant)
	}

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	return recorder
}

func decode(t *testing.T, recorder *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(recorder.Body.Bytes(), v); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}
}

func expectStatus(t *testing.T, recorder *httptest.ResponseRecorder, status int) {
	t.Helper()

	if recorder.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, recorder.Code, recorder.Body.String())
	}
}

func TestKV(t *testing.T) {
	handler := newFrontend(t).Handler()

	recorder := do(t, handler, "POST", "/store", "alpha", map[string]interface{}{"key": "a/1", "value": []byte("one"), "expiry": 60000})
	expectStatus(t, recorder, http.StatusOK)

	var stored struct {
		Cost int64 `json:"cost"`
	}

	decode(t, recorder, &stored)

	if stored.Cost <= cost.DefaultTiers().Store {
		t.Fatalf("expected store to cost more than %d, got %d", cost.DefaultTiers().Store, stored.Cost)
	}

	recorder = do(t, handler, "POST", "/load", "alpha", map[string]string{"key": "a/1"})
	expectStatus(t, recorder, http.StatusOK)

	var loaded struct {
		Value []byte `json:"value"`
		Cost  int64  `json:"cost"`
	}

	decode(t, recorder, &loaded)

	if diff := cmp.Diff([]byte("one"), loaded.Value); diff != "" {
		t.Fatalf(diff)
	}

	recorder = do(t, handler, "POST", "/exists", "alpha", map[string]string{"key": "a/1"})
	expectStatus(t, recorder, http.StatusOK)

	var exists struct {
		Value bool `json:"value"`
	}

	decode(t, recorder, &exists)

	if !exists.Value {
		t.Fatalf("expected a/1 to exist")
	}

	recorder = do(t, handler, "POST", "/list", "alpha", map[string]interface{}{"prefix": "a", "is_recursive": true})
	expectStatus(t, recorder, http.StatusOK)

	var listed struct {
		KeysList []string `json:"keys_list"`
	}

	decode(t, recorder, &listed)

	if diff := cmp.Diff([]string{"a/1"}, listed.KeysList); diff != "" {
		t.Fatalf(diff)
	}

	recorder = do(t, handler, "POST", "/stat", "alpha", map[string]string{"key": "a/1"})
	expectStatus(t, recorder, http.StatusOK)

	var info struct {
		Key        string `json:"key"`
		Size       int    `json:"size"`
		IsTerminal bool   `json:"is_terminal"`
	}

	decode(t, recorder, &info)

	if info.Key != "a/1" || info.Size != 3 || !info.IsTerminal {
		t.Fatalf("unexpected stat response %s", recorder.Body.String())
	}

	expectStatus(t, do(t, handler, "POST", "/delete", "alpha", map[string]string{"key": "a/1"}), http.StatusOK)
	expectStatus(t, do(t, handler, "POST", "/load", "alpha", map[string]string{"key": "a/1"}), http.StatusNotFound)
	expectStatus(t, do(t, handler, "POST", "/load", "beta", map[string]string{"key": "a/1"}), http.StatusNotFound)
}

func TestLock(t *testing.T) {
	handler := newFrontend(t).Handler()

	recorder := do(t, handler, "POST", "/lock", "alpha", map[string]string{"key": "k"})
	expectStatus(t, recorder, http.StatusOK)

	var locked struct {
		LockID []byte `json:"lock_id"`
	}

	decode(t, recorder, &locked)

	if len(locked.LockID) != lock.TokenSize {
		t.Fatalf("expected a %d byte lock id, got %d bytes", lock.TokenSize, len(locked.LockID))
	}

	expectStatus(t, do(t, handler, "POST", "/lock", "alpha", map[string]string{"key": "k"}), http.StatusConflict)
	expectStatus(t, do(t, handler, "POST", "/unlock", "alpha", map[string]interface{}{"key": "k", "lock_id": []byte("wrong")}), http.StatusForbidden)
	expectStatus(t, do(t, handler, "POST", "/unlock", "alpha", map[string]interface{}{"key": "k", "lock_id": locked.LockID}), http.StatusOK)
	expectStatus(t, do(t, handler, "POST", "/lock", "alpha", map[string]string{"key": "k"}), http.StatusOK)
}

func TestBadRequests(t *testing.T) {
	testCases := map[string]struct {
		path   string
		tenant string
		body   interface{}
	}{
		"missing-tenant": {
			path: "/load",
			body: map[string]string{"key": "k"},
		},
		"invalid-tenant": {
			path:   "/load",
			tenant: "a/b",
			body:   map[string]string{"key": "k"},
		},
		"lock-suffix-tenant": {
			path:   "/lock",
			tenant: "alpha.lock",
			body:   map[string]string{"key": "k"},
		},
		"empty-lock-key": {
			path:   "/lock",
			tenant: "alpha",
			body:   map[string]string{"key": ""},
		},
		"empty-key": {
			path:   "/store",
			tenant: "alpha",
			body:   map[string]interface{}{"key": "", "value": []byte("v"), "expiry": 1000},
		},
		"zero-expiry": {
			path:   "/store",
			tenant: "alpha",
			body:   map[string]interface{}{"key": "k", "value": []byte("v"), "expiry": 0},
		},
		"malformed-body": {
			path:   "/exists",
			tenant: "alpha",
			body:   "{",
		},
	}

	handler := newFrontend(t).Handler()

	for name, testCase := range testCases {
		testCase := testCase

		t.Run(name, func(t *testing.T) {
			expectStatus(t, do(t, handler, "POST", testCase.path, testCase.tenant, testCase.body), http.StatusBadRequest)
		})
	}
}

func TestStatus(t *testing.T) {
	handler := newFrontend(t).Handler()

	recorder := do(t, handler, "GET", "/ping", "", nil)
	expectStatus(t, recorder, http.StatusOK)

	var pong struct {
		Version string `json:"version"`
	}

	decode(t, recorder, &pong)

	if pong.Version != service.Version {
		t.Fatalf("expected version %s, got %s", service.Version, pong.Version)
	}

	expectStatus(t, do(t, handler, "POST", "/exists", "alpha", map[string]string{"key": "k"}), http.StatusOK)

	recorder = do(t, handler, "GET", "/cost", "alpha", nil)
	expectStatus(t, recorder, http.StatusOK)

	var balance struct {
		Tenant  string `json:"tenant"`
		Balance int64  `json:"balance"`
	}

	decode(t, recorder, &balance)

	if balance.Balance != cost.DefaultTiers().Exists {
		t.Fatalf("expected balance %d, got %d", cost.DefaultTiers().Exists, balance.Balance)
	}

	recorder = do(t, handler, "GET", "/metrics", "", nil)
	expectStatus(t, recorder, http.StatusOK)

	if !strings.Contains(recorder.Body.String(), `tenantkv_service_operations_total{operation="exists",outcome="success"} 1`) {
		t.Fatalf("expected operation counter in metrics, got %s", recorder.Body.String())
	}
}

// failingServer fails every operation with err
type failingServer struct {
	service.Service
	err error
}

func (server *failingServer) Load(ctx context.Context, tenant string, key string) ([]byte, int64, error) {
	return nil, 0, server.err
}

func TestErrorStatus(t *testing.T) {
	testCases := map[string]struct {
		err    error
		status int
	}{
		"timeout": {
			err:    fmt.Errorf("could not read record: %w", kv.ErrTimeout),
			status: http.StatusGatewayTimeout,
		},
		"backend-unavailable": {
			err:    fmt.Errorf("could not read record: %w", kv.ErrUnavailable),
			status: http.StatusServiceUnavailable,
		},
		"overflow-unavailable": {
			err:    fmt.Errorf("could not read blob: %w", overflow.ErrUnavailable),
			status: http.StatusServiceUnavailable,
		},
		"malformed": {
			err:    fmt.Errorf("could not decode record: %w", storage.ErrMalformed),
			status: http.StatusInternalServerError,
		},
		"other": {
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
		},
	}

	for name, testCase := range testCases {
		testCase := testCase

		t.Run(name, func(t *testing.T) {
			frontend := &rest.Frontend{}

			if err := frontend.Init(frontends.Options{Server: &failingServer{err: testCase.err}, Logger: zaptest.NewLogger(t), Gatherer: prometheus.NewRegistry()}); err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			expectStatus(t, do(t, frontend.Handler(), "POST", "/load", "alpha", map[string]string{"key": "k"}), testCase.status)
		})
	}
}

func TestListenStop(t *testing.T) {
	frontend := newFrontend(t)
	listener, err := net.Listen("tcp", "127.0.0.1:0")

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	done := make(chan error, 1)

	go func() {
		done <- frontend.Listen(listener)
	}()

	var response *http.Response

	for i := 0; i < 50; i++ {
		response, err = http.Get("http://" + listener.Addr().String() + "/ping")

		if err == nil {
			break
		}

		time.Sleep(10 * time.Millisecond)
	}

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	body, _ := ioutil.ReadAll(response.Body)
	response.Body.Close()

	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, response.StatusCode, body)
	}

	if err := frontend.Stop(); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("expected Listen to return after Stop")
	}
}

func TestInitRequiresServer(t *testing.T) {
	if err := (&rest.Frontend{}).Init(frontends.Options{}); err == nil {
		t.Fatalf("expected err to not be nil")
	}
}
