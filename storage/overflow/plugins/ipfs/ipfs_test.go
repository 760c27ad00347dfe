package ipfs_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/google/go-cmp/cmp"
	"github.com/jrife/tenantkv/cost"
	"github.com/jrife/tenantkv/storage"
	"github.com/jrife/tenantkv/storage/kv"
	"github.com/jrife/tenantkv/storage/overflow"
	"github.com/jrife/tenantkv/storage/overflow/plugins/ipfs"
	"go.uber.org/zap/zaptest"
)

// node mimics the subset of the IPFS RPC API used by the store
type node struct {
	mu     sync.Mutex
	pinned map[string][]byte
}

func newNode(t *testing.T, user, password string) *httptest.Server {
	n := &node{pinned: map[string][]byte{}}
	mux := http.NewServeMux()

	authorized := func(w http.ResponseWriter, r *http.Request) bool {
		u, p, ok := r.BasicAuth()

		if r.Method != http.MethodPost || !ok || u != user || p != password {
			w.WriteHeader(http.StatusUnauthorized)

			return false
		}

		return true
	}

	mux.HandleFunc("/api/v0/add", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}

		file, _, err := r.FormFile("file")

		if err != nil {
			w.WriteHeader(http.StatusBadRequest)

			return
		}

		data, _ := ioutil.ReadAll(file)
		sum := sha256.Sum256(data)
		hash := hex.EncodeToString(sum[:])

		n.mu.Lock()
		n.pinned[hash] = data
		n.mu.Unlock()

		json.NewEncoder(w).Encode(map[string]string{"Name": "blob", "Hash": hash, "Size": "1"})
	})

	mux.HandleFunc("/api/v0/cat", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}

		n.mu.Lock()
		data, ok := n.pinned[r.URL.Query().Get("arg")]
		n.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusInternalServerError)

			return
		}

		w.Write(data)
	})

	mux.HandleFunc("/api/v0/pin/rm", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}

		n.mu.Lock()
		delete(n.pinned, r.URL.Query().Get("arg"))
		n.mu.Unlock()

		w.Write([]byte(`{"Pins":[]}`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

func TestIPFSStore(t *testing.T) {
	server := newNode(t, "key", "secret")
	store, err := ipfs.New(overflow.Options{Endpoint: server.URL + "/api/v0", AccessKey: "key", SecretKey: "secret"})

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	defer store.Close()

	ctx := context.Background()
	data := []byte("a value too large to be stored inline")
	reference, err := store.Add(ctx, data)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	got, err := store.Get(ctx, reference)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if diff := cmp.Diff(data, got); diff != "" {
		t.Fatalf(diff)
	}

	if err := store.Delete(ctx, reference); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if _, err := store.Get(ctx, reference); !errors.Is(err, overflow.ErrUnavailable) {
		t.Fatalf("expected err to be %#v, got %#v", overflow.ErrUnavailable, err)
	}
}

func TestIPFSStoreSharedBetweenTenants(t *testing.T) {
	server := newNode(t, "key", "secret")
	store, err := ipfs.New(overflow.Options{Endpoint: server.URL + "/api/v0", AccessKey: "key", SecretKey: "secret"})

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	defer store.Close()

	if overflow.Exclusive(store) {
		t.Fatalf("expected ipfs references not to be exclusive")
	}

	ctx := context.Background()
	mock := clock.NewMock()
	engine := storage.New(storage.EngineConfig{
		Logger:            zaptest.NewLogger(t),
		Backend:           kv.NewFakeBackend(mock),
		Overflow:          store,
		OverflowThreshold: 8,
		Tiers:             cost.DefaultTiers(),
		Clock:             mock,
	})
	alpha := engine.Tenant("alpha")
	beta := engine.Tenant("beta")
	value := bytes.Repeat([]byte("v"), 64)

	if _, err := alpha.Store(ctx, "k", 60000, value); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if _, err := beta.Store(ctx, "other", storage.KeepExpiry, value); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if _, err := beta.Store(ctx, "k", 60000, value); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if _, err := beta.Store(ctx, "k", 60000, []byte("tiny")); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	got, _, err := alpha.Load(ctx, "k")

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if diff := cmp.Diff(value, got); diff != "" {
		t.Fatalf(diff)
	}
}

func TestIPFSStoreBadCredentials(t *testing.T) {
	server := newNode(t, "key", "secret")
	store, err := ipfs.New(overflow.Options{Endpoint: server.URL + "/api/v0/", AccessKey: "key", SecretKey: "wrong"})

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if _, err := store.Add(context.Background(), []byte("x")); !errors.Is(err, overflow.ErrUnavailable) {
		t.Fatalf("expected err to be %#v, got %#v", overflow.ErrUnavailable, err)
	}
}

func TestIPFSStoreRequiresEndpoint(t *testing.T) {
	if _, err := ipfs.New(overflow.Options{}); err == nil {
		t.Fatalf("expected an error when endpoint is missing")
	}
}
