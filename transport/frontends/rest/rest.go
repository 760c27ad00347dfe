// Package rest serves a transport.Server over HTTP with JSON bodies.
package rest

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/jrife/tenantkv/transport"
	"github.com/jrife/tenantkv/transport/frontends"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unrolled/render"
	"go.uber.org/zap"
)

// TenantHeader names the request header carrying the tenant
const TenantHeader = "X-Tenant"

var _ frontends.Frontend = (*Frontend)(nil)

// Frontend is an implementation of
// frontends.Frontend for REST
type Frontend struct {
	server     transport.Server
	logger     *zap.Logger
	router     *mux.Router
	mu         sync.Mutex
	httpServer *http.Server
}

// Init initializes the frontend
func (frontend *Frontend) Init(options frontends.Options) error {
	if options.Server == nil {
		return errors.New("server is required")
	}

	frontend.server = options.Server
	frontend.logger = options.Logger

	if frontend.logger == nil {
		frontend.logger = zap.L()
	}

	gatherer := options.Gatherer

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	frontend.router = createRouter(frontend.server, frontend.logger, gatherer)
	frontend.mu.Lock()
	frontend.httpServer = &http.Server{Handler: frontend.router}
	frontend.mu.Unlock()

	return nil
}

// Handler returns the HTTP handler behind this frontend
func (frontend *Frontend) Handler() http.Handler {
	return frontend.router
}

// Listen accepts connections from this listener
func (frontend *Frontend) Listen(listener net.Listener) error {
	frontend.mu.Lock()
	httpServer := frontend.httpServer
	frontend.mu.Unlock()

	if httpServer == nil {
		return errors.New("frontend is not initialized")
	}

	if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Stop stops accepting connections from listeners and causes
// all calls to Listen to return. In-flight requests are allowed
// to finish.
func (frontend *Frontend) Stop() error {
	frontend.mu.Lock()
	httpServer := frontend.httpServer
	frontend.mu.Unlock()

	if httpServer == nil {
		return nil
	}

	return httpServer.Shutdown(context.Background())
}

func createRouter(server transport.Server, logger *zap.Logger, gatherer prometheus.Gatherer) *mux.Router {
	rd := render.New(render.Options{
		IndentJSON: true,
	})

	router := mux.NewRouter()

	kvHandler := newKVHandler(server, logger, rd)
	router.HandleFunc("/load", kvHandler.Load).Methods("POST")
	router.HandleFunc("/store", kvHandler.Store).Methods("POST")
	router.HandleFunc("/exists", kvHandler.Exists).Methods("POST")
	router.HandleFunc("/list", kvHandler.List).Methods("POST")
	router.HandleFunc("/stat", kvHandler.Stat).Methods("POST")
	router.HandleFunc("/delete", kvHandler.Delete).Methods("POST")

	lockHandler := newLockHandler(server, logger, rd)
	router.HandleFunc("/lock", lockHandler.Lock).Methods("POST")
	router.HandleFunc("/unlock", lockHandler.Unlock).Methods("POST")

	statusHandler := newStatusHandler(server, rd)
	router.HandleFunc("/ping", statusHandler.Ping).Methods("GET")
	router.HandleFunc("/cost", statusHandler.Cost).Methods("GET")
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")

	return router
}
