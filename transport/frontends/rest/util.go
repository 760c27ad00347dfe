package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"

	"github.com/jrife/tenantkv/lock"
	"github.com/jrife/tenantkv/storage"
	"github.com/jrife/tenantkv/storage/kv"
	"github.com/jrife/tenantkv/storage/overflow"
	"github.com/jrife/tenantkv/utils/log"
	"github.com/unrolled/render"
	"go.uber.org/zap"
)

var errMissingTenant = fmt.Errorf("%s header is required", TenantHeader)

type errorResponse struct {
	Error string `json:"error"`
}

type costResponse struct {
	Cost int64 `json:"cost"`
}

func readJSON(r io.ReadCloser, data interface{}) error {
	defer r.Close()

	b, err := ioutil.ReadAll(r)

	if err != nil {
		return err
	}

	return json.Unmarshal(b, data)
}

// tenantContext returns the tenant named by the request and
// a context whose log fields carry it
func tenantContext(r *http.Request) (string, context.Context, error) {
	tenant := r.Header.Get(TenantHeader)

	if tenant == "" {
		return "", nil, errMissingTenant
	}

	return tenant, log.WithFields(r.Context(), zap.String("tenant", tenant), zap.String("path", r.URL.Path)), nil
}

// errorStatus maps an error to its HTTP status code
func errorStatus(err error) int {
	switch {
	case errors.Is(err, errMissingTenant),
		errors.Is(err, storage.ErrInvalidArgument),
		errors.Is(err, lock.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lock.ErrContention):
		return http.StatusConflict
	case errors.Is(err, lock.ErrOwnershipMismatch):
		return http.StatusForbidden
	case errors.Is(err, kv.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, kv.ErrUnavailable),
		errors.Is(err, kv.ErrClosed),
		errors.Is(err, overflow.ErrUnavailable):
		return http.StatusServiceUnavailable
	}

	return http.StatusInternalServerError
}

func renderError(ctx context.Context, logger *zap.Logger, rd *render.Render, w http.ResponseWriter, err error) {
	status := errorStatus(err)

	if status == http.StatusInternalServerError {
		log.WithContext(ctx, logger).Error("request failed", zap.Error(err))
	}

	rd.JSON(w, status, errorResponse{Error: err.Error()})
}
