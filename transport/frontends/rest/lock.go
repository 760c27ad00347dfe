package rest

import (
	"net/http"

	"github.com/jrife/tenantkv/lock"
	"github.com/jrife/tenantkv/transport"
	"github.com/unrolled/render"
	"go.uber.org/zap"
)

type lockResponse struct {
	LockID []byte `json:"lock_id"`
	Cost   int64  `json:"cost"`
}

type unlockRequest struct {
	Key    string `json:"key"`
	LockID []byte `json:"lock_id"`
}

type lockHandler struct {
	server transport.Server
	logger *zap.Logger
	rd     *render.Render
}

func newLockHandler(server transport.Server, logger *zap.Logger, rd *render.Render) *lockHandler {
	return &lockHandler{
		server: server,
		logger: logger,
		rd:     rd,
	}
}

func (h *lockHandler) Lock(w http.ResponseWriter, r *http.Request) {
	tenant, ctx, err := tenantContext(r)

	if err != nil {
		h.rd.JSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	var request keyRequest

	if err := readJSON(r.Body, &request); err != nil {
		h.rd.JSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	token, c, err := h.server.Lock(ctx, tenant, request.Key)

	if err != nil {
		renderError(ctx, h.logger, h.rd, w, err)
		return
	}

	h.rd.JSON(w, http.StatusOK, lockResponse{LockID: token, Cost: c})
}

func (h *lockHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	tenant, ctx, err := tenantContext(r)

	if err != nil {
		h.rd.JSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	var request unlockRequest

	if err := readJSON(r.Body, &request); err != nil {
		h.rd.JSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	c, err := h.server.Unlock(ctx, tenant, request.Key, lock.Token(request.LockID))

	if err != nil {
		renderError(ctx, h.logger, h.rd, w, err)
		return
	}

	h.rd.JSON(w, http.StatusOK, costResponse{Cost: c})
}
