package rest

import (
	"net/http"

	"github.com/jrife/tenantkv/storage"
	"github.com/jrife/tenantkv/transport"
	"github.com/unrolled/render"
	"go.uber.org/zap"
)

type keyRequest struct {
	Key string `json:"key"`
}

type loadResponse struct {
	Value []byte `json:"value"`
	Cost  int64  `json:"cost"`
}

type storeRequest struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
	// Expiry is in milliseconds. -1 keeps the current expiry.
	Expiry int64 `json:"expiry"`
}

type existsResponse struct {
	Value bool  `json:"value"`
	Cost  int64 `json:"cost"`
}

type listRequest struct {
	Prefix      string `json:"prefix"`
	IsRecursive bool   `json:"is_recursive"`
}

type listResponse struct {
	KeysList []string `json:"keys_list"`
	Cost     int64    `json:"cost"`
}

type statResponse struct {
	storage.KeyInfo
	Cost int64 `json:"cost"`
}

type kvHandler struct {
	server transport.Server
	logger *zap.Logger
	rd     *render.Render
}

func newKVHandler(server transport.Server, logger *zap.Logger, rd *render.Render) *kvHandler {
	return &kvHandler{
		server: server,
		logger: logger,
		rd:     rd,
	}
}

func (h *kvHandler) Load(w http.ResponseWriter, r *http.Request) {
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

	value, c, err := h.server.Load(ctx, tenant, request.Key)

	if err != nil {
		renderError(ctx, h.logger, h.rd, w, err)
		return
	}

	h.rd.JSON(w, http.StatusOK, loadResponse{Value: value, Cost: c})
}

func (h *kvHandler) Store(w http.ResponseWriter, r *http.Request) {
	tenant, ctx, err := tenantContext(r)

	if err != nil {
		h.rd.JSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	var request storeRequest

	if err := readJSON(r.Body, &request); err != nil {
		h.rd.JSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	c, err := h.server.Store(ctx, tenant, request.Key, request.Expiry, request.Value)

	if err != nil {
		renderError(ctx, h.logger, h.rd, w, err)
		return
	}

	h.rd.JSON(w, http.StatusOK, costResponse{Cost: c})
}

func (h *kvHandler) Exists(w http.ResponseWriter, r *http.Request) {
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

	exists, c, err := h.server.Exists(ctx, tenant, request.Key)

	if err != nil {
		renderError(ctx, h.logger, h.rd, w, err)
		return
	}

	h.rd.JSON(w, http.StatusOK, existsResponse{Value: exists, Cost: c})
}

func (h *kvHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant, ctx, err := tenantContext(r)

	if err != nil {
		h.rd.JSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	var request listRequest

	if err := readJSON(r.Body, &request); err != nil {
		h.rd.JSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	list, c, err := h.server.List(ctx, tenant, request.Prefix, request.IsRecursive)

	if err != nil {
		renderError(ctx, h.logger, h.rd, w, err)
		return
	}

	if list == nil {
		list = []string{}
	}

	h.rd.JSON(w, http.StatusOK, listResponse{KeysList: list, Cost: c})
}

func (h *kvHandler) Stat(w http.ResponseWriter, r *http.Request) {
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

	info, c, err := h.server.Stat(ctx, tenant, request.Key)

	if err != nil {
		renderError(ctx, h.logger, h.rd, w, err)
		return
	}

	h.rd.JSON(w, http.StatusOK, statResponse{KeyInfo: info, Cost: c})
}

func (h *kvHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

	c, err := h.server.Delete(ctx, tenant, request.Key)

	if err != nil {
		renderError(ctx, h.logger, h.rd, w, err)
		return
	}

	h.rd.JSON(w, http.StatusOK, costResponse{Cost: c})
}
