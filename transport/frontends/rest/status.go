package rest

import (
	"net/http"

	"github.com/jrife/tenantkv/transport"
	"github.com/unrolled/render"
)

type pingResponse struct {
	Version string `json:"version"`
}

type balanceResponse struct {
	Tenant  string `json:"tenant"`
	Balance int64  `json:"balance"`
}

type statusHandler struct {
	server transport.Server
	rd     *render.Render
}

func newStatusHandler(server transport.Server, rd *render.Render) *statusHandler {
	return &statusHandler{
		server: server,
		rd:     rd,
	}
}

func (h *statusHandler) Ping(w http.ResponseWriter, r *http.Request) {
	h.rd.JSON(w, http.StatusOK, pingResponse{Version: h.server.Ping(r.Context())})
}

// Cost reports the balance of the tenant named in the request header
func (h *statusHandler) Cost(w http.ResponseWriter, r *http.Request) {
	tenant, _, err := tenantContext(r)

	if err != nil {
		h.rd.JSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	balance, ok := h.server.Balance(tenant)

	if !ok {
		h.rd.JSON(w, http.StatusNotImplemented, errorResponse{Error: "balances are not kept"})
		return
	}

	h.rd.JSON(w, http.StatusOK, balanceResponse{Tenant: tenant, Balance: balance})
}
