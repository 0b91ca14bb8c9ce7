// Package http provides http transport for the inbox
package http

import (
	stdhttp "net/http"

	"secondbrain/internal/modkit/httpkit"
	pnet "secondbrain/internal/platform/net"
	"secondbrain/internal/services/inbox/domain"
	svc "secondbrain/internal/services/inbox/service"
)

// Register mounts inbox endpoints on the given router
func Register(r httpkit.Router, s *svc.Service) {
	h := &handlers{svc: s}
	httpkit.PostJSON[domain.ListInput](r, "/list", h.list)
	httpkit.PostJSON[domain.GetInput](r, "/get", h.get)
	httpkit.PostJSON[domain.DeleteInput](r, "/delete", h.remove)
}

type handlers struct{ svc *svc.Service }

// @Summary List recent captures
// @Tags Inbox
// @Accept json
// @Produce json
// @Param payload body domain.ListInput true "Page"
// @Router /inbox/list [post]
func (h *handlers) list(r *stdhttp.Request, in domain.ListInput) (any, error) {
	return h.svc.List(r.Context(), pnet.UserID(r.Context()), in.Limit)
}

// @Summary Fetch one capture
// @Tags Inbox
// @Accept json
// @Produce json
// @Param payload body domain.GetInput true "Capture id"
// @Router /inbox/get [post]
func (h *handlers) get(r *stdhttp.Request, in domain.GetInput) (any, error) {
	return h.svc.Get(r.Context(), pnet.UserID(r.Context()), in.ID)
}

// @Summary Delete a capture and its bucket record
// @Tags Inbox
// @Accept json
// @Produce json
// @Param payload body domain.DeleteInput true "Capture id"
// @Router /inbox/delete [post]
func (h *handlers) remove(r *stdhttp.Request, in domain.DeleteInput) (any, error) {
	if err := h.svc.Delete(r.Context(), pnet.UserID(r.Context()), in.ID); err != nil {
		return nil, err
	}
	return map[string]string{"deleted": in.ID}, nil
}
