// Package http provides the SSE transport for capture and follow-up
package http

import (
	stdhttp "net/http"

	"secondbrain/internal/modkit/httpkit"
	pnet "secondbrain/internal/platform/net"
	phttp "secondbrain/internal/platform/net/http"
	"secondbrain/internal/platform/net/http/bind"
	"secondbrain/internal/services/capture/domain"
	svc "secondbrain/internal/services/capture/service"
)

// CaptureInput is the capture request body
type CaptureInput struct {
	Text string `json:"text" validate:"required,min=1,max=20000"`
}

// FollowUpInput is the follow-up request body
type FollowUpInput struct {
	InboxItemID  string `json:"inbox_item_id" validate:"required"`
	FollowUpText string `json:"follow_up_text" validate:"required,min=1,max=20000"`
}

// Register mounts capture endpoints on the given router
func Register(r httpkit.Router, s *svc.Service) {
	h := &handlers{svc: s}
	httpkit.PostStream(r, "/", h.capture)
	httpkit.PostStream(r, "/follow-up", h.followUp)
}

type handlers struct{ svc *svc.Service }

// lazySink defers the SSE preamble until the first event so validation
// failures can still answer with a plain JSON error
type lazySink struct {
	w      stdhttp.ResponseWriter
	sse    *phttp.SSE
	opened bool
	err    error
}

func (l *lazySink) send(ev domain.ClientEvent) error {
	if !l.opened {
		l.opened = true
		l.sse, l.err = phttp.OpenSSE(l.w)
	}
	if l.err != nil {
		return l.err
	}
	return l.sse.Send(ev)
}

// @Summary Classify a new capture
// @Tags Capture
// @Accept json
// @Produce text/event-stream
// @Param payload body CaptureInput true "Capture"
// @Router /capture [post]
func (h *handlers) capture(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	in, err := bind.ParseJSON[CaptureInput](r)
	if err != nil {
		phttp.RespondError(w, r, err)
		return
	}
	sink := &lazySink{w: w}
	if err := h.svc.Capture(r.Context(), pnet.UserID(r.Context()), in.Text, sink.send); err != nil && !sink.opened {
		phttp.RespondError(w, r, err)
	}
}

// @Summary Answer a clarification question for a misunderstood capture
// @Tags Capture
// @Accept json
// @Produce text/event-stream
// @Param payload body FollowUpInput true "Follow-up"
// @Router /capture/follow-up [post]
func (h *handlers) followUp(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	in, err := bind.ParseJSON[FollowUpInput](r)
	if err != nil {
		phttp.RespondError(w, r, err)
		return
	}
	sink := &lazySink{w: w}
	err = h.svc.FollowUp(r.Context(), pnet.UserID(r.Context()), in.InboxItemID, in.FollowUpText, sink.send)
	if err != nil && !sink.opened {
		phttp.RespondError(w, r, err)
	}
}
