package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/huffhealth/crm/internal/facebook"
	"github.com/huffhealth/crm/internal/pkg/httputil"
	"github.com/huffhealth/crm/internal/pkg/logger"
	"github.com/huffhealth/crm/internal/service/leadsync"
)

const maxWebhookBody = 1 << 20

// HandleWebhookVerify answers the subscription handshake.
//
//	GET /api/webhooks/facebook
func (h *Handlers) HandleWebhookVerify(w http.ResponseWriter, r *http.Request) {
	challenge, ok := facebook.VerifyChallenge(r.URL.Query(), h.verifyToken)
	if !ok {
		httputil.Forbidden(w, "verification failed")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, challenge)
}

// HandleWebhook accepts a signed leadgen notification. Each lead is fetched
// and stored by the task runner after the response is written, so Facebook
// gets its acknowledgement immediately.
//
//	POST /api/webhooks/facebook
func (h *Handlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		httputil.BadRequest(w, "could not read body")
		return
	}
	if !facebook.VerifySignature(h.appSecret, body, r.Header.Get(facebook.SignatureHeader)) {
		logger.Warn("facebook webhook rejected, bad signature", "remote", r.RemoteAddr)
		httputil.Forbidden(w, "invalid signature")
		return
	}

	events, err := facebook.ParseWebhook(body)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	for _, ev := range events {
		ev := ev
		src := leadsync.SourceContext{PageID: ev.PageID, FormID: ev.FormID, AdID: ev.AdID}
		h.tasks.Go("facebook-lead:"+ev.LeadID, func(ctx context.Context) error {
			return h.leadSync.Receive(ctx, ev.LeadID, src)
		})
	}
	logger.Info("facebook webhook accepted", "events", len(events))

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "EVENT_RECEIVED")
}

// HandleConnectFacebook registers a page and its lead forms.
//
//	POST /api/integrations/facebook
func (h *Handlers) HandleConnectFacebook(w http.ResponseWriter, r *http.Request) {
	var req leadsync.ConnectRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	req.OwnerID = ownerID(r.Context())

	integ, err := h.leadSync.Connect(r.Context(), req)
	if errors.Is(err, leadsync.ErrInvalidIntegration) {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, integ)
}

// HandleSyncFacebook pulls leads created since the last sync.
//
//	POST /api/integrations/facebook/{integrationId}/sync
func (h *Handlers) HandleSyncFacebook(w http.ResponseWriter, r *http.Request) {
	res, err := h.leadSync.SyncSince(r.Context(), chi.URLParam(r, "integrationId"))
	switch {
	case err == nil:
		httputil.OK(w, res)
	case errors.Is(err, leadsync.ErrIntegrationUnavailable), errors.Is(err, leadsync.ErrIntegrationNotFound):
		httputil.NotFound(w, "integration not found or inactive")
	case errors.Is(err, leadsync.ErrSyncInProgress):
		httputil.Conflict(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
