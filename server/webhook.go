package server

import (
	"errors"
	"net/http"

	"github.com/poiesic/docreply/responder"
	"github.com/poiesic/docreply/webhook"
)

// retryAfterSeconds is sent with 503s caused by saturated worker pools.
const retryAfterSeconds = "5"

// handleVerify answers the provider's subscription handshake.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if s.verifyToken == "" || q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != s.verifyToken {
		writeError(w, http.StatusForbidden, "verification failed")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(q.Get("hub.challenge")))
}

// handleWebhook accepts an inbound message. Handling is asynchronous, so the
// response only confirms the event was accepted.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload webhook.Payload
	if err := s.decode(r, &payload); err != nil {
		s.writeErr(w, r, err)
		return
	}

	event := payload.InboundEvent()
	if err := s.sink(r.Context(), event); err != nil {
		if errors.Is(err, responder.ErrBusy) {
			w.Header().Set("Retry-After", retryAfterSeconds)
		} else {
			s.logger.Error("error accepting event", "event_id", event.ID, "phone", event.To, "err", err)
		}
		writeError(w, http.StatusServiceUnavailable, "event not accepted")
		return
	}
	writeData(w, http.StatusAccepted, map[string]string{"message_id": event.ID})
}
