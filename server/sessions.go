package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/poiesic/docreply/core"
	"github.com/poiesic/docreply/responder"
)

type askRequest struct {
	Text  string `json:"text" validate:"required"`
	Phone string `json:"phone,omitempty"`
}

type sourceView struct {
	DocumentID core.DocumentID `json:"document_id"`
	Ordinal    int             `json:"ordinal"`
	Text       string          `json:"text"`
	Score      float32         `json:"score"`
}

type answerView struct {
	Text    string       `json:"text"`
	Sources []sourceView `json:"sources"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	var req askRequest
	if err := s.decode(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}

	answer, err := s.deps.Responder.Answer(r.Context(), responder.Question{
		SessionID: sessionID,
		Text:      req.Text,
		Phone:     req.Phone,
	})
	if err != nil {
		s.writeErr(w, r, err, "session_id", sessionID, "phone", req.Phone)
		return
	}

	view := answerView{Text: answer.Text, Sources: make([]sourceView, len(answer.Sources))}
	for i, src := range answer.Sources {
		view.Sources[i] = sourceView{
			DocumentID: src.DocumentID,
			Ordinal:    src.Ordinal,
			Text:       src.Text,
			Score:      src.Score,
		}
	}
	writeData(w, http.StatusOK, view)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	limit := defaultTranscriptLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	turns, err := s.deps.Responder.Transcript(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if turns == nil {
		turns = []core.ConversationTurn{}
	}
	writeData(w, http.StatusOK, turns)
}
