package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/poiesic/docreply/core"
	"github.com/poiesic/docreply/storage"
)

type tenantView struct {
	Phone        string         `json:"phone"`
	Intent       string         `json:"intent,omitempty"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	Origin       string         `json:"origin,omitempty"`
	HasAuthToken bool           `json:"has_auth_token"`
	Documents    []documentView `json:"documents"`
	ChunkCount   int            `json:"chunk_count"`
}

type createTenantRequest struct {
	Phone        string `json:"phone" validate:"required"`
	Intent       string `json:"intent,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// settingsRequest updates tenant-wide fields. Absent fields are left alone.
type settingsRequest struct {
	Intent       *string `json:"intent,omitempty"`
	SystemPrompt *string `json:"system_prompt,omitempty"`
	AuthToken    *string `json:"auth_token,omitempty"`
	Origin       *string `json:"origin,omitempty"`
}

// handleListTenants groups mappings by phone, in phone order.
func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	mappings, err := s.deps.Store.ListMappings(ctx)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	docs, err := s.deps.Store.ListDocuments(ctx)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	byID := make(map[core.DocumentID]*core.Document, len(docs))
	for _, doc := range docs {
		byID[doc.ID] = doc
	}

	var phones []string
	groups := make(map[string][]core.Mapping)
	for _, m := range mappings {
		phone := m.TenantPhone()
		if _, ok := groups[phone]; !ok {
			phones = append(phones, phone)
		}
		groups[phone] = append(groups[phone], m)
	}

	views := make([]tenantView, 0, len(phones))
	for _, phone := range phones {
		tenant := core.ResolveTenant(phone, groups[phone])
		view := tenantView{
			Phone:        phone,
			Intent:       tenant.Intent,
			SystemPrompt: tenant.SystemPrompt,
			Origin:       tenant.Credentials.Origin,
			HasAuthToken: tenant.Credentials.AuthToken != "",
			Documents:    []documentView{},
		}
		for _, id := range tenant.Documents {
			doc, ok := byID[id]
			if !ok {
				continue
			}
			view.Documents = append(view.Documents, viewOf(doc))
			view.ChunkCount += doc.ChunkCount
		}
		views = append(views, view)
	}
	writeData(w, http.StatusOK, views)
}

// handleCreateTenant registers a phone before any document is uploaded.
func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := s.decode(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	ctx := r.Context()
	existing, err := s.deps.Store.MappingsByPhone(ctx, req.Phone)
	if err != nil {
		s.writeErr(w, r, err, "phone", req.Phone)
		return
	}
	if len(existing) > 0 {
		s.writeErr(w, r, ErrTenantExists)
		return
	}

	m, err := s.deps.Store.AddMapping(ctx, core.UnboundMapping{
		Phone:        req.Phone,
		Intent:       req.Intent,
		SystemPrompt: req.SystemPrompt,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		s.writeErr(w, r, err, "phone", req.Phone)
		return
	}
	s.logger.Info("tenant placeholder created", "phone", req.Phone, "mapping_id", m.MappingID())
	writeData(w, http.StatusCreated, core.RecordOf(m))
}

// handleUpdateSettings applies the request to every mapping of the phone.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")
	var req settingsRequest
	if err := s.decode(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	ctx := r.Context()
	mappings, err := s.deps.Store.MappingsByPhone(ctx, phone)
	if err != nil {
		s.writeErr(w, r, err, "phone", phone)
		return
	}
	if len(mappings) == 0 {
		s.writeErr(w, r, storage.ErrNotFound)
		return
	}

	for _, m := range mappings {
		settings := core.TenantSettings{Intent: req.Intent, SystemPrompt: req.SystemPrompt}
		if bound, ok := m.(core.BoundMapping); ok && (req.AuthToken != nil || req.Origin != nil) {
			creds := bound.Credentials
			if req.AuthToken != nil {
				creds.AuthToken = *req.AuthToken
			}
			if req.Origin != nil {
				creds.Origin = *req.Origin
			}
			settings.Credentials = &creds
		}
		if err := s.deps.Store.SaveMapping(ctx, settings.Apply(m)); err != nil {
			s.writeErr(w, r, err, "phone", phone, "mapping_id", m.MappingID())
			return
		}
	}
	s.logger.Info("tenant settings updated", "phone", phone, "mappings", len(mappings))
	w.WriteHeader(http.StatusNoContent)
}
