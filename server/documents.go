package server

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/poiesic/docreply/core"
	"github.com/poiesic/docreply/extract"
	"github.com/poiesic/docreply/ingestion"
)

// documentRequest carries already extracted text.
type documentRequest struct {
	Name         string `json:"name" form:"name" validate:"required"`
	Kind         string `json:"kind" form:"kind" validate:"omitempty,oneof=pdf image"`
	Text         string `json:"text" form:"-"`
	Phone        string `json:"phone" form:"phone" validate:"required"`
	AuthToken    string `json:"auth_token" form:"auth_token" validate:"required"`
	Origin       string `json:"origin" form:"origin" validate:"required"`
	Intent       string `json:"intent,omitempty" form:"intent"`
	SystemPrompt string `json:"system_prompt,omitempty" form:"system_prompt"`

	// ProcessingMode picks OCR or vision transcription for image uploads.
	ProcessingMode string `json:"-" form:"processing_mode" validate:"omitempty,oneof=ocr transcribe"`
}

func (d documentRequest) toRequest(kind core.Kind, text string) ingestion.Request {
	return ingestion.Request{
		Name:         d.Name,
		Kind:         kind,
		Text:         text,
		Phone:        d.Phone,
		Credentials:  core.Credentials{AuthToken: d.AuthToken, Origin: d.Origin},
		Intent:       d.Intent,
		SystemPrompt: d.SystemPrompt,
	}
}

type documentView struct {
	ID         core.DocumentID     `json:"id"`
	Name       string              `json:"name"`
	Kind       core.Kind           `json:"kind"`
	Status     core.DocumentStatus `json:"status"`
	ChunkCount int                 `json:"chunk_count"`
	CreatedAt  time.Time           `json:"created_at"`
}

func viewOf(doc *core.Document) documentView {
	return documentView{
		ID:         doc.ID,
		Name:       doc.Name,
		Kind:       doc.Kind,
		Status:     doc.Status,
		ChunkCount: doc.ChunkCount,
		CreatedAt:  doc.CreatedAt,
	}
}

type jobAccepted struct {
	JobID string `json:"job_id"`
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := s.decode(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	kind := core.Kind(req.Kind)
	if kind == "" {
		kind = core.KindPDF
	}
	s.submit(w, r, req.toRequest(kind, req.Text))
}

// handleUploadDocument extracts text from a multipart file, then ingests it
// in the background.
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart upload: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "error reading upload")
		return
	}

	req := documentRequest{
		Name:           r.FormValue("name"),
		Phone:          r.FormValue("phone"),
		AuthToken:      r.FormValue("auth_token"),
		Origin:         r.FormValue("origin"),
		Intent:         r.FormValue("intent"),
		SystemPrompt:   r.FormValue("system_prompt"),
		ProcessingMode: r.FormValue("processing_mode"),
	}
	if req.Name == "" {
		req.Name = header.Filename
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeErr(w, r, err)
		return
	}

	mimeType := uploadType(header.Header.Get("Content-Type"), header.Filename, data)
	text, kind, err := s.deps.Extractor.ExtractMode(r.Context(), data, mimeType, extract.Mode(req.ProcessingMode))
	if err != nil {
		s.writeErr(w, r, err, "phone", req.Phone)
		return
	}
	s.submit(w, r, req.toRequest(kind, text))
}

// uploadType prefers the declared part type, then the file extension, then
// content sniffing.
func uploadType(declared, filename string, data []byte) string {
	if t, _, err := mime.ParseMediaType(declared); err == nil && t != "application/octet-stream" {
		return t
	}
	if t := mime.TypeByExtension(filepath.Ext(filename)); t != "" {
		if base, _, err := mime.ParseMediaType(t); err == nil {
			return base
		}
	}
	t, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return t
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, req ingestion.Request) {
	job, err := s.deps.Pipeline.Submit(req)
	if err != nil {
		s.writeErr(w, r, err, "phone", req.Phone)
		return
	}
	writeData(w, http.StatusAccepted, jobAccepted{JobID: job})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.deps.Store.ListDocuments(r.Context())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	views := make([]documentView, len(docs))
	for i, doc := range docs {
		views[i] = viewOf(doc)
	}
	writeData(w, http.StatusOK, views)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := core.DocumentID(chi.URLParam(r, "id"))
	if err := s.deps.Pipeline.DeleteDocument(r.Context(), id); err != nil {
		s.writeErr(w, r, err, "document_id", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Pipeline.Job(chi.URLParam(r, "id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeData(w, http.StatusOK, job)
}
