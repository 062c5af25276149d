package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/prvlabs/prva/internal/collector"
	"github.com/prvlabs/prva/internal/knowledge"
	"github.com/prvlabs/prva/internal/rag"
)

const (
	maxDocumentBodyBytes = 10 << 20 // 10 MiB JSON bodies
	maxUploadBytes       = 32 << 20 // 32 MiB multipart uploads
	maxCrawlSeeds        = 16
)

// handler holds the dependencies shared by all API routes.
type handler struct {
	system   *rag.System
	crawlCfg collector.Config
	logger   *slog.Logger
}

// documentRequest is one structured document in an ingestion request.
type documentRequest struct {
	SourceType string            `json:"source_type"`
	SourceID   string            `json:"source_id"`
	ValveModel string            `json:"valve_model,omitempty"`
	Timestamp  time.Time         `json:"timestamp,omitzero"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type ingestRequest struct {
	Documents []documentRequest `json:"documents"`
}

type ingestResponse struct {
	Reports []rag.DocumentReport `json:"reports"`
}

// ingestDocuments handles POST /api/v1/documents.
func (h *handler) ingestDocuments(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDocumentBodyBytes)

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", h.logger)
			return
		}
		WriteError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}
	if len(req.Documents) == 0 {
		WriteError(w, http.StatusBadRequest, "no_documents", "at least one document is required", h.logger)
		return
	}

	docs := make([]knowledge.Document, 0, len(req.Documents))
	for _, d := range req.Documents {
		if d.SourceID == "" {
			WriteError(w, http.StatusBadRequest, "missing_source_id", "every document needs a source_id", h.logger)
			return
		}
		sourceType := d.SourceType
		if sourceType == "" {
			sourceType = knowledge.SourceTypeManual
		}
		docs = append(docs, knowledge.Document{
			SourceType: sourceType,
			SourceID:   d.SourceID,
			ValveModel: d.ValveModel,
			Timestamp:  d.Timestamp,
			RawText:    d.Text,
			Metadata:   d.Metadata,
		})
	}

	reports := h.system.Ingest(r.Context(), docs)
	WriteJSON(w, http.StatusOK, ingestResponse{Reports: reports})
}

// uploadFiles handles POST /api/v1/upload (multipart form, field "files").
func (h *handler) uploadFiles(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_multipart", "invalid multipart form", h.logger)
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		WriteError(w, http.StatusBadRequest, "no_files", "at least one file is required", h.logger)
		return
	}

	opts := rag.FileOptions{
		SourceType: knowledge.SourceTypeUpload,
		ValveModel: r.FormValue("valve_model"),
	}

	var docs []knowledge.Document
	var reports []rag.DocumentReport
	for _, fh := range files {
		doc, err := readUpload(fh, opts)
		if err != nil {
			reports = append(reports, rag.DocumentReport{
				SourceID: fh.Filename,
				Status:   rag.StatusFailed,
				Detail:   err.Error(),
			})
			continue
		}
		docs = append(docs, doc)
	}

	reports = append(reports, h.system.Ingest(r.Context(), docs)...)
	WriteJSON(w, http.StatusOK, ingestResponse{Reports: reports})
}

// readUpload reads one multipart file into a Document.
func readUpload(fh *multipart.FileHeader, opts rag.FileOptions) (knowledge.Document, error) {
	f, err := fh.Open()
	if err != nil {
		return knowledge.Document{}, err
	}
	defer func() {
		_ = f.Close()
	}()

	data, err := io.ReadAll(f)
	if err != nil {
		return knowledge.Document{}, err
	}
	return rag.DocumentFromBytes(fh.Filename, data, opts)
}

type crawlRequest struct {
	URLs           []string `json:"urls"`
	AllowedDomains []string `json:"allowed_domains,omitempty"`
	MaxPages       int      `json:"max_pages,omitempty"`
	ValveModel     string   `json:"valve_model,omitempty"`
}

type crawlResponse struct {
	Pages   []string             `json:"pages"`
	Reports []rag.DocumentReport `json:"reports"`
}

// crawl handles POST /api/v1/crawl. The crawl runs synchronously; large
// crawls belong in the CLI, so the seed count is capped.
func (h *handler) crawl(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDocumentBodyBytes)

	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}
	if len(req.URLs) == 0 {
		WriteError(w, http.StatusBadRequest, "no_urls", "at least one URL is required", h.logger)
		return
	}
	if len(req.URLs) > maxCrawlSeeds {
		WriteError(w, http.StatusBadRequest, "too_many_urls", "too many seed URLs", h.logger)
		return
	}

	cfg := h.crawlCfg
	cfg.ValveModel = req.ValveModel
	if len(req.AllowedDomains) > 0 {
		cfg.AllowedDomains = req.AllowedDomains
	}
	if req.MaxPages > 0 && req.MaxPages < cfg.MaxPages {
		cfg.MaxPages = req.MaxPages
	}

	result, err := collector.New(cfg, h.logger).Collect(r.Context(), req.URLs)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "crawl_failed", err.Error(), h.logger)
		return
	}

	reports := h.system.Ingest(r.Context(), result.Documents)
	WriteJSON(w, http.StatusOK, crawlResponse{Pages: result.Visited, Reports: reports})
}

type chatRequest struct {
	Question   string `json:"question"`
	TopK       int    `json:"k,omitempty"`
	ValveModel string `json:"valve_model,omitempty"`
}

// chat handles POST /api/v1/chat.
func (h *handler) chat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}
	if req.Question == "" {
		WriteError(w, http.StatusBadRequest, "missing_question", "question is required", h.logger)
		return
	}

	var opts []rag.QueryOption
	if req.TopK > 0 {
		opts = append(opts, rag.WithTopK(req.TopK))
	}
	if req.ValveModel != "" {
		opts = append(opts, rag.WithValveModel(req.ValveModel))
	}

	answer, err := h.system.Ask(r.Context(), req.Question, opts...)
	if err != nil {
		if errors.Is(err, knowledge.ErrUpstreamUnavailable) {
			WriteError(w, http.StatusBadGateway, "upstream_unavailable", "model provider unavailable", h.logger)
			return
		}
		h.logger.Error("chat request failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "chat_failed", "failed to answer question", h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, answer)
}

// stats handles GET /api/v1/stats.
func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	count, err := h.system.Stats(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "stats_failed", "failed to read store stats", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"chunks": count})
}
