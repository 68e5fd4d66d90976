package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"provision_platform/calculator/auth"
	"provision_platform/calculator/extraction"
	"provision_platform/calculator/schema"
	"provision_platform/calculator/storage"
	"provision_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxInvoiceUploadSize = 32 << 20

type InvoiceService struct {
	db       *gorm.DB
	sessions *auth.SessionManager
	store    storage.Storage
	sidecar  *extraction.SidecarClient
	jwt      *auth.JwtManager
}

func (s *InvoiceService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.sessions.AuthMiddleware()...)

		r.With(checkSufficientStorage(s.store)).Post("/extract", s.Extract)

		r.Post("/feedback", s.SubmitFeedback)
		r.With(auth.ManagerOnly()).Get("/feedback/list", s.ListFeedback)
	})

	// The sidecar pulls accumulated correction pairs for retraining using a
	// service token rather than a user session.
	r.Group(func(r chi.Router) {
		r.Use(s.jwt.Verifier(), s.jwt.Authenticator(), auth.RequireScope("extraction"))

		r.Get("/feedback/export", s.ExportFeedback)
	})

	return r
}

type extractResponse struct {
	UploadId      uuid.UUID         `json:"uploadId"`
	Source        string            `json:"source"`
	ExtractedData extraction.Fields `json:"extractedData"`
}

func (s *InvoiceService) Extract(w http.ResponseWriter, r *http.Request) {
	defer timeOp(extractMetric)()

	if err := r.ParseMultipartForm(maxInvoiceUploadSize); err != nil {
		http.Error(w, fmt.Sprintf("error parsing upload: %v", err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "upload must contain a 'file' field", http.StatusUnprocessableEntity)
		return
	}
	defer file.Close()

	document, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, fmt.Sprintf("error reading upload: %v", err), http.StatusInternalServerError)
		return
	}

	uploadId := uuid.New()
	path := filepath.Join("invoices", uploadId.String(), filepath.Base(header.Filename))
	if err := s.store.Write(path, bytes.NewReader(document)); err != nil {
		slog.Error("error saving uploaded invoice", "upload_id", uploadId, "error", err)
		http.Error(w, "error saving uploaded invoice", http.StatusInternalServerError)
		return
	}

	if s.sidecar.Enabled() {
		result, err := s.sidecar.Extract(r.Context(), document)
		if err == nil {
			utils.WriteJsonResponse(w, extractResponse{UploadId: uploadId, Source: "sidecar", ExtractedData: result.Fields})
			return
		}
		// Sidecar problems are never surfaced, the local heuristics take
		// over instead.
		if errors.Is(err, extraction.ErrSidecarUnavailable) {
			sidecarFallbackMetric.Inc()
		}
		slog.Warn("sidecar extraction failed, using local extraction", "upload_id", uploadId, "error", err)
	}

	text := r.FormValue("text")
	if text == "" {
		text = string(document)
	}

	fields := extraction.Extract(text)
	utils.WriteJsonResponse(w, extractResponse{UploadId: uploadId, Source: "local", ExtractedData: fields})
}

type feedbackRequest struct {
	Extracted      json.RawMessage `json:"extracted"`
	Corrected      json.RawMessage `json:"corrected"`
	RawTextExcerpt string          `json:"rawTextExcerpt"`
}

func (s *InvoiceService) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params feedbackRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if len(params.Extracted) == 0 || len(params.Corrected) == 0 {
		http.Error(w, "both extracted and corrected fields must be specified", http.StatusUnprocessableEntity)
		return
	}

	feedback := schema.InvoiceFeedback{
		Id:             uuid.New(),
		UserId:         user.Id,
		ExtractedJson:  string(params.Extracted),
		CorrectedJson:  string(params.Corrected),
		RawTextExcerpt: params.RawTextExcerpt,
		CreatedAt:      time.Now().UTC(),
	}

	result := s.db.Create(&feedback)
	if result.Error != nil {
		slog.Error("sql error saving extraction feedback", "error", result.Error)
		http.Error(w, fmt.Sprintf("error saving feedback: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	utils.WriteSuccess(w)
}

type feedbackInfo struct {
	Id             uuid.UUID       `json:"id"`
	UserId         uuid.UUID       `json:"userId"`
	Extracted      json.RawMessage `json:"extracted"`
	Corrected      json.RawMessage `json:"corrected"`
	RawTextExcerpt string          `json:"rawTextExcerpt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

func convertToFeedbackInfo(feedback *schema.InvoiceFeedback) feedbackInfo {
	return feedbackInfo{
		Id:             feedback.Id,
		UserId:         feedback.UserId,
		Extracted:      json.RawMessage(feedback.ExtractedJson),
		Corrected:      json.RawMessage(feedback.CorrectedJson),
		RawTextExcerpt: feedback.RawTextExcerpt,
		CreatedAt:      feedback.CreatedAt,
	}
}

func (s *InvoiceService) listAllFeedback(w http.ResponseWriter) {
	var entries []schema.InvoiceFeedback
	result := s.db.Order("created_at desc").Find(&entries)
	if result.Error != nil {
		slog.Error("sql error listing extraction feedback", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing feedback: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]feedbackInfo, 0, len(entries))
	for _, entry := range entries {
		infos = append(infos, convertToFeedbackInfo(&entry))
	}
	utils.WriteJsonResponse(w, infos)
}

func (s *InvoiceService) ListFeedback(w http.ResponseWriter, r *http.Request) {
	s.listAllFeedback(w)
}

func (s *InvoiceService) ExportFeedback(w http.ResponseWriter, r *http.Request) {
	s.listAllFeedback(w)
}
