package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/SagastaDev/equity-valuator/src/config"
	"github.com/SagastaDev/equity-valuator/src/database"
	"github.com/SagastaDev/equity-valuator/src/logger"
	"github.com/SagastaDev/equity-valuator/src/models"
	"github.com/SagastaDev/equity-valuator/src/security/validation"
	"github.com/SagastaDev/equity-valuator/src/services"
	"github.com/SagastaDev/equity-valuator/src/utils"
)

type RawDataHandler struct {
	ingestService services.IngestService
}

func NewRawDataHandler(ingestService services.IngestService) *RawDataHandler {
	return &RawDataHandler{
		ingestService: ingestService,
	}
}

// HandleUpload accepts a multipart raw data batch. Besides the file, the
// form must carry provider_id and company_id; format defaults from the
// file extension.
func (h *RawDataHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(config.Cfg.MaxUploadSizeBytes); err != nil {
		logger.L.Warn("Failed to parse multipart form or request too large", "userID", userID, "error", err, "limit", config.Cfg.MaxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("Failed to parse form or request too large (max %d MB)", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	providerID, err := strconv.ParseInt(r.FormValue("provider_id"), 10, 64)
	if err != nil {
		utils.SendJSONError(w, "provider_id is required", http.StatusBadRequest)
		return
	}
	companyID := r.FormValue("company_id")
	if companyID == "" {
		utils.SendJSONError(w, "company_id is required", http.StatusBadRequest)
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		logger.L.Warn("Failed to retrieve file from request", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to retrieve file from request. Ensure 'file' field is used.", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if fileHeader.Size > config.Cfg.MaxUploadSizeBytes {
		logger.L.Warn("Uploaded file too large", "userID", userID, "fileSize", fileHeader.Size, "limit", config.Cfg.MaxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("File too large, max %d MB", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if err := validation.ValidateUploadContentType(contentType); err != nil {
		logger.L.Warn("Invalid client-declared file type", "userID", userID, "contentType", contentType, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	format := r.FormValue("format")
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(fileHeader.Filename), ".")
	}

	logger.L.Info("Processing raw data upload", "userID", userID, "filename", fileHeader.Filename,
		"format", format, "providerID", providerID, "companyID", companyID)

	result, err := h.ingestService.IngestBatch(file, format, providerID, companyID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrProviderNotFound):
			utils.SendJSONError(w, "Provider not found", http.StatusNotFound)
		case errors.Is(err, models.ErrCompanyNotFound):
			utils.SendJSONError(w, "Company not found", http.StatusNotFound)
		case errors.Is(err, validation.ErrValidationFailed):
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		default:
			logger.L.Warn("Ingest failed", "userID", userID, "filename", fileHeader.Filename, "error", err)
			utils.SendJSONError(w, fmt.Sprintf("Failed to ingest upload: %v", err), http.StatusBadRequest)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result)
}

// HandleListRawData returns the stored raw entries for one resolution
// triple, for inspection in the admin UI.
func (h *RawDataHandler) HandleListRawData(w http.ResponseWriter, r *http.Request) {
	providerID, ok := utils.QueryInt64(r, "provider_id")
	if !ok {
		utils.SendJSONError(w, "provider_id query parameter is required", http.StatusBadRequest)
		return
	}
	companyID := r.URL.Query().Get("company_id")
	if companyID == "" {
		utils.SendJSONError(w, "company_id query parameter is required", http.StatusBadRequest)
		return
	}

	if period := r.URL.Query().Get("fiscal_period"); period != "" {
		fiscalPeriod, err := utils.ParseFiscalPeriod(period)
		if err != nil {
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		entries, err := models.ListRawDataEntries(database.DB, providerID, companyID, fiscalPeriod)
		if err != nil {
			logger.L.Error("Failed to list raw data", "error", err)
			utils.SendJSONError(w, "Failed to list raw data", http.StatusInternalServerError)
			return
		}
		if entries == nil {
			entries = []models.RawDataEntry{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entries)
		return
	}

	periods, err := models.ListFiscalPeriods(database.DB, providerID, companyID)
	if err != nil {
		logger.L.Error("Failed to list fiscal periods", "error", err)
		utils.SendJSONError(w, "Failed to list fiscal periods", http.StatusInternalServerError)
		return
	}
	formatted := make([]string, 0, len(periods))
	for _, p := range periods {
		formatted = append(formatted, p.Format(utils.FiscalPeriodFormat))
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"fiscal_periods": formatted,
	})
}
