package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/SagastaDev/equity-valuator/src/logger"
	"github.com/SagastaDev/equity-valuator/src/models"
	"github.com/SagastaDev/equity-valuator/src/services"
	"github.com/SagastaDev/equity-valuator/src/utils"
)

type TransformHandler struct {
	transformService services.TransformService
}

func NewTransformHandler(transformService services.TransformService) *TransformHandler {
	return &TransformHandler{
		transformService: transformService,
	}
}

// HandleResolve returns the canonical view for one provider, company and
// fiscal period. Responses carry an ETag; a matching If-None-Match short
// circuits to 304.
func (h *TransformHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	providerID, ok := utils.QueryInt64(r, "provider_id")
	if !ok {
		utils.SendJSONError(w, "provider_id query parameter is required", http.StatusBadRequest)
		return
	}
	companyID := r.PathValue("companyID")
	fiscalPeriod, err := utils.ParseFiscalPeriod(r.URL.Query().Get("fiscal_period"))
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	report, err := h.transformService.ResolveCanonical(providerID, companyID, fiscalPeriod)
	if err != nil {
		h.sendResolutionError(w, err)
		return
	}

	etag, err := utils.GenerateETag(report)
	if err == nil {
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

// HandleResolveHistory returns one report per fiscal period the provider
// has data for, oldest first.
func (h *TransformHandler) HandleResolveHistory(w http.ResponseWriter, r *http.Request) {
	providerID, ok := utils.QueryInt64(r, "provider_id")
	if !ok {
		utils.SendJSONError(w, "provider_id query parameter is required", http.StatusBadRequest)
		return
	}
	companyID := r.PathValue("companyID")

	reports, err := h.transformService.ResolveHistory(r.Context(), providerID, companyID)
	if err != nil {
		h.sendResolutionError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"company_id":  companyID,
		"provider_id": providerID,
		"reports":     reports,
	})
}

func (h *TransformHandler) sendResolutionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrCompanyNotFound):
		utils.SendJSONError(w, "Company not found", http.StatusNotFound)
	case errors.Is(err, models.ErrProviderNotFound):
		utils.SendJSONError(w, "Provider not found", http.StatusNotFound)
	default:
		logger.L.Error("Resolution failed", "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Resolution failed: %v", err), http.StatusInternalServerError)
	}
}
