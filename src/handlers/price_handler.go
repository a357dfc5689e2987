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

type PriceHandler struct {
	priceService services.PriceService
}

func NewPriceHandler(priceService services.PriceService) *PriceHandler {
	return &PriceHandler{
		priceService: priceService,
	}
}

func (h *PriceHandler) HandleRefreshPrice(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		CompanyID string `json:"company_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if payload.CompanyID == "" {
		utils.SendJSONError(w, "company_id is required", http.StatusBadRequest)
		return
	}

	quote, err := h.priceService.RefreshPrice(payload.CompanyID)
	if err != nil {
		if errors.Is(err, models.ErrCompanyNotFound) {
			utils.SendJSONError(w, "Company not found", http.StatusNotFound)
			return
		}
		logger.L.Error("Price refresh failed", "companyID", payload.CompanyID, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Price refresh failed: %v", err), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(quote)
}

func (h *PriceHandler) HandleGetPriceHistory(w http.ResponseWriter, r *http.Request) {
	companyID := r.URL.Query().Get("company_id")
	if companyID == "" {
		utils.SendJSONError(w, "company_id query parameter is required", http.StatusBadRequest)
		return
	}

	prices, err := h.priceService.GetPriceHistory(companyID)
	if err != nil {
		if errors.Is(err, models.ErrCompanyNotFound) {
			utils.SendJSONError(w, "Company not found", http.StatusNotFound)
			return
		}
		logger.L.Error("Failed to list prices", "companyID", companyID, "error", err)
		utils.SendJSONError(w, "Failed to list prices", http.StatusInternalServerError)
		return
	}
	if prices == nil {
		prices = []models.PriceData{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(prices)
}
