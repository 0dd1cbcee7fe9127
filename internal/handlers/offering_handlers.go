package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"langschool_backend/internal/models"
	"langschool_backend/internal/services"
	"langschool_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// OfferingHandler holds the offering service.
type OfferingHandler struct {
	offeringService services.OfferingService
}

// NewOfferingHandler creates a new OfferingHandler.
func NewOfferingHandler(os services.OfferingService) *OfferingHandler {
	return &OfferingHandler{offeringService: os}
}

// respondOfferingError maps offering service errors onto API errors.
func respondOfferingError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrOfferingNotFound):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Offering not found.", err.Error()))
	case errors.Is(err, services.ErrLineItemNotFound):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Price not found.", err.Error()))
	case errors.Is(err, services.ErrTaxRateNotFound):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Tax rate does not exist.", err.Error()))
	case errors.Is(err, services.ErrOfferingSlugExists), errors.Is(err, services.ErrTaxRateNameExists):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeConflict, err.Error(), ""))
	case errors.Is(err, services.ErrOfferingValidation):
		utils.RespondValidationFailed(c, err.Error())
	default:
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, fallback, "Internal error"))
	}
}

// ListOfferings handles the public offering listing with optional type filter.
func (h *OfferingHandler) ListOfferings(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	var pType *models.OfferingType
	if t := c.Query("type"); t != "" {
		ot := models.OfferingType(t)
		pType = &ot
	}

	offerings, total, err := h.offeringService.ListOfferings(c.Request.Context(), pType, page, pageSize)
	if err != nil {
		utils.LogError(err, "ListOfferings: Error from offeringService.ListOfferings")
		respondOfferingError(c, err, "Failed to fetch offerings.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      offerings,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetOfferingBySlug handles fetching one offering with resolved prices.
func (h *OfferingHandler) GetOfferingBySlug(c *gin.Context) {
	slug := c.Param("slug")
	offering, err := h.offeringService.GetOfferingBySlug(c.Request.Context(), slug)
	if err != nil {
		if !errors.Is(err, services.ErrOfferingNotFound) {
			utils.LogError(err, "GetOfferingBySlug: Error for slug "+slug)
		}
		respondOfferingError(c, err, "Failed to fetch offering.")
		return
	}
	c.JSON(http.StatusOK, offering)
}

// CreateTaxRate handles creating a tax rate.
func (h *OfferingHandler) CreateTaxRate(c *gin.Context) {
	var req services.CreateTaxRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidationFailed(c, "Invalid request payload: "+err.Error())
		return
	}
	rate, err := h.offeringService.CreateTaxRate(c.Request.Context(), req)
	if err != nil {
		utils.LogError(err, "CreateTaxRate: Error from offeringService.CreateTaxRate")
		respondOfferingError(c, err, "Failed to create tax rate.")
		return
	}
	c.JSON(http.StatusCreated, rate)
}

// CreateOffering handles creating an offering.
func (h *OfferingHandler) CreateOffering(c *gin.Context) {
	var req services.CreateOfferingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidationFailed(c, "Invalid request payload: "+err.Error())
		return
	}
	offering, err := h.offeringService.CreateOffering(c.Request.Context(), req)
	if err != nil {
		utils.LogError(err, "CreateOffering: Error from offeringService.CreateOffering")
		respondOfferingError(c, err, "Failed to create offering.")
		return
	}
	c.JSON(http.StatusCreated, offering)
}

// AddLineItem handles adding a price to an offering.
func (h *OfferingHandler) AddLineItem(c *gin.Context) {
	offeringID, err := utils.ParseID(c.Param("id"))
	if err != nil {
		utils.RespondValidationFailed(c, "Invalid offering ID format.")
		return
	}
	var req services.CreateLineItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidationFailed(c, "Invalid request payload: "+err.Error())
		return
	}
	result, err := h.offeringService.AddLineItem(c.Request.Context(), offeringID, req)
	if err != nil {
		utils.LogError(err, "AddLineItem: Error for offering ID "+c.Param("id"))
		respondOfferingError(c, err, "Failed to add price.")
		return
	}
	c.JSON(http.StatusCreated, result)
}

// DeleteLineItem handles removing a price from an offering.
func (h *OfferingHandler) DeleteLineItem(c *gin.Context) {
	offeringID, err := utils.ParseID(c.Param("id"))
	if err != nil {
		utils.RespondValidationFailed(c, "Invalid offering ID format.")
		return
	}
	itemID, err := utils.ParseID(c.Param("priceId"))
	if err != nil {
		utils.RespondValidationFailed(c, "Invalid price ID format.")
		return
	}
	summary, err := h.offeringService.DeleteLineItem(c.Request.Context(), offeringID, itemID)
	if err != nil {
		utils.LogError(err, "DeleteLineItem: Error for offering ID "+c.Param("id"))
		respondOfferingError(c, err, "Failed to delete price.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"price_summary": summary})
}

// RecomputePriceSummary forces a summary recompute for one offering.
func (h *OfferingHandler) RecomputePriceSummary(c *gin.Context) {
	offeringID, err := utils.ParseID(c.Param("id"))
	if err != nil {
		utils.RespondValidationFailed(c, "Invalid offering ID format.")
		return
	}
	summary, err := h.offeringService.RecomputePriceSummary(c.Request.Context(), offeringID)
	if err != nil {
		utils.LogError(err, "RecomputePriceSummary: Error for offering ID "+c.Param("id"))
		respondOfferingError(c, err, "Failed to recompute price summary.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"price_summary": summary})
}

// RecomputeAllPriceSummaries forces a recompute of every offering.
func (h *OfferingHandler) RecomputeAllPriceSummaries(c *gin.Context) {
	updated, err := h.offeringService.RecomputeAllPriceSummaries(c.Request.Context())
	if err != nil {
		utils.LogError(err, "RecomputeAllPriceSummaries: Error from offeringService")
		respondOfferingError(c, err, "Failed to recompute price summaries.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}
