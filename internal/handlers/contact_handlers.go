package handlers

import (
	"errors"
	"net/http"

	"langschool_backend/internal/middleware"
	"langschool_backend/internal/services"
	"langschool_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// Messages shown to contact form submitters.
const (
	msgContactInvalid  = "入力内容に誤りがあります。メールアドレスとお問い合わせ内容をご確認ください。"
	msgContactRejected = "申し訳ございませんが、このお問い合わせは送信できませんでした。"
	msgContactNotified = "お問い合わせは受け付けましたが、担当者への通知に失敗しました。"
)

// ContactHandler holds the contact service.
type ContactHandler struct {
	contactService services.ContactService
}

// NewContactHandler creates a new ContactHandler.
func NewContactHandler(cs services.ContactService) *ContactHandler {
	return &ContactHandler{contactService: cs}
}

// respondContactError maps contact service errors onto API errors.
func respondContactError(c *gin.Context, err error, fallback string) {
	var fieldErr *services.FieldError
	switch {
	case errors.As(err, &fieldErr):
		apiErr := utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, msgContactInvalid, err.Error())
		utils.RespondWithError(c, apiErr.WithField(fieldErr.Field, fieldErr.Message))
	case errors.Is(err, services.ErrContactValidation):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, msgContactInvalid, err.Error()))
	case errors.Is(err, services.ErrContactBanned):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusUnprocessableEntity, utils.ErrCodeSubmissionRejected, msgContactRejected, ""))
	case errors.Is(err, services.ErrNotificationFailed):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeNotificationFailed, msgContactNotified, ""))
	case errors.Is(err, services.ErrContactNotFound), errors.Is(err, services.ErrAccountContactMissing):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Contact not found.", err.Error()))
	default:
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, fallback, "Internal error"))
	}
}

// SubmitContactForm handles the public contact form.
func (h *ContactHandler) SubmitContactForm(c *gin.Context) {
	var req services.ContactFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, msgContactInvalid, err.Error()))
		return
	}

	result, err := h.contactService.SubmitContactForm(c.Request.Context(), req)
	if err != nil {
		if !errors.Is(err, services.ErrContactValidation) && !errors.Is(err, services.ErrContactBanned) {
			utils.LogError(err, "SubmitContactForm: Error from contactService.SubmitContactForm")
		}
		respondContactError(c, err, "Failed to submit contact form.")
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"details": "ok"})
}

// GetContactByID handles the operator contact lookup.
func (h *ContactHandler) GetContactByID(c *gin.Context) {
	contactID, err := utils.ParseID(c.Param("id"))
	if err != nil {
		utils.RespondValidationFailed(c, "Invalid contact ID format.")
		return
	}
	contact, err := h.contactService.GetContactByID(c.Request.Context(), contactID)
	if err != nil {
		if !errors.Is(err, services.ErrContactNotFound) {
			utils.LogError(err, "GetContactByID: Error for ID "+c.Param("id"))
		}
		respondContactError(c, err, "Failed to fetch contact.")
		return
	}
	c.JSON(http.StatusOK, contact)
}

// GetMyContact returns the contact linked to the authenticated user.
func (h *ContactHandler) GetMyContact(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusUnauthorized, utils.ErrCodeUnauthorized, "User ID not found in token", ""))
		return
	}
	contact, err := h.contactService.GetContactForUser(c.Request.Context(), userID)
	if err != nil {
		respondContactError(c, err, "Failed to fetch contact.")
		return
	}
	c.JSON(http.StatusOK, contact)
}

// UpdateMyContactNames updates the names on the authenticated user's contact.
func (h *ContactHandler) UpdateMyContactNames(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusUnauthorized, utils.ErrCodeUnauthorized, "User ID not found in token", ""))
		return
	}
	var req services.UpdateContactNamesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidationFailed(c, "Invalid request payload: "+err.Error())
		return
	}
	contact, err := h.contactService.UpdateContactNamesForUser(c.Request.Context(), userID, req)
	if err != nil {
		if !errors.Is(err, services.ErrContactValidation) {
			utils.LogError(err, "UpdateMyContactNames: Error for user ID "+utils.Int64ToStr(userID))
		}
		respondContactError(c, err, "Failed to update contact.")
		return
	}
	c.JSON(http.StatusOK, contact)
}
