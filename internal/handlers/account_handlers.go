package handlers

import (
	"net/http"

	"langschool_backend/internal/services"
	"langschool_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// AccountEventHandler receives account lifecycle events from the account service.
type AccountEventHandler struct {
	contactService services.ContactService
}

// NewAccountEventHandler creates a new AccountEventHandler.
func NewAccountEventHandler(cs services.ContactService) *AccountEventHandler {
	return &AccountEventHandler{contactService: cs}
}

func bindAccountEvent(c *gin.Context) (int64, services.AccountEvent, bool) {
	var event services.AccountEvent
	accountID, err := utils.ParseID(c.Param("id"))
	if err != nil {
		utils.RespondValidationFailed(c, "Invalid account ID format.")
		return 0, event, false
	}
	if err := c.ShouldBindJSON(&event); err != nil {
		utils.RespondValidationFailed(c, "Invalid request payload: "+err.Error())
		return 0, event, false
	}
	return accountID, event, true
}

// AccountCreated links or creates the contact for a new account.
func (h *AccountEventHandler) AccountCreated(c *gin.Context) {
	accountID, event, ok := bindAccountEvent(c)
	if !ok {
		return
	}
	contact, err := h.contactService.OnAccountCreated(c.Request.Context(), accountID, event)
	if err != nil {
		utils.LogError(err, "AccountCreated: Error for account ID "+c.Param("id"))
		respondContactError(c, err, "Failed to reconcile account.")
		return
	}
	c.JSON(http.StatusOK, contact)
}

// AccountEmailChanged makes the new email primary on the account's contact.
func (h *AccountEventHandler) AccountEmailChanged(c *gin.Context) {
	accountID, event, ok := bindAccountEvent(c)
	if !ok {
		return
	}
	contact, err := h.contactService.OnAccountEmailChanged(c.Request.Context(), accountID, event)
	if err != nil {
		utils.LogError(err, "AccountEmailChanged: Error for account ID "+c.Param("id"))
		respondContactError(c, err, "Failed to update account email.")
		return
	}
	c.JSON(http.StatusOK, contact)
}
