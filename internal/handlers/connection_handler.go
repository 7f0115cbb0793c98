package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"shopify-import-service/internal/clients"
	"shopify-import-service/internal/models"
)

// ConnectionHandler verifies store credentials
type ConnectionHandler struct {
	client clients.CommerceClient
}

// NewConnectionHandler creates a new connection handler
func NewConnectionHandler(client clients.CommerceClient) *ConnectionHandler {
	return &ConnectionHandler{client: client}
}

// TestConnection calls the store's shop endpoint with the configured
// credentials and reports what it finds.
// POST /api/v1/connection/test
func (h *ConnectionHandler) TestConnection(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	shop, err := h.client.GetShop(ctx)
	if err != nil {
		status := http.StatusBadGateway
		if apiErr, ok := clients.AsAPIError(err); ok && apiErr.StatusCode == http.StatusUnauthorized {
			status = http.StatusUnauthorized
		}
		c.JSON(status, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "CONNECTION_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"shop":    shop,
	})
}
