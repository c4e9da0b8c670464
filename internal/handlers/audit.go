package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/documenso/documenso-sub011/internal/middleware"
	"github.com/documenso/documenso-sub011/internal/services"
	"github.com/documenso/documenso-sub011/pkg/response"
)

// AuditHandler exposes an envelope's audit trail to its owner.
type AuditHandler struct {
	envelopes *services.EnvelopeService
	audit     *services.AuditService
}

// NewAuditHandler constructs an AuditHandler.
func NewAuditHandler(envelopes *services.EnvelopeService, audit *services.AuditService) (*AuditHandler, error) {
	if envelopes == nil || audit == nil {
		return nil, errors.New("audit handler: envelope and audit services are required")
	}
	return &AuditHandler{envelopes: envelopes, audit: audit}, nil
}

// List returns a cursor-paginated page of the envelope's audit trail, newest
// or oldest first depending on the order query parameter.
func (h *AuditHandler) List(c *gin.Context) {
	user := middleware.UserFromContext(c)

	// Ownership check first: audit entries are only visible to the owner.
	envelope, err := h.envelopes.Get(requestContext(c), c.Param("id"), user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	limit := parseIntQuery(c, "limit", 0)
	cursor := c.Query("cursor")
	orderDesc := strings.EqualFold(c.Query("order"), "desc")

	entries, next, err := h.audit.Find(requestContext(c), envelope.ID, cursor, limit, orderDesc)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, entries, &response.Meta{NextCursor: next})
}
