package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/documenso/documenso-sub011/internal/services"
	"github.com/documenso/documenso-sub011/pkg/response"
)

// SigningHandler serves the token-scoped participant surface. The token in
// the URL is the whole session; no account is required.
type SigningHandler struct {
	gateway *services.TokenGateway
	signing *services.SigningService
}

// NewSigningHandler constructs a SigningHandler.
func NewSigningHandler(gateway *services.TokenGateway, signing *services.SigningService) (*SigningHandler, error) {
	if gateway == nil || signing == nil {
		return nil, errors.New("signing handler: gateway and signing service are required")
	}
	return &SigningHandler{gateway: gateway, signing: signing}, nil
}

// View returns the participant's signing session: the envelope, their
// recipient row, and only their own fields.
func (h *SigningHandler) View(c *gin.Context) {
	view, err := h.gateway.View(requestContext(c), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

type signFieldRequest struct {
	Value    string `json:"value"`
	IsBase64 bool   `json:"is_base64"`

	Auth services.ActionAuthInput `json:"auth"`
}

// SignField writes a value into one of the participant's fields.
func (h *SigningHandler) SignField(c *gin.Context) {
	var req signFieldRequest
	if !bindAndValidate(c, &req) {
		return
	}

	field, err := h.signing.SignField(requestContext(c), services.SignFieldInput{
		Token:    c.Param("token"),
		FieldID:  c.Param("field_id"),
		Value:    req.Value,
		IsBase64: req.IsBase64,
		Auth:     req.Auth,
		Meta:     requestMeta(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, field)
}

// UnsignField clears one of the participant's fields. Unsigning an already
// empty field succeeds without effect.
func (h *SigningHandler) UnsignField(c *gin.Context) {
	err := h.signing.UnsignField(requestContext(c), c.Param("token"), c.Param("field_id"), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"inserted": false})
}

type completeRequest struct {
	NextSignerEmail string `json:"next_signer_email" validate:"omitempty,email"`
	NextSignerName  string `json:"next_signer_name" validate:"max=200"`

	Auth services.ActionAuthInput `json:"auth"`
}

// Complete marks the participant as finished. When they are the last
// blocking recipient the envelope seals before the response returns.
func (h *SigningHandler) Complete(c *gin.Context) {
	// A bare POST is a plain completion; the body only carries optional
	// auth and next-signer dictation.
	var req completeRequest
	if c.Request.ContentLength > 0 {
		if !bindAndValidate(c, &req) {
			return
		}
	}

	recipient, err := h.signing.CompleteRecipient(requestContext(c), services.CompleteRecipientInput{
		Token:           c.Param("token"),
		NextSignerEmail: req.NextSignerEmail,
		NextSignerName:  req.NextSignerName,
		Auth:            req.Auth,
		Meta:            requestMeta(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, recipient)
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required,min=1,max=2000"`
}

// Reject terminates the envelope for everyone with a reason.
func (h *SigningHandler) Reject(c *gin.Context) {
	var req rejectRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.signing.RejectEnvelope(requestContext(c), c.Param("token"), req.Reason, requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"rejected": true})
}
