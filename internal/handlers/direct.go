package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/documenso/documenso-sub011/internal/services"
	"github.com/documenso/documenso-sub011/pkg/response"
)

// DirectTemplateHandler serves the anonymous self-service signing entry
// point behind a template's direct link.
type DirectTemplateHandler struct {
	direct *services.DirectTemplateService
}

// NewDirectTemplateHandler constructs a DirectTemplateHandler.
func NewDirectTemplateHandler(direct *services.DirectTemplateService) (*DirectTemplateHandler, error) {
	if direct == nil {
		return nil, errors.New("direct template handler: service is required")
	}
	return &DirectTemplateHandler{direct: direct}, nil
}

type directFieldValueRequest struct {
	FieldID  string `json:"field_id" validate:"required"`
	Value    string `json:"value"`
	IsBase64 bool   `json:"is_base64"`
}

type useDirectTemplateRequest struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"max=200"`

	// ExternalID is an optional caller-side reference stamped on the
	// created document.
	ExternalID string `json:"external_id" validate:"max=200"`

	// TemplateUpdatedAt is the template version the visitor saw. A mismatch
	// with the current version rejects the submission.
	TemplateUpdatedAt *time.Time `json:"template_updated_at"`

	SignedFieldValues []directFieldValueRequest `json:"signed_field_values" validate:"dive"`

	Auth services.ActionAuthInput `json:"auth"`
}

// Use materializes a document from the direct template and signs the
// visitor's values in one request.
func (h *DirectTemplateHandler) Use(c *gin.Context) {
	var req useDirectTemplateRequest
	if !bindAndValidate(c, &req) {
		return
	}

	input := services.CreateFromDirectTemplateInput{
		Token:             c.Param("token"),
		Email:             req.Email,
		Name:              req.Name,
		ExternalID:        req.ExternalID,
		TemplateUpdatedAt: req.TemplateUpdatedAt,
		Auth:              req.Auth,
		Meta:              requestMeta(c),
	}
	for _, v := range req.SignedFieldValues {
		input.SignedFieldValues = append(input.SignedFieldValues, services.DirectFieldValue{
			FieldID:  v.FieldID,
			Value:    v.Value,
			IsBase64: v.IsBase64,
		})
	}

	result, err := h.direct.CreateFromDirectTemplate(requestContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, result)
}
