package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/documenso/documenso-sub011/internal/middleware"
	"github.com/documenso/documenso-sub011/internal/models"
	"github.com/documenso/documenso-sub011/internal/services"
	appErrors "github.com/documenso/documenso-sub011/pkg/errors"
	"github.com/documenso/documenso-sub011/pkg/response"
)

// EnvelopeHandler serves the owner-facing envelope API.
type EnvelopeHandler struct {
	envelopes *services.EnvelopeService
	sealer    *services.SealService
}

// NewEnvelopeHandler constructs an EnvelopeHandler.
func NewEnvelopeHandler(envelopes *services.EnvelopeService, sealer *services.SealService) (*EnvelopeHandler, error) {
	if envelopes == nil {
		return nil, errors.New("envelope handler: envelope service is required")
	}
	if sealer == nil {
		return nil, errors.New("envelope handler: seal service is required")
	}
	return &EnvelopeHandler{envelopes: envelopes, sealer: sealer}, nil
}

func requestMeta(c *gin.Context) services.RequestMeta {
	return services.RequestMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		User:      middleware.UserFromContext(c),
	}
}

type createItemRequest struct {
	Title string `json:"title" validate:"max=200"`

	// Data is the base64-encoded binary payload.
	Data string `json:"data" validate:"required"`
}

type createRecipientRequest struct {
	Role         string `json:"role" validate:"omitempty,oneof=SIGNER APPROVER CC VIEWER ASSISTANT"`
	Email        string `json:"email" validate:"required,email"`
	Name         string `json:"name" validate:"max=200"`
	SigningOrder *int   `json:"signing_order"`

	AccessAuth string `json:"access_auth" validate:"omitempty,oneof=NONE ACCOUNT PASSWORD TWO_FACTOR PASSKEY"`
	ActionAuth string `json:"action_auth" validate:"omitempty,oneof=NONE ACCOUNT PASSWORD TWO_FACTOR PASSKEY"`
}

type createFieldRequest struct {
	RecipientIndex int     `json:"recipient_index" validate:"min=0"`
	ItemIndex      int     `json:"item_index" validate:"min=0"`
	Type           string  `json:"type" validate:"required,oneof=TEXT NUMBER DATE CHECKBOX RADIO DROPDOWN SIGNATURE"`
	Page           int     `json:"page" validate:"min=1"`
	PositionX      float64 `json:"position_x"`
	PositionY      float64 `json:"position_y"`
	Width          float64 `json:"width"`
	Height         float64 `json:"height"`
	Required       bool    `json:"required"`
	FieldMeta      any     `json:"field_meta"`
}

type createEnvelopeRequest struct {
	Type       string `json:"type" validate:"required,oneof=DOCUMENT TEMPLATE"`
	Title      string `json:"title" validate:"required,min=1,max=500"`
	ExternalID string `json:"external_id" validate:"max=200"`

	SigningOrderMode       string `json:"signing_order_mode" validate:"omitempty,oneof=PARALLEL SEQUENTIAL"`
	AllowDictateNextSigner bool   `json:"allow_dictate_next_signer"`

	AccessAuth         string `json:"access_auth" validate:"omitempty,oneof=NONE ACCOUNT PASSWORD TWO_FACTOR PASSKEY"`
	ActionAuth         string `json:"action_auth" validate:"omitempty,oneof=NONE ACCOUNT PASSWORD TWO_FACTOR PASSKEY"`
	ActionAuthPassword string `json:"action_auth_password"`

	DateFormat string `json:"date_format" validate:"max=50"`
	Timezone   string `json:"timezone" validate:"max=100"`

	FormValues map[string]string `json:"form_values"`

	Items      []createItemRequest      `json:"items" validate:"required,min=1,dive"`
	Recipients []createRecipientRequest `json:"recipients" validate:"dive"`
	Fields     []createFieldRequest     `json:"fields" validate:"dive"`
}

// Create stores a new DRAFT envelope or template.
func (h *EnvelopeHandler) Create(c *gin.Context) {
	var req createEnvelopeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user := middleware.UserFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	input := services.CreateEnvelopeInput{
		UserID:                 user.ID,
		Type:                   models.EnvelopeType(req.Type),
		Title:                  req.Title,
		ExternalID:             req.ExternalID,
		SigningOrderMode:       models.SigningOrderMode(req.SigningOrderMode),
		AllowDictateNextSigner: req.AllowDictateNextSigner,
		AccessAuth:             models.AuthMethod(req.AccessAuth),
		ActionAuth:             models.AuthMethod(req.ActionAuth),
		ActionAuthPassword:     req.ActionAuthPassword,
		DateFormat:             req.DateFormat,
		Timezone:               req.Timezone,
		FormValues:             req.FormValues,
	}

	for _, item := range req.Items {
		data, err := base64.StdEncoding.DecodeString(item.Data)
		if err != nil {
			response.Error(c, appErrors.NewBadRequest("item data must be base64 encoded"))
			return
		}
		input.Items = append(input.Items, services.CreateItemInput{Title: item.Title, Data: data})
	}

	for _, rec := range req.Recipients {
		in := services.CreateRecipientInput{
			Role:         models.RecipientRole(rec.Role),
			Email:        rec.Email,
			Name:         rec.Name,
			SigningOrder: rec.SigningOrder,
		}
		if rec.AccessAuth != "" || rec.ActionAuth != "" {
			opts := &models.RecipientAuthOptions{}
			if rec.AccessAuth != "" {
				method := models.AuthMethod(rec.AccessAuth)
				opts.AccessAuth = &method
			}
			if rec.ActionAuth != "" {
				method := models.AuthMethod(rec.ActionAuth)
				opts.ActionAuth = &method
			}
			in.AuthOptions = opts
		}
		input.Recipients = append(input.Recipients, in)
	}

	for _, f := range req.Fields {
		meta, err := encodeFieldMeta(f.FieldMeta)
		if err != nil {
			response.Error(c, appErrors.NewBadRequest("field_meta must be a JSON object"))
			return
		}
		input.Fields = append(input.Fields, services.CreateFieldInput{
			RecipientIndex: f.RecipientIndex,
			ItemIndex:      f.ItemIndex,
			Type:           models.FieldType(f.Type),
			Page:           f.Page,
			PositionX:      f.PositionX,
			PositionY:      f.PositionY,
			Width:          f.Width,
			Height:         f.Height,
			Required:       f.Required,
			FieldMeta:      meta,
		})
	}

	envelope, err := h.envelopes.Create(requestContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, envelope)
}

// Get returns one envelope with its associations.
func (h *EnvelopeHandler) Get(c *gin.Context) {
	user := middleware.UserFromContext(c)
	envelope, err := h.envelopes.Get(requestContext(c), c.Param("id"), user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, envelope)
}

// Distribute transitions the envelope to PENDING and notifies recipients.
func (h *EnvelopeHandler) Distribute(c *gin.Context) {
	user := middleware.UserFromContext(c)
	envelope, err := h.envelopes.Distribute(requestContext(c), c.Param("id"), user.ID, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, envelope)
}

// Delete removes the envelope, invalidating all outstanding signing tokens.
func (h *EnvelopeHandler) Delete(c *gin.Context) {
	user := middleware.UserFromContext(c)
	if err := h.envelopes.Delete(requestContext(c), c.Param("id"), user.ID, requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// AddRecipient attaches a recipient to a DRAFT envelope.
func (h *EnvelopeHandler) AddRecipient(c *gin.Context) {
	var req createRecipientRequest
	if !bindAndValidate(c, &req) {
		return
	}

	in := services.CreateRecipientInput{
		Role:         models.RecipientRole(req.Role),
		Email:        req.Email,
		Name:         req.Name,
		SigningOrder: req.SigningOrder,
	}
	if req.AccessAuth != "" || req.ActionAuth != "" {
		opts := &models.RecipientAuthOptions{}
		if req.AccessAuth != "" {
			method := models.AuthMethod(req.AccessAuth)
			opts.AccessAuth = &method
		}
		if req.ActionAuth != "" {
			method := models.AuthMethod(req.ActionAuth)
			opts.ActionAuth = &method
		}
		in.AuthOptions = opts
	}

	user := middleware.UserFromContext(c)
	recipient, err := h.envelopes.AddRecipient(requestContext(c), c.Param("id"), user.ID, in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, recipient)
}

type addFieldRequest struct {
	RecipientID string  `json:"recipient_id" validate:"required"`
	ItemID      string  `json:"item_id" validate:"required"`
	Type        string  `json:"type" validate:"required,oneof=TEXT NUMBER DATE CHECKBOX RADIO DROPDOWN SIGNATURE"`
	Page        int     `json:"page" validate:"min=1"`
	PositionX   float64 `json:"position_x"`
	PositionY   float64 `json:"position_y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	Required    bool    `json:"required"`
	FieldMeta   any     `json:"field_meta"`
}

// AddField places a field on a DRAFT envelope.
func (h *EnvelopeHandler) AddField(c *gin.Context) {
	var req addFieldRequest
	if !bindAndValidate(c, &req) {
		return
	}

	meta, err := encodeFieldMeta(req.FieldMeta)
	if err != nil {
		response.Error(c, appErrors.NewBadRequest("field_meta must be a JSON object"))
		return
	}

	user := middleware.UserFromContext(c)
	field, err := h.envelopes.AddField(requestContext(c), c.Param("id"), user.ID, services.AddFieldInput{
		RecipientID: req.RecipientID,
		ItemID:      req.ItemID,
		Type:        models.FieldType(req.Type),
		Page:        req.Page,
		PositionX:   req.PositionX,
		PositionY:   req.PositionY,
		Width:       req.Width,
		Height:      req.Height,
		Required:    req.Required,
		FieldMeta:   meta,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, field)
}

// Reseal re-renders a completed envelope's sealed artifacts from the
// original blobs. An already intact envelope is left untouched and returned
// as-is.
func (h *EnvelopeHandler) Reseal(c *gin.Context) {
	user := middleware.UserFromContext(c)
	envelope, err := h.envelopes.Get(requestContext(c), c.Param("id"), user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	err = h.sealer.Seal(requestContext(c), envelope.ID)
	if err != nil && !errors.Is(err, services.ErrAlreadySealed) {
		response.Error(c, err)
		return
	}

	envelope, err = h.envelopes.Get(requestContext(c), envelope.ID, user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, envelope)
}

type enableDirectLinkRequest struct {
	DirectRecipientID string `json:"direct_recipient_id" validate:"required"`
}

// EnableDirectLink exposes a template for anonymous self-service signing.
func (h *EnvelopeHandler) EnableDirectLink(c *gin.Context) {
	var req enableDirectLinkRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user := middleware.UserFromContext(c)
	link, err := h.envelopes.EnableDirectLink(requestContext(c), c.Param("id"), user.ID, req.DirectRecipientID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, link)
}

func encodeFieldMeta(meta any) ([]byte, error) {
	if meta == nil {
		return nil, nil
	}
	obj, ok := meta.(map[string]any)
	if !ok {
		return nil, errors.New("field meta must be an object")
	}
	if len(obj) == 0 {
		return nil, nil
	}
	return json.Marshal(obj)
}

// DisableDirectLink turns the template's direct link off.
func (h *EnvelopeHandler) DisableDirectLink(c *gin.Context) {
	user := middleware.UserFromContext(c)
	if err := h.envelopes.DisableDirectLink(requestContext(c), c.Param("id"), user.ID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"enabled": false})
}
