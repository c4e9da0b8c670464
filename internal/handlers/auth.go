package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	iauth "github.com/documenso/documenso-sub011/internal/auth"
	"github.com/documenso/documenso-sub011/internal/middleware"
	"github.com/documenso/documenso-sub011/internal/models"
	"github.com/documenso/documenso-sub011/pkg/crypto"
	appErrors "github.com/documenso/documenso-sub011/pkg/errors"
	"github.com/documenso/documenso-sub011/pkg/response"
)

// AuthHandler serves owner account registration and login. Signing
// recipients never authenticate here; their signing token is the session.
type AuthHandler struct {
	db       *gorm.DB
	sessions *iauth.SessionService
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, sessions *iauth.SessionService) (*AuthHandler, error) {
	if db == nil {
		return nil, errors.New("auth handler: db is required")
	}
	if sessions == nil {
		return nil, errors.New("auth handler: session service is required")
	}
	return &AuthHandler{db: db, sessions: sessions}, nil
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,min=1,max=200"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// Register creates an owner account and returns a session token.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	user := models.User{
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Name:     strings.TrimSpace(req.Name),
		Password: hash,
		IsActive: true,
	}
	if err := h.db.WithContext(requestContext(c)).Create(&user).Error; err != nil {
		response.Error(c, appErrors.ErrConflict.WithMessage("an account with this email already exists").WithInternal(err))
		return
	}

	token, err := h.sessions.IssueToken(&user)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"token": token, "user": user})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login verifies credentials and returns a session token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	var user models.User
	err := h.db.WithContext(requestContext(c)).
		First(&user, "email = ? AND is_active = ?", strings.ToLower(strings.TrimSpace(req.Email)), true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !crypto.VerifyPassword(user.Password, req.Password)) {
		response.Error(c, appErrors.ErrUnauthorized.WithMessage("invalid email or password"))
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	token, err := h.sessions.IssueToken(&user)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"token": token, "user": user})
}

// Me returns the authenticated account.
func (h *AuthHandler) Me(c *gin.Context) {
	user := middleware.UserFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	response.Success(c, http.StatusOK, user)
}
