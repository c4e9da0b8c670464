package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/documenso/documenso-sub011/internal/models"
)

// RequestMeta carries per-request actor information through every mutation so
// audit entries can snapshot who acted from where. Mutations never read actor
// identity from ambient state.
type RequestMeta struct {
	IPAddress string
	UserAgent string
	User      *models.User
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func signingLink(baseURL, token string) string {
	return fmt.Sprintf("%s/sign/%s", strings.TrimRight(baseURL, "/"), token)
}

func strPtr(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
