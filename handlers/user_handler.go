package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shinobiwanshin/Sweetify/app"
	"github.com/shinobiwanshin/Sweetify/models"
	"github.com/shinobiwanshin/Sweetify/repositories"
	"github.com/shinobiwanshin/Sweetify/utils"
)

// PrincipalResponse is the caller as the auth gate sees it
type PrincipalResponse struct {
	UserID      *uuid.UUID  `json:"userId,omitempty"`
	Subject     string      `json:"subject"`
	Username    string      `json:"username"`
	Role        models.Role `json:"role"`
	Authorities []string    `json:"authorities"`
	Local       bool        `json:"local"`
	ExpiresAt   time.Time   `json:"expiresAt"`
}

// CurrentUserResponse is the body of GET /api/users/me
type CurrentUserResponse struct {
	Principal PrincipalResponse `json:"principal"`
	User      *models.User      `json:"user,omitempty"`
}

// GetCurrentUserHandler handles GET /api/users/me
func GetCurrentUserHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requirePrincipal(w, r)
		if !ok {
			return
		}

		resp := CurrentUserResponse{
			Principal: PrincipalResponse{
				UserID:      principal.UserID,
				Subject:     principal.Subject,
				Username:    principal.Username,
				Role:        principal.Role,
				Authorities: principal.Authorities,
				Local:       principal.Local,
				ExpiresAt:   principal.ExpiresAt,
			},
		}

		// A degraded principal has no stored user to show
		if principal.UserID != nil && deps.Users != nil {
			user, err := deps.Users.GetByID(r.Context(), *principal.UserID)
			switch {
			case err == nil:
				resp.User = user
			case errors.Is(err, repositories.ErrNotFound):
			default:
				deps.Logger.Warn("failed to load current user",
					zap.String("user_id", principal.UserID.String()),
					zap.Error(err))
			}
		}

		_ = utils.WriteOK(w, resp)
	}
}
