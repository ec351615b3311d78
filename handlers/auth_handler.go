package handlers

import (
	"maps"
	"net/http"
	"slices"

	"go.uber.org/zap"

	"github.com/shinobiwanshin/Sweetify/app"
	"github.com/shinobiwanshin/Sweetify/services"
	"github.com/shinobiwanshin/Sweetify/utils"
)

const msgWebhookFailed = "Failed to process webhook"

// authError is the body of a rejected register or login call
type authError struct {
	Error string `json:"error"`
}

// loginResponse carries the signed local token
type loginResponse struct {
	Token string `json:"token"`
}

// writeAuthError answers credential failures with 400 {"error": message}.
// Internal failures fall through to HandleServiceError.
func writeAuthError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if !services.IsValidationError(err) && !services.IsNotFoundError(err) {
		HandleServiceError(w, err, logger)
		return
	}

	message := services.GetErrorMessage(err)
	if fields := utils.GetValidationFields(err); len(fields) > 0 {
		message = fields[slices.Sorted(maps.Keys(fields))[0]]
	}
	_ = utils.WriteJSON(w, http.StatusBadRequest, authError{Error: message})
}

// RegisterHandler handles POST /api/auth/register
func RegisterHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req services.RegisterRequest
		if err := decodeJSON(w, r, &req); err != nil {
			_ = utils.WriteJSON(w, http.StatusBadRequest, authError{Error: "Invalid request body"})
			return
		}

		user, err := deps.Credentials.Register(r.Context(), req)
		if err != nil {
			writeAuthError(w, err, deps.Logger)
			return
		}

		_ = utils.WriteJSON(w, http.StatusOK, user)
	}
}

// LoginHandler handles POST /api/auth/login
func LoginHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req services.LoginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			_ = utils.WriteJSON(w, http.StatusBadRequest, authError{Error: "Invalid request body"})
			return
		}

		token, err := deps.Credentials.Login(r.Context(), req)
		if err != nil {
			writeAuthError(w, err, deps.Logger)
			return
		}

		_ = utils.WriteJSON(w, http.StatusOK, loginResponse{Token: token})
	}
}

// ClerkWebhookHandler handles POST /api/auth/clerk/webhook.
// Responses are plain text, which is what the webhook sender records.
func ClerkWebhookHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(w, r)
		if err != nil {
			deps.Metrics.RecordWebhook("error")
			_ = utils.WriteText(w, http.StatusInternalServerError, msgWebhookFailed)
			return
		}

		delivery := services.WebhookDelivery{
			ID:        r.Header.Get("svix-id"),
			Timestamp: r.Header.Get("svix-timestamp"),
			Signature: r.Header.Get("svix-signature"),
			Body:      body,
		}

		message, err := deps.Webhooks.Handle(r.Context(), delivery)
		switch {
		case err == nil:
			deps.Metrics.RecordWebhook("ok")
			_ = utils.WriteText(w, http.StatusOK, message)
		case services.IsUnauthorizedError(err):
			deps.Metrics.RecordWebhook("rejected")
			_ = utils.WriteText(w, http.StatusUnauthorized, services.GetErrorMessage(err))
		default:
			deps.Logger.Error("webhook processing failed",
				zap.String("svix_id", delivery.ID),
				zap.Error(err))
			deps.Metrics.RecordWebhook("error")
			_ = utils.WriteText(w, http.StatusInternalServerError, msgWebhookFailed)
		}
	}
}
