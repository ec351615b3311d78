package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	svix "github.com/svix/svix-webhooks/go"
	"go.uber.org/zap"

	"github.com/shinobiwanshin/Sweetify/config"
	"github.com/shinobiwanshin/Sweetify/models"
)

const MessageUserEventProcessed = "User event processed successfully"

// WebhookDelivery is one signed webhook request
type WebhookDelivery struct {
	ID        string
	Timestamp string
	Signature string
	Body      []byte
}

// headers rebuilds the svix-* request headers for the SDK
func (d WebhookDelivery) headers() http.Header {
	h := http.Header{}
	h.Set("svix-id", d.ID)
	h.Set("svix-timestamp", d.Timestamp)
	h.Set("svix-signature", d.Signature)
	return h
}

// WebhookVerifier checks Svix signatures on identity provider webhooks
type WebhookVerifier struct {
	wh *svix.Webhook
}

// NewWebhookVerifier decodes secret. An empty or placeholder secret yields a
// verifier that is not Enabled.
func NewWebhookVerifier(secret string) (*WebhookVerifier, error) {
	if config.IsPlaceholderWebhookSecret(secret) {
		return &WebhookVerifier{}, nil
	}
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook secret: %w", err)
	}
	return &WebhookVerifier{wh: wh}, nil
}

// Enabled reports whether signatures are checked
func (v *WebhookVerifier) Enabled() bool {
	return v != nil && v.wh != nil
}

// Verify checks d against the secret. It is a no-op when not Enabled.
func (v *WebhookVerifier) Verify(d WebhookDelivery) error {
	if !v.Enabled() {
		return nil
	}
	if d.ID == "" || d.Timestamp == "" || d.Signature == "" {
		return ErrMissingWebhookHeaders
	}
	if err := v.wh.Verify(d.Body, d.headers()); err != nil {
		return ErrInvalidWebhookSignature.Wrap(err)
	}
	return nil
}

// Sign produces a signature header value for d. Used by tests and tooling.
func (v *WebhookVerifier) Sign(d WebhookDelivery) (string, error) {
	if !v.Enabled() {
		return "", errors.New("webhook signing secret not configured")
	}
	ts, err := strconv.ParseInt(d.Timestamp, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid timestamp: %w", err)
	}
	return v.wh.Sign(d.ID, time.Unix(ts, 0), d.Body)
}

// WebhookService applies identity-provider events to the user store
type WebhookService struct {
	verifier *WebhookVerifier
	identity *IdentityService
	logger   *zap.Logger
}

// NewWebhookService creates a WebhookService
func NewWebhookService(verifier *WebhookVerifier, identity *IdentityService, logger *zap.Logger) *WebhookService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !verifier.Enabled() {
		logger.Warn("webhook secret not configured, signature verification skipped (not safe for production)")
	}
	return &WebhookService{verifier: verifier, identity: identity, logger: logger}
}

type webhookEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type clerkEmail struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

type clerkUser struct {
	ID                    string       `json:"id"`
	FirstName             string       `json:"first_name"`
	LastName              string       `json:"last_name"`
	PrimaryEmailAddressID string       `json:"primary_email_address_id"`
	EmailAddresses        []clerkEmail `json:"email_addresses"`
}

// primaryEmail prefers the address named by primary_email_address_id, else
// the first non-empty address.
func (u clerkUser) primaryEmail() string {
	first := ""
	for _, e := range u.EmailAddresses {
		if e.EmailAddress == "" {
			continue
		}
		if u.PrimaryEmailAddressID != "" && e.ID == u.PrimaryEmailAddressID {
			return e.EmailAddress
		}
		if first == "" {
			first = e.EmailAddress
		}
	}
	return first
}

// Handle verifies and processes one delivery and returns the response message.
func (s *WebhookService) Handle(ctx context.Context, d WebhookDelivery) (string, error) {
	if err := s.verifier.Verify(d); err != nil {
		s.logger.Warn("webhook signature rejected", zap.String("svix_id", d.ID), zap.Error(err))
		return "", err
	}

	var event webhookEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		return "", ErrInvalidPayload.Wrap(err)
	}

	switch {
	case event.Type == "user.created" || event.Type == "user.updated":
		if err := s.handleUserEvent(ctx, event); err != nil {
			return "", err
		}
		return MessageUserEventProcessed, nil
	case strings.HasPrefix(event.Type, "organization") || strings.Contains(event.Type, "membership"):
		if err := s.handleMembershipEvent(ctx, event); err != nil {
			return "", err
		}
	}
	return "Event type not handled: " + event.Type, nil
}

func (s *WebhookService) handleUserEvent(ctx context.Context, event webhookEvent) error {
	var u clerkUser
	if len(event.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(event.Data, &u); err != nil {
		return ErrInvalidPayload.Wrap(err)
	}

	email := u.primaryEmail()
	if u.ID == "" || email == "" {
		s.logger.Info("user event without id or email ignored", zap.String("type", event.Type))
		return nil
	}

	user, err := s.identity.SyncUser(ctx, ExternalProfile{
		ExternalID: u.ID,
		Email:      email,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
	})
	if err != nil {
		return err
	}
	s.logger.Info("synced user from webhook",
		zap.String("type", event.Type),
		zap.String("user_id", user.ID.String()))
	return nil
}

// handleMembershipEvent accepts the payload shapes seen across membership
// webhooks: data.membership or data.member, with the user nested or at data.user.
func (s *WebhookService) handleMembershipEvent(ctx context.Context, event webhookEvent) error {
	var data map[string]any
	if len(event.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return ErrInvalidPayload.Wrap(err)
	}

	membership, _ := data["membership"].(map[string]any)
	if membership == nil {
		membership, _ = data["member"].(map[string]any)
	}

	var userObj map[string]any
	if membership != nil {
		userObj, _ = membership["user"].(map[string]any)
	}
	if userObj == nil {
		userObj, _ = data["user"].(map[string]any)
	}

	role, _ := membership["role"].(string)
	if role == "" {
		role, _ = data["role"].(string)
	}

	var email string
	switch {
	case userObj != nil:
		email = primaryEmailFromMap(userObj)
	case membership != nil && membership["email"] != nil:
		email, _ = membership["email"].(string)
	default:
		email, _ = data["email"].(string)
	}

	if email == "" || role == "" {
		return nil
	}

	target := models.RoleUser
	if isMembershipAdmin(role) {
		target = models.RoleAdmin
	}

	user, err := s.identity.SetRoleByEmail(ctx, email, target)
	if err != nil {
		return err
	}
	if user != nil {
		s.logger.Info("updated role from membership event",
			zap.String("user_id", user.ID.String()),
			zap.String("role", string(user.Role)))
	}
	return nil
}

func primaryEmailFromMap(m map[string]any) string {
	raw, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	var u clerkUser
	if err := json.Unmarshal(raw, &u); err != nil {
		return ""
	}
	return u.primaryEmail()
}

func isMembershipAdmin(role string) bool {
	switch strings.ToLower(role) {
	case "admin", "owner", "org:admin":
		return true
	}
	return false
}
