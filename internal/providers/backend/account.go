package backend

import (
	"context"
	"fmt"
	"net/url"

	"github.com/seenimoa/cotscope/pkg/models"
)

// --- Request payloads ---

// SelectionUpdate stores table filters or favorites for a user.
type SelectionUpdate struct {
	Email     string            `json:"email" validate:"required,email"`
	Filters   *models.Selection `json:"table_filters,omitempty"`
	Favorites *models.Selection `json:"favorites,omitempty"`
}

// Credentials signs a user in or up.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name,omitempty" validate:"omitempty,max=100"`
}

// EmailOnly is the payload of calls that only identify the user.
type EmailOnly struct {
	Email string `json:"email" validate:"required,email"`
}

// CodeCheck submits an emailed verification or reset code.
type CodeCheck struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required"`
}

// PasswordReset sets a new password after a verified reset code.
type PasswordReset struct {
	Email       string `json:"email" validate:"required,email"`
	Code        string `json:"code" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// SubscriptionRequest creates a subscription or updates its payment method.
type SubscriptionRequest struct {
	Email           string `json:"email" validate:"required,email"`
	PaymentMethodID string `json:"payment_method_id,omitempty"`
	PriceID         string `json:"price_id,omitempty"`
}

// ChatRequest asks the AI assistant a question.
type ChatRequest struct {
	Question string `json:"question" validate:"required,max=4000"`
	Email    string `json:"email" validate:"required,email"`
}

// HelpRequest files a support ticket.
type HelpRequest struct {
	Type      string `json:"type" validate:"required,oneof=bug feature billing account other"`
	Subject   string `json:"subject" validate:"required,max=200"`
	Message   string `json:"message" validate:"required,max=5000"`
	UserEmail string `json:"userEmail" validate:"required,email"`
}

// --- Preferences ---

type tableFiltersResponse struct {
	Success      bool             `json:"success"`
	TableFilters models.Selection `json:"table_filters"`
}

type favoritesResponse struct {
	Success   bool             `json:"success"`
	Favorites models.Selection `json:"favorites"`
}

// TableFilters returns the contract codes selected in the user's table filter.
func (p *Provider) TableFilters(ctx context.Context, email string) ([]string, error) {
	var resp tableFiltersResponse
	if err := p.c.getJSON(ctx, "/preferences/table_filters", url.Values{"email": {email}}, &resp); err != nil {
		return nil, fmt.Errorf("get table filters: %w", err)
	}
	return resp.TableFilters.Selected, nil
}

// SaveTableFilters replaces the user's table filter selection.
func (p *Provider) SaveTableFilters(ctx context.Context, email string, selected []string) error {
	req := SelectionUpdate{Email: email, Filters: &models.Selection{Selected: nonNil(selected)}}
	var resp models.ActionResult
	if err := p.c.postJSON(ctx, "/preferences/table_filters", req, &resp); err != nil {
		return fmt.Errorf("save table filters: %w", err)
	}
	return check(resp)
}

// Favorites returns the user's favorite contract codes.
func (p *Provider) Favorites(ctx context.Context, email string) ([]string, error) {
	var resp favoritesResponse
	if err := p.c.getJSON(ctx, "/preferences/favorites", url.Values{"email": {email}}, &resp); err != nil {
		return nil, fmt.Errorf("get favorites: %w", err)
	}
	return resp.Favorites.Selected, nil
}

// SaveFavorites replaces the user's favorites.
func (p *Provider) SaveFavorites(ctx context.Context, email string, selected []string) error {
	req := SelectionUpdate{Email: email, Favorites: &models.Selection{Selected: nonNil(selected)}}
	var resp models.ActionResult
	if err := p.c.postJSON(ctx, "/preferences/favorites", req, &resp); err != nil {
		return fmt.Errorf("save favorites: %w", err)
	}
	return check(resp)
}

// --- Auth flows ---

// Permissions signs the user in (or registers them) and reports whether
// access is granted.
func (p *Provider) Permissions(ctx context.Context, c Credentials) (models.ActionResult, error) {
	return p.action(ctx, "/permissions", c)
}

// Verify confirms an emailed sign-up code.
func (p *Provider) Verify(ctx context.Context, c CodeCheck) (models.ActionResult, error) {
	return p.action(ctx, "/verify", c)
}

// ResendCode emails a fresh verification code.
func (p *Provider) ResendCode(ctx context.Context, email string) (models.ActionResult, error) {
	return p.action(ctx, "/resend-code", EmailOnly{Email: email})
}

// RequestPasswordReset emails a reset code.
func (p *Provider) RequestPasswordReset(ctx context.Context, email string) (models.ActionResult, error) {
	return p.action(ctx, "/request-password-reset", EmailOnly{Email: email})
}

// VerifyResetCode checks a reset code before the new password is chosen.
func (p *Provider) VerifyResetCode(ctx context.Context, c CodeCheck) (models.ActionResult, error) {
	return p.action(ctx, "/verify-reset-code", c)
}

// ResetPassword sets the new password.
func (p *Provider) ResetPassword(ctx context.Context, r PasswordReset) (models.ActionResult, error) {
	return p.action(ctx, "/reset-password", r)
}

// --- Subscription and billing ---

// SubscriptionStatus returns the user's trial and subscription state.
func (p *Provider) SubscriptionStatus(ctx context.Context, email string) (models.SubscriptionStatus, error) {
	var st models.SubscriptionStatus
	if err := p.c.getJSON(ctx, "/subscription-status", url.Values{"email": {email}}, &st); err != nil {
		return st, fmt.Errorf("subscription status: %w", err)
	}
	return st, nil
}

// CreateSubscription starts a subscription. withTrial selects the trial
// endpoint.
func (p *Provider) CreateSubscription(ctx context.Context, r SubscriptionRequest, withTrial bool) (models.ActionResult, error) {
	path := "/create-subscription"
	if !withTrial {
		path = "/create-subscription-no-trial"
	}
	return p.action(ctx, path, r)
}

// UpdatePaymentMethod swaps the card on file.
func (p *Provider) UpdatePaymentMethod(ctx context.Context, r SubscriptionRequest) (models.ActionResult, error) {
	return p.action(ctx, "/update-payment-method", r)
}

// CancelSubscription cancels at period end.
func (p *Provider) CancelSubscription(ctx context.Context, email string) (models.ActionResult, error) {
	return p.action(ctx, "/cancel-subscription", EmailOnly{Email: email})
}

// --- Assistant and support ---

// Ask sends a question to the AI assistant.
func (p *Provider) Ask(ctx context.Context, r ChatRequest) (models.ChatAnswer, error) {
	var ans models.ChatAnswer
	if err := p.c.postJSON(ctx, "/api/ai/chat", r, &ans); err != nil {
		return ans, fmt.Errorf("ai chat: %w", err)
	}
	if !ans.Success && ans.Error != "" {
		return ans, fmt.Errorf("ai chat: %w: %s", ErrUnsuccessful, ans.Error)
	}
	return ans, nil
}

// SubmitHelp files a support request.
func (p *Provider) SubmitHelp(ctx context.Context, r HelpRequest) (models.ActionResult, error) {
	return p.action(ctx, "/api/help/submit", r)
}

func (p *Provider) action(ctx context.Context, path string, payload any) (models.ActionResult, error) {
	var res models.ActionResult
	if err := p.c.postJSON(ctx, path, payload, &res); err != nil {
		return res, fmt.Errorf("POST %s: %w", path, err)
	}
	return res, nil
}

func check(r models.ActionResult) error {
	if r.Success {
		return nil
	}
	if r.Message == "" {
		return ErrUnsuccessful
	}
	return fmt.Errorf("%w: %s", ErrUnsuccessful, r.Message)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
