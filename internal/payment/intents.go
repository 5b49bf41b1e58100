package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mimanitas/settlement/internal/gateway"
	"github.com/mimanitas/settlement/internal/store"
	"github.com/mimanitas/settlement/pkg/models"
)

// IntentResponse describes a newly created payment attempt. Exactly one of the
// client-secret or checkout-url pairs is set.
type IntentResponse struct {
	Success          bool   `json:"success"`
	ClientSecret     string `json:"client_secret,omitempty"`
	PaymentIntentID  string `json:"payment_intent_id,omitempty"`
	CheckoutURL      string `json:"checkout_url,omitempty"`
	SessionID        string `json:"session_id,omitempty"`
	AmountCents      int64  `json:"amount_cents"`
	JobAmountCents   int64  `json:"job_amount_cents"`
	PlatformFeeCents int64  `json:"platform_fee_cents"`
	Currency         string `json:"currency"`
}

// Checkout opens payment attempts for a poster paying a chosen worker.
type Checkout struct {
	store    store.Store
	gateway  gateway.Client
	settings Settings
	logger   *slog.Logger
	now      clock
}

func NewCheckout(s store.Store, gw gateway.Client, settings Settings, logger *slog.Logger) *Checkout {
	return &Checkout{store: s, gateway: gw, settings: settings.withDefaults(), logger: logger, now: time.Now}
}

type payable struct {
	job     *models.Job
	app     *models.Application
	account *models.PayoutAccount
	amounts Amounts
}

// prepare runs the checks shared by both checkout flows.
func (c *Checkout) prepare(ctx context.Context, caller, jobID, applicationID uuid.UUID) (*payable, error) {
	if jobID == uuid.Nil || applicationID == uuid.Nil {
		return nil, Invalid("job_id and application_id are required")
	}

	job, err := c.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFound("Job not found")
	}
	if err != nil {
		return nil, Internal("Failed to load job", err)
	}
	if job.PosterID != caller {
		return nil, Forbidden("Only the job poster can pay for this job")
	}
	if job.Status != models.JobStatusOpen {
		return nil, Invalid("Job is not open for payment").With("job_status", job.Status)
	}
	if job.IsPaid() {
		return nil, Invalid("Job has already been paid").With("payment_status", job.PaymentStatus)
	}

	app, err := c.store.GetApplication(ctx, applicationID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && app.JobID != job.ID) {
		return nil, NotFound("Application not found")
	}
	if err != nil {
		return nil, Internal("Failed to load application", err)
	}

	acct, err := c.store.GetPayoutAccountByProfile(ctx, app.ApplicantID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, Invalid("Worker has not set up a payout account").With("helper_needs_onboarding", true)
	}
	if err != nil {
		return nil, Internal("Failed to load payout account", err)
	}
	if !acct.PayoutsEnabled {
		return nil, Invalid("Worker payout account is not active yet").With("helper_needs_onboarding", true)
	}

	return &payable{
		job:     job,
		app:     app,
		account: acct,
		amounts: ComputeFees(job.PriceCents, c.settings.FeePercent),
	}, nil
}

func (c *Checkout) metadata(p *payable, caller uuid.UUID) map[string]string {
	return map[string]string{
		metaJobID:         p.job.ID.String(),
		metaApplicationID: p.app.ID.String(),
		metaHelperID:      p.app.ApplicantID.String(),
		metaSeekerID:      caller.String(),
		metaPlatform:      c.settings.Platform,
	}
}

// CreatePaymentIntent opens an embedded-card payment attempt.
func (c *Checkout) CreatePaymentIntent(ctx context.Context, caller, jobID, applicationID uuid.UUID) (*IntentResponse, error) {
	p, err := c.prepare(ctx, caller, jobID, applicationID)
	if err != nil {
		return nil, err
	}

	pi, err := c.gateway.CreatePaymentIntent(ctx, gateway.CreatePaymentIntentParams{
		AmountCents:         p.amounts.TotalCents,
		Currency:            c.settings.Currency,
		Destination:         p.account.StripeAccountID,
		TransferAmountCents: p.amounts.JobCents,
		Description:         fmt.Sprintf("%s - %s", c.settings.Platform, p.job.Title),
		Metadata:            c.metadata(p, caller),
	})
	if err != nil {
		return nil, Upstream("Failed to create payment", err)
	}

	secret := pi.ClientSecret
	c.record(ctx, &models.PaymentIntent{
		JobID:                 p.job.ID,
		StripePaymentIntentID: &pi.ID,
		ClientSecret:          &secret,
		Status:                statusOr(pi.Status),
	}, p)

	return &IntentResponse{
		Success:          true,
		ClientSecret:     pi.ClientSecret,
		PaymentIntentID:  pi.ID,
		AmountCents:      p.amounts.TotalCents,
		JobAmountCents:   p.amounts.JobCents,
		PlatformFeeCents: p.amounts.FeeCents,
		Currency:         c.settings.Currency,
	}, nil
}

// CreateCheckoutSession opens a hosted-page payment attempt. The poster is sent back to
// successURL with the session id appended.
func (c *Checkout) CreateCheckoutSession(ctx context.Context, caller, jobID, applicationID uuid.UUID, successURL, cancelURL string) (*IntentResponse, error) {
	if successURL == "" || cancelURL == "" {
		return nil, Invalid("success_url and cancel_url are required")
	}

	p, err := c.prepare(ctx, caller, jobID, applicationID)
	if err != nil {
		return nil, err
	}

	md := c.metadata(p, caller)
	s, err := c.gateway.CreateCheckoutSession(ctx, gateway.CreateCheckoutSessionParams{
		SuccessURL: withSessionPlaceholder(successURL),
		CancelURL:  cancelURL,
		Currency:   c.settings.Currency,
		LineItems: []gateway.LineItem{
			{Name: p.job.Title, AmountCents: p.amounts.JobCents},
			{Name: fmt.Sprintf("Platform fee (%d%%)", c.settings.FeePercent), AmountCents: p.amounts.FeeCents},
		},
		Destination:         p.account.StripeAccountID,
		TransferAmountCents: p.amounts.JobCents,
		IntentMetadata:      md,
		Metadata: map[string]string{
			metaJobID:         md[metaJobID],
			metaApplicationID: md[metaApplicationID],
		},
	})
	if err != nil {
		return nil, Upstream("Failed to create checkout session", err)
	}

	rec := &models.PaymentIntent{
		JobID:             p.job.ID,
		CheckoutSessionID: &s.ID,
		Status:            models.IntentStatusRequiresPaymentMethod,
	}
	if id := s.PaymentIntentID(); id != "" {
		rec.StripePaymentIntentID = &id
	}
	c.record(ctx, rec, p)

	return &IntentResponse{
		Success:          true,
		CheckoutURL:      s.URL,
		SessionID:        s.ID,
		AmountCents:      p.amounts.TotalCents,
		JobAmountCents:   p.amounts.JobCents,
		PlatformFeeCents: p.amounts.FeeCents,
		Currency:         c.settings.Currency,
	}, nil
}

// record persists the attempt. The gateway object already exists at this point, so a
// storage failure is logged and the caller still gets a usable response; later callbacks
// correlate through metadata.
func (c *Checkout) record(ctx context.Context, rec *models.PaymentIntent, p *payable) {
	now := c.now().UTC()
	rec.ID = uuid.New()
	rec.AmountCents = p.amounts.JobCents
	rec.PlatformFeeCents = p.amounts.FeeCents
	rec.Currency = c.settings.Currency
	rec.CreatedAt = now
	rec.UpdatedAt = now

	if err := c.store.CreatePaymentIntent(ctx, rec); err != nil {
		c.logger.Error("failed to record payment intent",
			slog.String("job_id", p.job.ID.String()),
			slog.Any("error", err))
	}
}

func statusOr(status string) string {
	if status == "" {
		return models.IntentStatusRequiresPaymentMethod
	}
	return status
}

func withSessionPlaceholder(successURL string) string {
	sep := "?"
	if strings.Contains(successURL, "?") {
		sep = "&"
	}
	return successURL + sep + "session_id={CHECKOUT_SESSION_ID}"
}
