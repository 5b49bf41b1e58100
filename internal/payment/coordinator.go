package payment

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mimanitas/settlement/internal/events"
	"github.com/mimanitas/settlement/internal/gateway"
	"github.com/mimanitas/settlement/internal/store"
	"github.com/mimanitas/settlement/pkg/models"
)

// Source identifies which entry point observed a payment.
type Source string

const (
	SourceCheckoutWebhook Source = "checkout_webhook"
	SourceIntentWebhook   Source = "intent_webhook"
	SourceVerifyCheckout  Source = "verify_checkout"
	SourceConfirmPayment  Source = "confirm_payment"
	SourceReconcile       Source = "reconcile"
)

// Outcome is a payment result as reported by the gateway, normalized across entry points.
type Outcome struct {
	Source            Source
	JobID             uuid.UUID
	ApplicationID     uuid.UUID
	PaymentIntentID   string
	CheckoutSessionID string
	GatewayStatus     string
	Succeeded         bool

	// AmountTotalCents is what the payer was charged; TransferAmountCents what the gateway
	// routes to the worker. Either may be zero when unknown.
	AmountTotalCents    int64
	TransferAmountCents int64
}

func (o Outcome) reference() string {
	if o.PaymentIntentID != "" {
		return o.PaymentIntentID
	}
	return o.CheckoutSessionID
}

// Result is the job state after finalization.
type Result struct {
	JobID            uuid.UUID `json:"job_id"`
	JobStatus        string    `json:"job_status"`
	PaymentStatus    string    `json:"payment_status"`
	AlreadyProcessed bool      `json:"already_processed,omitempty"`
}

// Coordinator applies successful payments to jobs. Every entry point funnels into
// Finalize, so the transition happens at most once per job however many times and through
// however many paths the same payment is reported.
type Coordinator struct {
	store    store.Store
	gateway  gateway.Client
	events   events.Publisher
	settings Settings
	logger   *slog.Logger
	now      clock
}

func NewCoordinator(s store.Store, gw gateway.Client, pub events.Publisher, settings Settings, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		store:    s,
		gateway:  gw,
		events:   pub,
		settings: settings.withDefaults(),
		logger:   logger,
		now:      time.Now,
	}
}

// Finalize checks o against the stored job and, when everything lines up, moves the job to
// assigned/paid in one transaction. caller is the authenticated user for synchronous entry
// points and nil for gateway callbacks.
func (c *Coordinator) Finalize(ctx context.Context, o Outcome, caller *uuid.UUID) (*Result, error) {
	if !o.Succeeded {
		return nil, Invalid("Payment not completed").With("payment_status", o.GatewayStatus)
	}
	if o.JobID == uuid.Nil || o.ApplicationID == uuid.Nil {
		return nil, Invalid("Incomplete payment data")
	}

	logger := c.logger.With(
		slog.String("source", string(o.Source)),
		slog.String("job_id", o.JobID.String()),
		slog.String("reference", o.reference()),
	)

	job, err := c.store.GetJob(ctx, o.JobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFound("Job not found")
	}
	if err != nil {
		return nil, Internal("Failed to load job", err)
	}

	if caller != nil && job.PosterID != *caller {
		return nil, Forbidden("Only the job poster can confirm this payment")
	}

	if job.IsPaid() {
		logger.Info("payment already processed", slog.String("payment_status", job.PaymentStatus))
		return alreadyProcessed(job), nil
	}

	app, err := c.store.GetApplication(ctx, o.ApplicationID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && app.JobID != job.ID) {
		return nil, NotFound("Application not found")
	}
	if err != nil {
		return nil, Internal("Failed to load application", err)
	}

	share := o.TransferAmountCents
	if share <= 0 {
		share = job.PriceCents
	}
	fee := ComputeFees(share, c.settings.FeePercent).FeeCents
	if o.AmountTotalCents > share {
		fee = o.AmountTotalCents - share
	}

	err = c.store.FinalizeJob(ctx, store.FinalizeParams{
		JobID:                 job.ID,
		ApplicationID:         app.ID,
		WorkerID:              app.ApplicantID,
		StripePaymentIntentID: o.PaymentIntentID,
		CheckoutSessionID:     o.CheckoutSessionID,
		AmountCents:           share,
		PlatformFeeCents:      fee,
		Currency:              c.settings.Currency,
		HeldAt:                c.now().UTC(),
	})
	if errors.Is(err, store.ErrAlreadyFinalized) {
		logger.Info("payment finalized concurrently by another path")
		return &Result{
			JobID:            job.ID,
			JobStatus:        models.JobStatusAssigned,
			PaymentStatus:    models.PaymentStatusPaid,
			AlreadyProcessed: true,
		}, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFound("Application not found")
	}
	if err != nil {
		return nil, Internal("Failed to finalize payment", err)
	}

	logger.Info("payment finalized",
		slog.String("application_id", app.ID.String()),
		slog.String("worker_id", app.ApplicantID.String()),
		slog.Int64("amount_cents", share),
		slog.Int64("platform_fee_cents", fee))

	jobID := job.ID
	publish(ctx, c.events, logger, events.New(events.TypePaymentFinalized, &jobID, o.reference(), map[string]any{
		"application_id":     app.ID,
		"worker_id":          app.ApplicantID,
		"poster_id":          job.PosterID,
		"amount_cents":       share,
		"platform_fee_cents": fee,
		"source":             o.Source,
	}))

	return &Result{
		JobID:         job.ID,
		JobStatus:     models.JobStatusAssigned,
		PaymentStatus: models.PaymentStatusPaid,
	}, nil
}

func alreadyProcessed(job *models.Job) *Result {
	return &Result{
		JobID:            job.ID,
		JobStatus:        job.Status,
		PaymentStatus:    job.PaymentStatus,
		AlreadyProcessed: true,
	}
}

// --- Asynchronous entry points ---

// HandleCheckoutCompleted finalizes a job from a checkout.session.completed event. The signed
// event payload is trusted as-is. Only storage failures are returned; everything else is
// logged and acknowledged.
func (c *Coordinator) HandleCheckoutCompleted(ctx context.Context, s *gateway.CheckoutSession) error {
	o := outcomeFromSession(s, SourceCheckoutWebhook)
	if !o.Succeeded {
		c.logger.Info("checkout session not paid, skipping",
			slog.String("session_id", s.ID), slog.String("payment_status", s.PaymentStatus))
		return nil
	}
	if o.JobID == uuid.Nil || o.ApplicationID == uuid.Nil {
		c.logger.Warn("checkout session missing metadata, skipping", slog.String("session_id", s.ID))
		return nil
	}
	_, err := c.Finalize(ctx, o, nil)
	return c.asyncResult(err, o)
}

// HandlePaymentSucceeded records a payment_intent.succeeded event. Intents created by this
// service carry job metadata and are finalized; others only update the intent record.
func (c *Coordinator) HandlePaymentSucceeded(ctx context.Context, pi *gateway.PaymentIntent) error {
	o := outcomeFromIntent(pi, SourceIntentWebhook)
	o.Succeeded = true

	if o.JobID != uuid.Nil && o.ApplicationID != uuid.Nil {
		if _, err := c.Finalize(ctx, o, nil); err != nil {
			if rerr := c.asyncResult(err, o); rerr != nil {
				return rerr
			}
		}
	}

	err := c.store.MarkPaymentIntentSucceeded(ctx, pi.ID)
	if errors.Is(err, store.ErrNotFound) {
		c.logger.Debug("no intent record for succeeded payment", slog.String("payment_intent_id", pi.ID))
		return nil
	}
	return err
}

// asyncResult decides which finalization errors a webhook delivery should surface.
func (c *Coordinator) asyncResult(err error, o Outcome) error {
	if err == nil {
		return nil
	}
	switch KindOf(err) {
	case KindInternal, KindUpstream:
		return err
	default:
		c.logger.Warn("payment event not applied",
			slog.String("source", string(o.Source)),
			slog.String("reference", o.reference()),
			slog.Any("error", err))
		return nil
	}
}

// --- Synchronous entry points ---

// VerifyCheckout re-reads a checkout session from the gateway and finalizes its job on
// behalf of the poster returning from the hosted payment page.
func (c *Coordinator) VerifyCheckout(ctx context.Context, caller uuid.UUID, sessionID string) (*Result, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, Invalid("session_id is required")
	}

	s, err := c.gateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, Upstream("Failed to verify payment", err)
	}

	return c.Finalize(ctx, outcomeFromSession(s, SourceVerifyCheckout), &caller)
}

// ConfirmPayment re-reads a payment intent from the gateway and finalizes the named job.
func (c *Coordinator) ConfirmPayment(ctx context.Context, caller uuid.UUID, paymentIntentID string, jobID, applicationID uuid.UUID) (*Result, error) {
	if strings.TrimSpace(paymentIntentID) == "" || jobID == uuid.Nil || applicationID == uuid.Nil {
		return nil, Invalid("payment_intent_id, job_id, and application_id are required")
	}

	job, err := c.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFound("Job not found")
	}
	if err != nil {
		return nil, Internal("Failed to load job", err)
	}
	if job.PosterID != caller {
		return nil, Forbidden("Only the job poster can confirm this payment")
	}

	pi, err := c.gateway.GetPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return nil, Upstream("Failed to verify payment", err)
	}

	o := outcomeFromIntent(pi, SourceConfirmPayment)
	if !o.Succeeded {
		return nil, Invalid("Payment not completed").With("payment_status", pi.Status)
	}
	if o.JobID != uuid.Nil && o.JobID != jobID {
		return nil, Invalid("Payment does not belong to this job")
	}
	// The destination transfer was set up for the application named at creation.
	if o.ApplicationID != uuid.Nil && o.ApplicationID != applicationID {
		return nil, Invalid("Payment does not belong to this application")
	}
	o.JobID = jobID
	o.ApplicationID = applicationID

	return c.Finalize(ctx, o, &caller)
}

// Reconcile re-drives finalization for a gateway reference: a payment intent id, or a
// checkout session id (cs_ prefix). Used by operators when callbacks were lost.
func (c *Coordinator) Reconcile(ctx context.Context, reference string) (*Result, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, Invalid("payment reference is required")
	}

	var o Outcome
	if strings.HasPrefix(reference, "cs_") {
		s, err := c.gateway.GetCheckoutSession(ctx, reference)
		if err != nil {
			return nil, Upstream("Failed to load checkout session", err)
		}
		o = outcomeFromSession(s, SourceReconcile)
	} else {
		pi, err := c.gateway.GetPaymentIntent(ctx, reference)
		if err != nil {
			return nil, Upstream("Failed to load payment intent", err)
		}
		o = outcomeFromIntent(pi, SourceReconcile)
	}

	return c.Finalize(ctx, o, nil)
}

func outcomeFromSession(s *gateway.CheckoutSession, src Source) Outcome {
	jobID, appID := parseRefs(s.Metadata)
	o := Outcome{
		Source:            src,
		JobID:             jobID,
		ApplicationID:     appID,
		PaymentIntentID:   s.PaymentIntentID(),
		CheckoutSessionID: s.ID,
		GatewayStatus:     s.PaymentStatus,
		Succeeded:         s.PaymentStatus == gateway.SessionPaymentStatusPaid,
		AmountTotalCents:  s.AmountTotal,
	}
	if s.PaymentIntent != nil && s.PaymentIntent.Expanded != nil {
		pi := s.PaymentIntent.Expanded
		o.TransferAmountCents = pi.TransferAmount()
		if o.JobID == uuid.Nil || o.ApplicationID == uuid.Nil {
			o.JobID, o.ApplicationID = parseRefs(pi.Metadata)
		}
	}
	return o
}

func outcomeFromIntent(pi *gateway.PaymentIntent, src Source) Outcome {
	jobID, appID := parseRefs(pi.Metadata)
	return Outcome{
		Source:              src,
		JobID:               jobID,
		ApplicationID:       appID,
		PaymentIntentID:     pi.ID,
		GatewayStatus:       pi.Status,
		Succeeded:           pi.Status == gateway.IntentStatusSucceeded,
		AmountTotalCents:    pi.Amount,
		TransferAmountCents: pi.TransferAmount(),
	}
}
