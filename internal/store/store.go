package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mimanitas/settlement/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrAlreadyFinalized is returned by FinalizeJob when the job has already left the unpaid
// state. Nothing was written.
var ErrAlreadyFinalized = errors.New("job already finalized")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error

	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	GetApplication(ctx context.Context, id uuid.UUID) (*models.Application, error)
	GetTransactionByJobID(ctx context.Context, jobID uuid.UUID) (*models.Transaction, error)

	CreatePaymentIntent(ctx context.Context, pi *models.PaymentIntent) error
	GetPaymentIntentByStripeID(ctx context.Context, stripeID string) (*models.PaymentIntent, error)
	GetPaymentIntentBySessionID(ctx context.Context, sessionID string) (*models.PaymentIntent, error)
	MarkPaymentIntentSucceeded(ctx context.Context, stripeID string) error
	// CancelPaymentIntent cancels the attempt behind stripeID. jobID, when known, resolves
	// checkout attempts that were recorded before their payment intent id was.
	CancelPaymentIntent(ctx context.Context, stripeID string, jobID uuid.UUID) error

	// FinalizeJob atomically moves a job from unpaid to paid/assigned, settles its
	// applications, marks the intent record succeeded and opens the held transaction.
	FinalizeJob(ctx context.Context, p FinalizeParams) error
	// RevertJobPayment reopens a job whose payment attempt failed. It reports whether a row
	// changed. Paid and refunded jobs are left alone, as are jobs with a newer attempt in flight.
	RevertJobPayment(ctx context.Context, jobID uuid.UUID, stripeID string) (bool, error)
	RecordDispute(ctx context.Context, jobID uuid.UUID) error

	GetPayoutAccountByProfile(ctx context.Context, profileID uuid.UUID) (*models.PayoutAccount, error)
	UpdatePayoutAccountStatus(ctx context.Context, stripeAccountID string, status models.AccountStatus) error

	MarkWithdrawalPaid(ctx context.Context, stripePayoutID string, paidAt time.Time) error
	MarkWithdrawalFailed(ctx context.Context, stripePayoutID, code, message string) error
}

// FinalizeParams describes one successful payment to be applied to a job.
type FinalizeParams struct {
	JobID         uuid.UUID
	ApplicationID uuid.UUID
	WorkerID      uuid.UUID

	// StripePaymentIntentID is the external payment reference. CheckoutSessionID is set when
	// the payment came through a hosted checkout session.
	StripePaymentIntentID string
	CheckoutSessionID     string

	AmountCents      int64
	PlatformFeeCents int64
	Currency         string
	HeldAt           time.Time
}

const paymentProvider = "stripe"
