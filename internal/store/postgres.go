package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mimanitas/settlement/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var _ Store = (*PostgresStore)(nil)

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

// --- Jobs & Applications ---

// Prices are stored as numeric euros; the service works in integer cents.
func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var j models.Job
	err := s.pool.QueryRow(ctx,
		`SELECT id, poster_id, title, (price_amount * 100)::bigint, status, payment_status,
		        assigned_to, paid_payment_intent_id, created_at, updated_at
		 FROM jobs WHERE id = $1`, id,
	).Scan(&j.ID, &j.PosterID, &j.Title, &j.PriceCents, &j.Status, &j.PaymentStatus,
		&j.AssignedTo, &j.PaidPaymentIntentID, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

func (s *PostgresStore) GetApplication(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	var a models.Application
	err := s.pool.QueryRow(ctx,
		`SELECT id, job_id, applicant_id, status, created_at, updated_at
		 FROM applications WHERE id = $1`, id,
	).Scan(&a.ID, &a.JobID, &a.ApplicantID, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get application: %w", err)
	}
	return &a, nil
}

func (s *PostgresStore) GetTransactionByJobID(ctx context.Context, jobID uuid.UUID) (*models.Transaction, error) {
	var t models.Transaction
	err := s.pool.QueryRow(ctx,
		`SELECT id, job_id, (amount * 100)::bigint, (platform_fee_amount * 100)::bigint, currency, status,
		        payment_provider, provider_transaction_id, stripe_payment_intent_id, held_at, created_at, updated_at
		 FROM transactions WHERE job_id = $1`, jobID,
	).Scan(&t.ID, &t.JobID, &t.AmountCents, &t.PlatformFeeCents, &t.Currency, &t.Status,
		&t.PaymentProvider, &t.ProviderTransactionID, &t.StripePaymentIntentID, &t.HeldAt, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return &t, nil
}

// --- Payment Intents ---

const paymentIntentColumns = `id, job_id, stripe_payment_intent_id, checkout_session_id, amount_cents,
	platform_fee_cents, currency, status, client_secret, created_at, updated_at`

func scanPaymentIntent(row pgx.Row) (*models.PaymentIntent, error) {
	var pi models.PaymentIntent
	err := row.Scan(&pi.ID, &pi.JobID, &pi.StripePaymentIntentID, &pi.CheckoutSessionID, &pi.AmountCents,
		&pi.PlatformFeeCents, &pi.Currency, &pi.Status, &pi.ClientSecret, &pi.CreatedAt, &pi.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &pi, nil
}

func (s *PostgresStore) CreatePaymentIntent(ctx context.Context, pi *models.PaymentIntent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO payment_intents (id, job_id, stripe_payment_intent_id, checkout_session_id, amount_cents,
		                              platform_fee_cents, currency, status, client_secret, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		pi.ID, pi.JobID, pi.StripePaymentIntentID, pi.CheckoutSessionID, pi.AmountCents,
		pi.PlatformFeeCents, pi.Currency, pi.Status, pi.ClientSecret, pi.CreatedAt, pi.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create payment intent: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPaymentIntentByStripeID(ctx context.Context, stripeID string) (*models.PaymentIntent, error) {
	pi, err := scanPaymentIntent(s.pool.QueryRow(ctx,
		`SELECT `+paymentIntentColumns+` FROM payment_intents WHERE stripe_payment_intent_id = $1`, stripeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payment intent: %w", err)
	}
	return pi, nil
}

func (s *PostgresStore) GetPaymentIntentBySessionID(ctx context.Context, sessionID string) (*models.PaymentIntent, error) {
	pi, err := scanPaymentIntent(s.pool.QueryRow(ctx,
		`SELECT `+paymentIntentColumns+` FROM payment_intents WHERE checkout_session_id = $1`, sessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payment intent by session: %w", err)
	}
	return pi, nil
}

func (s *PostgresStore) MarkPaymentIntentSucceeded(ctx context.Context, stripeID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE payment_intents SET status = 'succeeded', updated_at = NOW()
		 WHERE stripe_payment_intent_id = $1`, stripeID)
	if err != nil {
		return fmt.Errorf("mark payment intent succeeded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CancelPaymentIntent marks the attempt behind stripeID canceled. When no record carries
// stripeID, the newest unlinked checkout record of jobID is taken as that attempt and linked
// to it. Succeeded records are never downgraded; that case reports ErrNotFound.
func (s *PostgresStore) CancelPaymentIntent(ctx context.Context, stripeID string, jobID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE payment_intents SET status = 'canceled', updated_at = NOW()
		 WHERE stripe_payment_intent_id = $1 AND status <> 'succeeded'`, stripeID)
	if err != nil {
		return fmt.Errorf("cancel payment intent: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if jobID == uuid.Nil {
		return ErrNotFound
	}

	tag, err = s.pool.Exec(ctx,
		`UPDATE payment_intents SET status = 'canceled', stripe_payment_intent_id = $1, updated_at = NOW()
		 WHERE id = (`+newestUnlinkedAttempt+`)
		   AND NOT EXISTS (SELECT 1 FROM payment_intents WHERE stripe_payment_intent_id = $1)`,
		stripeID, jobID)
	if err != nil {
		return fmt.Errorf("cancel checkout attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// newestUnlinkedAttempt selects the latest open record of job $2 that was created for a
// hosted checkout session and has not learned its payment intent id yet.
const newestUnlinkedAttempt = `SELECT id FROM payment_intents
		     WHERE job_id = $2 AND stripe_payment_intent_id IS NULL
		       AND status NOT IN ('canceled', 'succeeded')
		     ORDER BY created_at DESC
		     LIMIT 1`

// --- Finalization ---

func (s *PostgresStore) FinalizeJob(ctx context.Context, p FinalizeParams) error {
	reference := p.StripePaymentIntentID
	if reference == "" {
		reference = p.CheckoutSessionID
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin finalize: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// The guard must be the first write: it serializes concurrent finalizers on the job row.
	tag, err := tx.Exec(ctx,
		`UPDATE jobs
		 SET status = 'assigned', assigned_to = $2, payment_status = 'paid',
		     paid_payment_intent_id = $3, updated_at = NOW()
		 WHERE id = $1 AND payment_status = 'unpaid'`,
		p.JobID, p.WorkerID, reference)
	if err != nil {
		return fmt.Errorf("claim job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyFinalized
	}

	tag, err = tx.Exec(ctx,
		`UPDATE payment_intents
		 SET status = 'succeeded',
		     stripe_payment_intent_id = COALESCE(stripe_payment_intent_id, $1),
		     updated_at = NOW()
		 WHERE job_id = $3 AND (stripe_payment_intent_id = $1 OR checkout_session_id = $2)`,
		nullIfEmpty(p.StripePaymentIntentID), nullIfEmpty(p.CheckoutSessionID), p.JobID)
	if err != nil {
		return fmt.Errorf("mark intent succeeded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// payment_intent.succeeded can arrive before checkout.session.completed, carrying
		// only the intent id.
		_, err = tx.Exec(ctx,
			`UPDATE payment_intents
			 SET status = 'succeeded', stripe_payment_intent_id = $1, updated_at = NOW()
			 WHERE id = (`+newestUnlinkedAttempt+`)`,
			nullIfEmpty(p.StripePaymentIntentID), p.JobID)
		if err != nil {
			return fmt.Errorf("link checkout attempt: %w", err)
		}
	}

	tag, err = tx.Exec(ctx,
		`UPDATE applications SET status = 'accepted', updated_at = NOW()
		 WHERE id = $1 AND job_id = $2`, p.ApplicationID, p.JobID)
	if err != nil {
		return fmt.Errorf("accept application: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("accept application %s: %w", p.ApplicationID, ErrNotFound)
	}

	_, err = tx.Exec(ctx,
		`UPDATE applications SET status = 'rejected', updated_at = NOW()
		 WHERE job_id = $1 AND id <> $2 AND status = 'pending'`, p.JobID, p.ApplicationID)
	if err != nil {
		return fmt.Errorf("reject other applications: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO transactions (id, job_id, amount, platform_fee_amount, currency, status,
		                           payment_provider, provider_transaction_id, stripe_payment_intent_id, held_at)
		 VALUES ($1, $2, $3::numeric / 100, $4::numeric / 100, $5, 'held', $6, $7, $7, $8)
		 ON CONFLICT (job_id) DO NOTHING`,
		uuid.New(), p.JobID, p.AmountCents, p.PlatformFeeCents, p.Currency, paymentProvider, reference, p.HeldAt)
	if err != nil {
		return fmt.Errorf("create held transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit finalize: %w", err)
	}
	return nil
}

// RevertJobPayment is a single conditional UPDATE so a concurrent finalization cannot be
// overwritten between a read and a write. Only attempts opened at or after the failing one
// keep the job assigned; older abandoned attempts do not. A failing reference with no record
// is blocked by any open attempt.
//
// Jobs are reopened from 'unpaid' only. A 'refunded' job keeps the state the dispute left.
func (s *PostgresStore) RevertJobPayment(ctx context.Context, jobID uuid.UUID, stripeID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'open', payment_status = 'unpaid', assigned_to = NULL, updated_at = NOW()
		 WHERE id = $1 AND payment_status = 'unpaid'
		   AND NOT EXISTS (
		       SELECT 1 FROM payment_intents pi
		       WHERE pi.job_id = $1
		         AND pi.status NOT IN ('canceled', 'succeeded')
		         AND pi.stripe_payment_intent_id IS DISTINCT FROM $2::text
		         AND pi.created_at >= COALESCE(
		             (SELECT f.created_at FROM payment_intents f WHERE f.stripe_payment_intent_id = $2::text),
		             '-infinity'::timestamptz))`,
		jobID, stripeID)
	if err != nil {
		return false, fmt.Errorf("revert job payment: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) RecordDispute(ctx context.Context, jobID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin dispute: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE jobs SET payment_status = 'refunded', updated_at = NOW() WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("mark job refunded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	_, err = tx.Exec(ctx,
		`UPDATE transactions SET status = 'disputed', updated_at = NOW() WHERE job_id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("mark transaction disputed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit dispute: %w", err)
	}
	return nil
}

// --- Payout Accounts ---

func (s *PostgresStore) GetPayoutAccountByProfile(ctx context.Context, profileID uuid.UUID) (*models.PayoutAccount, error) {
	var a models.PayoutAccount
	err := s.pool.QueryRow(ctx,
		`SELECT id, profile_id, stripe_account_id, onboarding_complete, payouts_enabled, charges_enabled,
		        details_submitted, created_at, updated_at
		 FROM stripe_accounts WHERE profile_id = $1`, profileID,
	).Scan(&a.ID, &a.ProfileID, &a.StripeAccountID, &a.OnboardingComplete, &a.PayoutsEnabled,
		&a.ChargesEnabled, &a.DetailsSubmitted, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payout account: %w", err)
	}
	return &a, nil
}

func (s *PostgresStore) UpdatePayoutAccountStatus(ctx context.Context, stripeAccountID string, st models.AccountStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE stripe_accounts
		 SET onboarding_complete = $4, payouts_enabled = $2, charges_enabled = $3,
		     details_submitted = $4, updated_at = NOW()
		 WHERE stripe_account_id = $1`,
		stripeAccountID, st.PayoutsEnabled, st.ChargesEnabled, st.DetailsSubmitted)
	if err != nil {
		return fmt.Errorf("update payout account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Withdrawals ---

func (s *PostgresStore) MarkWithdrawalPaid(ctx context.Context, stripePayoutID string, paidAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE withdrawals SET status = 'paid', paid_at = $2 WHERE stripe_payout_id = $1`,
		stripePayoutID, paidAt)
	if err != nil {
		return fmt.Errorf("mark withdrawal paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MarkWithdrawalFailed(ctx context.Context, stripePayoutID, code, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE withdrawals SET status = 'failed', failure_code = $2, failure_message = $3
		 WHERE stripe_payout_id = $1`,
		stripePayoutID, code, message)
	if err != nil {
		return fmt.Errorf("mark withdrawal failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
