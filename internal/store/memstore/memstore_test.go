package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimanitas/settlement/internal/store"
	"github.com/mimanitas/settlement/pkg/models"
)

func seed(s *Store) (models.Job, models.Application) {
	job := models.Job{
		ID:            uuid.New(),
		PosterID:      uuid.New(),
		PriceCents:    5000,
		Status:        models.JobStatusOpen,
		PaymentStatus: models.PaymentStatusUnpaid,
	}
	app := models.Application{ID: uuid.New(), JobID: job.ID, ApplicantID: uuid.New(), Status: models.ApplicationStatusPending}
	s.PutJob(job)
	s.PutApplication(app)
	return job, app
}

func params(job models.Job, app models.Application, ref string) store.FinalizeParams {
	return store.FinalizeParams{
		JobID:                 job.ID,
		ApplicationID:         app.ID,
		WorkerID:              app.ApplicantID,
		StripePaymentIntentID: ref,
		AmountCents:           5000,
		PlatformFeeCents:      500,
		Currency:              "eur",
		HeldAt:                time.Now(),
	}
}

func TestFinalizeJob_Once(t *testing.T) {
	s := New()
	job, app := seed(s)
	ctx := context.Background()

	require.NoError(t, s.FinalizeJob(ctx, params(job, app, "pi_1")))
	assert.ErrorIs(t, s.FinalizeJob(ctx, params(job, app, "pi_2")), store.ErrAlreadyFinalized)

	got := s.Job(job.ID)
	assert.Equal(t, models.PaymentStatusPaid, got.PaymentStatus)
	assert.Equal(t, "pi_1", *got.PaidPaymentIntentID)
	assert.Equal(t, 1, s.TransactionCount(job.ID))
	assert.Equal(t, 2, s.FinalizeCalls())
}

func TestFinalizeJob_Concurrent(t *testing.T) {
	s := New()
	job, app := seed(s)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.FinalizeJob(context.Background(), params(job, app, "pi_1")); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestFinalizeJob_ForeignApplication(t *testing.T) {
	s := New()
	job, _ := seed(s)
	_, other := seed(s)

	assert.ErrorIs(t, s.FinalizeJob(context.Background(), params(job, other, "pi_1")), store.ErrNotFound)
	assert.Equal(t, models.PaymentStatusUnpaid, s.Job(job.ID).PaymentStatus)
}

func TestCreatePaymentIntent_Duplicate(t *testing.T) {
	s := New()
	job, _ := seed(s)
	ref := "pi_1"
	pi := &models.PaymentIntent{ID: uuid.New(), JobID: job.ID, StripePaymentIntentID: &ref}

	require.NoError(t, s.CreatePaymentIntent(context.Background(), pi))
	pi.ID = uuid.New()
	assert.ErrorIs(t, s.CreatePaymentIntent(context.Background(), pi), store.ErrDuplicateKey)
}

func TestGettersReturnCopies(t *testing.T) {
	s := New()
	job, _ := seed(s)

	got, err := s.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	got.PaymentStatus = models.PaymentStatusPaid

	assert.Equal(t, models.PaymentStatusUnpaid, s.Job(job.ID).PaymentStatus)
}

func checkoutAttempt(s *Store, job models.Job, sessionID string, created time.Time) {
	s.PutPaymentIntent(models.PaymentIntent{
		ID:                uuid.New(),
		JobID:             job.ID,
		CheckoutSessionID: &sessionID,
		Status:            models.IntentStatusRequiresPaymentMethod,
		CreatedAt:         created,
	})
}

func TestFinalizeJob_LinksCheckoutAttempt(t *testing.T) {
	s := New()
	job, app := seed(s)
	ctx := context.Background()
	checkoutAttempt(s, job, "cs_old", time.Now().Add(-time.Hour))
	checkoutAttempt(s, job, "cs_new", time.Now())

	require.NoError(t, s.FinalizeJob(ctx, params(job, app, "pi_1")))

	pi, err := s.GetPaymentIntentByStripeID(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, "cs_new", *pi.CheckoutSessionID)
	assert.Equal(t, models.IntentStatusSucceeded, pi.Status)

	old, err := s.GetPaymentIntentBySessionID(ctx, "cs_old")
	require.NoError(t, err)
	assert.Nil(t, old.StripePaymentIntentID)
}

func TestCancelPaymentIntent_ResolvesCheckoutAttempt(t *testing.T) {
	s := New()
	job, _ := seed(s)
	ctx := context.Background()
	checkoutAttempt(s, job, "cs_1", time.Now())

	assert.ErrorIs(t, s.CancelPaymentIntent(ctx, "pi_1", uuid.Nil), store.ErrNotFound)
	require.NoError(t, s.CancelPaymentIntent(ctx, "pi_1", job.ID))

	pi, err := s.GetPaymentIntentBySessionID(ctx, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusCanceled, pi.Status)
	assert.Equal(t, "pi_1", *pi.StripePaymentIntentID)
}

func TestRevertJobPayment_Guard(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	tests := []struct {
		name    string
		setup   func(s *Store, job models.Job)
		failing string
		want    bool
	}{
		{
			name:    "only the failing attempt",
			setup:   func(s *Store, job models.Job) { intentAt(s, job, "pi_1", now) },
			failing: "pi_1",
			want:    true,
		},
		{
			name: "older attempt left open",
			setup: func(s *Store, job models.Job) {
				intentAt(s, job, "pi_old", now.Add(-time.Hour))
				intentAt(s, job, "pi_new", now)
			},
			failing: "pi_new",
			want:    true,
		},
		{
			name: "newer attempt in flight",
			setup: func(s *Store, job models.Job) {
				intentAt(s, job, "pi_old", now.Add(-time.Hour))
				checkoutAttempt(s, job, "cs_new", now)
			},
			failing: "pi_old",
			want:    false,
		},
		{
			name:    "unrecorded failure with an open attempt",
			setup:   func(s *Store, job models.Job) { intentAt(s, job, "pi_live", now) },
			failing: "pi_unknown",
			want:    false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			job, _ := seed(s)
			tt.setup(s, job)

			reverted, err := s.RevertJobPayment(ctx, job.ID, tt.failing)
			require.NoError(t, err)
			assert.Equal(t, tt.want, reverted)
		})
	}
}

func TestRevertJobPayment_RefundedJobUntouched(t *testing.T) {
	s := New()
	job, _ := seed(s)
	job.PaymentStatus = models.PaymentStatusRefunded
	s.PutJob(job)

	reverted, err := s.RevertJobPayment(context.Background(), job.ID, "pi_1")
	require.NoError(t, err)
	assert.False(t, reverted)
}

func intentAt(s *Store, job models.Job, stripeID string, created time.Time) {
	s.PutPaymentIntent(models.PaymentIntent{
		ID:                    uuid.New(),
		JobID:                 job.ID,
		StripePaymentIntentID: &stripeID,
		Status:                models.IntentStatusRequiresPaymentMethod,
		CreatedAt:             created,
	})
}
