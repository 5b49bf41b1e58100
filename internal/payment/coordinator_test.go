package payment

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimanitas/settlement/internal/events"
	"github.com/mimanitas/settlement/internal/gateway"
	"github.com/mimanitas/settlement/pkg/models"
)

func TestCoordinator_CheckoutWebhookFinalizesJob(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator()
	s := f.paidSession("cs_test_1", "pi_1")

	require.NoError(t, c.HandleCheckoutCompleted(context.Background(), s))

	job := f.store.Job(f.job.ID)
	assert.Equal(t, models.JobStatusAssigned, job.Status)
	assert.Equal(t, models.PaymentStatusPaid, job.PaymentStatus)
	require.NotNil(t, job.AssignedTo)
	assert.Equal(t, f.workerID, *job.AssignedTo)
	require.NotNil(t, job.PaidPaymentIntentID)
	assert.Equal(t, "pi_1", *job.PaidPaymentIntentID)

	assert.Equal(t, models.ApplicationStatusAccepted, f.store.Application(f.app.ID).Status)
	assert.Equal(t, models.ApplicationStatusRejected, f.store.Application(f.otherApp.ID).Status)

	tx, err := f.store.GetTransactionByJobID(context.Background(), f.job.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), tx.AmountCents)
	assert.Equal(t, int64(500), tx.PlatformFeeCents)
	assert.Equal(t, models.TransactionStatusHeld, tx.Status)
	assert.Equal(t, "pi_1", tx.StripePaymentIntentID)

	finalized := f.recorder.OfType(events.TypePaymentFinalized)
	require.Len(t, finalized, 1)
	assert.Equal(t, "pi_1", finalized[0].Reference)
}

func TestCoordinator_UnpaidSessionIsIgnored(t *testing.T) {
	f := newFixture(t)
	s := f.paidSession("cs_test_1", "pi_1")
	s.PaymentStatus = "unpaid"

	require.NoError(t, f.coordinator().HandleCheckoutCompleted(context.Background(), s))

	assert.Equal(t, models.PaymentStatusUnpaid, f.store.Job(f.job.ID).PaymentStatus)
	assert.Zero(t, f.store.FinalizeCalls())
}

func TestCoordinator_SessionWithoutMetadataIsAcked(t *testing.T) {
	f := newFixture(t)
	s := f.paidSession("cs_test_1", "pi_1")
	s.Metadata = nil

	require.NoError(t, f.coordinator().HandleCheckoutCompleted(context.Background(), s))
	assert.Zero(t, f.store.FinalizeCalls())
}

func TestCoordinator_SessionFallsBackToExpandedIntentMetadata(t *testing.T) {
	f := newFixture(t)
	pi := f.succeededIntent("pi_1")
	s := f.paidSession("cs_test_1", "pi_1")
	s.Metadata = nil
	s.PaymentIntent = &gateway.PaymentIntentRef{ID: pi.ID, Expanded: pi}

	require.NoError(t, f.coordinator().HandleCheckoutCompleted(context.Background(), s))
	assert.Equal(t, models.PaymentStatusPaid, f.store.Job(f.job.ID).PaymentStatus)
}

func TestCoordinator_AllEntryPointsFinalizeOnce(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator()
	ctx := context.Background()

	pi := f.succeededIntent("pi_1")
	s := f.paidSession("cs_test_1", "pi_1")

	require.NoError(t, c.HandleCheckoutCompleted(ctx, s))
	require.NoError(t, c.HandlePaymentSucceeded(ctx, pi))

	res, err := c.VerifyCheckout(ctx, f.posterID, s.ID)
	require.NoError(t, err)
	assert.True(t, res.AlreadyProcessed)

	res, err = c.ConfirmPayment(ctx, f.posterID, pi.ID, f.job.ID, f.app.ID)
	require.NoError(t, err)
	assert.True(t, res.AlreadyProcessed)

	res, err = c.Reconcile(ctx, pi.ID)
	require.NoError(t, err)
	assert.True(t, res.AlreadyProcessed)

	assert.Equal(t, 1, f.store.TransactionCount(f.job.ID))
	assert.Len(t, f.recorder.OfType(events.TypePaymentFinalized), 1)
}

func TestCoordinator_ConcurrentDeliveriesHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator()
	pi := f.succeededIntent("pi_1")
	s := f.paidSession("cs_test_1", "pi_1")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.HandleCheckoutCompleted(context.Background(), s))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, c.HandlePaymentSucceeded(context.Background(), pi))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.store.TransactionCount(f.job.ID))
	assert.Len(t, f.recorder.OfType(events.TypePaymentFinalized), 1)
	assert.Equal(t, models.PaymentStatusPaid, f.store.Job(f.job.ID).PaymentStatus)
}

func TestCoordinator_FinalizeValidation(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator()
	ctx := context.Background()

	base := Outcome{
		Source:          SourceReconcile,
		JobID:           f.job.ID,
		ApplicationID:   f.app.ID,
		PaymentIntentID: "pi_1",
		Succeeded:       true,
	}

	tests := []struct {
		name   string
		mutate func(*Outcome)
		caller *uuid.UUID
		want   Kind
	}{
		{"not succeeded", func(o *Outcome) { o.Succeeded = false }, nil, KindValidation},
		{"missing job", func(o *Outcome) { o.JobID = uuid.Nil }, nil, KindValidation},
		{"unknown job", func(o *Outcome) { o.JobID = uuid.New() }, nil, KindNotFound},
		{"unknown application", func(o *Outcome) { o.ApplicationID = uuid.New() }, nil, KindNotFound},
		{"caller is not poster", func(*Outcome) {}, &f.workerID, KindAuthorization},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := base
			tt.mutate(&o)
			_, err := c.Finalize(ctx, o, tt.caller)
			require.Error(t, err)
			assert.Equal(t, tt.want, KindOf(err))
		})
	}

	assert.Equal(t, models.PaymentStatusUnpaid, f.store.Job(f.job.ID).PaymentStatus)
}

func TestCoordinator_ApplicationFromAnotherJob(t *testing.T) {
	f := newFixture(t)
	foreign := models.Application{ID: uuid.New(), JobID: uuid.New(), ApplicantID: uuid.New(), Status: models.ApplicationStatusPending}
	f.store.PutApplication(foreign)

	_, err := f.coordinator().Finalize(context.Background(), Outcome{
		Source:          SourceReconcile,
		JobID:           f.job.ID,
		ApplicationID:   foreign.ID,
		PaymentIntentID: "pi_1",
		Succeeded:       true,
	}, nil)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Zero(t, f.store.TransactionCount(f.job.ID))
}

func TestCoordinator_FeeFromChargedTotal(t *testing.T) {
	f := newFixture(t)

	_, err := f.coordinator().Finalize(context.Background(), Outcome{
		Source:              SourceReconcile,
		JobID:               f.job.ID,
		ApplicationID:       f.app.ID,
		PaymentIntentID:     "pi_1",
		Succeeded:           true,
		AmountTotalCents:    5600,
		TransferAmountCents: 5000,
	}, nil)
	require.NoError(t, err)

	tx, err := f.store.GetTransactionByJobID(context.Background(), f.job.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), tx.AmountCents)
	assert.Equal(t, int64(600), tx.PlatformFeeCents)
}

func TestCoordinator_PaymentSucceededMarksIntentRecord(t *testing.T) {
	f := newFixture(t)
	f.pendingIntent("pi_1")
	pi := f.succeededIntent("pi_1")

	require.NoError(t, f.coordinator().HandlePaymentSucceeded(context.Background(), pi))

	rec, err := f.store.GetPaymentIntentByStripeID(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusSucceeded, rec.Status)
}

func TestCoordinator_PaymentSucceededWithoutMetadata(t *testing.T) {
	f := newFixture(t)
	pi := &gateway.PaymentIntent{ID: "pi_external", Status: gateway.IntentStatusSucceeded}

	require.NoError(t, f.coordinator().HandlePaymentSucceeded(context.Background(), pi))
	assert.Zero(t, f.store.FinalizeCalls())
}

func TestCoordinator_VerifyCheckout(t *testing.T) {
	ctx := context.Background()

	t.Run("finalizes paid session", func(t *testing.T) {
		f := newFixture(t)
		s := f.paidSession("cs_test_1", "pi_1")

		res, err := f.coordinator().VerifyCheckout(ctx, f.posterID, s.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusAssigned, res.JobStatus)
		assert.Equal(t, models.PaymentStatusPaid, res.PaymentStatus)
		assert.False(t, res.AlreadyProcessed)
	})

	t.Run("unpaid session", func(t *testing.T) {
		f := newFixture(t)
		s := f.paidSession("cs_test_1", "pi_1")
		s.PaymentStatus = "unpaid"

		_, err := f.coordinator().VerifyCheckout(ctx, f.posterID, s.ID)
		assert.Equal(t, KindValidation, KindOf(err))
	})

	t.Run("empty session id", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.coordinator().VerifyCheckout(ctx, f.posterID, " ")
		assert.Equal(t, KindValidation, KindOf(err))
	})

	t.Run("gateway failure", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.err = gateway.ErrGatewayUnreachable
		_, err := f.coordinator().VerifyCheckout(ctx, f.posterID, "cs_test_1")
		assert.Equal(t, KindUpstream, KindOf(err))
		assert.ErrorIs(t, err, gateway.ErrGatewayUnreachable)
	})

	t.Run("other user", func(t *testing.T) {
		f := newFixture(t)
		s := f.paidSession("cs_test_1", "pi_1")
		_, err := f.coordinator().VerifyCheckout(ctx, f.otherID, s.ID)
		assert.Equal(t, KindAuthorization, KindOf(err))
	})
}

func TestCoordinator_ConfirmPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("finalizes", func(t *testing.T) {
		f := newFixture(t)
		pi := f.succeededIntent("pi_1")

		res, err := f.coordinator().ConfirmPayment(ctx, f.posterID, pi.ID, f.job.ID, f.app.ID)
		require.NoError(t, err)
		assert.Equal(t, f.job.ID, res.JobID)
		assert.Equal(t, models.PaymentStatusPaid, f.store.Job(f.job.ID).PaymentStatus)
	})

	t.Run("intent not succeeded", func(t *testing.T) {
		f := newFixture(t)
		pi := f.succeededIntent("pi_1")
		pi.Status = "requires_payment_method"

		_, err := f.coordinator().ConfirmPayment(ctx, f.posterID, pi.ID, f.job.ID, f.app.ID)
		require.Error(t, err)
		assert.Equal(t, KindValidation, KindOf(err))
	})

	t.Run("intent belongs to another job", func(t *testing.T) {
		f := newFixture(t)
		pi := f.succeededIntent("pi_1")
		pi.Metadata = map[string]string{"job_id": uuid.NewString(), "application_id": f.app.ID.String()}

		_, err := f.coordinator().ConfirmPayment(ctx, f.posterID, pi.ID, f.job.ID, f.app.ID)
		assert.Equal(t, KindValidation, KindOf(err))
		assert.Equal(t, models.PaymentStatusUnpaid, f.store.Job(f.job.ID).PaymentStatus)
	})

	t.Run("missing fields", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.coordinator().ConfirmPayment(ctx, f.posterID, "", f.job.ID, f.app.ID)
		assert.Equal(t, KindValidation, KindOf(err))
	})

	t.Run("intent paid for another application", func(t *testing.T) {
		f := newFixture(t)
		pi := f.succeededIntent("pi_1")

		_, err := f.coordinator().ConfirmPayment(ctx, f.posterID, pi.ID, f.job.ID, f.otherApp.ID)
		require.Error(t, err)
		assert.Equal(t, KindValidation, KindOf(err))
		assert.Contains(t, err.Error(), "application")

		got := f.store.Job(f.job.ID)
		assert.Equal(t, models.PaymentStatusUnpaid, got.PaymentStatus)
		assert.Nil(t, got.AssignedTo)
		assert.Equal(t, models.ApplicationStatusPending, f.store.Application(f.otherApp.ID).Status)
	})

	t.Run("other user is rejected before the gateway is asked", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.err = errors.New("gateway down")

		_, err := f.coordinator().ConfirmPayment(ctx, f.otherID, "pi_1", f.job.ID, f.app.ID)
		assert.Equal(t, KindAuthorization, KindOf(err))
	})

	t.Run("unknown job", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.err = errors.New("gateway down")

		_, err := f.coordinator().ConfirmPayment(ctx, f.posterID, "pi_1", uuid.New(), f.app.ID)
		assert.Equal(t, KindNotFound, KindOf(err))
	})
}

func TestCoordinator_ReconcileBySessionID(t *testing.T) {
	f := newFixture(t)
	s := f.paidSession("cs_test_1", "pi_1")

	res, err := f.coordinator().Reconcile(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, res.PaymentStatus)
}

func TestCoordinator_RefundedJobIsNotRefinalized(t *testing.T) {
	f := newFixture(t)
	job := f.job
	job.PaymentStatus = models.PaymentStatusRefunded
	f.store.PutJob(job)
	pi := f.succeededIntent("pi_1")

	res, err := f.coordinator().Reconcile(context.Background(), pi.ID)
	require.NoError(t, err)
	assert.True(t, res.AlreadyProcessed)
	assert.Equal(t, models.PaymentStatusRefunded, res.PaymentStatus)
	assert.Zero(t, f.store.TransactionCount(f.job.ID))
}

func TestCoordinator_PublishFailureDoesNotFailFinalize(t *testing.T) {
	f := newFixture(t)
	f.recorder.Err = assert.AnError

	res, err := f.coordinator().Reconcile(context.Background(), f.succeededIntent("pi_1").ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, res.PaymentStatus)
}
