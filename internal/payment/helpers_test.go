package payment

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mimanitas/settlement/internal/events"
	"github.com/mimanitas/settlement/internal/gateway"
	"github.com/mimanitas/settlement/internal/store/memstore"
	"github.com/mimanitas/settlement/pkg/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGateway serves canned objects and records creation calls.
type fakeGateway struct {
	mu       sync.Mutex
	intents  map[string]*gateway.PaymentIntent
	sessions map[string]*gateway.CheckoutSession
	err      error

	createdIntents  []gateway.CreatePaymentIntentParams
	createdSessions []gateway.CreateCheckoutSessionParams
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		intents:  make(map[string]*gateway.PaymentIntent),
		sessions: make(map[string]*gateway.CheckoutSession),
	}
}

func (g *fakeGateway) CreatePaymentIntent(_ context.Context, p gateway.CreatePaymentIntentParams) (*gateway.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.createdIntents = append(g.createdIntents, p)
	pi := &gateway.PaymentIntent{
		ID:           "pi_" + uuid.NewString()[:8],
		Status:       "requires_payment_method",
		Amount:       p.AmountCents,
		Currency:     p.Currency,
		ClientSecret: "secret_test",
		Metadata:     p.Metadata,
		TransferData: &gateway.TransferData{Destination: p.Destination, Amount: p.TransferAmountCents},
	}
	g.intents[pi.ID] = pi
	return pi, nil
}

func (g *fakeGateway) GetPaymentIntent(_ context.Context, id string) (*gateway.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	pi, ok := g.intents[id]
	if !ok {
		return nil, gateway.ErrGatewayResponse
	}
	return pi, nil
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, p gateway.CreateCheckoutSessionParams) (*gateway.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.createdSessions = append(g.createdSessions, p)
	var total int64
	for _, li := range p.LineItems {
		total += li.AmountCents
	}
	s := &gateway.CheckoutSession{
		ID:            "cs_test_" + uuid.NewString()[:8],
		URL:           "https://checkout.example.com/pay",
		Status:        "open",
		PaymentStatus: "unpaid",
		AmountTotal:   total,
		Currency:      p.Currency,
		Metadata:      p.Metadata,
	}
	g.sessions[s.ID] = s
	return s, nil
}

func (g *fakeGateway) GetCheckoutSession(_ context.Context, id string) (*gateway.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	s, ok := g.sessions[id]
	if !ok {
		return nil, gateway.ErrGatewayResponse
	}
	return s, nil
}

func (g *fakeGateway) putIntent(pi *gateway.PaymentIntent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[pi.ID] = pi
}

func (g *fakeGateway) putSession(s *gateway.CheckoutSession) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[s.ID] = s
}

// fixture is one open job priced at 50.00 with two applicants. The first applicant has an
// active payout account.
type fixture struct {
	store    *memstore.Store
	gateway  *fakeGateway
	recorder *events.Recorder

	posterID uuid.UUID
	workerID uuid.UUID
	otherID  uuid.UUID
	job      models.Job
	app      models.Application
	otherApp models.Application
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:    memstore.New(),
		gateway:  newFakeGateway(),
		recorder: &events.Recorder{},
		posterID: uuid.New(),
		workerID: uuid.New(),
		otherID:  uuid.New(),
	}
	now := time.Now().UTC()

	f.job = models.Job{
		ID:            uuid.New(),
		PosterID:      f.posterID,
		Title:         "Garden cleanup",
		PriceCents:    5000,
		Status:        models.JobStatusOpen,
		PaymentStatus: models.PaymentStatusUnpaid,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	f.app = models.Application{
		ID:          uuid.New(),
		JobID:       f.job.ID,
		ApplicantID: f.workerID,
		Status:      models.ApplicationStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	f.otherApp = models.Application{
		ID:          uuid.New(),
		JobID:       f.job.ID,
		ApplicantID: f.otherID,
		Status:      models.ApplicationStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	f.store.PutJob(f.job)
	f.store.PutApplication(f.app)
	f.store.PutApplication(f.otherApp)
	f.store.PutPayoutAccount(models.PayoutAccount{
		ID:                 uuid.New(),
		ProfileID:          f.workerID,
		StripeAccountID:    "acct_worker",
		OnboardingComplete: true,
		PayoutsEnabled:     true,
		ChargesEnabled:     true,
		DetailsSubmitted:   true,
	})
	return f
}

func (f *fixture) settings() Settings {
	return Settings{FeePercent: 10, Currency: "eur", Platform: "mimanitas"}
}

func (f *fixture) coordinator() *Coordinator {
	return NewCoordinator(f.store, f.gateway, f.recorder, f.settings(), discardLogger())
}

func (f *fixture) compensator() *Compensator {
	return NewCompensator(f.store, f.recorder, discardLogger())
}

func (f *fixture) checkout() *Checkout {
	return NewCheckout(f.store, f.gateway, f.settings(), discardLogger())
}

func (f *fixture) metadata() map[string]string {
	return map[string]string{
		"job_id":         f.job.ID.String(),
		"application_id": f.app.ID.String(),
	}
}

// succeededIntent registers a paid intent for the fixture job with the gateway.
func (f *fixture) succeededIntent(id string) *gateway.PaymentIntent {
	pi := &gateway.PaymentIntent{
		ID:           id,
		Status:       gateway.IntentStatusSucceeded,
		Amount:       5500,
		Currency:     "eur",
		Metadata:     f.metadata(),
		TransferData: &gateway.TransferData{Destination: "acct_worker", Amount: 5000},
	}
	f.gateway.putIntent(pi)
	return pi
}

// paidSession registers a paid checkout session wrapping intent piID.
func (f *fixture) paidSession(id, piID string) *gateway.CheckoutSession {
	s := &gateway.CheckoutSession{
		ID:            id,
		Status:        "complete",
		PaymentStatus: gateway.SessionPaymentStatusPaid,
		AmountTotal:   5500,
		Currency:      "eur",
		Metadata:      f.metadata(),
		PaymentIntent: &gateway.PaymentIntentRef{ID: piID},
	}
	f.gateway.putSession(s)
	return s
}

func (f *fixture) pendingIntent(stripeID string) {
	f.pendingIntentAt(stripeID, time.Time{})
}

func (f *fixture) pendingIntentAt(stripeID string, created time.Time) {
	id := stripeID
	f.store.PutPaymentIntent(models.PaymentIntent{
		ID:                    uuid.New(),
		JobID:                 f.job.ID,
		StripePaymentIntentID: &id,
		AmountCents:           5000,
		PlatformFeeCents:      500,
		Currency:              "eur",
		Status:                models.IntentStatusRequiresPaymentMethod,
		CreatedAt:             created,
		UpdatedAt:             created,
	})
}

// openCheckout creates a hosted checkout session for the fixture job. Its intent record
// holds only the session id, as the gateway creates the payment intent later.
func (f *fixture) openCheckout(t *testing.T) *gateway.CheckoutSession {
	t.Helper()
	ctx := context.Background()
	resp, err := f.checkout().CreateCheckoutSession(ctx, f.posterID, f.job.ID, f.app.ID, "https://app.example.com/ok", "https://app.example.com/cancel")
	require.NoError(t, err)
	s, err := f.gateway.GetCheckoutSession(ctx, resp.SessionID)
	require.NoError(t, err)
	return s
}

// checkoutIntent is the payment intent behind the last checkout session, carrying the
// metadata that session was created with.
func (f *fixture) checkoutIntent(id, status string) *gateway.PaymentIntent {
	f.gateway.mu.Lock()
	params := f.gateway.createdSessions[len(f.gateway.createdSessions)-1]
	f.gateway.mu.Unlock()

	pi := &gateway.PaymentIntent{
		ID:           id,
		Status:       status,
		Amount:       5500,
		Currency:     "eur",
		Metadata:     params.IntentMetadata,
		TransferData: &gateway.TransferData{Destination: params.Destination, Amount: params.TransferAmountCents},
	}
	f.gateway.putIntent(pi)
	return pi
}

func (f *fixture) assign() {
	job := f.job
	job.Status = models.JobStatusAssigned
	f.store.PutJob(job)
}
