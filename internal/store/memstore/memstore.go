// Package memstore is an in-memory store.Store. It applies the same guarded transitions as
// the Postgres implementation under a single mutex and is used by service and handler tests.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mimanitas/settlement/internal/store"
	"github.com/mimanitas/settlement/pkg/models"
)

// Store holds every table in maps keyed by primary id.
type Store struct {
	mu sync.Mutex

	PingErr error

	jobs         map[uuid.UUID]*models.Job
	applications map[uuid.UUID]*models.Application
	intents      map[uuid.UUID]*models.PaymentIntent
	transactions map[uuid.UUID]*models.Transaction // by job id
	accounts     map[uuid.UUID]*models.PayoutAccount
	withdrawals  map[uuid.UUID]*models.Withdrawal
	apiKeys      map[uuid.UUID]*models.APIKey

	finalizeCalls int
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		jobs:         make(map[uuid.UUID]*models.Job),
		applications: make(map[uuid.UUID]*models.Application),
		intents:      make(map[uuid.UUID]*models.PaymentIntent),
		transactions: make(map[uuid.UUID]*models.Transaction),
		accounts:     make(map[uuid.UUID]*models.PayoutAccount),
		withdrawals:  make(map[uuid.UUID]*models.Withdrawal),
		apiKeys:      make(map[uuid.UUID]*models.APIKey),
	}
}

var _ store.Store = (*Store)(nil)

// --- Seeding & inspection ---

func (s *Store) PutJob(j models.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = &j
}

func (s *Store) PutApplication(a models.Application) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applications[a.ID] = &a
}

func (s *Store) PutPayoutAccount(a models.PayoutAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = &a
}

func (s *Store) PutWithdrawal(w models.Withdrawal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.withdrawals[w.ID] = &w
}

func (s *Store) PutPaymentIntent(pi models.PaymentIntent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents[pi.ID] = &pi
}

// Job returns a copy of the job, or nil.
func (s *Store) Job(id uuid.UUID) *models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil
	}
	cp := *j
	return &cp
}

func (s *Store) Application(id uuid.UUID) *models.Application {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.applications[id]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

func (s *Store) PayoutAccount(profileID uuid.UUID) *models.PayoutAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ProfileID == profileID {
			cp := *a
			return &cp
		}
	}
	return nil
}

func (s *Store) Withdrawal(payoutID string) *models.Withdrawal {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.withdrawals {
		if w.StripePayoutID == payoutID {
			cp := *w
			return &cp
		}
	}
	return nil
}

// TransactionCount returns how many escrow transactions exist for the job.
func (s *Store) TransactionCount(jobID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[jobID]; ok {
		return 1
	}
	return 0
}

// FinalizeCalls counts FinalizeJob invocations, including ones that lost the guard.
func (s *Store) FinalizeCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalizeCalls
}

func (s *Store) Ping(_ context.Context) error { return s.PingErr }

// --- API Keys ---

func (s *Store) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.APIKey
	for _, k := range s.apiKeys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) UpdateAPIKeyLastUsed(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.apiKeys[id]; ok {
		now := time.Now()
		k.LastUsedAt = &now
	}
	return nil
}

func (s *Store) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apiKeys[key.ID]; ok {
		return store.ErrDuplicateKey
	}
	cp := *key
	s.apiKeys[key.ID] = &cp
	return nil
}

// --- Jobs & Applications ---

func (s *Store) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	if j := s.Job(id); j != nil {
		return j, nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetApplication(_ context.Context, id uuid.UUID) (*models.Application, error) {
	if a := s.Application(id); a != nil {
		return a, nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetTransactionByJobID(_ context.Context, jobID uuid.UUID) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[jobID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// --- Payment Intents ---

func (s *Store) CreatePaymentIntent(_ context.Context, pi *models.PaymentIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.intents {
		if sameRef(existing.StripePaymentIntentID, pi.StripePaymentIntentID) ||
			sameRef(existing.CheckoutSessionID, pi.CheckoutSessionID) {
			return store.ErrDuplicateKey
		}
	}
	cp := *pi
	s.intents[pi.ID] = &cp
	return nil
}

func (s *Store) GetPaymentIntentByStripeID(_ context.Context, stripeID string) (*models.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pi := s.intentByStripeID(stripeID); pi != nil {
		cp := *pi
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetPaymentIntentBySessionID(_ context.Context, sessionID string) (*models.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pi := range s.intents {
		if pi.CheckoutSessionID != nil && *pi.CheckoutSessionID == sessionID {
			cp := *pi
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) MarkPaymentIntentSucceeded(_ context.Context, stripeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pi := s.intentByStripeID(stripeID)
	if pi == nil {
		return store.ErrNotFound
	}
	pi.Status = models.IntentStatusSucceeded
	pi.UpdatedAt = time.Now()
	return nil
}

func (s *Store) CancelPaymentIntent(_ context.Context, stripeID string, jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pi := s.intentByStripeID(stripeID)
	if pi == nil && jobID != uuid.Nil {
		if pi = s.newestUnlinked(jobID); pi != nil {
			id := stripeID
			pi.StripePaymentIntentID = &id
		}
	}
	if pi == nil || pi.Status == models.IntentStatusSucceeded {
		return store.ErrNotFound
	}
	pi.Status = models.IntentStatusCanceled
	pi.UpdatedAt = time.Now()
	return nil
}

// --- Finalization ---

func (s *Store) FinalizeJob(_ context.Context, p store.FinalizeParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalizeCalls++

	job, ok := s.jobs[p.JobID]
	if !ok || job.PaymentStatus != models.PaymentStatusUnpaid {
		return store.ErrAlreadyFinalized
	}
	app, ok := s.applications[p.ApplicationID]
	if !ok || app.JobID != p.JobID {
		return store.ErrNotFound
	}

	reference := p.StripePaymentIntentID
	if reference == "" {
		reference = p.CheckoutSessionID
	}
	now := time.Now()

	worker := p.WorkerID
	job.Status = models.JobStatusAssigned
	job.PaymentStatus = models.PaymentStatusPaid
	job.AssignedTo = &worker
	job.PaidPaymentIntentID = &reference
	job.UpdatedAt = now

	var matched []*models.PaymentIntent
	for _, pi := range s.intents {
		if pi.JobID != p.JobID {
			continue
		}
		if (p.StripePaymentIntentID != "" && sameRef(pi.StripePaymentIntentID, &p.StripePaymentIntentID)) ||
			(p.CheckoutSessionID != "" && sameRef(pi.CheckoutSessionID, &p.CheckoutSessionID)) {
			matched = append(matched, pi)
		}
	}
	if len(matched) == 0 {
		if pi := s.newestUnlinked(p.JobID); pi != nil {
			matched = append(matched, pi)
		}
	}
	for _, pi := range matched {
		pi.Status = models.IntentStatusSucceeded
		if pi.StripePaymentIntentID == nil && p.StripePaymentIntentID != "" {
			id := p.StripePaymentIntentID
			pi.StripePaymentIntentID = &id
		}
		pi.UpdatedAt = now
	}

	for _, a := range s.applications {
		if a.JobID != p.JobID {
			continue
		}
		switch {
		case a.ID == p.ApplicationID:
			a.Status = models.ApplicationStatusAccepted
			a.UpdatedAt = now
		case a.Status == models.ApplicationStatusPending:
			a.Status = models.ApplicationStatusRejected
			a.UpdatedAt = now
		}
	}

	if _, exists := s.transactions[p.JobID]; !exists {
		s.transactions[p.JobID] = &models.Transaction{
			ID:                    uuid.New(),
			JobID:                 p.JobID,
			AmountCents:           p.AmountCents,
			PlatformFeeCents:      p.PlatformFeeCents,
			Currency:              p.Currency,
			Status:                models.TransactionStatusHeld,
			PaymentProvider:       "stripe",
			ProviderTransactionID: reference,
			StripePaymentIntentID: reference,
			HeldAt:                p.HeldAt,
			CreatedAt:             now,
			UpdatedAt:             now,
		}
	}
	return nil
}

// RevertJobPayment reopens unpaid jobs only; refunded jobs keep their dispute state.
func (s *Store) RevertJobPayment(_ context.Context, jobID uuid.UUID, stripeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok || job.PaymentStatus != models.PaymentStatusUnpaid {
		return false, nil
	}
	failing := s.intentByStripeID(stripeID)
	for _, pi := range s.intents {
		if pi == failing || pi.JobID != jobID || !isOpen(pi) {
			continue
		}
		if failing == nil || !pi.CreatedAt.Before(failing.CreatedAt) {
			return false, nil
		}
	}

	job.Status = models.JobStatusOpen
	job.PaymentStatus = models.PaymentStatusUnpaid
	job.AssignedTo = nil
	job.UpdatedAt = time.Now()
	return true, nil
}

func (s *Store) RecordDispute(_ context.Context, jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return store.ErrNotFound
	}
	job.PaymentStatus = models.PaymentStatusRefunded
	job.UpdatedAt = time.Now()
	if t, ok := s.transactions[jobID]; ok {
		t.Status = models.TransactionStatusDisputed
		t.UpdatedAt = time.Now()
	}
	return nil
}

// --- Payout Accounts ---

func (s *Store) GetPayoutAccountByProfile(_ context.Context, profileID uuid.UUID) (*models.PayoutAccount, error) {
	if a := s.PayoutAccount(profileID); a != nil {
		return a, nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdatePayoutAccountStatus(_ context.Context, stripeAccountID string, st models.AccountStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.StripeAccountID == stripeAccountID {
			a.PayoutsEnabled = st.PayoutsEnabled
			a.ChargesEnabled = st.ChargesEnabled
			a.DetailsSubmitted = st.DetailsSubmitted
			a.OnboardingComplete = st.DetailsSubmitted
			a.UpdatedAt = time.Now()
			return nil
		}
	}
	return store.ErrNotFound
}

// --- Withdrawals ---

func (s *Store) MarkWithdrawalPaid(_ context.Context, stripePayoutID string, paidAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.withdrawalByPayoutID(stripePayoutID)
	if w == nil {
		return store.ErrNotFound
	}
	w.Status = models.WithdrawalStatusPaid
	w.PaidAt = &paidAt
	return nil
}

func (s *Store) MarkWithdrawalFailed(_ context.Context, stripePayoutID, code, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.withdrawalByPayoutID(stripePayoutID)
	if w == nil {
		return store.ErrNotFound
	}
	w.Status = models.WithdrawalStatusFailed
	w.FailureCode = &code
	w.FailureMessage = &message
	return nil
}

// --- Helpers (caller holds mu) ---

func (s *Store) intentByStripeID(stripeID string) *models.PaymentIntent {
	for _, pi := range s.intents {
		if pi.StripePaymentIntentID != nil && *pi.StripePaymentIntentID == stripeID {
			return pi
		}
	}
	return nil
}

// newestUnlinked is the latest open checkout record of the job still missing its
// payment intent id.
func (s *Store) newestUnlinked(jobID uuid.UUID) *models.PaymentIntent {
	var newest *models.PaymentIntent
	for _, pi := range s.intents {
		if pi.JobID != jobID || pi.StripePaymentIntentID != nil || !isOpen(pi) {
			continue
		}
		if newest == nil || pi.CreatedAt.After(newest.CreatedAt) {
			newest = pi
		}
	}
	return newest
}

func (s *Store) withdrawalByPayoutID(payoutID string) *models.Withdrawal {
	for _, w := range s.withdrawals {
		if w.StripePayoutID == payoutID {
			return w
		}
	}
	return nil
}

func isOpen(pi *models.PaymentIntent) bool {
	return pi.Status != models.IntentStatusCanceled && pi.Status != models.IntentStatusSucceeded
}

func sameRef(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}
