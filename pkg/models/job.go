// Package models contains the persisted records shared across the settlement service.
package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusOpen      = "open"
	JobStatusAssigned  = "assigned"
	JobStatusCompleted = "completed"
	JobStatusCancelled = "cancelled"
)

const (
	PaymentStatusUnpaid   = "unpaid"
	PaymentStatusPaid     = "paid"
	PaymentStatusRefunded = "refunded"
)

// Job is a poster's request for work. Only finalization moves it to assigned/paid;
// only compensation moves it back.
type Job struct {
	ID                  uuid.UUID  `db:"id"                     json:"id"`
	PosterID            uuid.UUID  `db:"poster_id"              json:"poster_id"`
	Title               string     `db:"title"                  json:"title"`
	PriceCents          int64      `db:"price_amount"           json:"price_cents"`
	Status              string     `db:"status"                 json:"status"`
	PaymentStatus       string     `db:"payment_status"         json:"payment_status"`
	AssignedTo          *uuid.UUID `db:"assigned_to"            json:"assigned_to,omitempty"`
	PaidPaymentIntentID *string    `db:"paid_payment_intent_id" json:"paid_payment_intent_id,omitempty"`
	CreatedAt           time.Time  `db:"created_at"             json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"             json:"updated_at"`
}

// IsPaid reports whether the job has left the unpaid state.
func (j *Job) IsPaid() bool {
	return j.PaymentStatus != PaymentStatusUnpaid
}
