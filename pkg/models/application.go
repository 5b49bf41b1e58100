package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ApplicationStatusPending  = "pending"
	ApplicationStatusAccepted = "accepted"
	ApplicationStatusRejected = "rejected"
)

// Application is a worker's bid on a job. At most one per job is ever accepted.
type Application struct {
	ID          uuid.UUID `db:"id"           json:"id"`
	JobID       uuid.UUID `db:"job_id"       json:"job_id"`
	ApplicantID uuid.UUID `db:"applicant_id" json:"applicant_id"`
	Status      string    `db:"status"       json:"status"`
	CreatedAt   time.Time `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"   json:"updated_at"`
}
