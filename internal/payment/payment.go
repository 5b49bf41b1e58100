// Package payment implements escrow settlement: finalizing paid jobs, compensating failed or
// disputed payments, and tracking payouts and connected accounts.
package payment

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mimanitas/settlement/internal/events"
)

// Settings are the commercial parameters shared by the payment services.
type Settings struct {
	FeePercent int64
	Currency   string
	// Platform is stamped into gateway metadata so shared gateway accounts can tell
	// marketplaces apart.
	Platform string
}

func (s Settings) withDefaults() Settings {
	if s.Currency == "" {
		s.Currency = "eur"
	}
	if s.Platform == "" {
		s.Platform = "mimanitas"
	}
	return s
}

// Metadata keys written on gateway objects at creation and read back on callbacks.
const (
	metaJobID         = "job_id"
	metaApplicationID = "application_id"
	metaHelperID      = "helper_id"
	metaSeekerID      = "seeker_id"
	metaPlatform      = "platform"
)

// parseRefs reads the job and application ids from gateway metadata. Absent or malformed
// values come back as uuid.Nil.
func parseRefs(md map[string]string) (jobID, applicationID uuid.UUID) {
	jobID, _ = uuid.Parse(md[metaJobID])
	applicationID, _ = uuid.Parse(md[metaApplicationID])
	return jobID, applicationID
}

// publish emits e and logs, rather than returns, any failure. Settlement state is already
// committed when events go out.
func publish(ctx context.Context, pub events.Publisher, logger *slog.Logger, e events.Event) {
	if err := pub.Publish(ctx, e); err != nil {
		logger.Warn("failed to publish event",
			slog.String("type", e.Type),
			slog.String("reference", e.Reference),
			slog.Any("error", err))
	}
}

type clock func() time.Time
