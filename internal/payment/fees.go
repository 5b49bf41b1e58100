package payment

import "fmt"

// DefaultFeePercent is the platform commission charged on top of the job price.
const DefaultFeePercent int64 = 10

// Amounts splits a payment between the worker and the platform. The worker receives
// JobCents; the payer is charged TotalCents.
type Amounts struct {
	JobCents   int64
	FeeCents   int64
	TotalCents int64
}

// ComputeFees applies percent to jobCents, rounding the fee half up to the nearest cent.
func ComputeFees(jobCents, percent int64) Amounts {
	fee := (jobCents*percent + 50) / 100
	return Amounts{
		JobCents:   jobCents,
		FeeCents:   fee,
		TotalCents: jobCents + fee,
	}
}

// FormatCents renders an amount as a decimal string, e.g. 5500 -> "55.00".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
