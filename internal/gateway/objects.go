package gateway

import (
	"bytes"
	"encoding/json"
)

// Gateway object states used by the settlement flow.
const (
	SessionPaymentStatusPaid = "paid"
	IntentStatusSucceeded    = "succeeded"
)

// PaymentIntent is the gateway's record of a single charge attempt.
type PaymentIntent struct {
	ID               string            `json:"id"`
	Status           string            `json:"status"`
	Amount           int64             `json:"amount"`
	Currency         string            `json:"currency"`
	ClientSecret     string            `json:"client_secret"`
	Metadata         map[string]string `json:"metadata"`
	TransferData     *TransferData     `json:"transfer_data"`
	LastPaymentError *PaymentError     `json:"last_payment_error"`
}

type TransferData struct {
	Destination string `json:"destination"`
	Amount      int64  `json:"amount"`
}

type PaymentError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TransferAmount returns the amount routed to the connected account, or 0 when the
// gateway did not report one.
func (pi *PaymentIntent) TransferAmount() int64 {
	if pi == nil || pi.TransferData == nil {
		return 0
	}
	return pi.TransferData.Amount
}

// CheckoutSession is a hosted payment page. PaymentIntent is populated when the session is
// fetched with expansion, or carries only the id otherwise.
type CheckoutSession struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	Status        string            `json:"status"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
	PaymentIntent *PaymentIntentRef `json:"payment_intent"`
}

// PaymentIntentID returns the session's payment intent id, if any.
func (s *CheckoutSession) PaymentIntentID() string {
	if s.PaymentIntent == nil {
		return ""
	}
	return s.PaymentIntent.ID
}

// PaymentIntentRef decodes either a bare id string or an expanded PaymentIntent object.
type PaymentIntentRef struct {
	ID       string
	Expanded *PaymentIntent
}

func (r *PaymentIntentRef) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &r.ID)
	}
	var pi PaymentIntent
	if err := json.Unmarshal(data, &pi); err != nil {
		return err
	}
	r.ID = pi.ID
	r.Expanded = &pi
	return nil
}

func (r PaymentIntentRef) MarshalJSON() ([]byte, error) {
	if r.Expanded != nil {
		return json.Marshal(r.Expanded)
	}
	return json.Marshal(r.ID)
}

// Account is a connected payout account.
type Account struct {
	ID               string `json:"id"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
}

// Dispute is a chargeback opened by the paying customer's bank.
type Dispute struct {
	ID            string `json:"id"`
	Charge        string `json:"charge"`
	PaymentIntent string `json:"payment_intent"`
	Amount        int64  `json:"amount"`
	Reason        string `json:"reason"`
	Status        string `json:"status"`
}

// Payout moves funds from a connected account to its bank.
type Payout struct {
	ID             string `json:"id"`
	Amount         int64  `json:"amount"`
	Status         string `json:"status"`
	FailureCode    string `json:"failure_code"`
	FailureMessage string `json:"failure_message"`
}
