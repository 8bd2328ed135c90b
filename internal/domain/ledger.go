package domain

import "time"

// LedgerEntry records a submitted expense so a month is not submitted twice.
type LedgerEntry struct {
	Plugin        string    `json:"plugin"`
	Month         string    `json:"month"`
	TransactionID string    `json:"transaction_id"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	ReceiptError  string    `json:"receipt_error,omitempty"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// Submission is the backend's answer to one expense submission.
type Submission struct {
	TransactionID   string
	ReceiptAttached bool
}
