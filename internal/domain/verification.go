package domain

import (
	"fmt"
	"time"
)

// Purpose discriminates what a verification code unlocks.
type Purpose string

const (
	PurposeRegister Purpose = "register"
	PurposeReset    Purpose = "reset"
)

// resetKeySuffix keeps reset tokens apart from registration tokens in the shared namespace.
const resetKeySuffix = ":reset"

// ParsePurpose maps the wire value onto a known purpose.
func ParsePurpose(s string) (Purpose, error) {
	switch p := Purpose(s); p {
	case PurposeRegister, PurposeReset:
		return p, nil
	}
	return "", fmt.Errorf("unknown purpose %q: %w", s, ErrValidation)
}

// TokenKey builds the store key for an email and purpose.
// Registration keys are the bare normalized email.
func TokenKey(email string, p Purpose) string {
	key := NormalizeEmail(email)
	if p == PurposeReset {
		key += resetKeySuffix
	}
	return key
}

// VerificationToken is a live one-time code. Only the SHA-256 digest of the code is kept.
type VerificationToken struct {
	Key      string    `json:"key" dynamodbav:"key"`
	Purpose  Purpose   `json:"purpose" dynamodbav:"purpose"`
	CodeHash string    `json:"code_hash" dynamodbav:"code_hash"`
	Attempts int       `json:"attempts" dynamodbav:"attempts"`
	IssuedAt time.Time `json:"issued_at" dynamodbav:"issued_at"`
}

// ConsumeResult is the outcome of presenting a code against the token store.
type ConsumeResult int

const (
	ConsumeNotFound ConsumeResult = iota
	ConsumeMatched
	ConsumeMismatched
	ConsumeExpired
	// ConsumeLocked means the attempt budget ran out and the token was discarded.
	ConsumeLocked
)

func (r ConsumeResult) String() string {
	switch r {
	case ConsumeMatched:
		return "matched"
	case ConsumeMismatched:
		return "mismatched"
	case ConsumeExpired:
		return "expired"
	case ConsumeLocked:
		return "locked"
	default:
		return "not_found"
	}
}
