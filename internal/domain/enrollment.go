package domain

import "time"

// RegistrationRequest is the candidate profile submitted when asking for a registration code.
type RegistrationRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
}

// PendingEnrollment holds a candidate account until its code is verified.
// ExpiresAt is checked by the orchestrator, not by the cache.
type PendingEnrollment struct {
	Email        string    `json:"email" dynamodbav:"email"`
	FirstName    string    `json:"first_name" dynamodbav:"first_name"`
	LastName     string    `json:"last_name" dynamodbav:"last_name"`
	PasswordHash string    `json:"password_hash" dynamodbav:"password_hash"`
	RequestedAt  time.Time `json:"requested_at" dynamodbav:"requested_at"`
	ExpiresAt    time.Time `json:"expires_at" dynamodbav:"expires_at"`
}

// CodeRequest is the purpose-agnostic request-code input. Profile is only read for registration.
type CodeRequest struct {
	Email   string
	Purpose Purpose
	Profile *RegistrationRequest
}

// CodeVerification is the purpose-agnostic verify input. NewPassword is only read for reset.
type CodeVerification struct {
	Email       string
	Purpose     Purpose
	Code        string
	NewPassword string
}
