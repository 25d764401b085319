package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-enroll-api/internal/application/enrollment"
	"github.com/go-enroll-api/internal/domain"
)

// VerificationHandler serves the request/verify halves of both code-gated flows.
type VerificationHandler struct {
	svc enrollment.Service
}

func NewVerificationHandler(svc enrollment.Service) *VerificationHandler {
	return &VerificationHandler{svc: svc}
}

// requestCodeBody carries the registration profile; reset only reads email.
type requestCodeBody struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type verifyCodeBody struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

func (h *VerificationHandler) Request(w http.ResponseWriter, r *http.Request) {
	purpose, err := domain.ParsePurpose(chi.URLParam(r, "purpose"))
	if err != nil {
		httpError(w, err)
		return
	}
	var body requestCodeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req := domain.CodeRequest{Email: body.Email, Purpose: purpose}
	if purpose == domain.PurposeRegister {
		req.Profile = &domain.RegistrationRequest{
			Email:     body.Email,
			Password:  body.Password,
			FirstName: body.FirstName,
			LastName:  body.LastName,
		}
	}
	if err := h.svc.RequestCode(r.Context(), req); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "verification code sent"})
}

func (h *VerificationHandler) Verify(w http.ResponseWriter, r *http.Request) {
	purpose, err := domain.ParsePurpose(chi.URLParam(r, "purpose"))
	if err != nil {
		httpError(w, err)
		return
	}
	var body verifyCodeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.svc.VerifyCode(r.Context(), domain.CodeVerification{
		Email:       body.Email,
		Purpose:     purpose,
		Code:        body.Code,
		NewPassword: body.NewPassword,
	})
	if err != nil {
		httpError(w, err)
		return
	}
	if purpose == domain.PurposeRegister && res != nil {
		writeJSON(w, http.StatusCreated, authEnvelope(res, "registration complete"))
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "password updated"})
}
