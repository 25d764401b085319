package http

import (
	"github.com/go-enroll-api/internal/application/enrollment"
	"github.com/go-enroll-api/internal/application/session"
	"github.com/go-enroll-api/internal/application/user"
	jwtinfra "github.com/go-enroll-api/internal/infrastructure/jwt"
	appmiddleware "github.com/go-enroll-api/internal/transport/http/middleware"
)

// Deps holds the services and auth collaborators the router serves.
type Deps struct {
	Enrollment  enrollment.Service
	Sessions    session.Service
	Users       user.Service
	JWTProvider *jwtinfra.Provider
	// SessionLookup lets the auth middleware reject revoked sessions. Optional.
	SessionLookup appmiddleware.SessionLookup
}
