package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-enroll-api/internal/application/enrollment"
	"github.com/go-enroll-api/internal/application/session"
	"github.com/go-enroll-api/internal/application/user"
	"github.com/go-enroll-api/internal/application/verification"
	"github.com/go-enroll-api/internal/config"
	"github.com/go-enroll-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-enroll-api/internal/infrastructure/jwt"
	"github.com/go-enroll-api/internal/pkg/expiring"
	transporthttp "github.com/go-enroll-api/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		log.Fatalf("dynamodb: %v", err)
	}
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables, cfg.ExpiringBackend == config.BackendDynamo)

	jwtProvider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		log.Fatalf("JWT provider not available: %v", err)
	}

	stores, err := openStores(ctx, cfg, dynamoClient)
	if err != nil {
		log.Fatalf("expiring stores: %v", err)
	}
	defer stores.Close()

	notifier, err := newNotifier(ctx, cfg)
	if err != nil {
		log.Fatalf("delivery channel: %v", err)
	}

	userRepo := dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users)
	sessionRepo := dynamo.NewSessionRepo(dynamoClient, cfg.DynamoTables.Sessions)

	sessionSvc := session.NewService(session.ServiceDeps{
		SessionRepo:     sessionRepo,
		UserRepo:        userRepo,
		JWTProvider:     jwtProvider,
		RefreshTokenDur: cfg.RefreshTokenExpiry,
	})
	enrollmentSvc := enrollment.NewService(enrollment.ServiceDeps{
		Tokens:     verification.NewTokenStore(stores.Tokens, cfg.OTP.MaxAttempts),
		Pending:    enrollment.NewPendingCache(stores.Pending),
		UserRepo:   userRepo,
		Sessions:   sessionSvc,
		Notifier:   notifier,
		CodeLength: cfg.OTP.Length,
		TokenTTL:   cfg.OTP.TTL,
		PendingTTL: cfg.OTP.PendingTTL,
	})
	userSvc := user.NewService(user.ServiceDeps{UserRepo: userRepo, SessionRepo: sessionRepo})

	sweeper := expiring.NewSweepLoop(cfg.OTP.SweepInterval,
		expiring.Target{Name: "verification_tokens", Store: stores.Tokens},
		expiring.Target{Name: "pending_enrollments", Store: stores.Pending},
	)
	go sweeper.Run(ctx)

	router := transporthttp.NewRouter(ctx, cfg, &transporthttp.Deps{
		Enrollment:    enrollmentSvc,
		Sessions:      sessionSvc,
		Users:         userSvc,
		JWTProvider:   jwtProvider,
		SessionLookup: sessionRepo,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s, expiring=%s, delivery=%s)",
			cfg.AppPort, cfg.AppEnv, cfg.ExpiringBackend, cfg.DeliveryChannel)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("forced shutdown: %v", err)
		os.Exit(1)
	}
	log.Println("Server stopped")
}
