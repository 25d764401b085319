package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-enroll-api/internal/application/enrollment"
	"github.com/go-enroll-api/internal/config"
	"github.com/go-enroll-api/internal/domain"
	"github.com/go-enroll-api/internal/infrastructure/dynamo"
	redisinfra "github.com/go-enroll-api/internal/infrastructure/redis"
	s3infra "github.com/go-enroll-api/internal/infrastructure/s3"
	"github.com/go-enroll-api/internal/infrastructure/smtp"
	"github.com/go-enroll-api/internal/infrastructure/sns"
	"github.com/go-enroll-api/internal/pkg/expiring"
)

const (
	tokensStoreName  = "verification_tokens"
	pendingStoreName = "pending_enrollments"
)

// expiringStores holds the token store and pending-enrollment cache backends.
type expiringStores struct {
	Tokens  expiring.Store[domain.VerificationToken]
	Pending expiring.Store[domain.PendingEnrollment]
	close   func() error
}

func (s *expiringStores) Close() {
	if s.close != nil {
		_ = s.close()
	}
}

func openStores(ctx context.Context, cfg *config.Config, dynamoClient *dynamodb.Client) (*expiringStores, error) {
	switch cfg.ExpiringBackend {
	case config.BackendRedis:
		client, err := redisinfra.NewClient(cfg)
		if err != nil {
			return nil, err
		}
		return &expiringStores{
			Tokens:  redisinfra.NewExpiringStore[domain.VerificationToken](client, "otp:", cfg.ExpiringRetention),
			Pending: redisinfra.NewExpiringStore[domain.PendingEnrollment](client, "pending:", cfg.ExpiringRetention),
			close:   client.Close,
		}, nil

	case config.BackendDynamo:
		return &expiringStores{
			Tokens:  dynamo.NewExpiringStore[domain.VerificationToken](dynamoClient, cfg.DynamoTables.Tokens, cfg.ExpiringRetention),
			Pending: dynamo.NewExpiringStore[domain.PendingEnrollment](dynamoClient, cfg.DynamoTables.Pending, cfg.ExpiringRetention),
		}, nil

	default:
		tokenSnap, err := snapshotter(ctx, cfg, tokensStoreName)
		if err != nil {
			return nil, err
		}
		pendingSnap, err := snapshotter(ctx, cfg, pendingStoreName)
		if err != nil {
			return nil, err
		}
		tokens := expiring.NewMemoryStore[domain.VerificationToken](tokensStoreName, tokenSnap)
		pending := expiring.NewMemoryStore[domain.PendingEnrollment](pendingStoreName, pendingSnap)
		if err := tokens.Restore(ctx); err != nil {
			return nil, err
		}
		if err := pending.Restore(ctx); err != nil {
			return nil, err
		}
		return &expiringStores{Tokens: tokens, Pending: pending}, nil
	}
}

// snapshotter picks the sink for one memory store, or nil for none.
func snapshotter(ctx context.Context, cfg *config.Config, name string) (expiring.Snapshotter, error) {
	switch cfg.SnapshotSink {
	case config.SnapshotS3:
		client, err := s3infra.NewClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s3infra.NewSnapshotter(client, cfg.SnapshotBucket, "snapshots/"+name+".json"), nil
	case config.SnapshotFile:
		return expiring.NewFileSnapshotter(filepath.Join(cfg.SnapshotDir, name+".json")), nil
	default:
		return nil, nil
	}
}

func newNotifier(ctx context.Context, cfg *config.Config) (enrollment.Notifier, error) {
	switch cfg.DeliveryChannel {
	case config.DeliverySNS:
		return sns.NewCodePublisher(ctx, cfg)
	default:
		return smtp.NewCodeMailer(smtp.NewMailer(cfg), fmt.Sprintf("%d minutes", int(cfg.OTP.TTL.Minutes()))), nil
	}
}
