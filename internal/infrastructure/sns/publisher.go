package sns

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/go-enroll-api/internal/config"
	"github.com/go-enroll-api/internal/domain"
	"github.com/go-enroll-api/internal/infrastructure/awsconf"
)

// CodeEvent is the message a downstream sender receives for each verification code.
type CodeEvent struct {
	Email   string         `json:"email"`
	Code    string         `json:"code"`
	Purpose domain.Purpose `json:"purpose"`
}

type publisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// CodePublisher hands verification codes to an SNS topic instead of mailing them directly.
type CodePublisher struct {
	client   publisher
	topicARN string
}

func NewCodePublisher(ctx context.Context, cfg *config.Config) (*CodePublisher, error) {
	awsCfg, err := awsconf.Load(ctx, cfg, cfg.SNSRegion)
	if err != nil {
		return nil, fmt.Errorf("sns client: %w", err)
	}
	client := sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		o.BaseEndpoint = awsconf.Endpoint(cfg)
	})
	return &CodePublisher{client: client, topicARN: cfg.SNSTopicARN}, nil
}

func (p *CodePublisher) SendCode(ctx context.Context, email, code string, purpose domain.Purpose) error {
	body, err := json.Marshal(CodeEvent{Email: email, Code: code, Purpose: purpose})
	if err != nil {
		return err
	}
	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"purpose": {DataType: aws.String("String"), StringValue: aws.String(string(purpose))},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}
