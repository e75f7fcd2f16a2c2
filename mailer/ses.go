package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"
)

const charsetUTF8 = "UTF-8"

// SESConfig holds the Amazon SES account used for delivery.
//
// Empty credentials fall back to the default AWS credential chain.
type SESConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	From            string
}

type sesAPI interface {
	SendEmailWithContext(ctx aws.Context, input *ses.SendEmailInput, opts ...request.Option) (*ses.SendEmailOutput, error)
}

// SESSender delivers messages through Amazon SES.
type SESSender struct {
	client sesAPI
	from   string
}

// NewSESSender builds an SES client for cfg.Region. Region and From are required.
func NewSESSender(cfg SESConfig) (*SESSender, error) {
	if strings.TrimSpace(cfg.Region) == "" {
		return nil, errors.New("ses region is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("ses sender address is required")
	}

	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create SES session: %w", err)
	}

	return &SESSender{client: ses.New(sess), from: cfg.From}, nil
}

func (s *SESSender) Send(ctx context.Context, msg Message) (Delivery, error) {
	if msg.To == "" {
		return Delivery{}, errors.New("ses: empty recipient")
	}

	out, err := s.client.SendEmailWithContext(ctx, &ses.SendEmailInput{
		Source: aws.String(s.from),
		Destination: &ses.Destination{
			ToAddresses: []*string{aws.String(msg.To)},
		},
		Message: &ses.Message{
			Subject: &ses.Content{Data: aws.String(msg.Subject), Charset: aws.String(charsetUTF8)},
			Body: &ses.Body{
				Text: &ses.Content{Data: aws.String(msg.Body), Charset: aws.String(charsetUTF8)},
			},
		},
	})
	if err != nil {
		return Delivery{}, fmt.Errorf("ses send: %w", err)
	}

	return Delivery{MessageID: aws.StringValue(out.MessageId)}, nil
}
