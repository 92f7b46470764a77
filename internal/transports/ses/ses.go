// Package ses delivers encoded messages through Amazon SES raw sends.
package ses

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/smithy-go"

	"github.com/lattiq/mailmerge/internal/core"
)

const name = "ses"

// API is the subset of the SES client used by the transport.
type API interface {
	SendRawEmail(ctx context.Context, params *ses.SendRawEmailInput, optFns ...func(*ses.Options)) (*ses.SendRawEmailOutput, error)
}

// Transport implements core.Transport for AWS SES.
type Transport struct {
	client           API
	configurationSet string
}

// New creates an SES transport from settings: region (required), access_key,
// secret_key, session_token and configuration_set.
func New(ctx context.Context, settings core.TransportSettings) (*Transport, error) {
	region := settings.Get("region")
	if region == "" {
		return nil, core.NewValidationError("region", "AWS region is required")
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, core.NewTransportError(name, "config_error", 0, err)
	}

	if accessKey := settings.Get("access_key"); accessKey != "" {
		secretKey := settings.Get("secret_key")
		if secretKey == "" {
			return nil, core.NewValidationError("secret_key", "secret key is required when access key is provided")
		}

		sessionToken := settings.Get("session_token")
		cfg.Credentials = aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     accessKey,
				SecretAccessKey: secretKey,
				SessionToken:    sessionToken,
			}, nil
		})
	}

	return NewWithClient(ses.NewFromConfig(cfg), settings.Get("configuration_set")), nil
}

// NewWithClient creates a transport around an existing client.
func NewWithClient(client API, configurationSet string) *Transport {
	return &Transport{client: client, configurationSet: configurationSet}
}

// Send submits the raw MIME message. SES derives the envelope from its headers.
func (t *Transport) Send(ctx context.Context, _ string, payload core.Payload) (*core.Receipt, error) {
	raw, err := payload.Decode()
	if err != nil {
		return nil, core.NewTransportError(name, "invalid_payload", http.StatusBadRequest, err)
	}

	input := &ses.SendRawEmailInput{
		RawMessage: &types.RawMessage{Data: raw},
	}
	if t.configurationSet != "" {
		input.ConfigurationSetName = aws.String(t.configurationSet)
	}

	output, err := t.client.SendRawEmail(ctx, input)
	if err != nil {
		return nil, classify(err)
	}

	return &core.Receipt{
		MessageID: aws.ToString(output.MessageId),
		Transport: name,
		Timestamp: time.Now(),
	}, nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return name
}

// classify extracts the HTTP status of a failed call. Throttling is reported as 429
// regardless of the status SES used.
func classify(err error) *core.TransportError {
	code := "send_error"
	status := 0

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code = apiErr.ErrorCode()
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		status = respErr.HTTPStatusCode()
	}

	switch code {
	case "Throttling", "ThrottlingException":
		status = http.StatusTooManyRequests
	}

	return core.NewTransportError(name, code, status, err)
}
