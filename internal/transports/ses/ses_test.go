package ses

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lattiq/mailmerge/internal/core"
)

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) SendRawEmail(ctx context.Context, params *ses.SendRawEmailInput, optFns ...func(*ses.Options)) (*ses.SendRawEmailOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*ses.SendRawEmailOutput)
	return out, args.Error(1)
}

func responseError(status int, err error) error {
	return &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status}},
			Err:      err,
		},
		RequestID: "req-1",
	}
}

func TestTransport_SendRaw(t *testing.T) {
	t.Parallel()

	raw := []byte("From: a@example.com\r\nTo: b@example.com\r\n\r\nhi\r\n")
	api := &mockAPI{}
	api.On("SendRawEmail", mock.Anything, mock.MatchedBy(func(in *ses.SendRawEmailInput) bool {
		return string(in.RawMessage.Data) == string(raw) && aws.ToString(in.ConfigurationSetName) == "tracking"
	})).Return(&ses.SendRawEmailOutput{MessageId: aws.String("ses-123")}, nil).Once()

	tr := NewWithClient(api, "tracking")
	receipt, err := tr.Send(context.Background(), "me", core.NewPayload(raw))
	require.NoError(t, err)
	assert.Equal(t, "ses-123", receipt.MessageID)
	assert.Equal(t, "ses", receipt.Transport)
	api.AssertExpectations(t)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		status    int
		transient bool
	}{
		{"service unavailable", responseError(http.StatusServiceUnavailable, errors.New("unavailable")), 503, true},
		{"bad request", responseError(http.StatusBadRequest, &smithy.GenericAPIError{Code: "MessageRejected"}), 400, false},
		{"throttling", responseError(http.StatusBadRequest, &smithy.GenericAPIError{Code: "Throttling"}), 429, true},
		{"network", errors.New("dial tcp: timeout"), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			api := &mockAPI{}
			api.On("SendRawEmail", mock.Anything, mock.Anything).Return(nil, tt.err)

			_, err := NewWithClient(api, "").Send(context.Background(), "me", core.NewPayload([]byte("x")))
			require.Error(t, err)
			assert.Equal(t, tt.status, core.StatusCode(err))
			assert.Equal(t, tt.transient, core.IsTransient(err))
		})
	}
}

func TestNew_RequiresRegion(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), core.TransportSettings{})
	var ve *core.ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = New(context.Background(), core.TransportSettings{"region": "us-east-1", "access_key": "AKIA"})
	assert.ErrorAs(t, err, &ve)
}
