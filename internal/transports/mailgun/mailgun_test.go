package mailgun

import (
	"context"
	"errors"
	"testing"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lattiq/mailmerge/internal/core"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, msg *mailgun.Message) (string, string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.String(1), args.Error(2)
}

const rawMessage = "From: team@example.com\r\nTo: ada@example.com\r\nSubject: Hi\r\n\r\nHello\r\n"

func TestTransport_Send(t *testing.T) {
	t.Parallel()

	sender := &mockSender{}
	sender.On("Send", mock.Anything, mock.AnythingOfType("*mailgun.Message")).
		Return("Queued. Thank you.", "<id@mg.example.com>", nil).Once()

	receipt, err := NewWithClient(sender).Send(context.Background(), "me", core.NewPayload([]byte(rawMessage)))
	require.NoError(t, err)
	assert.Equal(t, "<id@mg.example.com>", receipt.MessageID)
	assert.Equal(t, "mailgun", receipt.Transport)
	sender.AssertExpectations(t)
}

func TestTransport_SendFailure(t *testing.T) {
	t.Parallel()

	sender := &mockSender{}
	sender.On("Send", mock.Anything, mock.Anything).Return("", "", errors.New("connection reset"))

	_, err := NewWithClient(sender).Send(context.Background(), "me", core.NewPayload([]byte(rawMessage)))
	require.Error(t, err)

	var te *core.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "mailgun", te.Transport)
	assert.Equal(t, 0, te.StatusCode)
	assert.False(t, core.IsTransient(err))
}

func TestTransport_RejectsMessageWithoutRecipients(t *testing.T) {
	t.Parallel()

	sender := &mockSender{}
	_, err := NewWithClient(sender).Send(context.Background(), "me", core.NewPayload([]byte("Subject: x\r\n\r\nbody")))
	require.Error(t, err)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestNew_ValidatesSettings(t *testing.T) {
	t.Parallel()

	_, err := New(core.TransportSettings{"domain": "mg.example.com"})
	assert.Error(t, err)

	_, err = New(core.TransportSettings{"api_key": "key"})
	assert.Error(t, err)

	tr, err := New(core.TransportSettings{"api_key": "key", "domain": "mg.example.com", "base_url": "https://api.eu.mailgun.net"})
	require.NoError(t, err)
	assert.Equal(t, "mailgun", tr.Name())
}
