package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSendGridSenderDefaults(t *testing.T) {
	assert.Nil(t, NewSendGridSender(SendGridConfig{FromEmail: "desk@clinic.test"}, nil))

	sender := NewSendGridSender(SendGridConfig{APIKey: "SG.key", FromEmail: "desk@clinic.test"}, nil)
	require.NotNil(t, sender)
	assert.Equal(t, "ClinicDesk <desk@clinic.test>", sender.from.String())

	sender = NewSendGridSender(SendGridConfig{APIKey: "SG.key", FromEmail: "desk@clinic.test", FromName: "Harbor Clinic"}, nil)
	assert.Equal(t, "Harbor Clinic", sender.from.Name)
}

func TestSendGridSenderRequiresClient(t *testing.T) {
	err := (&SendGridSender{}).Send(context.Background(), EmailMessage{To: "p@example.com", Subject: "s"})
	assert.Error(t, err)
}

func TestEmailMessageValidate(t *testing.T) {
	assert.ErrorIs(t, EmailMessage{Subject: "s"}.validate(), ErrNoRecipient)
	assert.ErrorIs(t, EmailMessage{To: "p@example.com", Subject: "  "}.validate(), ErrNoSubject)
	assert.NoError(t, EmailMessage{To: "p@example.com", Subject: "s"}.validate())
}

func TestMaskAddress(t *testing.T) {
	assert.Equal(t, "p***@example.com", maskAddress("patient@example.com"))
	assert.Equal(t, "***", maskAddress("not-an-address"))
	assert.Equal(t, "***", maskAddress("@example.com"))
}

func TestStubEmailSenderKeepsMessages(t *testing.T) {
	sender := NewStubEmailSender(nil)
	require.NoError(t, sender.Send(context.Background(), EmailMessage{To: "p@example.com", Subject: "Confirmed", Category: "appointment.confirmed"}))
	assert.ErrorIs(t, sender.Send(context.Background(), EmailMessage{Subject: "x"}), ErrNoRecipient)

	sent := sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "appointment.confirmed", sent[0].Category)
}

type mockSESClient struct {
	input *sesv2.SendEmailInput
	err   error
}

func (m *mockSESClient) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.input = params
	if m.err != nil {
		return nil, m.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func TestNewSESSenderNilClient(t *testing.T) {
	assert.Nil(t, NewSESSender(nil, SESConfig{FromEmail: "front@clinic.test"}, nil))
}

func TestSESSenderSend(t *testing.T) {
	client := &mockSESClient{}
	sender := NewSESSender(client, SESConfig{FromEmail: "front@clinic.test", ConfigurationSet: "clinicdesk"}, nil)

	err := sender.Send(context.Background(), EmailMessage{
		To:       "patient@example.com",
		ReplyTo:  "desk@clinic.test",
		Subject:  "Appointment confirmed",
		Body:     "See you soon",
		Category: "appointment.confirmed",
	})
	require.NoError(t, err)

	in := client.input
	assert.Equal(t, "ClinicDesk <front@clinic.test>", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"patient@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, []string{"desk@clinic.test"}, in.ReplyToAddresses)
	assert.Equal(t, "clinicdesk", aws.ToString(in.ConfigurationSetName))
	assert.Nil(t, in.Content.Simple.Body.Html)
	assert.Equal(t, "See you soon", aws.ToString(in.Content.Simple.Body.Text.Data))
	require.Len(t, in.EmailTags, 1)
	assert.Equal(t, "appointment.confirmed", aws.ToString(in.EmailTags[0].Value))
}

func TestSESSenderErrors(t *testing.T) {
	sender := NewSESSender(&mockSESClient{err: errors.New("throttled")}, SESConfig{FromEmail: "a@b.test"}, nil)
	assert.ErrorContains(t, sender.Send(context.Background(), EmailMessage{To: "x@y.test", Subject: "s", Body: "b"}), "throttled")

	client := &mockSESClient{}
	sender = NewSESSender(client, SESConfig{FromEmail: "a@b.test"}, nil)
	assert.ErrorIs(t, sender.Send(context.Background(), EmailMessage{Subject: "s"}), ErrNoRecipient)
	assert.Nil(t, client.input)
}
