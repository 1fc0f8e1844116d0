package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSES struct {
	input *ses.SendEmailInput
	err   error
}

func (m *mockSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	m.input = params
	if m.err != nil {
		return nil, m.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

type mockSNS struct {
	input *sns.PublishInput
	err   error
}

func (m *mockSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.input = params
	if m.err != nil {
		return nil, m.err
	}
	return &sns.PublishOutput{MessageId: aws.String("sns-1")}, nil
}

func TestSESClient_SendEmail(t *testing.T) {
	api := &mockSES{}
	c := NewSESClientWithAPI(api, "noreply@autoapply.dev")

	id, err := c.SendEmail(context.Background(), "user@example.com", "Offer received", "Congrats")
	require.NoError(t, err)
	assert.Equal(t, "ses-1", id)
	assert.Equal(t, []string{"user@example.com"}, api.input.Destination.ToAddresses)
	assert.Equal(t, "noreply@autoapply.dev", aws.ToString(api.input.Source))
	assert.Equal(t, "Offer received", aws.ToString(api.input.Message.Subject.Data))
}

func TestSESClient_SendEmailError(t *testing.T) {
	c := NewSESClientWithAPI(&mockSES{err: errors.New("throttled")}, "noreply@autoapply.dev")
	_, err := c.SendEmail(context.Background(), "user@example.com", "s", "b")
	require.Error(t, err)
}

func TestSNSClient_SendSMS(t *testing.T) {
	api := &mockSNS{}
	c := NewSNSClientWithAPI(api, "AUTOAPPLY")

	id, err := c.SendSMS(context.Background(), "+15551234567", "Interview scheduled")
	require.NoError(t, err)
	assert.Equal(t, "sns-1", id)
	assert.Equal(t, "+15551234567", aws.ToString(api.input.PhoneNumber))
	assert.Contains(t, api.input.MessageAttributes, "AWS.SNS.SMS.SenderID")
}
