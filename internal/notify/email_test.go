package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/wolfman30/clinic-desk/pkg/logging"
)

func TestNewSendGridSender_NilWithoutAPIKey(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{FromEmail: "test@example.com"}, nil)
	if sender != nil {
		t.Error("expected nil sender when API key is empty")
	}
}

func TestNewSendGridSender_DefaultFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "test@example.com"}, nil)
	if sender == nil {
		t.Fatal("expected non-nil sender")
	}
	if sender.fromName != defaultFromName {
		t.Errorf("expected default from name %q, got %q", defaultFromName, sender.fromName)
	}
}

type fakeSendGrid struct {
	status int
	err    error
	sent   *mail.SGMailV3
}

func (f *fakeSendGrid) SendWithContext(_ context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	f.sent = email
	if f.err != nil {
		return nil, f.err
	}
	return &rest.Response{StatusCode: f.status}, nil
}

func TestSendGridSender_Send(t *testing.T) {
	fake := &fakeSendGrid{status: 202}
	sender := &SendGridSender{client: fake, fromEmail: "desk@clinic.test", fromName: "Desk", logger: logging.Default()}

	err := sender.Send(context.Background(), EmailMessage{To: "pat@example.com", Subject: "Hi", Body: "plain"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if fake.sent == nil || fake.sent.Subject != "Hi" || fake.sent.From.Address != "desk@clinic.test" {
		t.Fatalf("unexpected message %+v", fake.sent)
	}

	fake.status = 401
	if err := sender.Send(context.Background(), EmailMessage{To: "pat@example.com"}); err == nil {
		t.Error("expected error status to fail")
	}
	fake.err = errors.New("network")
	if err := sender.Send(context.Background(), EmailMessage{To: "pat@example.com"}); err == nil {
		t.Error("expected transport error to fail")
	}
}

func TestSendGridSender_Send_NilClient(t *testing.T) {
	sender := &SendGridSender{}
	if err := sender.Send(context.Background(), EmailMessage{To: "recipient@example.com"}); err == nil {
		t.Error("expected error when client is nil")
	}
}

type fakeSES struct {
	input *sesv2.SendEmailInput
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func TestSESSender_Send(t *testing.T) {
	if NewSESSender(nil, SESConfig{}, nil) != nil {
		t.Fatal("expected nil sender without a client")
	}

	fake := &fakeSES{}
	sender := NewSESSender(fake, SESConfig{FromEmail: "desk@clinic.test"}, nil)
	err := sender.Send(context.Background(), EmailMessage{To: "pat@example.com", Subject: "Hi", Body: "plain", HTML: "<p>x</p>"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := aws.ToString(fake.input.FromEmailAddress); got != "Clinic Desk <desk@clinic.test>" {
		t.Errorf("unexpected from address %q", got)
	}
	body := fake.input.Content.Simple.Body
	if body.Text == nil || body.Html == nil {
		t.Fatal("expected text and HTML bodies")
	}
}

func TestStubEmailSender_Send(t *testing.T) {
	if err := NewStubEmailSender(nil).Send(context.Background(), EmailMessage{To: "recipient@example.com"}); err != nil {
		t.Errorf("stub sender should not return error, got: %v", err)
	}
}
