package notify

import (
	"context"
	"fmt"
	"html"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/clinic-desk/internal/clinic"
	"github.com/wolfman30/clinic-desk/internal/patients"
	"github.com/wolfman30/clinic-desk/pkg/logging"
)

const defaultSendTimeout = 10 * time.Second

type settingsSource interface {
	Get(ctx context.Context) (*clinic.Config, error)
}

// AppointmentMailer sends booking confirmations. Sends run in the background
// and failures are only logged.
type AppointmentMailer struct {
	sender   EmailSender
	settings settingsSource
	fallback *clinic.Config
	timeout  time.Duration
	logger   *logging.Logger
	wg       sync.WaitGroup
}

type MailerOption func(*AppointmentMailer)

// WithClinicSettings makes confirmations use the stored clinic name and timezone.
func WithClinicSettings(src settingsSource) MailerOption {
	return func(m *AppointmentMailer) { m.settings = src }
}

func WithSendTimeout(d time.Duration) MailerOption {
	return func(m *AppointmentMailer) {
		if d > 0 {
			m.timeout = d
		}
	}
}

func NewAppointmentMailer(sender EmailSender, defaults *clinic.Config, logger *logging.Logger, opts ...MailerOption) *AppointmentMailer {
	if sender == nil {
		panic("notify: email sender cannot be nil")
	}
	if defaults == nil {
		defaults = clinic.DefaultConfig("", "")
	}
	if logger == nil {
		logger = logging.Default()
	}
	m := &AppointmentMailer{
		sender:   sender,
		fallback: defaults,
		timeout:  defaultSendTimeout,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AppointmentBooked queues a confirmation for appt. Patients without an
// e-mail address in their contact field are skipped.
func (m *AppointmentMailer) AppointmentBooked(appt patients.Appointment, p *patients.Patient) {
	if p == nil {
		return
	}
	addr, ok := ExtractEmail(p.Contact)
	if !ok {
		m.logger.Debug("no email address for confirmation", "patient_id", p.ID, "appointment_id", appt.ID)
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		msg := m.confirmation(ctx, appt, p, addr)
		if err := m.sender.Send(ctx, msg); err != nil {
			m.logger.Warn("appointment confirmation failed", "appointment_id", appt.ID, "error", err)
		}
	}()
}

// Wait blocks until queued confirmations have been attempted.
func (m *AppointmentMailer) Wait() {
	m.wg.Wait()
}

func (m *AppointmentMailer) confirmation(ctx context.Context, appt patients.Appointment, p *patients.Patient, to string) EmailMessage {
	cfg := m.fallback
	if m.settings != nil {
		if stored, err := m.settings.Get(ctx); err == nil {
			cfg = stored
		} else {
			m.logger.Warn("clinic settings unavailable for confirmation", "error", err)
		}
	}

	when := appt.DateTime.In(cfg.Location()).Format("Monday, January 2, 2006 at 3:04 PM")
	subject := fmt.Sprintf("Your appointment at %s", cfg.Name)

	var body strings.Builder
	fmt.Fprintf(&body, "Hello %s,\n\n", p.Name)
	fmt.Fprintf(&body, "Your appointment at %s is confirmed for %s.\n", cfg.Name, when)
	fmt.Fprintf(&body, "Reason: %s\n", appt.Reason)
	if cfg.Address != "" {
		fmt.Fprintf(&body, "Address: %s\n", cfg.Address)
	}
	if cfg.Phone != "" {
		fmt.Fprintf(&body, "\nTo reschedule, call us at %s.\n", cfg.Phone)
	}

	htmlBody := fmt.Sprintf("<p>Hello %s,</p><p>Your appointment at <strong>%s</strong> is confirmed for <strong>%s</strong>.</p><p>Reason: %s</p>",
		html.EscapeString(p.Name), html.EscapeString(cfg.Name), html.EscapeString(when), html.EscapeString(appt.Reason))

	return EmailMessage{
		To:      to,
		ToName:  p.Name,
		Subject: subject,
		Body:    body.String(),
		HTML:    htmlBody,
	}
}

// ExtractEmail finds the first e-mail address in a free-text contact field.
func ExtractEmail(contact string) (string, bool) {
	fields := strings.FieldsFunc(contact, func(r rune) bool {
		return r == ' ' || r == ',' || r == ';' || r == '\n' || r == '\t' || r == '/' || r == '|'
	})
	for _, field := range fields {
		field = strings.Trim(field, "<>()[]\"'")
		if !strings.Contains(field, "@") {
			continue
		}
		addr, err := mail.ParseAddress(field)
		if err != nil {
			continue
		}
		if at := strings.LastIndex(addr.Address, "@"); at > 0 && strings.Contains(addr.Address[at:], ".") {
			return addr.Address, true
		}
	}
	return "", false
}
