// Package alert delivers emergency notifications for CRITICAL cases.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/disasterlens/civicguard/internal/model"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Dispatcher is the outbound alerting channel. DispatchCritical is invoked
// exactly once per successfully created case whose risk level is CRITICAL.
type Dispatcher interface {
	DispatchCritical(ctx context.Context, c *model.IncidentCase) error
}

// LogDispatcher writes alerts to the structured log only. It stands in for
// a real gateway in development and tests.
type LogDispatcher struct {
	Logger *slog.Logger
}

func (d *LogDispatcher) DispatchCritical(_ context.Context, c *model.IncidentCase) error {
	d.Logger.Warn("[SMS/EMAIL ALERT] "+alertSubject(c),
		"case_id", c.ID,
		"city", c.City,
		"hazard", c.Analysis.HazardType,
	)
	return nil
}

// Sender is the interface for sending emails via SendGrid. It allows
// mocking the gateway in tests.
type Sender interface {
	Send(email *mail.SGMailV3) (*SendResult, error)
}

// SendResult contains the result of sending an alert email.
type SendResult struct {
	StatusCode int
	MessageID  string
}

// SendGridSender sends emails through the SendGrid API.
type SendGridSender struct {
	APIKey string
}

func (s *SendGridSender) Send(email *mail.SGMailV3) (*SendResult, error) {
	client := sendgrid.NewSendClient(s.APIKey)
	resp, err := client.Send(email)
	if err != nil {
		return nil, fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
	}
	messageID := ""
	if ids, ok := resp.Headers["X-Message-Id"]; ok && len(ids) > 0 {
		messageID = ids[0]
	}
	return &SendResult{StatusCode: resp.StatusCode, MessageID: messageID}, nil
}

// EmailDispatcher delivers CRITICAL alerts to an operations inbox through
// a SendGrid-compatible Sender.
type EmailDispatcher struct {
	Sender      Sender
	FromAddress string
	FromName    string
	Recipient   string
	// SandboxMode validates the request with SendGrid without delivering.
	SandboxMode bool
	Logger      *slog.Logger
}

func (d *EmailDispatcher) DispatchCritical(_ context.Context, c *model.IncidentCase) error {
	from := mail.NewEmail(d.FromName, d.FromAddress)
	to := mail.NewEmail("Emergency Operations", d.Recipient)

	message := mail.NewSingleEmail(from, alertSubject(c), to, alertBody(c), "")
	if d.SandboxMode {
		settings := mail.NewMailSettings()
		settings.SetSandboxMode(mail.NewSetting(true))
		message.SetMailSettings(settings)
	}

	result, err := d.Sender.Send(message)
	if err != nil {
		return fmt.Errorf("dispatch critical alert for case %s: %w", c.ID, err)
	}
	d.Logger.Info("critical alert dispatched",
		"case_id", c.ID,
		"city", c.City,
		"sendgrid_status", result.StatusCode,
		"message_id", result.MessageID,
	)
	return nil
}

func alertSubject(c *model.IncidentCase) string {
	return fmt.Sprintf("EMERGENCY: CRITICAL %s in %s", c.Analysis.HazardType, c.City)
}

func alertBody(c *model.IncidentCase) string {
	var b strings.Builder

	fmt.Fprintf(&b, "A CRITICAL incident was reported at %s.\n\n",
		time.UnixMilli(c.Timestamp).UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Case:         %s\n", c.ID)
	fmt.Fprintf(&b, "Hazard:       %s\n", c.Analysis.HazardType)
	fmt.Fprintf(&b, "Urgency:      %s\n", c.Analysis.UrgencyLevel)
	fmt.Fprintf(&b, "Impact:       %d/10 within %s\n", c.Analysis.ImpactSeverity, c.Analysis.ImpactRadius)
	fmt.Fprintf(&b, "Location:     %s (%.5f, %.5f)\n", c.City, c.Location.Latitude, c.Location.Longitude)
	if c.Location.Address != "" {
		fmt.Fprintf(&b, "Address:      %s\n", c.Location.Address)
	}

	if len(c.Analysis.SafetyRecommendation) > 0 {
		b.WriteString("\nRecommended actions:\n")
		for _, rec := range c.Analysis.SafetyRecommendation {
			fmt.Fprintf(&b, "  - %s\n", rec)
		}
	}

	b.WriteString("\n")
	b.WriteString(c.Analysis.HumanReadableExplanation)
	b.WriteString("\n")
	return b.String()
}
