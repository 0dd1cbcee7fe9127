// Package notifier delivers staff alerts about inbound contact form messages.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"langschool_backend/pkg/utils"

	backoff "github.com/cenkalti/backoff/v4"
)

// ErrNoRecipients means alerts cannot be delivered until recipients are configured.
var ErrNoRecipients = errors.New("no contact alert recipients configured")

// ContactAlert is what staff need to follow up a contact form submission.
// Note is expected to be sanitized already.
type ContactAlert struct {
	Name   string
	NameEn string
	Email  string
	Note   string
}

// Notifier sends contact alerts.
type Notifier interface {
	SendContactAlert(ctx context.Context, alert ContactAlert) error
}

// FormatContactAlert renders the alert subject and body.
func FormatContactAlert(alert ContactAlert) (subject, body string) {
	subject = fmt.Sprintf("IMPORTANT: %s (%s) contact via contact form", alert.Name, alert.NameEn)

	var b strings.Builder
	b.WriteString("Hi everyone,\n\n")
	b.WriteString("Please note that the following message has been submitted using the contact form.\n")
	b.WriteString("\n----------    START   ----------\n\n")
	fmt.Fprintf(&b, "- %s\n- %s\n- %s\n\n---\n\n", alert.Name, alert.NameEn, alert.Email)
	b.WriteString(alert.Note)
	b.WriteString("\n\n----------     END    ----------\n\n")
	b.WriteString("This message should be in the CRM under this name or email. Please respond to the person as soon as possible.\n")
	return subject, b.String()
}

// LogNotifier writes alerts to the structured log. Mail delivery is handled
// by whatever ships the logs to the alert recipients.
type LogNotifier struct {
	From string
	To   []string
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(from string, to []string) *LogNotifier {
	return &LogNotifier{From: from, To: to}
}

func (n *LogNotifier) SendContactAlert(ctx context.Context, alert ContactAlert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(n.To) == 0 {
		return backoff.Permanent(ErrNoRecipients)
	}
	subject, body := FormatContactAlert(alert)
	utils.LogInfo("Contact alert", map[string]interface{}{
		"from":    n.From,
		"to":      strings.Join(n.To, ","),
		"subject": subject,
		"body":    body,
	})
	return nil
}

// RetryingNotifier retries a delegate with exponential backoff. Errors wrapped
// in backoff.Permanent are returned after the first attempt.
type RetryingNotifier struct {
	delegate     Notifier
	buildBackoff func() backoff.BackOff
}

// NewRetryingNotifier wraps delegate. A nil factory retries for up to maxElapsed.
func NewRetryingNotifier(delegate Notifier, maxElapsed time.Duration, factory func() backoff.BackOff) *RetryingNotifier {
	if factory == nil {
		factory = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxElapsedTime = maxElapsed
			return b
		}
	}
	return &RetryingNotifier{delegate: delegate, buildBackoff: factory}
}

func (n *RetryingNotifier) SendContactAlert(ctx context.Context, alert ContactAlert) error {
	attempt := 0
	op := func() error {
		attempt++
		err := n.delegate.SendContactAlert(ctx, alert)
		if err != nil {
			utils.LogWarn("Contact alert attempt failed", map[string]interface{}{
				"attempt": attempt,
				"email":   alert.Email,
				"error":   err.Error(),
			})
		}
		return err
	}
	return backoff.Retry(op, backoff.WithContext(n.buildBackoff(), ctx))
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (*RetryingNotifier)(nil)
)
