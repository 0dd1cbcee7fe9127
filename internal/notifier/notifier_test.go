package notifier

import (
	"context"
	"errors"
	"testing"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyNotifier struct {
	failures int
	calls    int
}

func (n *flakyNotifier) SendContactAlert(ctx context.Context, alert ContactAlert) error {
	n.calls++
	if n.calls <= n.failures {
		return errors.New("mail server busy")
	}
	return nil
}

func quickBackoff(maxRetries uint64) func() backoff.BackOff {
	return func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), maxRetries)
	}
}

func TestFormatContactAlert(t *testing.T) {
	subject, body := FormatContactAlert(ContactAlert{Name: "山田太郎", NameEn: "Taro Yamada", Email: "taro@example.com", Note: "体験レッスン希望"})
	assert.Equal(t, "IMPORTANT: 山田太郎 (Taro Yamada) contact via contact form", subject)
	assert.Contains(t, body, "- 山田太郎\n- Taro Yamada\n- taro@example.com\n")
	assert.Contains(t, body, "体験レッスン希望")
	assert.Contains(t, body, "START")
	assert.Contains(t, body, "END")
}

func TestLogNotifier(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, NewLogNotifier("crm@example.com", []string{"staff@example.com"}).SendContactAlert(ctx, ContactAlert{Email: "a@example.com"}))
	assert.ErrorIs(t, NewLogNotifier("crm@example.com", nil).SendContactAlert(ctx, ContactAlert{Email: "a@example.com"}), ErrNoRecipients)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, NewLogNotifier("crm@example.com", []string{"staff@example.com"}).SendContactAlert(cancelled, ContactAlert{}), context.Canceled)
}

func TestRetryingNotifier_RecoversFromTransientFailures(t *testing.T) {
	flaky := &flakyNotifier{failures: 2}
	n := NewRetryingNotifier(flaky, 0, quickBackoff(5))

	require.NoError(t, n.SendContactAlert(context.Background(), ContactAlert{Email: "a@example.com"}))
	assert.Equal(t, 3, flaky.calls)
}

func TestRetryingNotifier_GivesUp(t *testing.T) {
	flaky := &flakyNotifier{failures: 100}
	n := NewRetryingNotifier(flaky, 0, quickBackoff(2))

	err := n.SendContactAlert(context.Background(), ContactAlert{Email: "a@example.com"})
	require.Error(t, err)
	assert.Equal(t, 3, flaky.calls)
}

func TestRetryingNotifier_DefaultBackoffStopsOnCancel(t *testing.T) {
	flaky := &flakyNotifier{failures: 100}
	n := NewRetryingNotifier(flaky, time.Minute, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := n.SendContactAlert(ctx, ContactAlert{Email: "a@example.com"})
	require.Error(t, err)
	assert.Less(t, flaky.calls, 10)
}

type countingNotifier struct {
	delegate Notifier
	calls    int
}

func (n *countingNotifier) SendContactAlert(ctx context.Context, alert ContactAlert) error {
	n.calls++
	return n.delegate.SendContactAlert(ctx, alert)
}

func TestRetryingNotifier_PermanentErrorIsNotRetried(t *testing.T) {
	unconfigured := &countingNotifier{delegate: NewLogNotifier("crm@example.com", nil)}
	n := NewRetryingNotifier(unconfigured, 30*time.Second, nil)

	start := time.Now()
	err := n.SendContactAlert(context.Background(), ContactAlert{Email: "a@example.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoRecipients)
	assert.Equal(t, 1, unconfigured.calls)
	assert.Less(t, time.Since(start), time.Second)
}
