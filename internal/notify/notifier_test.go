package notify

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	name  string
	sent  []string
	fail  bool
	errIs error
}

func (f *fakeSender) Send(ctx context.Context, title, message string) error {
	if f.fail {
		return f.errIs
	}
	f.sent = append(f.sent, title)
	return nil
}

func (f *fakeSender) Name() string { return f.name }

func newTestNotifier(events []string, senders ...Sender) *Notifier {
	return NewNotifier(senders, events, slog.New(slog.DiscardHandler))
}

func TestNotifyFiltersEvents(t *testing.T) {
	ctx := context.Background()
	s := &fakeSender{name: "telegram"}
	n := newTestNotifier([]string{"payout_failed"}, s)

	require.NoError(t, n.Notify(ctx, "market_resolved", "resolved", "m1"))
	assert.Empty(t, s.sent)

	require.NoError(t, n.Notify(ctx, "payout_failed", "stuck payout", "m1"))
	assert.Equal(t, []string{"stuck payout"}, s.sent)

	// NotifyAll ignores the filter.
	require.NoError(t, n.NotifyAll(ctx, "maintenance", "draining"))
	assert.Equal(t, []string{"stuck payout", "maintenance"}, s.sent)
}

func TestNotifyEmptyFilterPassesAll(t *testing.T) {
	s := &fakeSender{name: "discord"}
	n := newTestNotifier(nil, s)

	require.NoError(t, n.Notify(context.Background(), "bet_placed", "bet", "m2"))
	assert.Len(t, s.sent, 1)
}

// One dead channel must not silence the others, and its failure must still
// surface to the caller.
func TestNotifyDeliversPastFailedSender(t *testing.T) {
	sendErr := errors.New("webhook gone")
	dead := &fakeSender{name: "discord", fail: true, errIs: sendErr}
	live := &fakeSender{name: "telegram"}
	n := newTestNotifier(nil, dead, live)

	err := n.NotifyAll(context.Background(), "alert", "body")
	require.Error(t, err)
	assert.ErrorIs(t, err, sendErr)
	assert.Equal(t, []string{"alert"}, live.sent)
}
