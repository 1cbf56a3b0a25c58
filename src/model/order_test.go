package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeOrderStatus(t *testing.T) {
	cases := map[string]string{
		"pending":           OrderStatusPending,
		"PENDING":           OrderStatusPending,
		" Pending ":         OrderStatusPending,
		"AMO":               OrderStatusPending,
		"PENDING_EXECUTION": OrderStatusPending,
		"RETRY_PENDING":     OrderStatusPending,
		"REJECTED":          OrderStatusFailed,
		"Executed":          OrderStatusFilled,
		"partial":           OrderStatusPartiallyFilled,
		"CANCELLED":         OrderStatusCancelled,
		"something_new":     "something_new",
	}

	for in, want := range cases {
		assert.Equal(t, want, NormalizeOrderStatus(in), "input %q", in)
	}
}

func TestIsTerminalOrderStatus(t *testing.T) {
	assert.True(t, IsTerminalOrderStatus("FILLED"))
	assert.True(t, IsTerminalOrderStatus("failed"))
	assert.True(t, IsTerminalOrderStatus("REJECTED"))
	assert.True(t, IsTerminalOrderStatus("cancelled"))
	assert.False(t, IsTerminalOrderStatus("pending"))
	assert.False(t, IsTerminalOrderStatus("partially_filled"))
	assert.False(t, IsTerminalOrderStatus("RETRY_PENDING"))
}

func TestOrderSignalContextRoundTrip(t *testing.T) {
	order := &Order{}
	require.NoError(t, order.SetSignalContext(SignalContext{SignalID: 7, RSI: 28.4, EMA: 1250.5}))

	sc, err := order.SignalContext()
	require.NoError(t, err)
	assert.Equal(t, uint(7), sc.SignalID)
	assert.InDelta(t, 28.4, sc.RSI, 1e-9)
}

func TestNotificationPreferenceAllows(t *testing.T) {
	pref := &NotificationPreference{
		NotifyOrderExecuted: true,
		NotifyPartialFill:   false,
		NotifyOrderRejected: true,
	}

	assert.True(t, pref.Allows(EventOrderExecuted))
	assert.False(t, pref.Allows(EventPartialFill))
	assert.True(t, pref.Allows(EventOrderRejected))
	assert.True(t, pref.Allows("future_event"))
}
