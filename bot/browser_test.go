package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMsNeverZero(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want float64
	}{
		{5 * time.Second, 5000},
		{time.Millisecond, 1},
		{500 * time.Microsecond, 1},
		{0, 1},
		{-time.Second, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, *ms(tt.in), "ms(%s)", tt.in)
	}
}

func TestBrowserContextID(t *testing.T) {
	reply := map[string]interface{}{
		"targetInfo": map[string]interface{}{
			"targetId":         "T1",
			"type":             "page",
			"browserContextId": "CTX-7",
		},
	}
	id, err := browserContextID(reply)
	require.NoError(t, err)
	assert.Equal(t, "CTX-7", id)

	params := grantParams("https://meet.google.com", MeetingPermissions, id)
	assert.Equal(t, "CTX-7", params["browserContextId"])
	assert.Equal(t, "https://meet.google.com", params["origin"])
	assert.Equal(t, MeetingPermissions, params["permissions"])
}

func TestBrowserContextIDMissing(t *testing.T) {
	for name, reply := range map[string]interface{}{
		"not a map":     "oops",
		"no targetInfo": map[string]interface{}{},
		"no context id": map[string]interface{}{"targetInfo": map[string]interface{}{"targetId": "T1"}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := browserContextID(reply)
			assert.Error(t, err)
		})
	}
}

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := retry(context.Background(), 3, 0, func(attempt int) error {
		calls++
		if attempt < 2 {
			return errors.New("crashed")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryReturnsLastError(t *testing.T) {
	calls := 0
	err := retry(context.Background(), 3, 0, func(attempt int) error {
		calls++
		return errors.New("crashed")
	})
	assert.EqualError(t, err, "crashed")
	assert.Equal(t, 3, calls)
}

func TestRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	start := time.Now()
	err := retry(ctx, 3, time.Minute, func(attempt int) error {
		calls++
		cancel()
		return errors.New("crashed")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "crashed")
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), 5*time.Second)
}
