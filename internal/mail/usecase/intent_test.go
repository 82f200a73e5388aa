package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcason-sudo/AIEmailSummary/internal/mail/domain"
)

// Wednesday.
var fixedNow = time.Date(2026, 2, 11, 15, 30, 0, 0, time.UTC)

func TestClassifyActionNeeded(t *testing.T) {
	intent, filter := classify("Which emails do I need to respond to?", fixedNow)

	assert.Equal(t, QueryActionNeeded, intent)
	require.NotNil(t, filter.Direction)
	assert.Equal(t, domain.DirectionReceived, *filter.Direction)
	require.NotNil(t, filter.IsReplied)
	assert.False(t, *filter.IsReplied)
	assert.Nil(t, filter.IsRead)
}

func TestClassifySentFollowup(t *testing.T) {
	intent, filter := classify("What am I still waiting on from others?", fixedNow)

	assert.Equal(t, QuerySentFollowup, intent)
	require.NotNil(t, filter.Direction)
	assert.Equal(t, domain.DirectionSent, *filter.Direction)
}

func TestClassifyUnread(t *testing.T) {
	intent, filter := classify("Summarize my unread emails", fixedNow)

	assert.Equal(t, QueryUnread, intent)
	require.NotNil(t, filter.IsRead)
	assert.False(t, *filter.IsRead)
}

func TestClassifyGeneral(t *testing.T) {
	intent, filter := classify("What did Alice say about the budget?", fixedNow)

	assert.Equal(t, QueryGeneral, intent)
	assert.True(t, filter.IsZero())
}

func TestTimeRanges(t *testing.T) {
	day := time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC)
	monday := time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		query string
		since time.Time
		until time.Time
	}{
		{"emails from today", day, time.Time{}},
		{"what came in yesterday", day.AddDate(0, 0, -1), day},
		{"summarize this week", monday, time.Time{}},
		{"anything from last week", monday.AddDate(0, 0, -7), monday},
		{"emails from the last 3 days", day.AddDate(0, 0, -3), time.Time{}},
		{"in the past 10 days", day.AddDate(0, 0, -10), time.Time{}},
		{"emails this month", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			_, filter := classify(tt.query, fixedNow)
			require.NotNil(t, filter.Since)
			assert.Equal(t, tt.since, *filter.Since)
			if tt.until.IsZero() {
				assert.Nil(t, filter.Until)
			} else {
				require.NotNil(t, filter.Until)
				assert.Equal(t, tt.until, *filter.Until)
			}
		})
	}
}

func TestNoTimeReference(t *testing.T) {
	_, filter := classify("what about the contract", fixedNow)
	assert.Nil(t, filter.Since)
	assert.Nil(t, filter.Until)
}
