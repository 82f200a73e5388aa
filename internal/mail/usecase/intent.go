package usecase

import (
	"strings"
	"time"

	"github.com/jcason-sudo/AIEmailSummary/internal/mail/domain"
)

// Query intent categories. The category decides which metadata filter the
// retrieval step applies before similarity ranking.
const (
	QueryActionNeeded = "action_needed"
	QuerySentFollowup = "sent_followup"
	QueryUnread       = "unread"
	QueryGeneral      = "general"
)

var actionPhrases = []string{
	"need to respond", "need to reply", "needs a reply", "needs response",
	"should i reply", "should i respond", "waiting for me",
	"haven't replied", "havent replied", "action needed", "to-do", "todo",
	"follow up on", "respond to",
}

var followupPhrases = []string{
	"waiting for a response", "waiting for a reply", "waiting on",
	"haven't heard back", "havent heard back", "no response",
	"did anyone reply", "sent but", "follow-ups i'm owed", "owed a reply",
}

var unreadPhrases = []string{
	"unread", "haven't read", "havent read", "didn't read", "didnt read",
	"new emails", "new mail",
}

// classify maps a free-form question to an intent category and the metadata
// filter it implies. Phrase order matters: action-needed wording wins over the
// broader follow-up wording.
func classify(query string, now time.Time) (string, domain.QueryFilter) {
	q := strings.ToLower(query)

	var filter domain.QueryFilter
	intent := QueryGeneral

	switch {
	case containsAny(q, actionPhrases):
		intent = QueryActionNeeded
		received := domain.DirectionReceived
		notReplied := false
		filter.Direction = &received
		filter.IsReplied = &notReplied
	case containsAny(q, followupPhrases):
		intent = QuerySentFollowup
		sent := domain.DirectionSent
		filter.Direction = &sent
	case containsAny(q, unreadPhrases):
		intent = QueryUnread
		received := domain.DirectionReceived
		unread := false
		filter.Direction = &received
		filter.IsRead = &unread
	}

	if since, until, ok := timeRange(q, now); ok {
		filter.Since = &since
		if !until.IsZero() {
			u := until
			filter.Until = &u
		}
	}

	return intent, filter
}

func containsAny(q string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(q, p) {
			return true
		}
	}
	return false
}

// timeRange recognizes relative date references and returns the window they
// describe. An open-ended window has a zero until.
func timeRange(q string, now time.Time) (since, until time.Time, ok bool) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch {
	case strings.Contains(q, "today"):
		return day, time.Time{}, true
	case strings.Contains(q, "yesterday"):
		return day.AddDate(0, 0, -1), day, true
	case strings.Contains(q, "this week"):
		return startOfWeek(day), time.Time{}, true
	case strings.Contains(q, "last week"):
		start := startOfWeek(day).AddDate(0, 0, -7)
		return start, start.AddDate(0, 0, 7), true
	case strings.Contains(q, "this month"):
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), time.Time{}, true
	}

	if n, found := lastNDays(q); found {
		return day.AddDate(0, 0, -n), time.Time{}, true
	}
	return time.Time{}, time.Time{}, false
}

// lastNDays matches "last N days" / "past N days".
func lastNDays(q string) (int, bool) {
	fields := strings.Fields(q)
	for i := 0; i+2 < len(fields); i++ {
		if fields[i] != "last" && fields[i] != "past" {
			continue
		}
		if !strings.HasPrefix(fields[i+2], "day") {
			continue
		}
		n := 0
		for _, r := range fields[i+1] {
			if r < '0' || r > '9' {
				n = 0
				break
			}
			n = n*10 + int(r-'0')
		}
		if n > 0 {
			return n, true
		}
	}
	return 0, false
}

// startOfWeek returns the Monday of the week containing day.
func startOfWeek(day time.Time) time.Time {
	wd := int(day.Weekday())
	if wd == 0 {
		wd = 7
	}
	return day.AddDate(0, 0, -(wd - 1))
}
