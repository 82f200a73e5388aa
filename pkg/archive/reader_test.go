package archive

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcason-sudo/AIEmailSummary/internal/mail/domain"
)

const sampleEML = `From: Alice <alice@example.com>
To: owner@example.com
Subject: Project kickoff
Date: Tue, 10 Feb 2026 09:30:00 +0000
Message-ID: <kickoff-1@example.com>
Content-Type: text/plain; charset=utf-8

Let's meet Thursday to kick off the project.
`

const replyEML = `From: owner@example.com
To: alice@example.com
Subject: Re: Project kickoff
Date: Tue, 10 Feb 2026 11:00:00 +0000
Message-ID: <kickoff-2@example.com>
In-Reply-To: <kickoff-1@example.com>
References: <kickoff-1@example.com>
Content-Type: text/plain; charset=utf-8

Thursday works for me.
`

const bareEML = `From: noreply@example.com
Date: Tue, 10 Feb 2026 12:00:00 +0000
Message-ID: <bare@example.com>
Content-Type: text/plain; charset=utf-8

`

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func TestParseFillsNormalizedFields(t *testing.T) {
	r := NewReader(nil, "owner@example.com", testLogger())
	msg, err := r.Parse(strings.NewReader(sampleEML))
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", msg.Sender)
	assert.Equal(t, "Alice", msg.SenderName)
	assert.Equal(t, []string{"owner@example.com"}, msg.To)
	assert.Equal(t, "Project kickoff", msg.Subject)
	assert.Equal(t, "Let's meet Thursday to kick off the project.", msg.Body)
	assert.Equal(t, "kickoff-1@example.com", msg.MessageID)
	assert.Empty(t, msg.ConversationID)
	assert.Equal(t, "received", string(msg.Direction))
	assert.True(t, msg.IsRead)
}

func TestParseReplyThreadAndDirection(t *testing.T) {
	r := NewReader(nil, "owner@example.com", testLogger())
	msg, err := r.Parse(strings.NewReader(replyEML))
	require.NoError(t, err)

	assert.Equal(t, "kickoff-1@example.com", msg.ConversationID)
	assert.Equal(t, "sent", string(msg.Direction))
}

func TestParseMissingSubjectAndBodyDefaults(t *testing.T) {
	r := NewReader(nil, "", testLogger())
	msg, err := r.Parse(strings.NewReader(bareEML))
	require.NoError(t, err)

	assert.Empty(t, msg.Subject)
	assert.Empty(t, msg.Body)
	assert.NotEmpty(t, msg.MessageID)
}

func TestFetchWalksDirectoryAndAppliesLookback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.eml"), []byte(sampleEML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.eml"), []byte(replyEML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not mail"), 0o644))
	// Unparseable .eml files are skipped, not fatal.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.eml"), []byte("\x00\x01"), 0o644))

	r := NewReader([]string{dir}, "owner@example.com", testLogger())

	var subjects []string
	err := r.Fetch(context.Background(), time.Time{}, func(m *domain.Message) error {
		subjects = append(subjects, m.Subject)
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Project kickoff", "Re: Project kickoff"}, subjects)

	// A lookback window after both messages filters everything out.
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var filtered []string
	err = r.Fetch(context.Background(), since, func(m *domain.Message) error {
		filtered = append(filtered, m.Subject)
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, filtered)
}
