package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcason-sudo/AIEmailSummary/internal/mail/domain"
	"github.com/jcason-sudo/AIEmailSummary/pkg/history"
)

type fakeSource struct {
	name     string
	messages []*domain.Message
	err      error
	started  chan struct{}
	release  chan struct{}
	gotSince time.Time
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) Fetch(_ context.Context, since time.Time, fn func(*domain.Message) error) error {
	s.gotSince = since
	if s.started != nil {
		close(s.started)
		<-s.release
	}
	for _, m := range s.messages {
		if err := fn(m); err != nil {
			return err
		}
	}
	return s.err
}

func makeMessages(n int) []*domain.Message {
	msgs := make([]*domain.Message, n)
	for i := range msgs {
		msgs[i] = &domain.Message{
			MessageID: fmt.Sprintf("m%d@example.com", i),
			Sender:    "alice@example.com",
			Subject:   fmt.Sprintf("msg %d", i),
			Date:      time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute),
			Source:    domain.SourceArchive,
			Direction: domain.DirectionReceived,
		}
	}
	return msgs
}

func newHistory(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.NewStore(filepath.Join(t.TempDir(), "history.db"), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRunBatchesUpserts(t *testing.T) {
	index := &fakeIndex{}
	src := &fakeSource{name: domain.SourceArchive, messages: makeMessages(250)}
	uc := NewIngestUsecase(index, []MailSource{src}, newTestStore(t), newHistory(t), quietLogger())

	result, err := uc.Run(context.Background(), RunOptions{DaysBack: 30})
	require.NoError(t, err)

	assert.Equal(t, 250, result.ArchiveMessages)
	assert.Equal(t, 250, result.TotalIndexed)
	assert.Equal(t, []string{"archive"}, result.SourcesUsed)

	// 250 messages flush as 100 + 100 + 50.
	require.Len(t, index.upserts, 3)
	assert.Len(t, index.upserts[0], 100)
	assert.Len(t, index.upserts[2], 50)
}

func TestRunRecordsHistory(t *testing.T) {
	hist := newHistory(t)
	src := &fakeSource{name: domain.SourceArchive, messages: makeMessages(3)}
	uc := NewIngestUsecase(&fakeIndex{}, []MailSource{src}, newTestStore(t), hist, quietLogger())

	result, err := uc.Run(context.Background(), RunOptions{DaysBack: 7})
	require.NoError(t, err)

	runs, err := hist.Recent(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, result.RunID, runs[0].ID)
	assert.Equal(t, 3, runs[0].ArchiveMessages)
	assert.Equal(t, 7, runs[0].DaysBack)
	assert.Empty(t, runs[0].Error)
}

func TestRunZeroDaysBackUsesSettings(t *testing.T) {
	src := &fakeSource{name: domain.SourceArchive}
	uc := NewIngestUsecase(&fakeIndex{}, []MailSource{src}, newTestStore(t), nil, quietLogger())

	_, err := uc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	// Settings default is 365 days.
	expected := time.Now().AddDate(0, 0, -365)
	assert.WithinDuration(t, expected, src.gotSince, time.Minute)
}

func TestRunSelectsSources(t *testing.T) {
	imapSrc := &fakeSource{name: domain.SourceIMAP, messages: makeMessages(2)}
	archSrc := &fakeSource{name: domain.SourceArchive, messages: makeMessages(3)}
	uc := NewIngestUsecase(&fakeIndex{}, []MailSource{imapSrc, archSrc}, newTestStore(t), nil, quietLogger())

	result, err := uc.Run(context.Background(), RunOptions{DaysBack: 30, Sources: []string{domain.SourceArchive}})
	require.NoError(t, err)

	assert.Equal(t, 0, result.IMAPMessages)
	assert.Equal(t, 3, result.ArchiveMessages)
	assert.Equal(t, []string{"archive"}, result.SourcesUsed)
	assert.True(t, imapSrc.gotSince.IsZero(), "skipped source must not be fetched")
}

func TestRunArchivePathOverride(t *testing.T) {
	configured := &fakeSource{name: domain.SourceArchive, messages: makeMessages(3)}
	override := &fakeSource{name: domain.SourceArchive, messages: makeMessages(1)}

	var gotPaths []string
	uc := NewIngestUsecase(&fakeIndex{}, []MailSource{configured}, newTestStore(t), nil, quietLogger())
	uc.SetArchiveFactory(func(paths []string) MailSource {
		gotPaths = paths
		return override
	})

	result, err := uc.Run(context.Background(), RunOptions{DaysBack: 30, ArchivePaths: []string{"/mail/export"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"/mail/export"}, gotPaths)
	assert.Equal(t, 1, result.ArchiveMessages)
	assert.True(t, configured.gotSince.IsZero(), "configured archive must be replaced for the run")
}

func TestRunRejectsConcurrentRuns(t *testing.T) {
	src := &fakeSource{
		name:    domain.SourceArchive,
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	uc := NewIngestUsecase(&fakeIndex{}, []MailSource{src}, newTestStore(t), nil, quietLogger())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := uc.Run(context.Background(), RunOptions{DaysBack: 30})
		assert.NoError(t, err)
	}()

	<-src.started
	assert.True(t, uc.Running())
	_, err := uc.Run(context.Background(), RunOptions{DaysBack: 30})
	assert.ErrorIs(t, err, ErrIngestRunning)
	_, err = uc.Start(RunOptions{DaysBack: 30})
	assert.ErrorIs(t, err, ErrIngestRunning)

	close(src.release)
	wg.Wait()
	assert.False(t, uc.Running())
}

func TestStartRunsInBackground(t *testing.T) {
	hist := newHistory(t)
	src := &fakeSource{name: domain.SourceArchive, messages: makeMessages(2)}
	uc := NewIngestUsecase(&fakeIndex{}, []MailSource{src}, newTestStore(t), hist, quietLogger())

	runID, err := uc.Start(RunOptions{DaysBack: 30})
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	require.Eventually(t, func() bool { return !uc.Running() }, 2*time.Second, 10*time.Millisecond)

	runs, err := hist.Recent(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].ID)
	assert.Equal(t, 2, runs[0].TotalIndexed)
}

func TestRunPartialFailureKeepsCounts(t *testing.T) {
	hist := newHistory(t)
	src := &fakeSource{
		name:     domain.SourceArchive,
		messages: makeMessages(5),
		err:      errors.New("disk vanished"),
	}
	uc := NewIngestUsecase(&fakeIndex{}, []MailSource{src}, newTestStore(t), hist, quietLogger())

	result, err := uc.Run(context.Background(), RunOptions{DaysBack: 30})
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 5, result.ArchiveMessages)

	runs, herr := hist.Recent(1)
	require.NoError(t, herr)
	require.Len(t, runs, 1)
	assert.Contains(t, runs[0].Error, "disk vanished")
}

func TestReingestionSameIDs(t *testing.T) {
	index := &fakeIndex{}
	src := &fakeSource{name: domain.SourceArchive, messages: makeMessages(2)}
	uc := NewIngestUsecase(index, []MailSource{src}, newTestStore(t), nil, quietLogger())

	_, err := uc.Run(context.Background(), RunOptions{DaysBack: 30})
	require.NoError(t, err)
	_, err = uc.Run(context.Background(), RunOptions{DaysBack: 30})
	require.NoError(t, err)

	// Both runs upsert under the same derived ids, so re-ingestion cannot
	// create duplicate index entries.
	require.Len(t, index.upserts, 2)
	assert.Equal(t, index.upserts[0][0].UniqueID(), index.upserts[1][0].UniqueID())
}
