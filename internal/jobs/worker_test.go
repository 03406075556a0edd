package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/appealdesk/appealdesk/internal/appeals"
)

type fakeSweeper struct {
	released int
	window   time.Duration
	err      error
}

func (f *fakeSweeper) AutoRelease(_ context.Context, window time.Duration) (int, error) {
	f.window = window
	return f.released, f.err
}

type fakeDirectory struct {
	refs map[uuid.UUID]appeals.UserRef
}

func (f *fakeDirectory) UserRef(_ context.Context, id uuid.UUID) (appeals.UserRef, error) {
	ref, ok := f.refs[id]
	if !ok {
		return appeals.UserRef{}, errors.New("no such user")
	}
	return ref, nil
}

type fakeMailer struct {
	to      []string
	subject string
	err     error
}

func (f *fakeMailer) Send(_ context.Context, to, subject, _ string) error {
	f.to = append(f.to, to)
	f.subject = subject
	return f.err
}

func newWorker(sweeper *fakeSweeper, dir *fakeDirectory, mailer *fakeMailer) *Worker {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewWorker(sweeper, dir, mailer, 72*time.Hour, nil, logger)
}

func TestAutoReleaseSweepPassesIdleWindow(t *testing.T) {
	sweeper := &fakeSweeper{released: 2}
	w := newWorker(sweeper, &fakeDirectory{}, &fakeMailer{})

	err := w.HandleAutoReleaseSweep(context.Background(), NewAutoReleaseSweepTask())
	require.NoError(t, err)
	require.Equal(t, 72*time.Hour, sweeper.window)
}

func TestAutoReleaseSweepPropagatesErrors(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("db down")}
	w := newWorker(sweeper, &fakeDirectory{}, &fakeMailer{})

	err := w.HandleAutoReleaseSweep(context.Background(), NewAutoReleaseSweepTask())
	require.ErrorContains(t, err, "db down")
}

func TestAssignmentNoticeMailsModerator(t *testing.T) {
	moderatorID := uuid.New()
	dir := &fakeDirectory{refs: map[uuid.UUID]appeals.UserRef{
		moderatorID: {ID: moderatorID, Username: "mod", Email: "mod@example.com"},
	}}
	mailer := &fakeMailer{}
	w := newWorker(&fakeSweeper{}, dir, mailer)

	task, err := NewAssignmentNoticeTask(uuid.New(), moderatorID)
	require.NoError(t, err)
	require.NoError(t, w.HandleAssignmentNotice(context.Background(), task))
	require.Equal(t, []string{"mod@example.com"}, mailer.to)
}

func TestAssignmentNoticeSkipsMissingEmail(t *testing.T) {
	moderatorID := uuid.New()
	dir := &fakeDirectory{refs: map[uuid.UUID]appeals.UserRef{
		moderatorID: {ID: moderatorID, Username: "mod"},
	}}
	mailer := &fakeMailer{}
	w := newWorker(&fakeSweeper{}, dir, mailer)

	task, err := NewAssignmentNoticeTask(uuid.New(), moderatorID)
	require.NoError(t, err)
	require.NoError(t, w.HandleAssignmentNotice(context.Background(), task))
	require.Empty(t, mailer.to)
}

func TestAssignmentNoticeBadPayloadSkipsRetry(t *testing.T) {
	w := newWorker(&fakeSweeper{}, &fakeDirectory{}, &fakeMailer{})

	task := asynq.NewTask(TypeAssignmentNotice, []byte("not json"))
	err := w.HandleAssignmentNotice(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}
