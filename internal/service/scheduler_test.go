package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/velis74/notify-engine/internal/domain"
	"go.uber.org/zap"
)

type fakeRunLock struct {
	acquireFn func(ctx context.Context) (bool, error)

	releases int
}

func (f *fakeRunLock) Acquire(ctx context.Context) (bool, error) {
	if f.acquireFn != nil {
		return f.acquireFn(ctx)
	}
	return true, nil
}

func (f *fakeRunLock) Release(ctx context.Context) error {
	f.releases++
	return nil
}

type fakeSubmitter struct {
	submitFn func(ctx context.Context, n domain.Notification) error

	submitted []domain.Notification
}

func (f *fakeSubmitter) Submit(ctx context.Context, n domain.Notification) error {
	if f.submitFn != nil {
		if err := f.submitFn(ctx, n); err != nil {
			return err
		}
	}
	f.submitted = append(f.submitted, n)
	return nil
}

func dueNotifications(ids ...string) []domain.Notification {
	sendAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	out := make([]domain.Notification, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Notification{ID: id, Level: domain.LevelInfo, SendAt: &sendAt})
	}
	return out
}

func newTestScheduler(
	t *testing.T,
	repo *fakeNotificationRepo,
	lock *fakeRunLock,
	submitter *fakeSubmitter,
) *BeatScheduler {
	t.Helper()

	s, err := NewBeatScheduler(repo, lock, submitter, time.Minute, 5*time.Minute, 100, zap.NewNop())
	if err != nil {
		t.Fatalf("NewBeatScheduler() error = %v", err)
	}
	return s
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	t.Parallel()

	repo := &fakeNotificationRepo{
		getDueForDispatchFn: func(ctx context.Context, now time.Time, lookahead time.Duration, limit int) ([]domain.Notification, error) {
			t.Fatal("due scan must not run without the lock")
			return nil, nil
		},
	}
	lock := &fakeRunLock{
		acquireFn: func(ctx context.Context) (bool, error) { return false, nil },
	}
	submitter := &fakeSubmitter{}

	s := newTestScheduler(t, repo, lock, submitter)
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if lock.releases != 0 {
		t.Fatalf("releases = %d, want 0 for a lock we never held", lock.releases)
	}
}

func TestRunOnceClaimsAndSubmitsDue(t *testing.T) {
	t.Parallel()

	repo := &fakeNotificationRepo{
		getDueForDispatchFn: func(ctx context.Context, now time.Time, lookahead time.Duration, limit int) ([]domain.Notification, error) {
			if lookahead != 5*time.Minute {
				t.Fatalf("lookahead = %v, want 5m", lookahead)
			}
			return dueNotifications("n1", "n2"), nil
		},
	}
	lock := &fakeRunLock{}
	submitter := &fakeSubmitter{}

	s := newTestScheduler(t, repo, lock, submitter)
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if len(submitter.submitted) != 2 {
		t.Fatalf("submitted = %d, want 2", len(submitter.submitted))
	}
	if submitter.submitted[0].ID != "n1" || submitter.submitted[1].ID != "n2" {
		t.Fatalf("submitted order = %s,%s, want n1,n2", submitter.submitted[0].ID, submitter.submitted[1].ID)
	}
	if lock.releases != 1 {
		t.Fatalf("releases = %d, want 1", lock.releases)
	}
}

func TestRunOnceSkipsRowsClaimedElsewhere(t *testing.T) {
	t.Parallel()

	repo := &fakeNotificationRepo{
		getDueForDispatchFn: func(ctx context.Context, now time.Time, lookahead time.Duration, limit int) ([]domain.Notification, error) {
			return dueNotifications("n1", "n2"), nil
		},
		claimForDispatchFn: func(ctx context.Context, id string, now time.Time) (bool, error) {
			return id == "n2", nil
		},
	}
	submitter := &fakeSubmitter{}

	s := newTestScheduler(t, repo, &fakeRunLock{}, submitter)
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if len(submitter.submitted) != 1 || submitter.submitted[0].ID != "n2" {
		t.Fatalf("submitted = %v, want only n2", submitter.submitted)
	}
}

func TestRunOnceReleasesClaimOnSubmitFailure(t *testing.T) {
	t.Parallel()

	repo := &fakeNotificationRepo{
		getDueForDispatchFn: func(ctx context.Context, now time.Time, lookahead time.Duration, limit int) ([]domain.Notification, error) {
			return dueNotifications("n1"), nil
		},
	}
	submitter := &fakeSubmitter{
		submitFn: func(ctx context.Context, n domain.Notification) error {
			return errors.New("broker unavailable")
		},
	}

	s := newTestScheduler(t, repo, &fakeRunLock{}, submitter)
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if len(repo.released) != 1 || repo.released[0] != "n1" {
		t.Fatalf("released claims = %v, want [n1]", repo.released)
	}
}

func TestRunOnceReleasesLockOnScanFailure(t *testing.T) {
	t.Parallel()

	repo := &fakeNotificationRepo{
		getDueForDispatchFn: func(ctx context.Context, now time.Time, lookahead time.Duration, limit int) ([]domain.Notification, error) {
			return nil, errors.New("database down")
		},
	}
	lock := &fakeRunLock{}

	s := newTestScheduler(t, repo, lock, &fakeSubmitter{})
	if err := s.RunOnce(context.Background()); err == nil {
		t.Fatal("RunOnce() should fail when the due scan fails")
	}
	if lock.releases != 1 {
		t.Fatalf("releases = %d, want 1", lock.releases)
	}
}

func TestRunOnceFailureHook(t *testing.T) {
	t.Parallel()

	repo := &fakeNotificationRepo{
		getDueForDispatchFn: func(ctx context.Context, now time.Time, lookahead time.Duration, limit int) ([]domain.Notification, error) {
			return nil, errors.New("database down")
		},
	}

	s := newTestScheduler(t, repo, &fakeRunLock{}, &fakeSubmitter{})
	var hooked error
	s.SetFailureHook(func(err error) { hooked = err })

	err := s.RunOnce(context.Background())
	if err == nil {
		t.Fatal("RunOnce() should fail")
	}
	s.failed(err)
	if hooked == nil {
		t.Fatal("failure hook should receive the pass error")
	}
}
