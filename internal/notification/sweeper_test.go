package notification_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvidal/pairtask/internal/notification"
	notifrepo "github.com/nvidal/pairtask/internal/notification/repositoryimpl"
	"github.com/nvidal/pairtask/pkg/storage"
)

func newRepo(t *testing.T) *notifrepo.YAMLRepository {
	t.Helper()
	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return notifrepo.NewYAMLRepository(st)
}

func seed(t *testing.T, repo *notifrepo.YAMLRepository, id, owner string, age time.Duration, read bool) {
	t.Helper()
	require.NoError(t, repo.Create(context.Background(), &notification.Notification{
		ID:        id,
		Owner:     owner,
		Kind:      notification.KindDeleteBlocked,
		Message:   "mensaje",
		CreatedAt: time.Now().Add(-age),
		Read:      read,
	}))
}

func TestSweepRemovesOnlyExpiredRead(t *testing.T) {
	repo := newRepo(t)
	// Read and old enough: swept.
	seed(t, repo, "01AAA", "hades", notification.Retention+time.Hour, true)
	// Read but inside the window: kept.
	seed(t, repo, "01BBB", "hades", notification.Retention-time.Hour, true)
	// Old but unread: kept until the participant sees it.
	seed(t, repo, "01CCC", "hades", notification.Retention+time.Hour, false)

	s := notification.NewSweeper(repo, []string{"hades", "reiger"})
	removed := s.Sweep(context.Background())
	assert.Equal(t, 1, removed)

	remaining, err := repo.List(context.Background(), "hades")
	require.NoError(t, err)
	ids := make([]string, 0, len(remaining))
	for _, n := range remaining {
		ids = append(ids, n.ID)
	}
	assert.ElementsMatch(t, []string{"01BBB", "01CCC"}, ids)
}

func TestSweepCoversAllPartitions(t *testing.T) {
	repo := newRepo(t)
	seed(t, repo, "01AAA", "hades", notification.Retention+time.Hour, true)
	seed(t, repo, "01BBB", "reiger", notification.Retention+time.Hour, true)

	s := notification.NewSweeper(repo, []string{"hades", "reiger"})
	assert.Equal(t, 2, s.Sweep(context.Background()))
}

func TestSweepEmptyPartitions(t *testing.T) {
	repo := newRepo(t)
	s := notification.NewSweeper(repo, []string{"hades", "reiger"})
	assert.Equal(t, 0, s.Sweep(context.Background()))
}
