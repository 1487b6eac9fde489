package repositories

import (
	"testing"
	"time"

	"presencehub/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func scheduled(target string, sendAt time.Time) domain.ScheduledNotification {
	return domain.ScheduledNotification{
		ID:        uuid.New(),
		TargetID:  target,
		Title:     "reminder",
		Body:      "scheduled body",
		Category:  domain.CategorySystem,
		SendAt:    sendAt,
		CreatedAt: time.Now().UTC(),
	}
}

func Test_Due_Returns_Only_Elapsed_Tasks(t *testing.T) {
	req := require.New(t)
	repository := NewScheduleRepository(openTestDB(t))
	now := time.Now().UTC()

	past := scheduled("alice", now.Add(-time.Hour))
	future := scheduled("bob", now.Add(time.Hour))
	req.NoError(repository.Store(past))
	req.NoError(repository.Store(future))

	due, err := repository.Due(now)
	req.NoError(err)
	req.Len(due, 1)
	req.Equal(past.ID, due[0].ID)
}

func Test_Claim_Wins_Exactly_Once(t *testing.T) {
	req := require.New(t)
	repository := NewScheduleRepository(openTestDB(t))
	task := scheduled("alice", time.Now().UTC().Add(-time.Minute))
	req.NoError(repository.Store(task))

	claimed, err := repository.Claim(task.ID)
	req.NoError(err)
	req.True(claimed)

	// A second claim loses: the entry is consumed.
	claimed, err = repository.Claim(task.ID)
	req.NoError(err)
	req.False(claimed)

	due, err := repository.Due(time.Now().UTC())
	req.NoError(err)
	req.Empty(due)
}

func Test_Due_Survives_Reopen(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	db := openTestDBAt(t, dir)
	repository := NewScheduleRepository(db)
	task := scheduled("alice", time.Now().UTC().Add(-time.Minute))
	req.NoError(repository.Store(task))
	req.NoError(db.Close())

	// The durable entry is still due after a restart.
	reopened := openTestDBAt(t, dir)
	due, err := NewScheduleRepository(reopened).Due(time.Now().UTC())
	req.NoError(err)
	req.Len(due, 1)
	req.Equal(task.ID, due[0].ID)
}
