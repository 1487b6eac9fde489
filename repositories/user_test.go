package repositories

import (
	"testing"
	"time"

	"presencehub/domain"
	"presencehub/errors"

	"github.com/stretchr/testify/require"
)

func Test_Directory_Save_Get_Touch(t *testing.T) {
	req := require.New(t)
	directory := NewUserDirectory(openTestDB(t))

	profile := domain.Profile{ID: "alice", DisplayName: "Alice", PushAddress: "expo:alice"}
	req.NoError(directory.Save(profile))

	fetched, err := directory.Get("alice")
	req.NoError(err)
	req.Equal("Alice", fetched.DisplayName)

	at := time.Now().UTC()
	req.NoError(directory.Touch("alice", at))
	fetched, err = directory.Get("alice")
	req.NoError(err)
	req.Equal(at, fetched.LastActiveAt)

	req.ErrorIs(directory.Touch("ghost", at), errors.ErrNotFound)
	_, err = directory.Get("ghost")
	req.ErrorIs(err, errors.ErrNotFound)
}

func Test_PushAddresses_Skips_Unregistered_Users(t *testing.T) {
	req := require.New(t)
	directory := NewUserDirectory(openTestDB(t))

	req.NoError(directory.Save(domain.Profile{ID: "alice", PushAddress: "expo:alice"}))
	req.NoError(directory.Save(domain.Profile{ID: "bob"}))
	req.NoError(directory.Save(domain.Profile{ID: "clara", PushAddress: "expo:clara"}))

	addresses, err := directory.PushAddresses()
	req.NoError(err)
	req.ElementsMatch([]string{"expo:alice", "expo:clara"}, addresses)
}
