package state

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"premarket/storage"
)

type record struct {
	Label string
	Count uint64
}

func TestManagerKVRoundTrip(t *testing.T) {
	manager := NewManager(storage.NewMemDB())

	require.NoError(t, manager.KVPut([]byte("r"), &record{Label: "a", Count: 7}))

	var out record
	ok, err := manager.KVGet([]byte("r"), &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, record{Label: "a", Count: 7}, out)

	ok, err = manager.KVGet([]byte("missing"), &out)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestManagerOverlayShadowsStore(t *testing.T) {
	db := storage.NewMemDB()
	manager := NewManager(db)

	require.NoError(t, manager.KVPut([]byte("r"), &record{Label: "staged", Count: 1}))

	// The staged write is visible through the manager but not yet in the
	// backing store.
	var out record
	ok, err := manager.KVGet([]byte("r"), &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "staged", out.Label)

	present, err := db.Has([]byte("r"))
	require.NoError(t, err)
	require.False(t, present)

	require.NoError(t, manager.Commit())
	present, err = db.Has([]byte("r"))
	require.NoError(t, err)
	require.True(t, present)
}

func TestManagerDiscard(t *testing.T) {
	db := storage.NewMemDB()
	manager := NewManager(db)

	require.NoError(t, manager.KVPut([]byte("r"), &record{Label: "staged", Count: 1}))
	manager.Discard()

	var out record
	ok, err := manager.KVGet([]byte("r"), &out)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestManagerTransaction(t *testing.T) {
	db := storage.NewMemDB()
	manager := NewManager(db)

	require.NoError(t, manager.Transaction(func() error {
		return manager.KVPut([]byte("committed"), &record{Label: "yes", Count: 1})
	}))
	present, err := db.Has([]byte("committed"))
	require.NoError(t, err)
	require.True(t, present)

	boom := errors.New("boom")
	err = manager.Transaction(func() error {
		if err := manager.KVPut([]byte("rolled-back"), &record{Label: "no", Count: 1}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var out record
	ok, err := manager.KVGet([]byte("rolled-back"), &out)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestManagerTransactionPanicDiscards(t *testing.T) {
	db := storage.NewMemDB()
	manager := NewManager(db)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected the panic to propagate")
			}
		}()
		_ = manager.Transaction(func() error {
			if err := manager.KVPut([]byte("poisoned"), &record{Label: "no", Count: 1}); err != nil {
				return err
			}
			panic("boom")
		})
	}()

	// A later successful transaction must not flush the staged write.
	require.NoError(t, manager.Transaction(func() error {
		return manager.KVPut([]byte("clean"), &record{Label: "yes", Count: 1})
	}))
	present, err := db.Has([]byte("poisoned"))
	require.NoError(t, err)
	require.False(t, present)
	present, err = db.Has([]byte("clean"))
	require.NoError(t, err)
	require.True(t, present)
}

func TestManagerRequiresDatabase(t *testing.T) {
	var manager *Manager
	_, err := manager.KVGet([]byte("k"), nil)
	require.Error(t, err)
	require.Error(t, manager.KVPut([]byte("k"), uint64(1)))
	require.Error(t, manager.Commit())
}
