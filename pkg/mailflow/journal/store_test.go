package journal_test

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/mailflow/pkg/mailflow/journal"
	"github.com/randalmurphal/mailflow/pkg/mailflow/mail"
)

// stores runs each test against every Store implementation.
func stores(t *testing.T) map[string]journal.Store {
	t.Helper()
	sqlite, err := journal.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	return map[string]journal.Store{
		"memory": journal.NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func entry(runID, mailID string) journal.Entry {
	m := mail.New("walker", "structure", mail.Node, mail.Package{RequestSource: "b1", Payload: mail.NodePayload{}})
	e := journal.NewEntry(runID, m, nil)
	e.MailID = mailID
	return e
}

func TestNewEntry(t *testing.T) {
	m := mail.New("structure", "b1", mail.Condition, mail.Package{RequestSource: "b1", Payload: mail.ConditionResult{Result: true}})

	e := journal.NewEntry("run-1", m, nil)
	assert.Equal(t, "run-1", e.RunID)
	assert.Equal(t, m.ID(), e.MailID)
	assert.Equal(t, "structure", e.Sender)
	assert.Equal(t, "b1", e.Recipient)
	assert.Equal(t, "condition", e.Category)
	assert.Equal(t, "mail.ConditionResult", e.PayloadType)
	assert.False(t, e.Dropped)
	assert.False(t, e.At.IsZero())

	e = journal.NewEntry("run-1", mail.New("a", "b", mail.End, mail.Package{}), errors.New("unknown recipient"))
	assert.True(t, e.Dropped)
	assert.Equal(t, "unknown recipient", e.Reason)
	assert.Empty(t, e.PayloadType)
}

func TestStore_AppendList(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"m1", "m2", "m3"} {
				_, err := store.Append(entry("run-1", id))
				require.NoError(t, err)
			}
			e, err := store.Append(entry("run-2", "other"))
			require.NoError(t, err)
			assert.Equal(t, 1, e.Seq)

			got, err := store.List("run-1")
			require.NoError(t, err)
			require.Len(t, got, 3)
			for i, id := range []string{"m1", "m2", "m3"} {
				assert.Equal(t, i+1, got[i].Seq)
				assert.Equal(t, id, got[i].MailID)
				assert.Equal(t, "node", got[i].Category)
				assert.Equal(t, "b1", got[i].RequestSource)
			}

			got, err = store.List("missing")
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestStore_Dropped(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			m := mail.New("a", "ghost", mail.End, mail.Package{})
			_, err := store.Append(journal.NewEntry("run-1", m, mail.ErrUnknownSource))
			require.NoError(t, err)

			got, err := store.List("run-1")
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.True(t, got[0].Dropped)
			assert.Equal(t, mail.ErrUnknownSource.Error(), got[0].Reason)
		})
	}
}

func TestStore_DeleteRun(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Append(entry("run-1", "m1"))
			require.NoError(t, err)
			_, err = store.Append(entry("run-2", "m2"))
			require.NoError(t, err)

			require.NoError(t, store.DeleteRun("run-1"))
			require.NoError(t, store.DeleteRun("never"))

			got, err := store.List("run-1")
			require.NoError(t, err)
			assert.Empty(t, got)
			got, err = store.List("run-2")
			require.NoError(t, err)
			assert.Len(t, got, 1)
		})
	}
}

func TestStore_Closed(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Close())
			assert.NoError(t, store.Close())

			_, err := store.Append(entry("run-1", "m1"))
			assert.ErrorIs(t, err, journal.ErrStoreClosed)
			_, err = store.List("run-1")
			assert.ErrorIs(t, err, journal.ErrStoreClosed)
			assert.ErrorIs(t, store.DeleteRun("run-1"), journal.ErrStoreClosed)
		})
	}
}

func TestStore_Concurrent(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			const workers, perWorker = 8, 25
			var wg sync.WaitGroup
			for range workers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for range perWorker {
						_, err := store.Append(entry("run-1", "m"))
						assert.NoError(t, err)
					}
				}()
			}
			wg.Wait()

			got, err := store.List("run-1")
			require.NoError(t, err)
			require.Len(t, got, workers*perWorker)
			for i, e := range got {
				assert.Equal(t, i+1, e.Seq)
			}
		})
	}
}

func TestSQLiteStore_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	store1, err := journal.NewSQLiteStore(path)
	require.NoError(t, err)
	_, err = store1.Append(entry("run-1", "m1"))
	require.NoError(t, err)
	require.NoError(t, store1.Close())

	store2, err := journal.NewSQLiteStore(path)
	require.NoError(t, err)
	defer store2.Close()

	got, err := store2.List("run-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].MailID)

	e, err := store2.Append(entry("run-1", "m2"))
	require.NoError(t, err)
	assert.Equal(t, 2, e.Seq)
}

func TestSQLiteStore_InvalidPath(t *testing.T) {
	_, err := journal.NewSQLiteStore("/nonexistent/path/journal.db")
	assert.Error(t, err)
}
