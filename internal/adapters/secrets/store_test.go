package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scriptedStore(t *testing.T, run runFunc) (*Store, string) {
	t.Helper()

	root := t.TempDir()
	store := NewStore(root)
	store.run = run

	return store, root
}

func passUnavailable(_ context.Context, _ string, _ ...string) (string, string, error) {
	return "", "", ErrPassUnavailable
}

func TestPutGetViaPass(t *testing.T) {
	t.Parallel()

	values := map[string]string{}
	store, _ := scriptedStore(t, func(_ context.Context, input string, args ...string) (string, string, error) {
		switch args[0] {
		case "insert":
			values[args[len(args)-1]] = input
			return "", "", nil
		case "show":
			if v, ok := values[args[1]]; ok {
				return v, "", nil
			}
			return "", "not in the password store", errors.New("exit status 1")
		}
		return "", "", nil
	})

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "deskbridge/token", "tok-123"))

	got, err := store.Get(ctx, "deskbridge/token")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", got)
}

func TestFallsBackToFilesWhenPassMissing(t *testing.T) {
	t.Parallel()

	store, _ := scriptedStore(t, passUnavailable)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "deskbridge/token", "tok-456"))

	got, err := store.Get(ctx, "deskbridge/token")
	require.NoError(t, err)
	assert.Equal(t, "tok-456", got)

	require.NoError(t, store.Delete(ctx, "deskbridge/token"))
	_, err = store.Get(ctx, "deskbridge/token")
	require.Error(t, err)
}

func TestPassFailureStillReadsFileCopy(t *testing.T) {
	t.Parallel()

	calls := 0
	store, _ := scriptedStore(t, func(_ context.Context, _ string, args ...string) (string, string, error) {
		calls++
		if args[0] == "insert" {
			return "", "", ErrPassUnavailable
		}
		return "", "gpg decryption failed", errors.New("exit status 2")
	})
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "deskbridge/token", "tok-789"))

	got, err := store.Get(ctx, "deskbridge/token")
	require.NoError(t, err)
	assert.Equal(t, "tok-789", got)
	assert.Equal(t, 2, calls, "pass is always tried first")
}

func TestCancelledContextSkipsFallback(t *testing.T) {
	t.Parallel()

	store, _ := scriptedStore(t, func(ctx context.Context, _ string, _ ...string) (string, string, error) {
		return "", "", ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Get(ctx, "deskbridge/token")
	require.ErrorIs(t, err, context.Canceled)
}

func TestRejectsTraversalKeys(t *testing.T) {
	t.Parallel()

	store, _ := scriptedStore(t, passUnavailable)
	ctx := context.Background()

	require.Error(t, store.Put(ctx, "../outside", "value"))
	require.Error(t, store.Put(ctx, "/etc/shadow", "value"))
	require.Error(t, store.Put(ctx, "", "value"))
}
