package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	st, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, st.Write(ctx, "partition/hades/tasks/t1.yaml", []byte("id: t1")))

	data, err := st.Read(ctx, "partition/hades/tasks/t1.yaml")
	require.NoError(t, err)
	assert.Equal(t, "id: t1", string(data))

	exists, err := st.Exists(ctx, "partition/hades/tasks/t1.yaml")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, st.Delete(ctx, "partition/hades/tasks/t1.yaml"))
	exists, err = st.Exists(ctx, "partition/hades/tasks/t1.yaml")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalStorageReadMissing(t *testing.T) {
	st, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = st.Read(context.Background(), "nope.yaml")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLocalStorageDeleteMissing(t *testing.T) {
	st, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	err = st.Delete(context.Background(), "nope.yaml")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLocalStorageList(t *testing.T) {
	st, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, st.Write(ctx, "partition/hades/tasks/t1.yaml", []byte("a")))
	require.NoError(t, st.Write(ctx, "partition/hades/tasks/t2.yaml", []byte("b")))
	require.NoError(t, st.Write(ctx, "partition/reiger/tasks/t3.yaml", []byte("c")))

	paths, err := st.List(ctx, "partition/hades/tasks")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"partition/hades/tasks/t1.yaml",
		"partition/hades/tasks/t2.yaml",
	}, paths)
}

func TestLocalStorageListMissingPrefix(t *testing.T) {
	st, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	paths, err := st.List(context.Background(), "partition/nobody/tasks")
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestLocalStorageRoot(t *testing.T) {
	dir := t.TempDir()
	st, err := NewLocalStorage(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, st.Root())
}
