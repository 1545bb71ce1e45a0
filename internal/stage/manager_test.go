package stage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdrvault/sdrvault/internal/catalog"
	sverr "github.com/sdrvault/sdrvault/internal/errors"
	"github.com/sdrvault/sdrvault/internal/storage"
	"github.com/sdrvault/sdrvault/internal/storage/mocks"
	"github.com/sdrvault/sdrvault/internal/window"
)

var recordings = []string{
	"/2020-02-10/120_5MHz/2020_02_10__12_00_00.wav",
	"/2020-02-10/120_5MHz/2020_02_10__12_01_00.wav",
	"/2020-02-10/90MHz/2020_02_10__12_00_00__b.ogg",
	"/2020-02-11/90MHz/2020_02_11__12_00_00.ogg",
}

func newTestManager(t *testing.T) (*Manager, *storage.MemoryGateway) {
	t.Helper()
	mem := storage.NewMemoryGateway()
	for _, key := range recordings {
		_, err := mem.PutObject(context.Background(), "sdr", key, strings.NewReader("audio:"+key))
		require.NoError(t, err)
	}
	mgr, err := NewManager(filepath.Join(t.TempDir(), "staging"), mem, catalog.New(mem, "sdr", nil), nil)
	require.NoError(t, err)
	return mgr, mem
}

func mustWindow(t *testing.T, start string, duration int, freq string) window.Window {
	t.Helper()
	w, err := window.New(start, duration, freq)
	require.NoError(t, err)
	return w
}

func TestPrepareStagesSelectedKeys(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	ws, err := mgr.Prepare(ctx, mustWindow(t, "2020-02-10_12-00", 2, "120_5MHz"), "sdr")
	require.NoError(t, err)

	assert.Equal(t, []string{"2020_02_10__12_00_00.wav", "2020_02_10__12_01_00.wav"}, ws.Manifest)
	assert.Equal(t, filepath.Join(mgr.Root(), ws.ID), ws.Dir)
	for _, name := range ws.Manifest {
		data, err := os.ReadFile(filepath.Join(ws.Dir, name))
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(data), "audio:/2020-02-10/120_5MHz/"))
	}
}

func TestPrepareManifestMatchesSelection(t *testing.T) {
	mgr, mem := newTestManager(t)
	ctx := context.Background()

	w := mustWindow(t, "2020-02-10_12-00", 2, "")
	keys, err := mem.ListKeys(ctx, "sdr", w.Prefix())
	require.NoError(t, err)

	ws, err := mgr.Prepare(ctx, w, "sdr")
	require.NoError(t, err)
	assert.Len(t, ws.Manifest, len(window.Select(keys, w)))
}

func TestPrepareReturnsUniqueIDs(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	w := mustWindow(t, "2020-02-10_12-00", 1, "")

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		ws, err := mgr.Prepare(ctx, w, "sdr")
		require.NoError(t, err)
		assert.False(t, seen[ws.ID], "id %s returned twice", ws.ID)
		seen[ws.ID] = true
	}
}

func TestPrepareEmptySelection(t *testing.T) {
	mgr, _ := newTestManager(t)

	ws, err := mgr.Prepare(context.Background(), mustWindow(t, "2020-02-10_03-00", 5, ""), "sdr")
	require.NoError(t, err)
	assert.NotNil(t, ws.Manifest)
	assert.Empty(t, ws.Manifest)
	assert.DirExists(t, ws.Dir)
}

func TestPreparePurgesStaleDirectory(t *testing.T) {
	mgr, _ := newTestManager(t)
	mgr.newID = func() string { return "fixed-id" }

	stale := filepath.Join(mgr.Root(), "fixed-id")
	require.NoError(t, os.MkdirAll(stale, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(stale, "leftover.wav"), []byte("old"), 0o644))

	ws, err := mgr.Prepare(context.Background(), mustWindow(t, "2020-02-10_12-00", 1, "120_5MHz"), "sdr")
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(stale, "leftover.wav"))
	assert.Equal(t, []string{"2020_02_10__12_00_00.wav"}, ws.Manifest)
}

func TestPrepareAbortsOnDownloadFailure(t *testing.T) {
	mgr, mem := newTestManager(t)
	mem.FailDownload(recordings[1], sverr.ErrStoreUnavailable.WithMessage("connection reset"))

	ws, err := mgr.Prepare(context.Background(), mustWindow(t, "2020-02-10_12-00", 2, "120_5MHz"), "sdr")
	require.Error(t, err)
	assert.ErrorIs(t, err, sverr.ErrStoreUnavailable)

	// The partially populated directory is left for inspection.
	require.NotEmpty(t, ws.ID)
	assert.DirExists(t, ws.Dir)
	assert.FileExists(t, filepath.Join(ws.Dir, "2020_02_10__12_00_00.wav"))
	assert.NoFileExists(t, filepath.Join(ws.Dir, "2020_02_10__12_01_00.wav"))
	assert.Equal(t, []string{"2020_02_10__12_00_00.wav"}, ws.Manifest)
}

func TestPrepareAbortsOnListingFailure(t *testing.T) {
	mgr, mem := newTestManager(t)
	mem.FailList(sverr.ErrStoreClient.WithMessage("NoSuchBucket"))

	ws, err := mgr.Prepare(context.Background(), mustWindow(t, "2020-02-10_12-00", 2, ""), "sdr")
	assert.ErrorIs(t, err, sverr.ErrStoreClient)
	assert.DirExists(t, ws.Dir)
}

func TestPrepareWithMockGateway(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	gw := mocks.NewMockGateway(ctrl)
	root := filepath.Join(t.TempDir(), "staging")
	mgr, err := NewManager(root, gw, catalog.New(gw, "sdr", nil), nil)
	require.NoError(t, err)
	mgr.newID = func() string { return "ws-1" }

	ctx := context.Background()
	gw.EXPECT().ListKeys(ctx, "archive", "/2020-02-10/120_5MHz").Return(recordings[:2], nil)
	gomock.InOrder(
		gw.EXPECT().Download(ctx, "archive", recordings[0], filepath.Join(root, "ws-1", "2020_02_10__12_00_00.wav")).Return(int64(10), nil),
		gw.EXPECT().Download(ctx, "archive", recordings[1], filepath.Join(root, "ws-1", "2020_02_10__12_01_00.wav")).Return(int64(10), nil),
	)

	ws, err := mgr.Prepare(ctx, mustWindow(t, "2020-02-10_12-00", 2, "120_5MHz"), "archive")
	require.NoError(t, err)
	assert.Equal(t, "ws-1", ws.ID)
	assert.Len(t, ws.Manifest, 2)
}

func TestOpen(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	ws, err := mgr.Prepare(ctx, mustWindow(t, "2020-02-10_12-00", 2, "120_5MHz"), "sdr")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(ws.Dir, ".tmp-x.wav-12345678"), nil, 0o644))

	opened, err := mgr.Open(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, ws.Dir, opened.Dir)
	assert.Equal(t, []string{"2020_02_10__12_00_00.wav", "2020_02_10__12_01_00.wav"}, opened.Manifest)

	_, err = mgr.Open(ctx, "does-not-exist")
	assert.ErrorIs(t, err, sverr.ErrWorkspaceNotFound)

	_, err = mgr.Open(ctx, "../etc")
	assert.ErrorIs(t, err, sverr.ErrInvalidArgument)
}

func TestClear(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	ws, err := mgr.Prepare(ctx, mustWindow(t, "2020-02-10_12-00", 1, ""), "sdr")
	require.NoError(t, err)

	require.NoError(t, mgr.Clear(ctx, ws.ID))
	assert.NoDirExists(t, ws.Dir)
	assert.ErrorIs(t, mgr.Clear(ctx, ws.ID), sverr.ErrWorkspaceNotFound)
}

func TestClearAllThenClearFails(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		ws, err := mgr.Prepare(ctx, mustWindow(t, "2020-02-10_12-00", 1, ""), "sdr")
		require.NoError(t, err)
		ids = append(ids, ws.ID)
	}
	// Stray files in the root are not workspaces.
	require.NoError(t, os.WriteFile(filepath.Join(mgr.Root(), "README"), []byte("x"), 0o644))

	n, err := mgr.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	for _, id := range ids {
		assert.ErrorIs(t, mgr.Clear(ctx, id), sverr.ErrWorkspaceNotFound)
	}
	assert.FileExists(t, filepath.Join(mgr.Root(), "README"))
}

func TestClearAllMissingOrEmptyRoot(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	n, err := mgr.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, os.MkdirAll(mgr.Root(), 0o755))
	n, err = mgr.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCleanupRemovesOnlyOldWorkspaces(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	w := mustWindow(t, "2020-02-10_12-00", 1, "")

	oldWS, err := mgr.Prepare(ctx, w, "sdr")
	require.NoError(t, err)
	newWS, err := mgr.Prepare(ctx, w, "sdr")
	require.NoError(t, err)

	now := time.Now()
	mgr.now = func() time.Time { return now }
	old := now.Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(oldWS.Dir, old, old))

	n, err := mgr.Cleanup(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoDirExists(t, oldWS.Dir)
	assert.DirExists(t, newWS.Dir)

	_, err = mgr.Cleanup(ctx, 0)
	assert.ErrorIs(t, err, sverr.ErrInvalidArgument)
}

func TestCleanTempFiles(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	ws, err := mgr.Prepare(ctx, mustWindow(t, "2020-02-10_12-00", 1, "120_5MHz"), "sdr")
	require.NoError(t, err)
	tmp := filepath.Join(ws.Dir, ".tmp-2020_02_10__12_00_00.wav-abcdef12")
	require.NoError(t, os.WriteFile(tmp, []byte("partial"), 0o644))

	n, err := mgr.CleanTempFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, tmp)
	assert.FileExists(t, filepath.Join(ws.Dir, "2020_02_10__12_00_00.wav"))
}

func TestValidateID(t *testing.T) {
	valid := []string{"3f2a9c1e-4b7d-11ea-b77f-2e728ce88125", "ws-1"}
	for _, id := range valid {
		assert.NoError(t, ValidateID(id), id)
	}
	invalid := []string{"", " ", ".", "..", "a/b", `a\b`, " padded", ".tmp-x"}
	for _, id := range invalid {
		assert.ErrorIs(t, ValidateID(id), sverr.ErrInvalidArgument, id)
	}
}

func TestNewManagerRejectsEmptyRoot(t *testing.T) {
	_, err := NewManager("  ", storage.NewMemoryGateway(), nil, nil)
	assert.ErrorIs(t, err, sverr.ErrConfiguration)
}
