package settings

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spyglass-browser/spyglass/pkg/pagecontext"
)

func testService(t *testing.T) *Service {
	t.Helper()
	svc, err := Open(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestStorageRoundTrip(t *testing.T) {
	storage, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	defer func() { _ = storage.Close() }()

	require.NoError(t, storage.Set("answer", 42))

	var got int
	require.NoError(t, storage.Get("answer", &got))
	assert.Equal(t, 42, got)

	// Overwrite replaces the previous value.
	require.NoError(t, storage.Set("answer", 7))
	require.NoError(t, storage.Get("answer", &got))
	assert.Equal(t, 7, got)

	require.NoError(t, storage.Delete("answer"))
	assert.ErrorIs(t, storage.Get("answer", &got), ErrKeyNotFound)
}

func TestStorageMissingKey(t *testing.T) {
	storage, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	defer func() { _ = storage.Close() }()

	var out string
	assert.ErrorIs(t, storage.Get("never-written", &out), ErrKeyNotFound)
}

func TestDefaultPermissionsDenyByDefault(t *testing.T) {
	svc := testService(t)

	perms, err := svc.DefaultPermissions()
	require.NoError(t, err)
	assert.False(t, perms.ShareHistory)
	assert.False(t, perms.SharePageContent)
	assert.False(t, perms.ShareSelections)
	assert.Empty(t, perms.AllowedDomains)
}

func TestSetDefaultPermissions(t *testing.T) {
	svc := testService(t)

	want := pagecontext.Permissions{
		SharePageContent: true,
		ShareSelections:  true,
		AllowedDomains:   []string{"example.com"},
	}
	require.NoError(t, svc.SetDefaultPermissions(want))

	got, err := svc.DefaultPermissions()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestHistoryRetentionDays(t *testing.T) {
	svc := testService(t)

	days, err := svc.HistoryRetentionDays()
	require.NoError(t, err)
	assert.Equal(t, DefaultHistoryRetentionDays, days)

	require.NoError(t, svc.SetHistoryRetentionDays(30))
	days, err = svc.HistoryRetentionDays()
	require.NoError(t, err)
	assert.Equal(t, 30, days)

	assert.Error(t, svc.SetHistoryRetentionDays(0))
	assert.Error(t, svc.SetHistoryRetentionDays(-5))
}

func TestPruneSchedule(t *testing.T) {
	svc := testService(t)

	expr, err := svc.PruneSchedule()
	require.NoError(t, err)
	assert.Equal(t, DefaultPruneSchedule, expr)

	require.NoError(t, svc.SetPruneSchedule("30 2 * * 1"))
	expr, err = svc.PruneSchedule()
	require.NoError(t, err)
	assert.Equal(t, "30 2 * * 1", expr)
}

func TestSetPruneScheduleRejectsBadExpression(t *testing.T) {
	svc := testService(t)

	assert.Error(t, svc.SetPruneSchedule("not a cron expr"))
	assert.Error(t, svc.SetPruneSchedule("99 99 * * *"))

	// The bad write must not clobber the effective schedule.
	expr, err := svc.PruneSchedule()
	require.NoError(t, err)
	assert.Equal(t, DefaultPruneSchedule, expr)
}

func TestHomePage(t *testing.T) {
	svc := testService(t)

	url, err := svc.HomePage()
	require.NoError(t, err)
	assert.Equal(t, DefaultHomePage, url)

	require.NoError(t, svc.SetHomePage("https://start.example.com"))
	url, err = svc.HomePage()
	require.NoError(t, err)
	assert.Equal(t, "https://start.example.com", url)
}
