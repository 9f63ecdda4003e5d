package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tickingClock returns a clock that advances one second per call.
func tickingClock(t *testing.T) {
	t.Helper()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	orig := backupClock
	backupClock = func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	t.Cleanup(func() { backupClock = orig })
}

func TestBackupFile_Missing(t *testing.T) {
	backup, err := BackupFile(filepath.Join(t.TempDir(), ProjectFileName))

	require.NoError(t, err)
	assert.Empty(t, backup)
}

func TestBackupFile_CopiesContent(t *testing.T) {
	tickingClock(t)
	path := filepath.Join(t.TempDir(), ProjectFileName)
	writeFile(t, path, "repository:\n  id: central\n")

	backup, err := BackupFile(path)

	require.NoError(t, err)
	assert.Contains(t, filepath.Base(backup), ProjectFileName+BackupSuffix+".")
	data, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, "repository:\n  id: central\n", string(data))
}

func TestBackupFile_KeepsNewest(t *testing.T) {
	// Given: more backups than MaxBackups
	tickingClock(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "version: 1\n")

	var made []string
	for i := 0; i < MaxBackups+2; i++ {
		backup, err := BackupFile(path)
		require.NoError(t, err)
		made = append(made, backup)
	}

	// When: listing
	backups, err := ListBackups(path)

	// Then: only the newest MaxBackups remain, newest first
	require.NoError(t, err)
	require.Len(t, backups, MaxBackups)
	assert.Equal(t, made[len(made)-1], backups[0])
	assert.Equal(t, made[len(made)-MaxBackups], backups[MaxBackups-1])
}

func TestListBackups_NoDirectory(t *testing.T) {
	backups, err := ListBackups(filepath.Join(t.TempDir(), "missing", "config.yaml"))

	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestRestoreFile(t *testing.T) {
	// Given: a backup and a newer current file
	tickingClock(t)
	path := filepath.Join(t.TempDir(), ProjectFileName)
	writeFile(t, path, "repository:\n  id: old\n")
	backup, err := BackupFile(path)
	require.NoError(t, err)
	writeFile(t, path, "repository:\n  id: new\n")

	// When: restoring
	require.NoError(t, RestoreFile(backup, path))

	// Then: the old content is back and the new one was backed up
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "repository:\n  id: old\n", string(data))

	backups, err := ListBackups(path)
	require.NoError(t, err)
	require.Len(t, backups, 2)
	newest, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, "repository:\n  id: new\n", string(newest))
}

func TestRestoreFile_MissingBackup(t *testing.T) {
	err := RestoreFile(filepath.Join(t.TempDir(), "nope"), filepath.Join(t.TempDir(), "config.yaml"))
	assert.Error(t, err)
}
