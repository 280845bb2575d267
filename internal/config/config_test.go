package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".computor.ini")
	content := `[default]
mirror_dir = ` + filepath.Join(dir, "m") + `
backup_dir = ` + filepath.Join(dir, "b") + `

[api]
base_url = https://computor.test/api
timeout = 30s

[git]
exec_path = /usr/bin/git
timeout = 45

[release]
fanout_workers = 3

[log]
level = debug
enable_file = true

[backup]
sftp_host = backup.test
sftp_port = 2222
insecure_ignore_host_key = true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("COMPUTOR_API_URL", "")
	t.Setenv("COMPUTOR_MIRROR_DIR", "")
	t.Setenv("COMPUTOR_LOG_LEVEL", "")
	t.Setenv("COMPUTOR_GIT_TIMEOUT", "")

	cfg, err := LoadConfigFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "https://computor.test/api", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, "/usr/bin/git", cfg.Git.ExecPath)
	assert.Equal(t, 45*time.Second, cfg.Git.Timeout)
	assert.Equal(t, 3, cfg.Release.FanoutWorkers)
	assert.Equal(t, "skip_if_exists", cfg.Release.OverwriteStrategy)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.EnableFile)
	assert.True(t, cfg.HasSFTPBackup())
	assert.Equal(t, 2222, cfg.Backup.SFTPPort)
	assert.True(t, cfg.Backup.InsecureIgnoreHostKey)

	assert.DirExists(t, filepath.Join(dir, "m"))
	assert.DirExists(t, filepath.Join(dir, "b"))
}

func TestDefaultChecksHostKeys(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.Backup.InsecureIgnoreHostKey)
	assert.Empty(t, cfg.Backup.KnownHostsFile)
	assert.False(t, cfg.HasSFTPBackup())
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("COMPUTOR_API_URL", "https://env.test")
	t.Setenv("COMPUTOR_MIRROR_DIR", filepath.Join(dir, "env-mirrors"))
	t.Setenv("COMPUTOR_GIT_TIMEOUT", "2m")
	t.Setenv("COMPUTOR_LOG_LEVEL", "")

	cfg, err := LoadConfigFrom("")
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(dir, "mirror-backups"))

	assert.Equal(t, "https://env.test", cfg.API.BaseURL)
	assert.Equal(t, filepath.Join(dir, "env-mirrors"), cfg.MirrorDir)
	assert.Equal(t, 2*time.Minute, cfg.Git.Timeout)
	assert.False(t, cfg.HasSFTPBackup())
}

func TestSetDuration(t *testing.T) {
	d := time.Second
	setDuration(&d, "not-a-duration")
	assert.Equal(t, time.Second, d)

	setDuration(&d, "15")
	assert.Equal(t, 15*time.Second, d)

	setDuration(&d, "1m30s")
	assert.Equal(t, 90*time.Second, d)
}
