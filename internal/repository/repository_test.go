package repository

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/computor-org/computor-vscode-sub001/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func newMirrorRepo(t *testing.T) (*mirrorRepository, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.MirrorDir = filepath.Join(dir, "mirrors")
	cfg.BackupDir = filepath.Join(dir, "backups")
	r := NewMirrorRepository(cfg).(*mirrorRepository)
	r.now = func() time.Time { return time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC) }
	return r, dir
}

func TestSanitizeCourseID(t *testing.T) {
	assert.Equal(t, "abc-123", SanitizeCourseID("abc-123"))
	assert.Equal(t, "org_course", SanitizeCourseID("org/course"))
	assert.Equal(t, "_", SanitizeCourseID(".."))
	assert.Equal(t, "_", SanitizeCourseID(""))
}

func TestMirrorRootIsDeterministic(t *testing.T) {
	r, dir := newMirrorRepo(t)
	assert.Equal(t, filepath.Join(dir, "mirrors", "c1", "assignments"), r.Root("c1"))
	assert.Equal(t, r.Root("c1"), r.Root("c1"))
	assert.False(t, r.Exists("c1"))

	require.NoError(t, os.MkdirAll(filepath.Join(r.Root("c1"), ".git"), 0755))
	assert.True(t, r.Exists("c1"))
}

func TestBackupCopyStripsGitMetadata(t *testing.T) {
	r, dir := newMirrorRepo(t)
	root := r.Root("c1")
	writeFile(t, filepath.Join(root, ".git", "HEAD"), "ref: refs/heads/main\n")
	writeFile(t, filepath.Join(root, "hello", "meta.yaml"), "slug: hello\n")
	writeFile(t, filepath.Join(root, "hello", "main.py"), "print('hi')\n")

	backup, err := r.BackupCopy("c1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "backups", "c1-20260301-123000"), backup)
	assert.FileExists(t, filepath.Join(backup, "hello", "main.py"))
	assert.NoDirExists(t, filepath.Join(backup, ".git"))

	second, err := r.BackupCopy("c1")
	require.NoError(t, err)
	assert.NotEqual(t, backup, second)
}

func TestRemoveMirror(t *testing.T) {
	r, _ := newMirrorRepo(t)
	writeFile(t, filepath.Join(r.Root("c1"), "a.txt"), "x")
	require.NoError(t, r.Remove("c1"))
	assert.NoDirExists(t, r.Root("c1"))
}

func TestScanAssignmentsAndDescriptor(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "hello", "meta.yaml"), `
slug: hello.world
version: " 1.2 "
title: Hello
properties:
  studentSubmissionFiles: [main.py]
  executionBackend:
    slug: python
`)
	writeFile(t, filepath.Join(root, "notes", "README.md"), "no descriptor here")
	writeFile(t, filepath.Join(root, ".hidden", "meta.yaml"), "slug: x\n")

	repo := NewAssignmentRepository()
	dirs, err := repo.ScanAssignments(root)
	require.NoError(t, err)
	require.Len(t, dirs, 1)
	assert.Equal(t, "hello", dirs[0].Name)
	assert.Equal(t, "hello.world", dirs[0].Descriptor.Slug)
	assert.Equal(t, "1.2", dirs[0].Descriptor.Version)
	assert.True(t, dirs[0].Descriptor.Complete())
	assert.Equal(t, []string{"main.py"}, dirs[0].Descriptor.Properties.StudentSubmissionFiles)
	assert.Equal(t, "python", dirs[0].Descriptor.Properties.ExecutionBackend.Slug)

	_, err = repo.ReadDescriptor(filepath.Join(root, "notes"))
	assert.ErrorIs(t, err, ErrDescriptorNotFound)
}

func TestScanAssignmentsRecordsBrokenDescriptor(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "broken", "meta.yaml"), "slug: [unclosed\n")
	writeFile(t, filepath.Join(root, "ok", "meta.yaml"), "slug: ok\nversion: \"1\"\n")

	dirs, err := NewAssignmentRepository().ScanAssignments(root)
	require.NoError(t, err)
	require.Len(t, dirs, 2)
	assert.Equal(t, "broken", dirs[0].Name)
	assert.Error(t, dirs[0].Err)
	assert.Nil(t, dirs[0].Descriptor)
	assert.NoError(t, dirs[1].Err)
	assert.Equal(t, "ok", dirs[1].Descriptor.Slug)

	_, err = NewAssignmentRepository().ScanAssignments(filepath.Join(root, "absent"))
	assert.Error(t, err)
}

func TestReadDescriptorInvalidYAML(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "meta.yaml"), "slug: [unclosed\n")
	_, err := NewAssignmentRepository().ReadDescriptor(root)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDescriptorNotFound)
}

func TestPackageFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "meta.yaml"), "slug: a\n")
	writeFile(t, filepath.Join(root, "tests", "test.py"), "assert True\n")
	writeFile(t, filepath.Join(root, ".git", "config"), "[core]\n")

	files, err := NewAssignmentRepository().PackageFiles(root)
	require.NoError(t, err)
	assert.Len(t, files, 2)

	raw, err := base64.StdEncoding.DecodeString(files["tests/test.py"])
	require.NoError(t, err)
	assert.Equal(t, "assert True\n", string(raw))

	_, err = NewAssignmentRepository().PackageFiles(t.TempDir())
	assert.Error(t, err)
}
