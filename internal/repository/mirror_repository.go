package repository

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/computor-org/computor-vscode-sub001/internal/config"
)

// MirrorRepository 管理每门课程的本地镜像目录
type MirrorRepository interface {
	// Root 返回课程镜像的工作目录
	Root(courseID string) string

	// Exists 镜像是否已克隆（存在 .git）
	Exists(courseID string) bool

	// BackupCopy 将工作区平铺复制到带时间戳的备份目录，不包含 .git
	BackupCopy(courseID string) (string, error)

	// Remove 删除整个镜像目录
	Remove(courseID string) error
}

type mirrorRepository struct {
	mirrorDir string
	backupDir string
	now       func() time.Time
}

// NewMirrorRepository 创建镜像仓库实例
func NewMirrorRepository(cfg *config.Config) MirrorRepository {
	return &mirrorRepository{
		mirrorDir: cfg.MirrorDir,
		backupDir: cfg.BackupDir,
		now:       time.Now,
	}
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeCourseID 将课程标识映射为单个安全的路径段
func SanitizeCourseID(courseID string) string {
	s := unsafeChars.ReplaceAllString(courseID, "_")
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

func (r *mirrorRepository) Root(courseID string) string {
	return filepath.Join(r.mirrorDir, SanitizeCourseID(courseID), "assignments")
}

func (r *mirrorRepository) Exists(courseID string) bool {
	info, err := os.Stat(filepath.Join(r.Root(courseID), ".git"))
	return err == nil && info.IsDir()
}

func (r *mirrorRepository) BackupCopy(courseID string) (string, error) {
	src := r.Root(courseID)
	if _, err := os.Stat(src); err != nil {
		return "", fmt.Errorf("镜像目录不存在: %w", err)
	}

	base := filepath.Join(r.backupDir, fmt.Sprintf("%s-%s", SanitizeCourseID(courseID), r.now().Format("20060102-150405")))
	dst := base
	for i := 1; ; i++ {
		if _, err := os.Stat(dst); os.IsNotExist(err) {
			break
		}
		dst = fmt.Sprintf("%s-%d", base, i)
	}

	if err := os.MkdirAll(dst, 0755); err != nil {
		return "", fmt.Errorf("创建备份目录失败: %w", err)
	}

	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}

		target := filepath.Join(dst, rel)
		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0755)
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(p)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case d.Type().IsRegular():
			return copyFile(p, target)
		default:
			return nil
		}
	})
	if err != nil {
		return dst, fmt.Errorf("备份镜像失败 (%s): %w", dst, err)
	}
	return dst, nil
}

func (r *mirrorRepository) Remove(courseID string) error {
	if err := os.RemoveAll(r.Root(courseID)); err != nil {
		return fmt.Errorf("删除镜像失败: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
