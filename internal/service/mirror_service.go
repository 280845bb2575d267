package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/computor-org/computor-vscode-sub001/internal/config"
	"github.com/computor-org/computor-vscode-sub001/internal/domain"
	"github.com/computor-org/computor-vscode-sub001/internal/logger"
	"github.com/computor-org/computor-vscode-sub001/internal/repository"
)

// MirrorStore 维护每门课程的本地 assignments 镜像
type MirrorStore interface {
	// EnsureMirror 不存在则克隆，否则 pull --ff-only；历史冲突时备份并重新克隆
	EnsureMirror(ctx context.Context, course *domain.Course) (*MirrorHandle, error)

	// CommitAndPush 提交所有改动，并推送所有领先上游的提交，返回远程已有的 HEAD
	CommitAndPush(ctx context.Context, course *domain.Course) (*MirrorHandle, error)

	// HeadOf 返回镜像 HEAD，必要时先准备镜像
	HeadOf(ctx context.Context, course *domain.Course) (string, error)

	// Status 只读查看镜像状态，不访问远程
	Status(ctx context.Context, course *domain.Course) (*MirrorStatus, error)
}

// MirrorHandle 镜像操作的结果
type MirrorHandle struct {
	Root       string
	Head       string
	Committed  bool
	Pushed     bool
	Recovered  bool
	BackupPath string
	Warnings   []string
}

type MirrorStatus struct {
	Root   string
	Exists bool
	Clean  bool
	Head   string
}

// BackupUploader 将恢复备份复制到远程
type BackupUploader interface {
	UploadDir(ctx context.Context, localDir, remoteName string) error
}

const mirrorLockFile = ".mirror.lock"

type mirrorStore struct {
	config  *config.Config
	repo    repository.MirrorRepository
	git     GitService
	token   string
	offsite BackupUploader
	locks   *courseLocks
	now     func() time.Time
}

// NewMirrorStore 创建镜像服务。offsite 可以为 nil
func NewMirrorStore(cfg *config.Config, repo repository.MirrorRepository, git GitService, gitToken string, offsite BackupUploader) MirrorStore {
	return &mirrorStore{
		config:  cfg,
		repo:    repo,
		git:     git,
		token:   gitToken,
		offsite: offsite,
		locks:   newCourseLocks(cfg.MirrorDir, mirrorLockFile),
		now:     time.Now,
	}
}

func (s *mirrorStore) EnsureMirror(ctx context.Context, course *domain.Course) (*MirrorHandle, error) {
	unlock, err := s.locks.lock(ctx, course.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	h, err := s.ensureLocked(ctx, course)
	if err != nil {
		return nil, err
	}
	if h.Head, err = s.git.Head(ctx, h.Root); err != nil {
		return nil, newError(ErrRepository, err, "无法解析 HEAD")
	}
	return h, nil
}

func (s *mirrorStore) CommitAndPush(ctx context.Context, course *domain.Course) (*MirrorHandle, error) {
	unlock, err := s.locks.lock(ctx, course.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	log := logger.GetLogger()

	h, err := s.ensureLocked(ctx, course)
	if err != nil {
		return nil, err
	}

	clean, err := s.git.IsClean(ctx, h.Root)
	if err != nil {
		return nil, newError(ErrRepository, err, "无法读取工作区状态")
	}
	if !clean {
		msg := s.commitMessage()
		log.Info("提交镜像改动: course=%s, message=%q", course.ID, msg)

		if err := s.git.AddAll(ctx, h.Root); err != nil {
			return nil, newError(ErrRepository, err, "暂存改动失败")
		}
		if err := s.git.Commit(ctx, h.Root, msg); err != nil {
			return nil, newError(ErrRepository, err, "提交失败")
		}
		h.Committed = true
	}

	// 之前推送失败留下的本地提交也要推送
	ahead, err := s.git.Unpushed(ctx, h.Root)
	if err != nil {
		return nil, newError(ErrRepository, err, "无法与上游分支比较")
	}
	if ahead > 0 {
		log.Info("推送本地提交: course=%s, ahead=%d", course.ID, ahead)
		if err := s.git.Push(ctx, h.Root); err != nil {
			return nil, newError(ErrRepository, err, "推送失败")
		}
		h.Pushed = true
	}

	head, err := s.git.Head(ctx, h.Root)
	if err != nil {
		return nil, newError(ErrRepository, err, "无法解析 HEAD")
	}
	h.Head = head
	log.Info("镜像已同步: course=%s, head=%s, committed=%v, pushed=%v", course.ID, shortHash(head), h.Committed, h.Pushed)
	return h, nil
}

func (s *mirrorStore) HeadOf(ctx context.Context, course *domain.Course) (string, error) {
	unlock, err := s.locks.lock(ctx, course.ID)
	if err != nil {
		return "", err
	}
	defer unlock()

	root := s.repo.Root(course.ID)
	if !s.repo.Exists(course.ID) {
		h, err := s.ensureLocked(ctx, course)
		if err != nil {
			return "", err
		}
		root = h.Root
	}

	head, err := s.git.Head(ctx, root)
	if err != nil {
		return "", newError(ErrRepository, err, "无法解析 HEAD")
	}
	return head, nil
}

func (s *mirrorStore) Status(ctx context.Context, course *domain.Course) (*MirrorStatus, error) {
	unlock, err := s.locks.lock(ctx, course.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	st := &MirrorStatus{Root: s.repo.Root(course.ID), Exists: s.repo.Exists(course.ID)}
	if !st.Exists {
		return st, nil
	}

	clean, err := s.git.IsClean(ctx, st.Root)
	if err != nil {
		return nil, newError(ErrRepository, err, "无法读取工作区状态")
	}
	head, err := s.git.Head(ctx, st.Root)
	if err != nil {
		return nil, newError(ErrRepository, err, "无法解析 HEAD")
	}
	st.Clean = clean
	st.Head = head
	return st, nil
}

func (s *mirrorStore) ensureLocked(ctx context.Context, course *domain.Course) (*MirrorHandle, error) {
	log := logger.GetLogger()
	root := s.repo.Root(course.ID)

	remote, err := s.remoteURL(course)
	if err != nil {
		return nil, err
	}

	if !s.repo.Exists(course.ID) {
		log.Info("本地镜像不存在，开始克隆: course=%s", course.ID)
		if err := s.git.Clone(ctx, remote, root); err != nil {
			return nil, newError(ErrMirrorUnavailable, err, "课程 %s 克隆失败", course.ID)
		}
		return &MirrorHandle{Root: root}, nil
	}

	err = s.git.PullFastForward(ctx, root)
	if err == nil {
		return &MirrorHandle{Root: root}, nil
	}
	if !errors.Is(err, ErrHistoryConflict) {
		return nil, newError(ErrMirrorUnavailable, err, "课程 %s 拉取失败", course.ID)
	}
	return s.recover(ctx, course, root, remote)
}

// recover 备份工作区 -> 删除镜像 -> 重新克隆。任一步失败都会返回已成功的备份路径
func (s *mirrorStore) recover(ctx context.Context, course *domain.Course, root, remote string) (*MirrorHandle, error) {
	log := logger.GetLogger()
	log.Warn("检测到远程历史冲突，开始恢复: course=%s", course.ID)

	backup, err := s.repo.BackupCopy(course.ID)
	if err != nil {
		// 镜像保持原样
		return nil, newError(ErrMirrorUnavailable, err, "历史冲突: 备份 %s 失败，镜像保持原样", root)
	}
	log.Info("镜像已备份: %s", backup)

	h := &MirrorHandle{Root: root, Recovered: true, BackupPath: backup}

	if s.offsite != nil {
		name := filepath.Base(backup)
		if err := s.offsite.UploadDir(ctx, backup, name); err != nil {
			log.Warn("远程备份失败: %v", err)
			h.Warnings = append(h.Warnings, fmt.Sprintf("备份 %s 远程复制失败: %v", backup, err))
		} else {
			log.Info("远程备份完成: %s", name)
		}
	}

	if err := s.repo.Remove(course.ID); err != nil {
		return nil, newError(ErrMirrorUnavailable, err, "历史冲突: 删除镜像失败；本地改动已保存在 %s", backup)
	}
	if err := s.git.Clone(ctx, remote, root); err != nil {
		return nil, newError(ErrMirrorUnavailable, err, "历史冲突: 重新克隆失败；本地改动已保存在 %s", backup)
	}

	h.Warnings = append(h.Warnings, fmt.Sprintf(
		"%s: assignments 仓库的远程历史已被改写。镜像已重新克隆，原工作区已备份到 %s。如果再次发生，请联系课程维护者。",
		ErrHistoryConflict, backup))
	return h, nil
}

func (s *mirrorStore) remoteURL(course *domain.Course) (string, error) {
	remote, err := course.AssignmentsRemoteURL()
	if err != nil {
		return "", newError(ErrMirrorUnavailable, err, "课程 %s 没有远程仓库", course.ID)
	}
	auth, err := AuthenticatedURL(remote, s.token)
	if err != nil {
		return "", newError(ErrMirrorUnavailable, err, "课程 %s 的远程地址无效", course.ID)
	}
	return auth, nil
}

func (s *mirrorStore) commitMessage() string {
	prefix := strings.TrimSpace(s.config.Release.CommitMessage)
	if prefix == "" {
		prefix = "Update assignments"
	}
	return fmt.Sprintf("%s (%s)", prefix, s.now().UTC().Format("2006-01-02 15:04:05 UTC"))
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
