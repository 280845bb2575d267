package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/computor-org/computor-vscode-sub001/internal/config"
	"github.com/computor-org/computor-vscode-sub001/internal/logger"
)

// GitService git 命令行操作接口
type GitService interface {
	// Clone 克隆远程仓库到 dir
	Clone(ctx context.Context, remoteURL, dir string) error

	// PullFastForward 只允许快进合并；历史被改写时返回 ErrHistoryConflict
	PullFastForward(ctx context.Context, dir string) error

	// IsClean 工作区是否没有任何改动（包括未跟踪文件）
	IsClean(ctx context.Context, dir string) (bool, error)

	AddAll(ctx context.Context, dir string) error

	// Commit 提交暂存区；"nothing to commit" 视为成功
	Commit(ctx context.Context, dir, message string) error

	Push(ctx context.Context, dir string) error

	// Unpushed 返回本地领先上游分支的提交数
	Unpushed(ctx context.Context, dir string) (int, error)

	// Head 返回 HEAD 的提交哈希
	Head(ctx context.Context, dir string) (string, error)
}

// GitError 失败的 git 调用，所有字段中的凭据均已脱敏
type GitError struct {
	Args   []string
	Output string
	Err    error
}

func (e *GitError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
	}
	return fmt.Sprintf("git %s: %v: %s", strings.Join(e.Args, " "), e.Err, out)
}

func (e *GitError) Unwrap() error { return e.Err }

type gitService struct {
	config *config.Config
}

// NewGitService 创建 git 服务实例
func NewGitService(cfg *config.Config) GitService {
	return &gitService{config: cfg}
}

func (s *gitService) Clone(ctx context.Context, remoteURL, dir string) error {
	log := logger.GetLogger()
	log.Info("克隆仓库: %s -> %s", RedactURL(remoteURL), dir)

	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		return fmt.Errorf("创建镜像父目录失败: %w", err)
	}

	ctx, cancel := s.networkContext(ctx)
	defer cancel()

	if _, err := s.run(ctx, "", "clone", remoteURL, dir); err != nil {
		log.Error("克隆失败: %v", err)
		return err
	}
	return nil
}

func (s *gitService) PullFastForward(ctx context.Context, dir string) error {
	log := logger.GetLogger()
	log.Debug("拉取更新 (--ff-only): %s", dir)

	ctx, cancel := s.networkContext(ctx)
	defer cancel()

	_, err := s.run(ctx, dir, "pull", "--ff-only")
	if err == nil {
		return nil
	}

	var gerr *GitError
	if errors.As(err, &gerr) && isHistoryConflict(gerr.Output) {
		log.Warn("远程历史已被改写: %s", dir)
		return fmt.Errorf("%w: %w", ErrHistoryConflict, err)
	}
	return err
}

func (s *gitService) IsClean(ctx context.Context, dir string) (bool, error) {
	out, err := s.run(ctx, dir, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == "", nil
}

func (s *gitService) AddAll(ctx context.Context, dir string) error {
	_, err := s.run(ctx, dir, "add", "-A")
	return err
}

func (s *gitService) Commit(ctx context.Context, dir, message string) error {
	_, err := s.run(ctx, dir, "commit", "-m", message)
	var gerr *GitError
	if errors.As(err, &gerr) && isNothingToCommit(gerr.Output) {
		logger.GetLogger().Debug("没有需要提交的改动: %s", dir)
		return nil
	}
	return err
}

func (s *gitService) Push(ctx context.Context, dir string) error {
	ctx, cancel := s.networkContext(ctx)
	defer cancel()

	_, err := s.run(ctx, dir, "push")
	return err
}

func (s *gitService) Unpushed(ctx context.Context, dir string) (int, error) {
	out, err := s.run(ctx, dir, "rev-list", "--count", "@{upstream}..HEAD")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("解析 rev-list 输出失败 %q: %w", strings.TrimSpace(out), err)
	}
	return n, nil
}

func (s *gitService) Head(ctx context.Context, dir string) (string, error) {
	out, err := s.run(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (s *gitService) networkContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.Git.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.Git.Timeout)
}

// run 执行 git 命令，返回 stdout；失败时返回脱敏后的 GitError
func (s *gitService) run(ctx context.Context, dir string, args ...string) (string, error) {
	execPath := s.config.Git.ExecPath
	if execPath == "" {
		execPath = "git"
	}

	cmd := exec.CommandContext(ctx, execPath, args...)
	cmd.Dir = dir
	cmd.Env = s.env()
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w (%v)", ctx.Err(), err)
		}
		redacted := make([]string, len(args))
		for i, a := range args {
			redacted[i] = RedactURL(a)
		}
		return stdout.String(), &GitError{
			Args:   redacted,
			Output: RedactURL(stderr.String() + stdout.String()),
			Err:    err,
		}
	}
	return stdout.String(), nil
}

func (s *gitService) env() []string {
	env := append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")
	if name := s.config.Git.AuthorName; name != "" {
		env = append(env, "GIT_AUTHOR_NAME="+name, "GIT_COMMITTER_NAME="+name)
	}
	if email := s.config.Git.AuthorEmail; email != "" {
		env = append(env, "GIT_AUTHOR_EMAIL="+email, "GIT_COMMITTER_EMAIL="+email)
	}
	return env
}

// AuthenticatedURL 以 oauth2 basic auth 的形式把 token 写入 HTTPS 远程地址
func AuthenticatedURL(remote, token string) (string, error) {
	if token == "" || !(strings.HasPrefix(remote, "https://") || strings.HasPrefix(remote, "http://")) {
		return remote, nil
	}
	u, err := url.Parse(remote)
	if err != nil {
		return "", fmt.Errorf("解析远程地址失败: %w", err)
	}
	u.User = url.UserPassword("oauth2", token)
	return u.String(), nil
}

var credentialInURL = regexp.MustCompile(`(https?://)[^@/\s]+@`)

// RedactURL 隐藏 URL 中的凭据
func RedactURL(s string) string {
	return credentialInURL.ReplaceAllString(s, "${1}***@")
}

var historyConflictSignatures = []string{
	"not possible to fast-forward",
	"diverg",
	"non-fast-forward",
	"unrelated histories",
	"forced update",
}

func isHistoryConflict(output string) bool {
	lower := strings.ToLower(output)
	for _, sig := range historyConflictSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

func isNothingToCommit(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "nothing to commit") || strings.Contains(lower, "nothing added to commit")
}
