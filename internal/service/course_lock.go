package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/computor-org/computor-vscode-sub001/internal/repository"
	"github.com/gofrs/flock"
)

const lockRetryDelay = 100 * time.Millisecond

// courseLocks 按课程串行化对同一镜像的操作，进程内用互斥锁，进程间用文件锁
type courseLocks struct {
	dir  string
	name string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// newCourseLocks 锁文件位于 <dir>/<course>/<name>，在镜像工作区之外
func newCourseLocks(dir, name string) *courseLocks {
	return &courseLocks{dir: dir, name: name, locks: make(map[string]*sync.Mutex)}
}

func (c *courseLocks) path(courseID string) string {
	return filepath.Join(c.dir, repository.SanitizeCourseID(courseID), c.name)
}

// lock 阻塞直到本进程和共享镜像目录的其他进程都释放该课程，返回对应的 unlock
func (c *courseLocks) lock(ctx context.Context, courseID string) (func(), error) {
	c.mu.Lock()
	m, ok := c.locks[courseID]
	if !ok {
		m = &sync.Mutex{}
		c.locks[courseID] = m
	}
	c.mu.Unlock()

	m.Lock()

	p := c.path(courseID)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		m.Unlock()
		return nil, newError(ErrRepository, err, "无法创建课程 %s 的锁目录", courseID)
	}

	fl := flock.New(p)
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		m.Unlock()
		if err == nil {
			err = fmt.Errorf("未获得锁 %s", p)
		}
		return nil, newError(ErrRepository, err, "课程 %s 正被其他操作占用", courseID)
	}

	return func() {
		_ = fl.Unlock()
		m.Unlock()
	}, nil
}
