package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/computor-org/computor-vscode-sub001/internal/domain"
)

// 错误分类
var (
	ErrMirrorUnavailable      = errors.New("镜像不可用")
	ErrHistoryConflict        = errors.New("远程历史冲突")
	ErrValidationBlocked      = errors.New("发布校验未通过")
	ErrUploadFailed           = errors.New("示例上传失败")
	ErrAssignmentSyncFailed   = errors.New("作业同步失败")
	ErrReleaseExecutionFailed = errors.New("发布执行失败")
	ErrRepository             = errors.New("仓库操作失败")
	ErrCancelled              = errors.New("操作员已取消")
)

// ReleaseError 错误分类 + 相关内容列表
type ReleaseError struct {
	Kind  error
	Msg   string
	Items []string
	Err   error
}

func (e *ReleaseError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if len(e.Items) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Items, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ReleaseError) Is(target error) bool { return target == e.Kind }

func (e *ReleaseError) Unwrap() error { return e.Err }

func newError(kind error, err error, format string, args ...any) *ReleaseError {
	return &ReleaseError{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// ValidationBlockedError 列出所有阻止发布的内容
type ValidationBlockedError struct {
	Issues []domain.ValidationIssue
}

func (e *ValidationBlockedError) Error() string {
	lines := make([]string, 0, len(e.Issues)+1)
	lines = append(lines, fmt.Sprintf("%s: %d 项内容无法发布", ErrValidationBlocked, len(e.Issues)))
	for _, i := range e.Issues {
		lines = append(lines, "  - "+i.String())
	}
	return strings.Join(lines, "\n")
}

func (e *ValidationBlockedError) Is(target error) bool { return target == ErrValidationBlocked }
