package service

import (
	"github.com/computor-org/computor-vscode-sub001/internal/domain"
)

// Operator 执行发布的操作员。操作员中途退出提示时返回 ErrCancelled
type Operator interface {
	// Progress 每次状态转换时调用
	Progress(state ReleaseState, message string)

	// Warn 非致命问题
	Warn(message string)

	// ConfirmRelease 展示即将发布的全部标题
	ConfirmRelease(titles []string) (bool, error)

	// SelectUploads 默认全选
	SelectUploads(candidates []UploadCandidate) ([]UploadCandidate, error)

	SelectExampleRepository(repos []domain.ExampleRepository) (*domain.ExampleRepository, error)
}

// UploadCandidate 示例目录中缺失的本地作业目录
type UploadCandidate struct {
	ContentID  string
	Title      string
	Directory  string
	Path       string
	Descriptor domain.ExampleDescriptor
	Reason     string
}

func (c UploadCandidate) Label() string {
	return c.Descriptor.Slug + "@" + c.Descriptor.Version + " (" + c.Directory + ")"
}
