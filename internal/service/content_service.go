package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/computor-org/computor-vscode-sub001/internal/domain"
	"github.com/computor-org/computor-vscode-sub001/internal/logger"
)

// DeploymentAPI 分配与取消分配
type DeploymentAPI interface {
	AssignExample(ctx context.Context, contentID string, req domain.AssignExampleRequest) (*domain.CourseContent, error)
	UnassignExample(ctx context.Context, contentID string) error
	GetCourseContent(ctx context.Context, contentID string) (*domain.CourseContent, error)
}

// ContentService 手动管理课程内容与示例的绑定
type ContentService interface {
	// Assign 绑定示例，内容状态从 unassigned 变为 pending
	Assign(ctx context.Context, contentID, exampleIdentifier, versionTag string) (*domain.CourseContent, error)

	// Unassign 删除部署记录
	Unassign(ctx context.Context, contentID string) (*domain.CourseContent, error)
}

type contentService struct {
	api DeploymentAPI
}

func NewContentService(api DeploymentAPI) ContentService {
	return &contentService{api: api}
}

func (s *contentService) Assign(ctx context.Context, contentID, exampleIdentifier, versionTag string) (*domain.CourseContent, error) {
	exampleIdentifier = strings.TrimSpace(exampleIdentifier)
	if exampleIdentifier == "" {
		return nil, fmt.Errorf("示例标识不能为空")
	}

	req := domain.AssignExampleRequest{ExampleIdentifier: exampleIdentifier, VersionTag: strings.TrimSpace(versionTag)}
	content, err := s.api.AssignExample(ctx, contentID, req)
	if err != nil {
		return nil, fmt.Errorf("分配示例失败: %w", err)
	}
	logger.GetLogger().Info("已分配示例: content=%s, example=%s, version=%s, status=%s",
		contentID, exampleIdentifier, req.VersionTag, content.Status())
	return content, nil
}

func (s *contentService) Unassign(ctx context.Context, contentID string) (*domain.CourseContent, error) {
	if err := s.api.UnassignExample(ctx, contentID); err != nil {
		return nil, fmt.Errorf("取消分配失败: %w", err)
	}
	content, err := s.api.GetCourseContent(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("读取课程内容失败: %w", err)
	}
	if content.Status() != domain.StatusUnassigned || content.ExampleVersionID() != "" {
		return content, fmt.Errorf("内容 %s 仍有部署记录 (status=%s)", contentID, content.Status())
	}
	logger.GetLogger().Info("已取消分配: content=%s", contentID)
	return content, nil
}
