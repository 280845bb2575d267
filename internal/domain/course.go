package domain

import (
	"fmt"
	"strings"
)

// DeploymentStatus 部署状态
type DeploymentStatus string

const (
	StatusUnassigned DeploymentStatus = "unassigned"
	StatusPending    DeploymentStatus = "pending"
	StatusDeployed   DeploymentStatus = "deployed"
	StatusFailed     DeploymentStatus = "failed"
)

// ParseDeploymentStatus 归一化远端返回的状态字符串，工作流中的中间状态按 pending 处理
func ParseDeploymentStatus(s string) DeploymentStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unassigned", "none":
		return StatusUnassigned
	case "pending", "deploying", "in_progress", "queued":
		return StatusPending
	case "deployed", "released":
		return StatusDeployed
	case "failed", "error":
		return StatusFailed
	default:
		return DeploymentStatus(strings.ToLower(strings.TrimSpace(s)))
	}
}

// Deployment 课程内容与示例版本的绑定
type Deployment struct {
	ID                string           `json:"id,omitempty"`
	Status            DeploymentStatus `json:"deployment_status"`
	ExampleIdentifier string           `json:"example_identifier,omitempty"`
	ExampleVersionID  *string          `json:"example_version_id,omitempty"`
	VersionTag        string           `json:"version_tag,omitempty"`
	DeploymentPath    string           `json:"deployment_path,omitempty"`
	VersionIdentifier string           `json:"version_identifier,omitempty"`
}

// CourseContent 课程内容节点
type CourseContent struct {
	ID                  string           `json:"id"`
	Title               string           `json:"title"`
	Path                string           `json:"path"`
	CourseID            string           `json:"course_id"`
	CourseContentTypeID string           `json:"course_content_type_id"`
	CourseContentKindID string           `json:"course_content_kind_id,omitempty"`
	Position            float64          `json:"position"`
	DeploymentStatus    DeploymentStatus `json:"deployment_status,omitempty"`
	HasDeployment       bool             `json:"has_deployment"`
	Deployment          *Deployment      `json:"deployment,omitempty"`
}

// Status 内容实际的部署状态
func (c CourseContent) Status() DeploymentStatus {
	if c.Deployment != nil && c.Deployment.Status != "" {
		return ParseDeploymentStatus(string(c.Deployment.Status))
	}
	if !c.HasDeployment && c.Deployment == nil {
		return StatusUnassigned
	}
	return ParseDeploymentStatus(string(c.DeploymentStatus))
}

func (c CourseContent) ExampleIdentifier() string {
	if c.Deployment == nil {
		return ""
	}
	return strings.TrimSpace(c.Deployment.ExampleIdentifier)
}

func (c CourseContent) ExampleVersionID() string {
	if c.Deployment == nil || c.Deployment.ExampleVersionID == nil {
		return ""
	}
	return strings.TrimSpace(*c.Deployment.ExampleVersionID)
}

func (c CourseContent) VersionIdentifier() string {
	if c.Deployment == nil {
		return ""
	}
	return strings.TrimSpace(c.Deployment.VersionIdentifier)
}

// DirectoryName 内容在镜像中对应的作业目录。
// 绑定了示例时只用 example_identifier，未绑定时才退回内容路径的最后一段
func (c CourseContent) DirectoryName() string {
	if id := c.ExampleIdentifier(); id != "" {
		return id
	}
	return c.LastPathSegment()
}

func (c CourseContent) LastPathSegment() string {
	p := strings.TrimSpace(c.Path)
	if i := strings.LastIndex(p, "."); i >= 0 {
		return p[i+1:]
	}
	return p
}

// IsWithin 内容位于 path 或其子树中
func (c CourseContent) IsWithin(path string) bool {
	path = strings.Trim(strings.TrimSpace(path), ".")
	if path == "" {
		return false
	}
	return c.Path == path || strings.HasPrefix(c.Path, path+".")
}

// DisplayName 用于向操作员展示
func (c CourseContent) DisplayName() string {
	if strings.TrimSpace(c.Title) != "" {
		return c.Title
	}
	return c.Path
}

// CourseContentKind 决定内容是否可提交
type CourseContentKind struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Submittable    bool   `json:"submittable"`
	HasDescendants bool   `json:"has_descendants"`
	HasAscendants  bool   `json:"has_ascendants"`
}

// CourseContentType 课程内容类型
type CourseContentType struct {
	ID                  string `json:"id"`
	Slug                string `json:"slug"`
	Title               string `json:"title"`
	CourseContentKindID string `json:"course_content_kind_id"`
}

// Course 课程
type Course struct {
	ID         string           `json:"id"`
	Title      string           `json:"title"`
	Path       string           `json:"path"`
	Properties CourseProperties `json:"properties"`
}

type CourseProperties struct {
	GitLab *GitLabProperties `json:"gitlab,omitempty"`
}

// GitLabProperties 课程在 GitLab 中的组信息
type GitLabProperties struct {
	URL      string `json:"url"`
	FullPath string `json:"full_path"`
	GroupID  int    `json:"group_id,omitempty"`
}

// AssignmentsRemoteURL 课程 assignments 仓库的 HTTPS 克隆地址
func (c Course) AssignmentsRemoteURL() (string, error) {
	gl := c.Properties.GitLab
	if gl == nil || strings.TrimSpace(gl.URL) == "" || strings.TrimSpace(gl.FullPath) == "" {
		return "", fmt.Errorf("课程 %s 未配置 GitLab 组", c.ID)
	}
	base := strings.TrimRight(strings.TrimSpace(gl.URL), "/")
	full := strings.Trim(strings.TrimSpace(gl.FullPath), "/")
	return fmt.Sprintf("%s/%s/assignments.git", base, full), nil
}
