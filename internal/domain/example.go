package domain

import "strings"

// ExampleDescriptor 每个作业目录中的 meta.yaml
type ExampleDescriptor struct {
	Slug        string            `yaml:"slug" json:"slug"`
	Version     string            `yaml:"version" json:"version"`
	Title       string            `yaml:"title" json:"title"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Language    string            `yaml:"language,omitempty" json:"language,omitempty"`
	License     string            `yaml:"license,omitempty" json:"license,omitempty"`
	Keywords    []string          `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	Authors     []ExamplePerson   `yaml:"authors,omitempty" json:"authors,omitempty"`
	Properties  ExampleProperties `yaml:"properties" json:"properties"`
}

type ExamplePerson struct {
	Name        string `yaml:"name" json:"name"`
	Email       string `yaml:"email,omitempty" json:"email,omitempty"`
	Affiliation string `yaml:"affiliation,omitempty" json:"affiliation,omitempty"`
}

// ExampleProperties 作业的各类文件清单
type ExampleProperties struct {
	StudentSubmissionFiles []string          `yaml:"studentSubmissionFiles,omitempty" json:"studentSubmissionFiles,omitempty"`
	AdditionalFiles        []string          `yaml:"additionalFiles,omitempty" json:"additionalFiles,omitempty"`
	TestFiles              []string          `yaml:"testFiles,omitempty" json:"testFiles,omitempty"`
	StudentTemplates       []string          `yaml:"studentTemplates,omitempty" json:"studentTemplates,omitempty"`
	TestDependencies       []string          `yaml:"testDependencies,omitempty" json:"testDependencies,omitempty"`
	ExecutionBackend       *ExecutionBackend `yaml:"executionBackend,omitempty" json:"executionBackend,omitempty"`
}

type ExecutionBackend struct {
	Slug    string `yaml:"slug" json:"slug"`
	Version string `yaml:"version,omitempty" json:"version,omitempty"`
}

// Complete 是否带有示例目录所需的 slug 和 version
func (d ExampleDescriptor) Complete() bool {
	return strings.TrimSpace(d.Slug) != "" && strings.TrimSpace(d.Version) != ""
}

// AssignmentDirectory 镜像仓库中的作业目录
type AssignmentDirectory struct {
	Name       string
	Path       string
	Descriptor *ExampleDescriptor
	// Err 非空表示 meta.yaml 无法解析，Descriptor 为 nil
	Err error
}

// ExampleRepository 远程示例目录中的上传目标
type ExampleRepository struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	SourceType  string `json:"source_type,omitempty"`
	SourceURL   string `json:"source_url,omitempty"`
}

// ExampleVersion 示例版本（创建后不可变）
type ExampleVersion struct {
	ID         string `json:"id"`
	ExampleID  string `json:"example_id"`
	VersionTag string `json:"version_tag"`
	Identifier string `json:"identifier,omitempty"`
}
