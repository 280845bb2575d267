package domain

// AssignExampleRequest 为课程内容分配示例
// ExampleIdentifier 与 ExampleVersionID 二选一
type AssignExampleRequest struct {
	ExampleIdentifier string `json:"example_identifier,omitempty"`
	ExampleVersionID  string `json:"example_version_id,omitempty"`
	VersionTag        string `json:"version_tag,omitempty"`
}

// ContentValidation 批量校验中的一条 (内容, slug, 版本)
type ContentValidation struct {
	ContentID         string `json:"content_id"`
	ExampleIdentifier string `json:"example_identifier"`
	VersionTag        string `json:"version_tag"`
}

type ValidateContentsRequest struct {
	ContentValidations []ContentValidation `json:"content_validations"`
}

type ContentValidationResult struct {
	ContentID         string `json:"content_id"`
	Valid             bool   `json:"valid"`
	ValidationMessage string `json:"validation_message,omitempty"`
}

// ValidationResponse 批量校验结果
type ValidationResponse struct {
	Valid             bool                      `json:"valid"`
	TotalIssues       int                       `json:"total_issues"`
	ValidationResults []ContentValidationResult `json:"validation_results"`
}

// ExampleUpload 上传作业目录，文件内容为 base64 编码
type ExampleUpload struct {
	RepositoryID string            `json:"repository_id"`
	Directory    string            `json:"directory"`
	Files        map[string]string `json:"files"`
}

type GenerateAssignmentsRequest struct {
	CourseContentIDs  []string `json:"course_content_ids,omitempty"`
	ParentID          string   `json:"parent_id,omitempty"`
	All               bool     `json:"all,omitempty"`
	OverwriteStrategy string   `json:"overwrite_strategy,omitempty"`
	CommitMessage     string   `json:"commit_message,omitempty"`
}

// WorkflowResponse 远程工作流启动结果
type WorkflowResponse struct {
	WorkflowID string `json:"workflow_id"`
	Status     string `json:"status,omitempty"`
	Message    string `json:"message,omitempty"`
}

type StudentTemplateRelease struct {
	CourseContentIDs   []string `json:"course_content_ids,omitempty"`
	ParentID           string   `json:"parent_id,omitempty"`
	All                bool     `json:"all,omitempty"`
	IncludeDescendants bool     `json:"include_descendants,omitempty"`
}

type GenerateStudentTemplateRequest struct {
	Release StudentTemplateRelease `json:"release"`
}

type StudentTemplateResponse struct {
	WorkflowID        string `json:"workflow_id"`
	ContentsToProcess int    `json:"contents_to_process"`
	Status            string `json:"status,omitempty"`
}
