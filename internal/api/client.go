package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/computor-org/computor-vscode-sub001/internal/domain"
	"github.com/computor-org/computor-vscode-sub001/internal/httpx"
)

const (
	contentTypeJSON = "application/json"
	acceptJSON      = contentTypeJSON
)

// Client Computor 课程管理 API 客户端
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
	Retry   httpx.RetryConfig
}

func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	tr := &http.Transport{
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 50,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: timeout, Transport: tr},
		Retry:   httpx.DefaultRetryConfig(),
	}
}

func (c *Client) request(method, path string, query url.Values, body any) (func(context.Context) (*http.Request, error), error) {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("编码请求 %s %s 失败: %w", method, path, err)
		}
		payload = b
	}

	return func(ctx context.Context) (*http.Request, error) {
		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		r, err := http.NewRequestWithContext(ctx, method, u, rd)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			r.Header.Set("Content-Type", contentTypeJSON)
		}
		r.Header.Set("Accept", acceptJSON)
		if c.Token != "" {
			r.Header.Set("Authorization", "Bearer "+c.Token)
		}
		return r, nil
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, retry httpx.RetryConfig) error {
	build, err := c.request(method, path, query, body)
	if err != nil {
		return err
	}
	if err := httpx.DoJSON(ctx, c.HTTP, build, out, retry); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	return nil
}

// GetCourse GET /courses/{id}
func (c *Client) GetCourse(ctx context.Context, courseID string) (*domain.Course, error) {
	var out domain.Course
	if err := c.do(ctx, http.MethodGet, "/courses/"+url.PathEscape(courseID), nil, nil, &out, c.Retry); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListCourseContents GET /course-contents?course_id=..&include=deployment
func (c *Client) ListCourseContents(ctx context.Context, courseID string) ([]domain.CourseContent, error) {
	q := url.Values{}
	q.Set("course_id", courseID)
	q.Set("include", "deployment")

	var out []domain.CourseContent
	if err := c.do(ctx, http.MethodGet, "/course-contents", q, nil, &out, c.Retry); err != nil {
		return nil, err
	}
	return out, nil
}

// GetCourseContent GET /course-contents/{id}
func (c *Client) GetCourseContent(ctx context.Context, contentID string) (*domain.CourseContent, error) {
	q := url.Values{}
	q.Set("include", "deployment")

	var out domain.CourseContent
	if err := c.do(ctx, http.MethodGet, "/course-contents/"+url.PathEscape(contentID), q, nil, &out, c.Retry); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListCourseContentKinds(ctx context.Context) ([]domain.CourseContentKind, error) {
	var out []domain.CourseContentKind
	if err := c.do(ctx, http.MethodGet, "/course-content-kinds", nil, nil, &out, c.Retry); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetCourseContentType(ctx context.Context, typeID string) (*domain.CourseContentType, error) {
	var out domain.CourseContentType
	if err := c.do(ctx, http.MethodGet, "/course-content-types/"+url.PathEscape(typeID), nil, nil, &out, c.Retry); err != nil {
		return nil, err
	}
	return &out, nil
}

// AssignExample POST /course-contents/{id}/assign-example
func (c *Client) AssignExample(ctx context.Context, contentID string, req domain.AssignExampleRequest) (*domain.CourseContent, error) {
	if req.ExampleIdentifier == "" && req.ExampleVersionID == "" {
		return nil, errors.New("分配示例: 需要 example_identifier 或 example_version_id")
	}
	var out domain.CourseContent
	path := "/course-contents/" + url.PathEscape(contentID) + "/assign-example"
	if err := c.do(ctx, http.MethodPost, path, nil, req, &out, httpx.NoRetry()); err != nil {
		return nil, err
	}
	return &out, nil
}

// UnassignExample DELETE /course-contents/{id}/deployment
func (c *Client) UnassignExample(ctx context.Context, contentID string) error {
	path := "/course-contents/" + url.PathEscape(contentID) + "/deployment"
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil, c.Retry)
}

// ValidateCourseContents POST /lecturers/courses/{id}/validate
func (c *Client) ValidateCourseContents(ctx context.Context, courseID string, items []domain.ContentValidation) (*domain.ValidationResponse, error) {
	var out domain.ValidationResponse
	path := "/lecturers/courses/" + url.PathEscape(courseID) + "/validate"
	body := domain.ValidateContentsRequest{ContentValidations: items}
	if err := c.do(ctx, http.MethodPost, path, nil, body, &out, c.Retry); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListExampleRepositories(ctx context.Context) ([]domain.ExampleRepository, error) {
	var out []domain.ExampleRepository
	if err := c.do(ctx, http.MethodGet, "/example-repositories", nil, nil, &out, c.Retry); err != nil {
		return nil, err
	}
	return out, nil
}

// UploadExample POST /examples/upload
func (c *Client) UploadExample(ctx context.Context, upload domain.ExampleUpload) (*domain.ExampleVersion, error) {
	var out domain.ExampleVersion
	if err := c.do(ctx, http.MethodPost, "/examples/upload", nil, upload, &out, httpx.NoRetry()); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateAssignments POST /system/courses/{id}/generate-assignments
func (c *Client) GenerateAssignments(ctx context.Context, courseID string, req domain.GenerateAssignmentsRequest) (*domain.WorkflowResponse, error) {
	var out domain.WorkflowResponse
	path := "/system/courses/" + url.PathEscape(courseID) + "/generate-assignments"
	if err := c.do(ctx, http.MethodPost, path, nil, req, &out, httpx.NoRetry()); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateStudentTemplate POST /system/courses/{id}/generate-student-template
func (c *Client) GenerateStudentTemplate(ctx context.Context, courseID string, req domain.GenerateStudentTemplateRequest) (*domain.StudentTemplateResponse, error) {
	var out domain.StudentTemplateResponse
	path := "/system/courses/" + url.PathEscape(courseID) + "/generate-student-template"
	if err := c.do(ctx, http.MethodPost, path, nil, req, &out, httpx.NoRetry()); err != nil {
		return nil, err
	}
	return &out, nil
}
