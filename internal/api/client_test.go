package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/computor-org/computor-vscode-sub001/internal/domain"
	"github.com/computor-org/computor-vscode-sub001/internal/httpx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// contentServer 保存一个课程内容节点并模拟部署相关接口
type contentServer struct {
	mu      sync.Mutex
	content domain.CourseContent
	t       *testing.T
}

func (s *contentServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	assert.Equal(s.t, "Bearer secret", r.Header.Get("Authorization"))
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/course-contents/cc1/assign-example":
		var req domain.AssignExampleRequest
		require.NoError(s.t, json.NewDecoder(r.Body).Decode(&req))
		vid := "ver-" + req.VersionTag
		s.content.HasDeployment = true
		s.content.Deployment = &domain.Deployment{
			Status:            domain.StatusPending,
			ExampleIdentifier: req.ExampleIdentifier,
			ExampleVersionID:  &vid,
			VersionTag:        req.VersionTag,
		}
		json.NewEncoder(w).Encode(s.content)
	case r.Method == http.MethodDelete && r.URL.Path == "/course-contents/cc1/deployment":
		s.content.HasDeployment = false
		s.content.Deployment = nil
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodGet && r.URL.Path == "/course-contents/cc1":
		json.NewEncoder(w).Encode(s.content)
	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"not found"}`))
	}
}

func TestAssignThenUnassignRoundTrip(t *testing.T) {
	srv := httptest.NewServer(&contentServer{t: t, content: domain.CourseContent{ID: "cc1", Path: "week1.hello"}})
	defer srv.Close()

	c := New(srv.URL, "secret", 5*time.Second)
	ctx := context.Background()

	assigned, err := c.AssignExample(ctx, "cc1", domain.AssignExampleRequest{ExampleIdentifier: "hello.world", VersionTag: "1.0"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, assigned.Status())
	assert.Equal(t, "ver-1.0", assigned.ExampleVersionID())

	require.NoError(t, c.UnassignExample(ctx, "cc1"))

	after, err := c.GetCourseContent(ctx, "cc1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUnassigned, after.Status())
	assert.Empty(t, after.ExampleVersionID())
}

func TestAssignExampleRequiresIdentifier(t *testing.T) {
	c := New("http://unused", "", time.Second)
	_, err := c.AssignExample(context.Background(), "cc1", domain.AssignExampleRequest{VersionTag: "1.0"})
	assert.Error(t, err)
}

func TestListCourseContentsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/course-contents", r.URL.Path)
		assert.Equal(t, "c1", r.URL.Query().Get("course_id"))
		assert.Equal(t, "deployment", r.URL.Query().Get("include"))
		w.Write([]byte(`[
			{"id":"a","title":"A","path":"w1.a","course_content_type_id":"t1","has_deployment":true,
			 "deployment":{"deployment_status":"deployed","example_identifier":"a.ex","version_identifier":"abc"}},
			{"id":"b","title":"B","path":"w1.b","course_content_type_id":"t1","has_deployment":false}
		]`))
	}))
	defer srv.Close()

	items, err := New(srv.URL, "", time.Second).ListCourseContents(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, domain.StatusDeployed, items[0].Status())
	assert.Equal(t, "abc", items[0].VersionIdentifier())
	assert.Equal(t, domain.StatusUnassigned, items[1].Status())
}

func TestValidateCourseContentsPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/lecturers/courses/c1/validate", r.URL.Path)
		var req domain.ValidateContentsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.ContentValidations, 1)
		assert.Equal(t, "hello.world", req.ContentValidations[0].ExampleIdentifier)
		w.Write([]byte(`{"valid":false,"total_issues":1,"validation_results":[{"content_id":"cc1","valid":false,"validation_message":"Example not found"}]}`))
	}))
	defer srv.Close()

	resp, err := New(srv.URL, "", time.Second).ValidateCourseContents(context.Background(), "c1",
		[]domain.ContentValidation{{ContentID: "cc1", ExampleIdentifier: "hello.world", VersionTag: "1.0"}})
	require.NoError(t, err)
	assert.False(t, resp.Valid)
	assert.Equal(t, "Example not found", resp.ValidationResults[0].ValidationMessage)
}

func TestUploadIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "", time.Second).UploadExample(context.Background(), domain.ExampleUpload{RepositoryID: "r", Directory: "d"})
	require.Error(t, err)
	assert.True(t, httpx.IsStatus(err, http.StatusBadGateway))
	assert.Equal(t, 1, calls)
}

func TestGenerateStudentTemplate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/system/courses/c1/generate-student-template", r.URL.Path)
		var req domain.GenerateStudentTemplateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"a", "b"}, req.Release.CourseContentIDs)
		w.Write([]byte(`{"workflow_id":"wf-1","contents_to_process":2}`))
	}))
	defer srv.Close()

	resp, err := New(srv.URL, "", time.Second).GenerateStudentTemplate(context.Background(), "c1",
		domain.GenerateStudentTemplateRequest{Release: domain.StudentTemplateRelease{CourseContentIDs: []string{"a", "b"}}})
	require.NoError(t, err)
	assert.Equal(t, "wf-1", resp.WorkflowID)
	assert.Equal(t, 2, resp.ContentsToProcess)
}
