package service

import (
	"context"
	"errors"
	"testing"

	"github.com/computor-org/computor-vscode-sub001/internal/domain"
	"github.com/computor-org/computor-vscode-sub001/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type releaseFixture struct {
	api  *fakeAPI
	git  *fakeGit
	op   *fakeOperator
	orch ReleaseOrchestrator
}

func newReleaseFixture(t *testing.T, contents ...domain.CourseContent) *releaseFixture {
	t.Helper()
	cfg := testConfig(t)
	api := newFakeAPI(contents...)
	git := newFakeGit("h1")
	git.files["alpha/meta.yaml"] = "slug: alpha\nversion: \"1.0\"\n"
	git.files["alpha/main.py"] = "print('alpha')\n"
	git.files["beta/meta.yaml"] = "slug: beta\nversion: \"1.0\"\n"
	git.files["beta/main.py"] = "print('beta')\n"
	op := &fakeOperator{confirm: true}

	mirror := NewMirrorStore(cfg, repository.NewMirrorRepository(cfg), git, "", nil)
	idx := NewDeploymentIndex(api, 2)
	rec := NewExampleReconciler(api, idx, repository.NewAssignmentRepository(), op)
	return &releaseFixture{
		api:  api,
		git:  git,
		op:   op,
		orch: NewReleaseOrchestrator(cfg, api, mirror, rec, idx, op),
	}
}

func (f *releaseFixture) catalogAll() {
	f.api.catalog["alpha@1.0"] = true
	f.api.catalog["beta@1.0"] = true
}

func defaultContents() []domain.CourseContent {
	return []domain.CourseContent{
		unit("w1", "week1"),
		assignment("A", "week1.alpha", domain.StatusDeployed, "alpha", "old"),
		assignment("B", "week1.beta", domain.StatusPending, "beta", ""),
	}
}

func TestRunReleaseExecutes(t *testing.T) {
	f := newReleaseFixture(t, defaultContents()...)
	f.catalogAll()

	out, err := f.orch.RunRelease(context.Background(), "c1", ReleaseOptions{})
	require.NoError(t, err)

	assert.Equal(t, StateExecuted, out.FinalState)
	assert.Equal(t, []ReleaseState{
		StateStart, StateMirrorPrepared, StateReconciled, StateValidated,
		StatePendingComputed, StateConfirmed, StateExecuted,
	}, out.Transitions)
	assert.Equal(t, out.Transitions[1:], f.op.progress)
	assert.NotEmpty(t, out.RunID)
	assert.Equal(t, "h1", out.Head)

	require.Len(t, f.op.confirmed, 1)
	assert.Equal(t, []string{"Assignment A", "Assignment B"}, f.op.confirmed[0])

	require.Len(t, f.api.generated, 1)
	assert.Equal(t, []string{"A", "B"}, f.api.generated[0].CourseContentIDs)
	assert.Equal(t, "skip_if_exists", f.api.generated[0].OverwriteStrategy)
	require.Len(t, f.api.studentTemplates, 1)
	assert.Equal(t, []string{"A", "B"}, f.api.studentTemplates[0].Release.CourseContentIDs)

	assert.Equal(t, "wf-release", out.WorkflowID)
	assert.Equal(t, "wf-assign", out.AssignmentsWorkflowID)
	assert.Equal(t, 2, out.ContentsToProcess)
	assert.Empty(t, out.Warnings)
}

func TestRunReleasePublishesOnlyConfirmedItems(t *testing.T) {
	f := newReleaseFixture(t, defaultContents()...)
	f.catalogAll()
	f.op.onConfirm = func() {
		f.api.mu.Lock()
		f.api.contents = append(f.api.contents, assignment("N", "week1.newcomer", domain.StatusPending, "alpha", ""))
		f.api.mu.Unlock()
	}

	out, err := f.orch.RunRelease(context.Background(), "c1", ReleaseOptions{})
	require.NoError(t, err)
	assert.Equal(t, StateExecuted, out.FinalState)

	require.Len(t, f.op.confirmed, 1)
	assert.Equal(t, []string{"Assignment A", "Assignment B"}, f.op.confirmed[0])
	require.Len(t, f.api.studentTemplates, 1)
	assert.Equal(t, []string{"A", "B"}, f.api.studentTemplates[0].Release.CourseContentIDs)
	assert.Equal(t, []string{"A", "B"}, f.api.generated[0].CourseContentIDs)

	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "Assignment N")
}

func TestRunReleaseWarnsAboutUnknownStatus(t *testing.T) {
	contents := append(defaultContents(), assignment("X", "week1.odd", domain.DeploymentStatus("archived"), "alpha", ""))
	f := newReleaseFixture(t, contents...)
	f.catalogAll()

	out, err := f.orch.RunRelease(context.Background(), "c1", ReleaseOptions{DryRun: true})
	require.NoError(t, err)
	require.Len(t, out.Unknown, 1)
	assert.Equal(t, "X", out.Unknown[0].ID)
	assert.Len(t, out.Pending, 2)
	require.NotEmpty(t, out.Warnings)
	assert.Contains(t, out.Warnings[0], "部署状态无法识别")
}

func TestRunReleaseUploadsBeforeRelease(t *testing.T) {
	f := newReleaseFixture(t, defaultContents()...)

	out, err := f.orch.RunRelease(context.Background(), "c1", ReleaseOptions{})
	require.NoError(t, err)
	assert.Equal(t, StateExecuted, out.FinalState)
	require.NotNil(t, out.Uploads)
	assert.Len(t, out.Uploads.Uploaded, 2)
	assert.Len(t, f.api.uploads, 2)
}

func TestRunReleaseAbortsOnUploadFailure(t *testing.T) {
	f := newReleaseFixture(t, defaultContents()...)
	f.api.failUpload["beta"] = true

	out, err := f.orch.RunRelease(context.Background(), "c1", ReleaseOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUploadFailed)

	assert.Equal(t, StateAborted, out.FinalState)
	assert.NotContains(t, out.Transitions, StateValidated)
	require.NotNil(t, out.Uploads)
	assert.Empty(t, out.Uploads.Uploaded)
	assert.Empty(t, f.api.generated)
	assert.Empty(t, f.api.studentTemplates)
}

func TestRunReleaseAbortsOnCancelledUpload(t *testing.T) {
	f := newReleaseFixture(t, defaultContents()...)
	f.op.selectErr = ErrCancelled

	out, err := f.orch.RunRelease(context.Background(), "c1", ReleaseOptions{})
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, StateAborted, out.FinalState)
	assert.Empty(t, f.api.uploads)
}

func TestRunReleaseValidationBlocked(t *testing.T) {
	contents := append(defaultContents(), assignment("U", "week1.orphan", domain.StatusUnassigned, "", ""))
	f := newReleaseFixture(t, contents...)
	f.catalogAll()

	out, err := f.orch.RunRelease(context.Background(), "c1", ReleaseOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationBlocked)

	var blocked *ValidationBlockedError
	require.ErrorAs(t, err, &blocked)
	require.Len(t, blocked.Issues, 1)
	assert.Equal(t, "U", blocked.Issues[0].ContentID)
	assert.Equal(t, blocked.Issues, out.Issues)

	assert.Equal(t, StateAborted, out.FinalState)
	assert.Contains(t, out.Transitions, StateReconciled)
	assert.NotContains(t, out.Transitions, StateValidated)
	assert.Empty(t, f.api.studentTemplates)
}

func TestRunReleaseNothingPendingIsInformational(t *testing.T) {
	f := newReleaseFixture(t,
		unit("w1", "week1"),
		assignment("A", "week1.alpha", domain.StatusDeployed, "alpha", "h1"),
	)
	f.catalogAll()

	out, err := f.orch.RunRelease(context.Background(), "c1", ReleaseOptions{})
	require.NoError(t, err)
	assert.Equal(t, StateAborted, out.FinalState)
	assert.Contains(t, out.AbortReason, "没有需要发布的内容")
	assert.Empty(t, f.op.confirmed)
}

func TestRunReleaseDeclinedByOperator(t *testing.T) {
	f := newReleaseFixture(t, defaultContents()...)
	f.catalogAll()
	f.op.confirm = false

	out, err := f.orch.RunRelease(context.Background(), "c1", ReleaseOptions{})
	require.NoError(t, err)
	assert.Equal(t, StateAborted, out.FinalState)
	assert.NotContains(t, out.Transitions, StateConfirmed)
	assert.Empty(t, f.api.generated)
	assert.Empty(t, f.api.studentTemplates)
}

func TestRunReleaseAssignmentSyncFailureIsWarning(t *testing.T) {
	f := newReleaseFixture(t, defaultContents()...)
	f.catalogAll()
	f.api.generateErr = errors.New("gitlab timeout")

	out, err := f.orch.RunRelease(context.Background(), "c1", ReleaseOptions{})
	require.NoError(t, err)
	assert.Equal(t, StateExecuted, out.FinalState)
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], ErrAssignmentSyncFailed.Error())
	assert.Len(t, f.api.studentTemplates, 1)
}

func TestRunReleaseStudentTemplateFailureIsFatal(t *testing.T) {
	f := newReleaseFixture(t, defaultContents()...)
	f.catalogAll()
	f.api.studentTemplateErr = errors.New("workflow engine down")

	out, err := f.orch.RunRelease(context.Background(), "c1", ReleaseOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReleaseExecutionFailed)
	assert.Contains(t, err.Error(), "Assignment A")
	assert.Equal(t, StateAborted, out.FinalState)
	assert.Contains(t, out.Transitions, StateConfirmed)
}

func TestRunReleaseMirrorFailureIsFatal(t *testing.T) {
	f := newReleaseFixture(t, defaultContents()...)
	f.api.course.Properties.GitLab = nil

	out, err := f.orch.RunRelease(context.Background(), "c1", ReleaseOptions{})
	assert.ErrorIs(t, err, ErrMirrorUnavailable)
	assert.Equal(t, []ReleaseState{StateStart, StateAborted}, out.Transitions)
}

func TestRunReleaseDryRun(t *testing.T) {
	f := newReleaseFixture(t, defaultContents()...)

	out, err := f.orch.RunRelease(context.Background(), "c1", ReleaseOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, StatePendingComputed, out.FinalState)
	assert.Equal(t, "h1", out.Head)
	assert.Len(t, out.Pending, 2)
	assert.Equal(t, 0, f.git.commits)
	assert.Equal(t, 0, f.git.pushes)
	assert.Empty(t, f.api.uploads)
	assert.Empty(t, f.op.confirmed)
	assert.Empty(t, f.api.studentTemplates)
}

func TestRunReleaseScopedToSubtree(t *testing.T) {
	contents := append(defaultContents(),
		unit("w2", "week2"),
		assignment("C", "week2.gamma", domain.StatusPending, "alpha", ""),
	)
	f := newReleaseFixture(t, contents...)
	f.catalogAll()

	out, err := f.orch.RunRelease(context.Background(), "c1", ReleaseOptions{Scope: domain.ScopeSubtree("w2")})
	require.NoError(t, err)
	assert.Equal(t, StateExecuted, out.FinalState)
	require.Len(t, f.api.studentTemplates, 1)
	assert.Equal(t, []string{"C"}, f.api.studentTemplates[0].Release.CourseContentIDs)
}

func TestReleaseTransitions(t *testing.T) {
	assert.True(t, isAllowedTransition(StateStart, StateMirrorPrepared))
	assert.True(t, isAllowedTransition(StateValidated, StateAborted))
	assert.False(t, isAllowedTransition(StateStart, StateValidated))
	assert.False(t, isAllowedTransition(StateExecuted, StateAborted))
	assert.False(t, isAllowedTransition(StateAborted, StateStart))
	assert.True(t, StateExecuted.IsTerminal())
	assert.False(t, StateConfirmed.IsTerminal())
}

func TestReleaseErrorFormatting(t *testing.T) {
	err := &ReleaseError{Kind: ErrUploadFailed, Msg: "批量上传中止", Items: []string{"beta"}, Err: errors.New("502")}
	assert.Equal(t, "示例上传失败: 批量上传中止 [beta]: 502", err.Error())
	assert.ErrorIs(t, err, ErrUploadFailed)
	assert.NotErrorIs(t, err, ErrCancelled)

	blocked := &ValidationBlockedError{Issues: []domain.ValidationIssue{{Title: "Hello", Path: "w1.hello", Reason: "未分配示例"}}}
	assert.ErrorIs(t, blocked, ErrValidationBlocked)
	assert.Contains(t, blocked.Error(), "Hello (w1.hello): 未分配示例")
}
