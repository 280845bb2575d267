package service

import (
	"context"
	"testing"

	"github.com/computor-org/computor-vscode-sub001/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(items []domain.CourseContent) []string {
	out := make([]string, len(items))
	for i, c := range items {
		out[i] = c.ID
	}
	return out
}

func TestSelectPendingDeployedStaleness(t *testing.T) {
	tests := []struct {
		name     string
		recorded string
		head     string
		pending  bool
	}{
		{"same commit", "abc", "abc", false},
		{"older commit", "abc", "def", true},
		{"missing identifier", "", "def", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := assignment("a", "w1.a", domain.StatusDeployed, "a", tt.recorded)
			set := SelectPending([]domain.CourseContent{item}, tt.head)
			assert.Equal(t, tt.pending, len(set.Items) == 1)
			assert.Empty(t, set.Unassigned)
		})
	}
}

func TestSelectPendingStatuses(t *testing.T) {
	items := []domain.CourseContent{
		assignment("d", "w1.d", domain.StatusDeployed, "d", "v2"),
		assignment("f", "w1.f", domain.StatusFailed, "f", ""),
		assignment("p", "w1.p", domain.StatusPending, "p", ""),
		assignment("u", "w1.u", domain.StatusUnassigned, "", ""),
	}
	set := SelectPending(items, "v2")
	assert.Equal(t, []string{"f", "p"}, ids(set.Items))
	assert.Equal(t, []string{"u"}, ids(set.Unassigned))
}

func TestSelectPendingReportsUnknownStatus(t *testing.T) {
	odd := assignment("x", "w1.x", domain.DeploymentStatus("archived"), "x", "")
	items := []domain.CourseContent{odd, assignment("p", "w1.p", domain.StatusPending, "p", "")}

	set := SelectPending(items, "h")
	assert.Equal(t, []string{"p"}, ids(set.Items))
	assert.Empty(t, set.Unassigned)
	assert.Equal(t, []string{"x"}, ids(set.Unknown))
}

func TestSelectPendingIsDeterministic(t *testing.T) {
	a := assignment("a", "w2.a", domain.StatusPending, "a", "")
	b := assignment("b", "w1.b", domain.StatusPending, "b", "")
	c := assignment("c", "w1.b", domain.StatusFailed, "c", "")

	first := SelectPending([]domain.CourseContent{a, b, c}, "h")
	second := SelectPending([]domain.CourseContent{c, a, b}, "h")
	assert.Equal(t, ids(first.Items), ids(second.Items))
	assert.Equal(t, []string{"b", "c", "a"}, ids(first.Items))
}

func TestPendingReleaseScenarioReportsUnassignedSeparately(t *testing.T) {
	api := newFakeAPI(
		unit("w1", "week1"),
		assignment("A", "week1.a", domain.StatusDeployed, "a", "v1"),
		assignment("B", "week1.b", domain.StatusUnassigned, "", ""),
	)
	idx := NewDeploymentIndex(api, 2)

	set, err := idx.PendingRelease(context.Background(), "c1", domain.ScopeAll(), "v2")
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, ids(set.Items))
	assert.Equal(t, []string{"B"}, ids(set.Unassigned))
	assert.Equal(t, []string{"Assignment A"}, set.Titles())
}

func TestValidateForReleaseFlagsUnassigned(t *testing.T) {
	api := newFakeAPI(
		unit("w1", "week1"),
		assignment("A", "week1.a", domain.StatusDeployed, "a", "v1"),
		assignment("B", "week1.b", domain.StatusUnassigned, "", ""),
		assignment("C", "week1.c", domain.StatusFailed, "c", ""),
	)
	idx := NewDeploymentIndex(api, 2)

	res, err := idx.ValidateForRelease(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Checked)
	assert.True(t, res.Blocking())
	require.Len(t, res.Issues, 1)
	assert.Equal(t, "B", res.Issues[0].ContentID)
	assert.Contains(t, res.Issues[0].String(), "未分配示例")
}

func TestLoadSnapshotClassifiesSubmittable(t *testing.T) {
	api := newFakeAPI(
		unit("w1", "week1"),
		assignment("A", "week1.a", domain.StatusPending, "a", ""),
	)
	snap, err := NewDeploymentIndex(api, 4).LoadSnapshot(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, snap.Contents, 2)
	assert.Equal(t, []string{"A"}, ids(snap.Submittable))
}

func TestLoadSnapshotFailsOnUnknownType(t *testing.T) {
	orphan := assignment("X", "week1.x", domain.StatusPending, "x", "")
	orphan.CourseContentTypeID = "t-missing"
	api := newFakeAPI(orphan)

	_, err := NewDeploymentIndex(api, 1).LoadSnapshot(context.Background(), "c1")
	assert.Error(t, err)
}

func TestFilterScope(t *testing.T) {
	snap := &CourseSnapshot{
		CourseID: "c1",
		Contents: []domain.CourseContent{
			unit("w1", "week1"),
			unit("w2", "week2"),
		},
		Submittable: []domain.CourseContent{
			assignment("a", "week1.a", domain.StatusPending, "a", ""),
			assignment("b", "week1.b.deep", domain.StatusPending, "b", ""),
			assignment("c", "week2.c", domain.StatusPending, "c", ""),
			assignment("d", "week10.d", domain.StatusPending, "d", ""),
		},
	}

	all, err := FilterScope(snap, domain.ScopeAll())
	require.NoError(t, err)
	assert.Len(t, all, 4)

	sub, err := FilterScope(snap, domain.ScopeSubtree("w1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(sub))

	byPath, err := FilterScope(snap, domain.ScopePath("week2"))
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(byPath))

	exact, err := FilterScope(snap, domain.ScopePath("week1.a"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(exact))

	_, err = FilterScope(snap, domain.ScopeSubtree("nope"))
	assert.Error(t, err)
}
