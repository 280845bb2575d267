package service

import (
	"context"
	"testing"

	"github.com/computor-org/computor-vscode-sub001/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignThenUnassignReturnsToUnassigned(t *testing.T) {
	api := newFakeAPI(assignment("A", "week1.a", domain.StatusUnassigned, "", ""))
	svc := NewContentService(api)
	ctx := context.Background()

	assigned, err := svc.Assign(ctx, "A", "hello.world", "1.0")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, assigned.Status())
	assert.NotEmpty(t, assigned.ExampleVersionID())

	after, err := svc.Unassign(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUnassigned, after.Status())
	assert.Empty(t, after.ExampleVersionID())
	assert.Empty(t, after.ExampleIdentifier())
}

func TestAssignRequiresIdentifier(t *testing.T) {
	svc := NewContentService(newFakeAPI())
	_, err := svc.Assign(context.Background(), "A", "  ", "1.0")
	assert.Error(t, err)
}
