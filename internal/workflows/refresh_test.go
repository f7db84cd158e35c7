package workflows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crosve/Csphere/internal/folders"
	"github.com/crosve/Csphere/internal/learning"
	"github.com/crosve/Csphere/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
)

func TestUserProfileRefreshWorkflow(t *testing.T) {
	t.Run("refreshes every listed user", func(t *testing.T) {
		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestWorkflowEnvironment()
		env.RegisterWorkflow(UserProfileRefreshWorkflow)

		var a *Activities
		env.OnActivity(a.ListUsersActivity, mock.Anything).Return([]string{"u1", "u2", "u3"}, nil)
		env.OnActivity(a.RefreshUserProfileActivity, mock.Anything, mock.Anything).Return(
			func(_ context.Context, in RefreshUserInput) (*learning.RefreshResult, error) {
				switch in.UserID {
				case "u2":
					return &learning.RefreshResult{UserID: in.UserID, Reason: "no new content"}, nil
				case "u3":
					return nil, temporal.NewNonRetryableApplicationError("user gone", ErrTypeUserNotFound, nil)
				}
				return &learning.RefreshResult{UserID: in.UserID, Updated: true, Items: 2}, nil
			})

		env.ExecuteWorkflow(UserProfileRefreshWorkflow, UserProfileRefreshInput{BatchSize: 2})

		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())

		var result UserProfileRefreshResult
		require.NoError(t, env.GetWorkflowResult(&result))
		assert.Equal(t, 3, result.Users)
		assert.Equal(t, 1, result.Updated)
		assert.Equal(t, 1, result.Skipped)
		assert.Equal(t, []string{"u3"}, result.Failed)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "refresh u3")
	})

	t.Run("uses named users without listing", func(t *testing.T) {
		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestWorkflowEnvironment()
		env.RegisterWorkflow(UserProfileRefreshWorkflow)

		var a *Activities
		env.OnActivity(a.RefreshUserProfileActivity, mock.Anything, mock.MatchedBy(func(in RefreshUserInput) bool {
			return in.UserID == "u9" && !in.At.IsZero()
		})).Return(&learning.RefreshResult{UserID: "u9", Updated: true}, nil).Once()

		env.ExecuteWorkflow(UserProfileRefreshWorkflow, UserProfileRefreshInput{UserIDs: []string{"u9"}})

		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())
		var result UserProfileRefreshResult
		require.NoError(t, env.GetWorkflowResult(&result))
		assert.Equal(t, 1, result.Updated)
		env.AssertExpectations(t)
	})

	t.Run("fails when users cannot be listed", func(t *testing.T) {
		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestWorkflowEnvironment()
		env.RegisterWorkflow(UserProfileRefreshWorkflow)

		var a *Activities
		env.OnActivity(a.ListUsersActivity, mock.Anything).Return(nil,
			temporal.NewNonRetryableApplicationError("db down", "StorageFailure", nil))

		env.ExecuteWorkflow(UserProfileRefreshWorkflow, UserProfileRefreshInput{})

		require.True(t, env.IsWorkflowCompleted())
		require.Error(t, env.GetWorkflowError())
	})
}

func TestActivities(t *testing.T) {
	ctx := context.Background()
	store, err := storage.Open(ctx, storage.Options{Path: ":memory:"})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.EnsureUser(ctx, "u1"))
	c, err := store.CreateContent(ctx, &folders.Content{URL: "https://example.com/a"})
	require.NoError(t, err)
	require.NoError(t, store.UpdateEnrichment(ctx, c.ID, "a page", []float64{0, 2, 0}, nil))
	_, err = store.SaveContentItem(ctx, folders.ContentItem{UserID: "u1", ContentID: c.ID, SavedAt: time.Now().UTC()})
	require.NoError(t, err)

	acts := NewActivities(store, learning.NewUserProfiles(store, store, 0, nil))
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestActivityEnvironment()
	env.RegisterActivity(acts)

	val, err := env.ExecuteActivity(acts.ListUsersActivity)
	require.NoError(t, err)
	var ids []string
	require.NoError(t, val.Get(&ids))
	assert.Equal(t, []string{"u1"}, ids)

	at := time.Date(2025, 1, 2, 1, 0, 0, 0, time.UTC)
	val, err = env.ExecuteActivity(acts.RefreshUserProfileActivity, RefreshUserInput{UserID: "u1", At: at})
	require.NoError(t, err)
	var res learning.RefreshResult
	require.NoError(t, val.Get(&res))
	assert.True(t, res.Updated)
	assert.Equal(t, 1, res.Items)

	u, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 1, 0}, u.Profile, 1e-9)
	require.NotNil(t, u.LastProfileUpdate)
	assert.True(t, at.Equal(*u.LastProfileUpdate))

	_, err = env.ExecuteActivity(acts.RefreshUserProfileActivity, RefreshUserInput{UserID: "ghost", At: at})
	require.Error(t, err)
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, ErrTypeUserNotFound, appErr.Type())
	assert.True(t, appErr.NonRetryable())
}

func TestWrapActivityError(t *testing.T) {
	assert.Nil(t, WrapActivityError("op", nil))

	err := WrapActivityError("op", folders.ErrStorageFailure)
	assert.ErrorIs(t, err, folders.ErrStorageFailure)
	assert.Equal(t, "op: storage failure", err.Error())

	var appErr *temporal.ApplicationError
	require.True(t, errors.As(WrapActivityError("op", folders.ErrInvalidInput), &appErr))
	assert.Equal(t, ErrTypeInvalidInput, appErr.Type())
}
