// Package workflows holds the Temporal workflows that keep user interest
// profiles current: a nightly refresh that folds each user's newly saved
// content into their profile.
package workflows

import (
	"time"

	"github.com/crosve/Csphere/internal/learning"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const defaultBatchSize = 20

// UserProfileRefreshInput configures one refresh run.
type UserProfileRefreshInput struct {
	UserIDs   []string // users to refresh; empty means every user
	BatchSize int      // concurrent activities per batch
}

// UserProfileRefreshResult summarizes a refresh run.
type UserProfileRefreshResult struct {
	Users   int      // users considered
	Updated int      // profiles written
	Skipped int      // users with nothing new
	Failed  []string // users whose refresh failed
	Errors  []string // one message per failed user
}

// UserProfileRefreshWorkflow refreshes user interest profiles.
//
// This workflow:
// 1. Lists every user (unless the input names them)
// 2. Runs one refresh activity per user, a batch at a time
// 3. Records per-user failures without failing the run
func UserProfileRefreshWorkflow(ctx workflow.Context, input UserProfileRefreshInput) (*UserProfileRefreshResult, error) {
	logger := workflow.GetLogger(ctx)

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 5 * time.Second,
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var a *Activities
	at := workflow.Now(ctx).UTC()
	result := &UserProfileRefreshResult{}

	ids := input.UserIDs
	if len(ids) == 0 {
		if err := workflow.ExecuteActivity(ctx, a.ListUsersActivity).Get(ctx, &ids); err != nil {
			return nil, err
		}
	}
	result.Users = len(ids)
	logger.Info("Starting user profile refresh", "users", len(ids))

	batch := input.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	for start := 0; start < len(ids); start += batch {
		chunk := ids[start:min(start+batch, len(ids))]
		futures := make([]workflow.Future, len(chunk))
		for i, id := range chunk {
			futures[i] = workflow.ExecuteActivity(ctx, a.RefreshUserProfileActivity, RefreshUserInput{UserID: id, At: at})
		}
		for i, f := range futures {
			var res learning.RefreshResult
			if err := f.Get(ctx, &res); err != nil {
				logger.Warn("User profile refresh failed", "user_id", chunk[i], "error", err)
				result.Failed = append(result.Failed, chunk[i])
				result.Errors = append(result.Errors, FormatErrorForResult("refresh "+chunk[i], err))
				continue
			}
			if res.Updated {
				result.Updated++
			} else {
				result.Skipped++
			}
		}
	}

	logger.Info("User profile refresh complete",
		"users", result.Users,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"failed", len(result.Failed))
	return result, nil
}
