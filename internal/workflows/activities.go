package workflows

import (
	"context"
	"fmt"
	"time"

	"github.com/crosve/Csphere/internal/folders"
	"github.com/crosve/Csphere/internal/learning"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.temporal.io/sdk/activity"
)

// RefreshUserInput is the input of RefreshUserProfileActivity.
type RefreshUserInput struct {
	UserID string
	// At closes the refresh window: only bookmarks saved at or before At
	// are folded in. It comes from workflow time so retries of the same run
	// see the same window.
	At time.Time
}

// Refresher recomputes one user's interest profile.
type Refresher interface {
	Refresh(ctx context.Context, userID string, now time.Time) (learning.RefreshResult, error)
}

// Activities holds the dependencies of the profile refresh activities.
// Register it with a worker; the workflow refers to its methods through a
// nil *Activities.
type Activities struct {
	users     folders.UserRepository
	refresher Refresher
}

// NewActivities creates the activity set.
func NewActivities(users folders.UserRepository, refresher Refresher) *Activities {
	return &Activities{users: users, refresher: refresher}
}

// ListUsersActivity returns every known user ID.
func (a *Activities) ListUsersActivity(ctx context.Context) ([]string, error) {
	start := time.Now()
	ids, err := a.users.ListUserIDs(ctx)
	record(ctx, "list_users", start, err)
	if err != nil {
		return nil, WrapActivityError("list users", err)
	}
	activity.GetLogger(ctx).Info("Listed users for profile refresh", "count", len(ids))
	return ids, nil
}

// RefreshUserProfileActivity refreshes one user's profile.
func (a *Activities) RefreshUserProfileActivity(ctx context.Context, input RefreshUserInput) (*learning.RefreshResult, error) {
	if input.UserID == "" {
		return nil, WrapActivityError("refresh user profile", fmt.Errorf("%w: user id is required", folders.ErrInvalidInput))
	}
	start := time.Now()
	res, err := a.refresher.Refresh(ctx, input.UserID, input.At)
	record(ctx, "refresh_user_profile", start, err)
	if err != nil {
		refreshUsersCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "error")))
		return nil, WrapActivityError(fmt.Sprintf("refresh user %s", input.UserID), err)
	}
	result := "skipped"
	if res.Updated {
		result = "updated"
	}
	refreshUsersCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	refreshItemsHistogram.Record(ctx, int64(res.Items))
	return &res, nil
}

func record(ctx context.Context, name string, start time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("activity", name))
	activityDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	if err != nil {
		activityErrorCounter.Add(ctx, 1, attrs)
	}
}
