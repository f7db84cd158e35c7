package learning

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/crosve/Csphere/internal/config"
	"github.com/crosve/Csphere/internal/folders"
	"github.com/crosve/Csphere/internal/vecmath"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// RefreshResult describes one user profile refresh.
type RefreshResult struct {
	UserID  string `json:"user_id"`
	Updated bool   `json:"updated"`
	// Items is the number of new embeddings folded into the profile.
	Items int `json:"items"`
	// Pending counts bookmarks held back for a later refresh by content
	// still awaiting enrichment.
	Pending int    `json:"pending,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// pendingGrace is how long a bookmark awaiting enrichment holds back the
// refresh window. Older ones are given up on.
const pendingGrace = 24 * time.Hour

// UserProfiles maintains per-user interest vectors from saved content.
type UserProfiles struct {
	users   folders.UserRepository
	content folders.ContentRepository
	logger  *zap.Logger
	alpha   atomic.Uint64
}

// NewUserProfiles creates the user profile learner. alpha <= 0 uses the
// default rate.
func NewUserProfiles(users folders.UserRepository, content folders.ContentRepository, alpha float64, logger *zap.Logger) *UserProfiles {
	if logger == nil {
		logger = zap.NewNop()
	}
	u := &UserProfiles{users: users, content: content, logger: logger}
	u.SetAlpha(alpha)
	return u
}

// SetAlpha changes the blend rate for subsequent refreshes.
func (u *UserProfiles) SetAlpha(alpha float64) {
	if alpha <= 0 || alpha >= 1 {
		alpha = config.DefaultMatching().UserProfileAlpha
	}
	u.alpha.Store(math.Float64bits(alpha))
}

// Alpha returns the current blend rate.
func (u *UserProfiles) Alpha() float64 {
	return math.Float64frombits(u.alpha.Load())
}

// Refresh folds the embeddings of content the user saved after the last
// refresh and up to now into the user's profile: the centroid of the new
// items becomes the profile when none exists, otherwise it is blended in as
// normalize((1−α)·old + α·centroid). The refresh is skipped when nothing
// new was saved.
//
// last_profile_update is stamped with the newest saved_at folded in, never
// with now, so each bookmark is counted exactly once. A bookmark whose
// content is not embedded yet stops the window, and everything saved after
// it waits for the next refresh.
func (u *UserProfiles) Refresh(ctx context.Context, userID string, now time.Time) (RefreshResult, error) {
	ctx, span := tracer.Start(ctx, "UserProfiles.Refresh")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	res := RefreshResult{UserID: userID}

	user, err := u.users.GetUser(ctx, userID)
	if err != nil {
		UserRefreshesTotal.WithLabelValues("error").Inc()
		return res, err
	}

	history, err := u.content.SavedEmbeddings(ctx, userID, user.LastProfileUpdate, now)
	if err != nil {
		UserRefreshesTotal.WithLabelValues("error").Inc()
		return res, fmt.Errorf("loading embeddings for user %s: %w", userID, err)
	}
	vectors, watermark, pending := foldable(history, now)
	res.Pending = pending

	dim := len(user.Profile)
	if dim == 0 && len(vectors) > 0 {
		dim = len(vectors[0])
	}
	usable := vectors[:0:0]
	for _, v := range vectors {
		if len(v) == dim {
			usable = append(usable, v)
		}
	}
	if dropped := len(vectors) - len(usable); dropped > 0 {
		u.logger.Warn("ignoring embeddings with unexpected dimension",
			zap.String("user_id", userID),
			zap.Int("dropped", dropped),
			zap.Int("dimension", dim),
		)
	}
	res.Items = len(usable)

	if len(usable) == 0 {
		UserRefreshesTotal.WithLabelValues("skipped").Inc()
		res.Reason = "no new content"
		if pending > 0 {
			res.Reason = "awaiting enrichment"
		}
		u.logger.Debug("user profile refresh skipped",
			zap.String("user_id", userID),
			zap.String("reason", res.Reason),
		)
		return res, nil
	}

	centroid, err := vecmath.Centroid(usable)
	if err != nil {
		UserRefreshesTotal.WithLabelValues("error").Inc()
		return res, err
	}

	next := centroid
	if len(user.Profile) > 0 {
		if next, err = vecmath.Blend(user.Profile, centroid, u.Alpha()); err != nil {
			UserRefreshesTotal.WithLabelValues("error").Inc()
			return res, err
		}
	}
	if vecmath.Norm(next) == 0 {
		UserRefreshesTotal.WithLabelValues("skipped").Inc()
		res.Reason = "degenerate profile"
		return res, nil
	}

	if err := u.users.UpdateUserProfile(ctx, userID, vecmath.Normalize(next), watermark); err != nil {
		UserRefreshesTotal.WithLabelValues("error").Inc()
		return res, err
	}

	UserRefreshesTotal.WithLabelValues("updated").Inc()
	res.Updated = true
	u.logger.Info("user profile refreshed",
		zap.String("user_id", userID),
		zap.Int("items", res.Items),
		zap.Int("pending", res.Pending),
		zap.Time("through", watermark),
	)
	return res, nil
}

// foldable returns the embeddings that can be folded in now, in save
// order, and the saved_at of the last one consumed. It stops at the first
// bookmark still awaiting enrichment; bookmarks that stayed unenriched
// longer than pendingGrace are consumed without contributing.
func foldable(history []folders.SavedEmbedding, now time.Time) (vectors [][]float64, watermark time.Time, pending int) {
	for i, h := range history {
		if h.Embedding == nil {
			if now.Sub(h.SavedAt) < pendingGrace {
				return vectors, watermark, len(history) - i
			}
		} else {
			vectors = append(vectors, h.Embedding)
		}
		watermark = h.SavedAt
	}
	return vectors, watermark, 0
}
