package workflows

import (
	"context"
	"errors"
	"fmt"

	"github.com/crosve/Csphere/internal/config"
	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"
)

// zapAdapter routes Temporal SDK logs through zap.
type zapAdapter struct {
	s *zap.SugaredLogger
}

func (l zapAdapter) Debug(msg string, keyvals ...interface{}) { l.s.Debugw(msg, keyvals...) }
func (l zapAdapter) Info(msg string, keyvals ...interface{})  { l.s.Infow(msg, keyvals...) }
func (l zapAdapter) Warn(msg string, keyvals ...interface{})  { l.s.Warnw(msg, keyvals...) }
func (l zapAdapter) Error(msg string, keyvals ...interface{}) { l.s.Errorw(msg, keyvals...) }

func (l zapAdapter) With(keyvals ...interface{}) log.Logger {
	return zapAdapter{s: l.s.With(keyvals...)}
}

// NewLogger adapts logger for the Temporal SDK.
func NewLogger(logger *zap.Logger) log.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return zapAdapter{s: logger.Sugar()}
}

// Dial connects to the Temporal frontend.
func Dial(cfg config.TemporalConfig, logger *zap.Logger) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    NewLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal at %s: %w", cfg.HostPort, err)
	}
	return c, nil
}

// NewWorker creates a worker on cfg.TaskQueue running the refresh
// workflow and acts.
func NewWorker(c client.Client, cfg config.TemporalConfig, acts *Activities) worker.Worker {
	w := worker.New(c, cfg.TaskQueue, worker.Options{})
	w.RegisterWorkflow(UserProfileRefreshWorkflow)
	w.RegisterActivity(acts)
	return w
}

// EnsureSchedule creates the nightly refresh schedule, or updates the cron
// spec of an existing one.
func EnsureSchedule(ctx context.Context, c client.Client, cfg config.TemporalConfig) error {
	spec := client.ScheduleSpec{CronExpressions: []string{cfg.ScheduleCron}}
	_, err := c.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID:   cfg.ScheduleID,
		Spec: spec,
		Action: &client.ScheduleWorkflowAction{
			ID:        cfg.ScheduleID + "-run",
			Workflow:  UserProfileRefreshWorkflow,
			Args:      []interface{}{UserProfileRefreshInput{}},
			TaskQueue: cfg.TaskQueue,
		},
		Overlap: enumspb.SCHEDULE_OVERLAP_POLICY_SKIP,
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, temporal.ErrScheduleAlreadyRunning) {
		return fmt.Errorf("creating schedule %s: %w", cfg.ScheduleID, err)
	}

	handle := c.ScheduleClient().GetHandle(ctx, cfg.ScheduleID)
	err = handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(in client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			sched := in.Description.Schedule
			sched.Spec = &spec
			return &client.ScheduleUpdate{Schedule: &sched}, nil
		},
	})
	if err != nil {
		return fmt.Errorf("updating schedule %s: %w", cfg.ScheduleID, err)
	}
	return nil
}

// StartRefresh runs the refresh workflow now, outside the schedule.
func StartRefresh(ctx context.Context, c client.Client, cfg config.TemporalConfig, input UserProfileRefreshInput) (client.WorkflowRun, error) {
	return c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        cfg.ScheduleID + "-manual-" + uuid.NewString(),
		TaskQueue: cfg.TaskQueue,
	}, UserProfileRefreshWorkflow, input)
}
