package main

import (
	"fmt"
	"time"

	"github.com/crosve/Csphere/internal/workflows"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newProfilesCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "User profile refresh on Temporal",
	}
	cmd.AddCommand(
		newProfilesWorkerCmd(root),
		newProfilesScheduleCmd(root),
		newProfilesRefreshCmd(root),
	)
	return cmd
}

func newProfilesWorkerCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the Temporal worker for the refresh workflow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), root, appOptions{role: "profiles"})
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := workflows.Dial(a.cfg.Temporal, a.logger)
			if err != nil {
				return err
			}
			defer c.Close()

			w := workflows.NewWorker(c, a.cfg.Temporal, workflows.NewActivities(a.store, a.users))
			if err := w.Start(); err != nil {
				return fmt.Errorf("starting temporal worker: %w", err)
			}
			a.logger.Info("profile refresh worker started", zap.String("task_queue", a.cfg.Temporal.TaskQueue))
			<-cmd.Context().Done()
			w.Stop()
			return nil
		},
	}
}

func newProfilesScheduleCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Create or update the nightly refresh schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root.configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			c, err := workflows.Dial(cfg.Temporal, log.Underlying())
			if err != nil {
				return err
			}
			defer c.Close()

			if err := workflows.EnsureSchedule(cmd.Context(), c, cfg.Temporal); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schedule %s: %q on %s\n",
				cfg.Temporal.ScheduleID, cfg.Temporal.ScheduleCron, cfg.Temporal.TaskQueue)
			return nil
		},
	}
}

func newProfilesRefreshCmd(root *rootOptions) *cobra.Command {
	var (
		userIDs []string
		wait    bool
		local   bool
	)
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refresh user profiles now",
		Long: `Start the refresh workflow outside the schedule. With --local the
refresh runs in this process against the database, without Temporal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, root, appOptions{role: "profiles"})
			if err != nil {
				return err
			}
			defer a.Close()
			out := cmd.OutOrStdout()

			if local {
				if len(userIDs) == 0 {
					if userIDs, err = a.store.ListUserIDs(ctx); err != nil {
						return err
					}
				}
				now := time.Now().UTC()
				for _, id := range userIDs {
					res, err := a.users.Refresh(ctx, id, now)
					if err != nil {
						a.log.Error(ctx, "user profile refresh failed", zap.String("user_id", id), zap.Error(err))
						continue
					}
					fmt.Fprintf(out, "%s: updated=%t items=%d %s\n", id, res.Updated, res.Items, res.Reason)
				}
				return nil
			}

			c, err := workflows.Dial(a.cfg.Temporal, a.logger)
			if err != nil {
				return err
			}
			defer c.Close()

			run, err := workflows.StartRefresh(ctx, c, a.cfg.Temporal, workflows.UserProfileRefreshInput{UserIDs: userIDs})
			if err != nil {
				return fmt.Errorf("starting refresh workflow: %w", err)
			}
			fmt.Fprintf(out, "started workflow %s run %s\n", run.GetID(), run.GetRunID())
			if !wait {
				return nil
			}

			var result workflows.UserProfileRefreshResult
			if err := run.Get(ctx, &result); err != nil {
				return err
			}
			fmt.Fprintf(out, "users=%d updated=%d skipped=%d failed=%d\n",
				result.Users, result.Updated, result.Skipped, len(result.Failed))
			for _, e := range result.Errors {
				fmt.Fprintln(out, "  "+e)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&userIDs, "user", nil, "refresh only these users (repeatable)")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the workflow result")
	cmd.Flags().BoolVar(&local, "local", false, "refresh in-process instead of on Temporal")
	return cmd
}
