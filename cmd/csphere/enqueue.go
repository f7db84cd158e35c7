package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/crosve/Csphere/internal/ingest"
	"github.com/crosve/Csphere/internal/worker"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type enqueueOptions struct {
	msgID    string
	userID   string
	url      string
	title    string
	source   string
	notes    string
	folderID string
	htmlFile string
	task     string
	payload  string
}

func newEnqueueCmd(root *rootOptions) *cobra.Command {
	opts := &enqueueOptions{}
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Publish a task to the ingestion stream",
		Long: `Publish a bookmark save (the default) or any other task to the JetStream
stream the worker consumes.

Examples:
  # Save a bookmark and let the matcher file it
  csphere enqueue --user u1 --url https://go.dev/blog/loopvar --title "Fixing for loops"

  # Publish a raw task payload
  csphere enqueue --task user_profile_refresh --payload '{"user_id":"u1"}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			task, payload, err := opts.build()
			if err != nil {
				return err
			}

			cfg, err := loadConfig(root.configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			nc, err := worker.Connect(cfg.NATS, log.Underlying())
			if err != nil {
				return err
			}
			defer nc.Close()

			pub, err := worker.NewPublisher(nc, cfg.NATS)
			if err != nil {
				return err
			}
			if err := pub.EnsureStream(cmd.Context(), cfg.NATS); err != nil {
				return err
			}

			msgID := opts.msgID
			if msgID == "" {
				msgID = uuid.NewString()
			}
			ack, err := pub.Publish(cmd.Context(), task, payload, msgID)
			if err != nil {
				return err
			}
			dup := ""
			if ack.Duplicate {
				dup = " (duplicate, ignored)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %s as %s seq %d%s\n", task, msgID, ack.Sequence, dup)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.msgID, "msg-id", "", "deduplication id (default: random)")
	f.StringVar(&opts.userID, "user", "", "bookmark owner")
	f.StringVar(&opts.url, "url", "", "bookmark URL")
	f.StringVar(&opts.title, "title", "", "page title")
	f.StringVar(&opts.source, "source", "cli", "where the bookmark came from")
	f.StringVar(&opts.notes, "notes", "", "user notes")
	f.StringVar(&opts.folderID, "folder", "", "file into this folder instead of matching")
	f.StringVar(&opts.htmlFile, "html-file", "", "file with the page's raw HTML")
	f.StringVar(&opts.task, "task", "", "publish a raw payload for this task type")
	f.StringVar(&opts.payload, "payload", "", "raw JSON payload, used with --task")
	cmd.MarkFlagsMutuallyExclusive("task", "url")
	return cmd
}

// build returns the task type and payload the flags describe.
func (o *enqueueOptions) build() (string, interface{}, error) {
	if o.task != "" {
		if !json.Valid([]byte(o.payload)) {
			return "", nil, fmt.Errorf("--payload must be valid JSON")
		}
		return o.task, json.RawMessage(o.payload), nil
	}

	if o.userID == "" || o.url == "" {
		return "", nil, fmt.Errorf("--user and --url are required for a bookmark")
	}
	now := time.Now().UTC()
	msg := ingest.BookmarkMessage{
		UserID:   o.userID,
		Notes:    o.notes,
		FolderID: o.folderID,
		Content: ingest.ContentPayload{
			URL:          o.url,
			Title:        o.title,
			Source:       o.source,
			FirstSavedAt: &now,
		},
	}
	if o.htmlFile != "" {
		raw, err := os.ReadFile(o.htmlFile)
		if err != nil {
			return "", nil, fmt.Errorf("reading %s: %w", o.htmlFile, err)
		}
		msg.RawHTML = string(raw)
	}
	return ingest.TaskProcessMessage, msg, nil
}
