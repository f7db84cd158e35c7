// Package ingest holds the queue task processors: saving bookmarks and
// filing them into folders, creating and editing folders, manual removals
// and user profile refreshes.
//
// Each processor handles one task type and decodes its own JSON payload.
// The Registry dispatches a delivered message to the processor registered
// for its task type.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Task types.
const (
	TaskProcessMessage       = "process_message"
	TaskProcessFolder        = "process_folder"
	TaskUpdateFolderMetadata = "update_folder_metadata"
	TaskRemoveFromFolder     = "remove_from_folder"
	TaskUserProfileRefresh   = "user_profile_refresh"
)

var (
	// ErrUnknownTask is returned for a task type without a processor.
	ErrUnknownTask = errors.New("unknown task type")

	// ErrPermanent marks failures that redelivery cannot fix, such as an
	// invalid payload.
	ErrPermanent = errors.New("permanent task failure")
)

// Permanent wraps err so IsPermanent reports true.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// IsPermanent reports whether redelivering the task is pointless.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent) || errors.Is(err, ErrUnknownTask)
}

// Processor handles one task type.
type Processor interface {
	TaskType() string
	Process(ctx context.Context, payload []byte) error
}

// Registry maps task types to processors.
type Registry struct {
	mu         sync.RWMutex
	processors map[string]Processor
}

// NewRegistry returns a registry holding ps.
func NewRegistry(ps ...Processor) *Registry {
	r := &Registry{processors: make(map[string]Processor)}
	for _, p := range ps {
		r.Register(p)
	}
	return r
}

// Register adds p, replacing any processor for the same task type.
func (r *Registry) Register(p Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[p.TaskType()] = p
}

// Lookup returns the processor for taskType.
func (r *Registry) Lookup(taskType string) (Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processors[taskType]
	return p, ok
}

// TaskTypes lists the registered task types, sorted.
func (r *Registry) TaskTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.processors))
	for t := range r.processors {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Dispatch runs the processor registered for taskType.
func (r *Registry) Dispatch(ctx context.Context, taskType string, payload []byte) error {
	p, ok := r.Lookup(taskType)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTask, taskType)
	}
	return p.Process(ctx, payload)
}

// decode unmarshals payload, reporting malformed JSON as permanent.
func decode(payload []byte, v interface{}) error {
	if len(payload) == 0 {
		return Permanent(errors.New("empty payload"))
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return Permanent(fmt.Errorf("decoding payload: %w", err))
	}
	return nil
}
