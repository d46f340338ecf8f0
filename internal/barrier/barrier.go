// Package barrier gates parent-level mosaics behind completion of all
// sibling child units. Workers report child completions as they persist
// their records; the barrier decides, under a per-run lock, when a parent's
// expected children are all accounted for and hands exactly one worker the
// merge to execute.
package barrier

import (
	"path/filepath"
	"sync"

	"github.com/vk/floodgridgo/internal/fsutil"
	"github.com/vk/floodgridgo/internal/runconfig"
)

// MergeRequest instructs the receiving worker to mosaic the named children's
// rasters into the parent unit. Exactly one request is issued per parent.
type MergeRequest struct {
	ParentID string
	// Children are the sibling unit IDs whose output artifacts were present
	// when the barrier triggered.
	Children []string
}

// aggState tracks one parent's observed child completions. triggered flips
// exactly once, under the barrier lock.
type aggState struct {
	completed map[string]bool
	triggered bool
}

// Barrier coordinates parent merges for hierarchical runs. It is safe for
// concurrent use by all workers.
type Barrier struct {
	params *runconfig.Params

	mu      sync.Mutex
	parents map[string]*aggState
}

// New creates a Barrier for the run.
func New(params *runconfig.Params) *Barrier {
	return &Barrier{
		params:  params,
		parents: make(map[string]*aggState),
	}
}

// OnChildComplete records that childID reached a terminal state and reports
// whether the caller should execute the parent merge. The expected child set
// is determined by scanning for sibling output artifacts actually present,
// so units skipped by idempotency or failed before producing anything do not
// block the parent forever.
//
// When several workers observe completion at the same instant, the triggered
// flag guarantees exactly one of them receives the request.
func (b *Barrier) OnChildComplete(childID, parentID string) (*MergeRequest, error) {
	// The scan happens outside the lock; any artifact this child produced is
	// already on disk, so the expected set can only be a superset of what
	// this completion contributed.
	expected, err := b.expectedChildren(parentID)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.parents[parentID]
	if !ok {
		state = &aggState{completed: make(map[string]bool)}
		b.parents[parentID] = state
	}
	state.completed[childID] = true

	if state.triggered || len(expected) == 0 {
		return nil, nil
	}
	for _, sibling := range expected {
		if !state.completed[sibling] {
			return nil, nil
		}
	}

	state.triggered = true
	return &MergeRequest{ParentID: parentID, Children: expected}, nil
}

// expectedChildren lists the child units of parentID that have contributed
// at least one output artifact, in directory order.
func (b *Barrier) expectedChildren(parentID string) ([]string, error) {
	candidates, err := fsutil.SubdirsWithPrefix(b.params.OutputDir, parentID)
	if err != nil {
		return nil, err
	}

	var children []string
	for _, name := range candidates {
		artifacts, err := fsutil.FindFilesByExtension(
			filepath.Join(b.params.OutputDir, name), ".tif")
		if err != nil {
			continue
		}
		if len(artifacts) > 0 {
			children = append(children, name)
		}
	}
	return children, nil
}
