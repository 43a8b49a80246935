// Package reconcile decides which catalog items to download and folds the results
// back into the sync state.
package reconcile

import (
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/openmined/reflexmaps/internal/catalog"
	"github.com/openmined/reflexmaps/internal/state"
)

// Action is what the sync does with one catalog item.
type Action string

const (
	ActionDownload Action = "download"
	ActionSkip     Action = "skip"
)

// PlanItem is the decision for one catalog item.
type PlanItem struct {
	URL         string
	LastUpdated time.Time
	Filename    string
	Action      Action
	// Stored is the local marker, if any, the decision was made against.
	Stored    time.Time
	HasStored bool
}

// Plan holds the decisions in catalog order.
type Plan struct {
	Items     []PlanItem
	Downloads int
	Skips     int
}

func (p *Plan) add(item PlanItem) {
	p.Items = append(p.Items, item)
	switch item.Action {
	case ActionDownload:
		p.Downloads++
	case ActionSkip:
		p.Skips++
	}
}

// BuildPlan compares every catalog item with the stored markers. An item is skipped
// only when its stored marker is equal to the reported version; any other
// relationship, including an older remote version, downloads it again.
func BuildPlan(versions map[string]time.Time, items []catalog.Item) Plan {
	plan := Plan{Items: make([]PlanItem, 0, len(items))}
	for _, it := range items {
		stored, ok := versions[it.URL]
		action := ActionDownload
		if ok && stored.Equal(it.LastUpdated) {
			action = ActionSkip
		}
		plan.add(PlanItem{
			URL:         it.URL,
			LastUpdated: it.LastUpdated,
			Filename:    FilenameFor(it.URL),
			Action:      action,
			Stored:      stored,
			HasStored:   ok,
		})
	}
	return plan
}

// FilenameFor derives the local file name from the last path segment of a map url.
// Two urls ending in the same segment map to the same file.
func FilenameFor(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		if name := path.Base(u.Path); name != "/" && name != "." {
			return name
		}
	}
	trimmed := strings.TrimRight(rawURL, "/")
	if i := strings.LastIndexAny(trimmed, `/\`); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	return trimmed
}

// Apply records a successful download of item.
func Apply(st *state.SyncState, item PlanItem) {
	st.SetVersion(item.URL, item.LastUpdated)
}

// Finish stamps the end of a run. Only a full query advances LastFullSync, and
// always to the service clock.
func Finish(st *state.SyncState, q catalog.Query, resp *catalog.Response) {
	if !q.IsFull() || resp == nil {
		return
	}
	st.LastFullSync = resp.ServerNow
}
