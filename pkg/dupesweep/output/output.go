// Package output renders scan reports in the formats selectable with -o
// (pretty, plain, json, jsonl, yaml, paths, null).
//
// Formatters register themselves in a registry and are looked up by name:
//
//	formatter, err := output.Get("pretty")
//	if err != nil {
//	    return err
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, output.NewResult(report)); err != nil {
//	    return err
//	}
package output

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

// Result is a report plus presentation state.
type Result struct {
	Report *types.Report

	// SkippedSets are set IDs the user excluded from the delete queue.
	SkippedSets map[string]bool

	// Warnings are shown after the sets.
	Warnings []string
}

// NewResult wraps a report.
func NewResult(r *types.Report) *Result {
	return &Result{Report: r, SkippedSets: map[string]bool{}}
}

// Formatter is the interface that all output formatters must implement.
type Formatter interface {
	// Format writes the formatted output to the buffer.
	Format(w *bytes.Buffer, r *Result) error
}

// FormatterFactory is a function that creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]FormatterFactory)}
}

// Register adds a formatter factory, replacing any with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns a sorted list of all registered formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns all formatter names from the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}

// The view types below are the stable machine-readable shape shared by the
// json, jsonl and yaml formatters.

type reportView struct {
	Summary    summaryView         `json:"summary" yaml:"summary"`
	Sets       []setView           `json:"sets" yaml:"sets"`
	Skipped    []types.SkippedFile `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	WalkErrors []types.ScanError   `json:"walk_errors,omitempty" yaml:"walk_errors,omitempty"`
	Warnings   []string            `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

type summaryView struct {
	Roots            []string        `json:"roots" yaml:"roots"`
	Algorithm        types.Algorithm `json:"algorithm" yaml:"algorithm"`
	Threshold        int             `json:"threshold" yaml:"threshold"`
	FilesSeen        int             `json:"files_seen" yaml:"files_seen"`
	Hashed           int             `json:"hashed" yaml:"hashed"`
	Skipped          int             `json:"skipped" yaml:"skipped"`
	Clustered        int             `json:"clustered" yaml:"clustered"`
	Sets             int             `json:"sets" yaml:"sets"`
	CacheHits        int             `json:"cache_hits" yaml:"cache_hits"`
	Reclaimable      uint64          `json:"reclaimable" yaml:"reclaimable"`
	ReclaimableHuman string          `json:"reclaimable_human" yaml:"reclaimable_human"`
	Workers          int             `json:"workers" yaml:"workers"`
	StaticBudget     bool            `json:"static_budget" yaml:"static_budget"`
	StartedAt        time.Time       `json:"started_at" yaml:"started_at"`
	Elapsed          string          `json:"elapsed" yaml:"elapsed"`
}

type setView struct {
	ID                 string       `json:"id" yaml:"id"`
	RepresentativeHash string       `json:"representative_hash" yaml:"representative_hash"`
	Skipped            bool         `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Members            []memberView `json:"members" yaml:"members"`
}

type memberView struct {
	SetID     string        `json:"set_id,omitempty" yaml:"-"`
	Path      string        `json:"path" yaml:"path"`
	Size      uint64        `json:"size" yaml:"size"`
	SizeHuman string        `json:"size_human" yaml:"size_human"`
	Width     uint32        `json:"width" yaml:"width"`
	Height    uint32        `json:"height" yaml:"height"`
	ModTime   time.Time     `json:"mod_time" yaml:"mod_time"`
	Hash      string        `json:"hash" yaml:"hash"`
	Score     float64       `json:"score" yaml:"score"`
	Action    types.Action  `json:"action" yaml:"action"`
	Signals   types.Signals `json:"signals" yaml:"signals"`
}

func buildView(r *Result) reportView {
	rep := r.Report
	view := reportView{
		Summary: summaryView{
			Roots:            rep.Roots,
			Algorithm:        rep.Algorithm,
			Threshold:        rep.Threshold,
			FilesSeen:        rep.FilesSeen,
			Hashed:           rep.Hashed,
			Skipped:          len(rep.Skipped),
			Clustered:        rep.Clustered,
			Sets:             len(rep.Sets),
			CacheHits:        rep.CacheHits,
			Reclaimable:      rep.ReclaimableBytes(),
			ReclaimableHuman: types.FormatSize(rep.ReclaimableBytes()),
			Workers:          rep.Budget.MaxWorkers,
			StaticBudget:     rep.Budget.Static,
			StartedAt:        rep.StartedAt,
			Elapsed:          rep.Elapsed.Round(time.Millisecond).String(),
		},
		Sets:       make([]setView, 0, len(rep.Sets)),
		Skipped:    rep.Skipped,
		WalkErrors: rep.WalkErrors,
		Warnings:   r.Warnings,
	}
	for _, set := range rep.Sets {
		view.Sets = append(view.Sets, setView{
			ID:                 set.ID,
			RepresentativeHash: set.RepresentativeHash.String(),
			Skipped:            r.SkippedSets[set.ID],
			Members:            members(rep, set),
		})
	}
	return view
}

// members pairs each set member with its score.
func members(rep *types.Report, set types.DuplicateSet) []memberView {
	scores := rep.Scores[set.ID]
	out := make([]memberView, len(set.Members))
	for i, m := range set.Members {
		v := memberView{
			SetID:     set.ID,
			Path:      m.Path,
			Size:      m.Size,
			SizeHuman: types.FormatSize(m.Size),
			Width:     m.Width,
			Height:    m.Height,
			ModTime:   m.ModTime,
			Hash:      m.Hash.String(),
		}
		if i < len(scores) && scores[i].Record.Path == m.Path {
			v.Score = scores[i].Score
			v.Action = scores[i].Action
			v.Signals = scores[i].Signals
		}
		out[i] = v
	}
	return out
}

// deleteQueue returns delete candidates from sets the user did not skip.
func deleteQueue(r *Result) []memberView {
	var out []memberView
	for _, set := range r.Report.Sets {
		if r.SkippedSets[set.ID] {
			continue
		}
		for _, m := range members(r.Report, set) {
			if m.Action == types.ActionDelete {
				out = append(out, m)
			}
		}
	}
	return out
}
