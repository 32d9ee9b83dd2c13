// Package entity defines the story entities recognised in manuscripts and
// the index built over them.
package entity

import (
	"context"
)

// Kind is the category of a story entity.
type Kind string

const (
	KindCharacter     Kind = "character"
	KindSetting       Kind = "setting"
	KindForeshadowing Kind = "foreshadowing"
	KindTimeline      Kind = "timeline"
)

// Kinds lists every kind in canonical order. Loaders and indexes use this
// order so output is stable across runs.
var Kinds = []Kind{KindCharacter, KindSetting, KindForeshadowing, KindTimeline}

// ParseKind returns the Kind named by s.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// FrontmatterKey is the frontmatter list key that references entities of this kind
// (e.g. "characters: [hero]").
func (k Kind) FrontmatterKey() string {
	switch k {
	case KindCharacter:
		return "characters"
	case KindSetting:
		return "settings"
	case KindForeshadowing:
		return "foreshadowings"
	case KindTimeline:
		return "timelines"
	}
	return ""
}

// KindForFrontmatterKey is the inverse of Kind.FrontmatterKey.
func KindForFrontmatterKey(key string) (Kind, bool) {
	for _, k := range Kinds {
		if k.FrontmatterKey() == key {
			return k, true
		}
	}
	return "", false
}

// Status is the lifecycle state of a foreshadowing entity.
type Status string

const (
	StatusPlanted           Status = "planted"
	StatusPartiallyResolved Status = "partially_resolved"
	StatusResolved          Status = "resolved"
	StatusAbandoned         Status = "abandoned"
)

// DetectableEntity is an entity together with every string that names it in prose.
type DetectableEntity struct {
	Kind          Kind     `json:"kind"`
	ID            string   `json:"id"`
	CanonicalName string   `json:"canonicalName"`
	DisplayNames  []string `json:"displayNames,omitempty"`
	Aliases       []string `json:"aliases,omitempty"`
	SourcePath    string   `json:"sourcePath,omitempty"`

	// Status is only meaningful for foreshadowing entities
	Status Status `json:"status,omitempty"`

	Summary string `json:"summary,omitempty"`
	Role    string `json:"role,omitempty"`
}

// Terms returns the match vocabulary of the entity: canonical name, display
// names and aliases, in that order, without empties or duplicates.
func (e *DetectableEntity) Terms() []string {
	seen := make(map[string]bool, 1+len(e.DisplayNames)+len(e.Aliases))
	terms := make([]string, 0, 1+len(e.DisplayNames)+len(e.Aliases))
	add := func(s string) {
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		terms = append(terms, s)
	}
	add(e.CanonicalName)
	for _, s := range e.DisplayNames {
		add(s)
	}
	for _, s := range e.Aliases {
		add(s)
	}
	return terms
}

// DisplayName is the name shown to users.
func (e *DetectableEntity) DisplayName() string {
	if len(e.DisplayNames) > 0 {
		return e.DisplayNames[0]
	}
	if e.CanonicalName != "" {
		return e.CanonicalName
	}
	return e.ID
}

// Loader yields the ordered entity list for a project root.
type Loader interface {
	Load(ctx context.Context, projectRoot string) ([]DetectableEntity, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, projectRoot string) ([]DetectableEntity, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, projectRoot string) ([]DetectableEntity, error) {
	return f(ctx, projectRoot)
}
