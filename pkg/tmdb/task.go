package tmdb

import (
	"github.com/CodeMonkeyCybersecurity/tmdbscan/pkg/titleid"
)

// Task is one probe: a title ID and where its metadata would live.
type Task struct {
	TitleID   string
	Category  titleid.Category
	URL       string
	Extension string
}

// Resolver pairs a Deriver and a Builder to turn title IDs into tasks.
type Resolver struct {
	deriver *Deriver
	builder *Builder
}

func NewResolver(d *Deriver, b *Builder) *Resolver {
	return &Resolver{deriver: d, builder: b}
}

// Resolve builds the task for titleID in category c.
func (r *Resolver) Resolve(titleID string, c titleid.Category) Task {
	return Task{
		TitleID:   titleID,
		Category:  c,
		URL:       r.builder.Build(titleID, r.deriver.Derive(titleID), c),
		Extension: c.Extension(),
	}
}

// Token exposes the underlying derivation for diagnostics.
func (r *Resolver) Token(titleID string) string {
	return r.deriver.Derive(titleID)
}
