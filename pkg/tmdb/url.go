package tmdb

import (
	"strings"

	"github.com/CodeMonkeyCybersecurity/tmdbscan/pkg/titleid"
)

// DefaultDomain hosts every category path.
const DefaultDomain = "http://tmdb.np.dl.playstation.net/"

// Builder composes resource URLs under a fixed domain.
type Builder struct {
	domain string
}

// NewBuilder normalises domain to end in a slash. An empty domain selects
// DefaultDomain.
func NewBuilder(domain string) *Builder {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		domain = DefaultDomain
	}
	if !strings.HasSuffix(domain, "/") {
		domain += "/"
	}
	return &Builder{domain: domain}
}

// Domain returns the normalised domain.
func (b *Builder) Domain() string {
	return b.domain
}

// Build returns {domain}{path}/{id}_00_{token}/{id}_00.{ext}.
func (b *Builder) Build(titleID, token string, c titleid.Category) string {
	stem := titleID + VersionMarker

	var sb strings.Builder
	sb.Grow(len(b.domain) + len(c.Path()) + 2*len(stem) + len(token) + len(c.Extension()) + 4)
	sb.WriteString(b.domain)
	sb.WriteString(c.Path())
	sb.WriteByte('/')
	sb.WriteString(stem)
	sb.WriteByte('_')
	sb.WriteString(token)
	sb.WriteByte('/')
	sb.WriteString(stem)
	sb.WriteByte('.')
	sb.WriteString(c.Extension())
	return sb.String()
}
