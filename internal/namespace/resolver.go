package namespace

import (
	"strings"

	"go.uber.org/zap"
)

// Context stores resolved namespace metadata used throughout the request
// lifecycle.
type Context struct {
	Tag         string
	DisplayName string
}

// Resolver validates namespace tags against the configured marketplace
// sides (hiring and work by default).
type Resolver struct {
	allowed map[string]*Context
}

// NewResolver creates a resolver for the given tags.
func NewResolver(tags []string) *Resolver {
	allowed := make(map[string]*Context, len(tags))
	for _, tag := range tags {
		cleaned := strings.ToLower(strings.TrimSpace(tag))
		if cleaned == "" {
			continue
		}
		allowed[cleaned] = &Context{Tag: cleaned, DisplayName: displayName(cleaned)}
	}
	return &Resolver{allowed: allowed}
}

// Resolve returns the namespace context for a tag, or false for anything
// outside the configured set. Resolution happens before any payload
// validation; unknown tags always read as not-found.
func (r *Resolver) Resolve(tag string) (*Context, bool) {
	cleaned := strings.ToLower(strings.TrimSpace(tag))
	if cleaned == "" {
		zap.L().Warn("namespace resolver received empty tag")
		return nil, false
	}

	nsCtx, ok := r.allowed[cleaned]
	if !ok {
		zap.L().Debug("unknown namespace", zap.String("namespace", cleaned))
		return nil, false
	}
	return nsCtx, true
}

// Tags lists the configured namespace tags.
func (r *Resolver) Tags() []string {
	tags := make([]string, 0, len(r.allowed))
	for tag := range r.allowed {
		tags = append(tags, tag)
	}
	return tags
}

func displayName(tag string) string {
	if tag == "" {
		return tag
	}
	return strings.ToUpper(tag[:1]) + tag[1:]
}
