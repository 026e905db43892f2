// Package voice maps requested locale tags to synthesis engine voices.
package voice

import (
	"strings"

	"github.com/book-expert/logger"
)

// Fallback is used when even the configured default voice is unknown.
const Fallback = "en-US"

// Voice is one supported synthesis voice.
type Voice struct {
	// Locale is the canonical locale tag, e.g. "es-ES".
	Locale string
	// Code is the identifier handed to the synthesis engine.
	Code string
}

// supported lists the engine voices. pico2wave selects its voice with the
// locale tag itself, so code and locale coincide.
var supported = []Voice{
	{Locale: "en-US", Code: "en-US"},
	{Locale: "en-GB", Code: "en-GB"},
	{Locale: "de-DE", Code: "de-DE"},
	{Locale: "es-ES", Code: "es-ES"},
	{Locale: "fr-FR", Code: "fr-FR"},
	{Locale: "it-IT", Code: "it-IT"},
}

// Supported returns a copy of the supported voice table.
func Supported() []Voice {
	out := make([]Voice, len(supported))
	copy(out, supported)

	return out
}

// Lookup finds the voice for tag. Matching ignores case and accepts "_" in
// place of "-".
func Lookup(tag string) (Voice, bool) {
	normalized := strings.ReplaceAll(strings.TrimSpace(tag), "_", "-")

	for _, candidate := range supported {
		if strings.EqualFold(candidate.Locale, normalized) {
			return candidate, true
		}
	}

	return Voice{}, false
}

// Resolver resolves requested tags against a default voice.
type Resolver struct {
	fallback Voice
	log      *logger.Logger
}

// NewResolver creates a resolver whose fallback is defaultTag.
func NewResolver(defaultTag string, log *logger.Logger) *Resolver {
	fallback, ok := Lookup(defaultTag)
	if !ok {
		log.Warn("Unsupported default voice %s. Using %s", defaultTag, Fallback)
		fallback, _ = Lookup(Fallback)
	}

	return &Resolver{fallback: fallback, log: log}
}

// Default returns the voice used for empty or unknown requests.
func (r *Resolver) Default() Voice {
	return r.fallback
}

// Resolve always yields a voice. The boolean reports whether the default
// was substituted for an unsupported tag.
func (r *Resolver) Resolve(requested string) (Voice, bool) {
	if strings.TrimSpace(requested) == "" {
		return r.fallback, false
	}

	found, ok := Lookup(requested)
	if ok {
		return found, false
	}

	r.log.Warn("Unsupported voice %s. Using default voice %s", requested, r.fallback.Locale)

	return r.fallback, true
}
