package domain

import (
	"strings"
	"unicode"
)

// ChannelDescriptor describes one WordPress channel to migrate
type ChannelDescriptor struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Slug   string `json:"slug"`
	Editor string `json:"editor"`
}

// NewChannelDescriptor trims the fields and derives the slug from the name when it is empty
func NewChannelDescriptor(name, url, slug, editor string) ChannelDescriptor {
	name = strings.TrimSpace(name)
	slug = strings.TrimSpace(slug)
	if slug == "" {
		slug = Slugify(name)
	}
	return ChannelDescriptor{
		Name:   name,
		URL:    strings.TrimSpace(url),
		Slug:   slug,
		Editor: strings.TrimSpace(editor),
	}
}

// Slugify lowercases name, turns spaces into hyphens and drops everything
// that is not a letter, a digit or a hyphen.
func Slugify(name string) string {
	lowered := strings.ReplaceAll(strings.ToLower(name), " ", "-")
	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
