// Package xmlstats counts entity markers in WordPress WXR exports.
//
// Counting works on the raw text so that namespaces, CDATA sections and
// partially broken exports do not matter.
package xmlstats

import (
	"fmt"
	"os"
	"regexp"

	"github.com/kurihiro0119/omeka-channel-migrator/internal/domain"
)

var (
	itemBlockRe     = regexp.MustCompile(`(?is)<item\b[^>]*>.*?</item>`)
	itemTagRe       = regexp.MustCompile(`(?i)<item\b`)
	categoryTagRe   = regexp.MustCompile(`(?i)<wp:category\b`)
	attachmentRe    = regexp.MustCompile(`(?i)<wp:post_type\b[^>]*>\s*(?:<!\[CDATA\[)?\s*attachment\s*(?:\]\]>)?\s*</wp:post_type>`)
	rootParentRe    = regexp.MustCompile(`(?i)<wp:post_parent\b[^>]*>\s*0\s*</wp:post_parent>`)
	mediaCategoryRe = regexp.MustCompile(`(?is)<wp:term_taxonomy\b[^>]*>\s*<!\[CDATA\[media-category\]\]>\s*</wp:term_taxonomy\s*>`)
)

// Count returns the item-set, item and media markers found in an export.
// Media are attachment items, items are attachments without a parent post
// and item sets are media-category terms.
func Count(data []byte) domain.ContentStats {
	var stats domain.ContentStats
	for _, block := range itemBlockRe.FindAll(data, -1) {
		if !attachmentRe.Match(block) {
			continue
		}
		stats.Media++
		if rootParentRe.Match(block) {
			stats.Items++
		}
	}
	stats.ItemSets = len(mediaCategoryRe.FindAllIndex(data, -1))
	return stats
}

// CountFile reads path and counts its markers
func CountFile(path string) (domain.ContentStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.ContentStats{}, fmt.Errorf("read export %s: %w", path, err)
	}
	return Count(data), nil
}

// TagCounts are raw tag tallies used when auditing exports
type TagCounts struct {
	Items      int `json:"item_count"`
	Categories int `json:"wp_category_count"`
	MediaTerms int `json:"media_category_count"`
	RootItems  int `json:"root_items"`
}

// CountTags tallies raw tags without looking at item structure
func CountTags(data []byte) TagCounts {
	return TagCounts{
		Items:      len(itemTagRe.FindAllIndex(data, -1)),
		Categories: len(categoryTagRe.FindAllIndex(data, -1)),
		MediaTerms: len(mediaCategoryRe.FindAllIndex(data, -1)),
		RootItems:  len(rootParentRe.FindAllIndex(data, -1)),
	}
}
