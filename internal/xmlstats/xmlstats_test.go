package xmlstats

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleExport = `<?xml version="1.0" encoding="UTF-8" ?>
<rss version="2.0" xmlns:wp="http://wordpress.org/export/1.2/">
<channel>
	<wp:term><wp:term_id>3</wp:term_id><wp:term_taxonomy><![CDATA[media-category]]></wp:term_taxonomy></wp:term>
	<wp:term><wp:term_id>4</wp:term_id><wp:term_taxonomy> <![CDATA[media-category]]> </wp:term_taxonomy></wp:term>
	<wp:term><wp:term_id>5</wp:term_id><wp:term_taxonomy><![CDATA[post_tag]]></wp:term_taxonomy></wp:term>
	<wp:category><wp:cat_name><![CDATA[News]]></wp:cat_name></wp:category>
	<item>
		<title>Video 1</title>
		<wp:post_type><![CDATA[attachment]]></wp:post_type>
		<wp:post_parent>0</wp:post_parent>
	</item>
	<item>
		<title>Thumbnail</title>
		<wp:post_type>attachment</wp:post_type>
		<wp:post_parent>12</wp:post_parent>
	</item>
	<item>
		<title>A post</title>
		<wp:post_type><![CDATA[post]]></wp:post_type>
		<wp:post_parent>0</wp:post_parent>
	</item>
</channel>
</rss>`

func TestCount(t *testing.T) {
	stats := Count([]byte(sampleExport))
	if stats.ItemSets != 2 {
		t.Errorf("ItemSets = %d, want 2", stats.ItemSets)
	}
	if stats.Media != 2 {
		t.Errorf("Media = %d, want 2", stats.Media)
	}
	if stats.Items != 1 {
		t.Errorf("Items = %d, want 1", stats.Items)
	}
}

func TestCount_Empty(t *testing.T) {
	stats := Count(nil)
	if stats.ItemSets != 0 || stats.Items != 0 || stats.Media != 0 {
		t.Errorf("expected zero stats, got %+v", stats)
	}
}

func TestCountTags(t *testing.T) {
	counts := CountTags([]byte(sampleExport))
	if counts.Items != 3 {
		t.Errorf("Items = %d, want 3", counts.Items)
	}
	if counts.Categories != 1 {
		t.Errorf("Categories = %d, want 1", counts.Categories)
	}
	if counts.RootItems != 2 {
		t.Errorf("RootItems = %d, want 2", counts.RootItems)
	}
}

func TestCountFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channel.xml")
	if err := os.WriteFile(path, []byte(sampleExport), 0o644); err != nil {
		t.Fatal(err)
	}
	stats, err := CountFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Media != 2 {
		t.Errorf("Media = %d, want 2", stats.Media)
	}

	if _, err := CountFile(filepath.Join(t.TempDir(), "absent.xml")); err == nil {
		t.Error("expected error for missing file")
	}
}
