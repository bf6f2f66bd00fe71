package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/kurihiro0119/omeka-channel-migrator/internal/omeka"
)

// MarkerValue is the property value the import sheets stamp on the item sets
// that belong to siteID
func MarkerValue(prefix string, siteID int) string {
	return prefix + strconv.Itoa(siteID)
}

// Reconcile attaches the item sets marked for siteID to the site and then
// clears the marker. Sets already attached are skipped, so running it again
// never duplicates an attachment. It returns how many sets were attached.
func Reconcile(ctx context.Context, repo omeka.Repository, siteID int, property, prefix string, log *slog.Logger) (int, error) {
	if log == nil {
		log = slog.Default()
	}
	marker := MarkerValue(prefix, siteID)

	sets, err := repo.SearchItemSets(ctx, property, marker)
	if err != nil {
		return 0, fmt.Errorf("search item sets: %w", err)
	}
	if len(sets) == 0 {
		return 0, nil
	}

	site, err := repo.GetSite(ctx, siteID)
	if err != nil {
		return 0, fmt.Errorf("get site: %w", err)
	}

	entries := make([]any, 0, len(site.ItemSets)+len(sets))
	for _, a := range site.ItemSets {
		entries = append(entries, itemSetEntry(a.ItemSet.ID))
	}
	attached := 0
	for _, set := range sets {
		if site.HasItemSet(set.ID) {
			log.Debug("item set already attached", "site_id", siteID, "item_set_id", set.ID)
			continue
		}
		entries = append(entries, itemSetEntry(set.ID))
		attached++
	}
	if attached > 0 {
		if err := repo.UpdateSite(ctx, siteID, map[string]any{"o:site_item_set": entries}); err != nil {
			return 0, fmt.Errorf("attach item sets: %w", err)
		}
	}

	var errs []error
	for _, set := range sets {
		values, removed := set.ValuesWithout(property, marker)
		if !removed {
			continue
		}
		if err := repo.UpdateItemSet(ctx, set.ID, map[string]any{property: values}); err != nil {
			errs = append(errs, fmt.Errorf("clear marker on item set %d: %w", set.ID, err))
		}
	}
	return attached, errors.Join(errs...)
}

func itemSetEntry(id int) map[string]any {
	return map[string]any{"o:item_set": map[string]any{"o:id": id}}
}
