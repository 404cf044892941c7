package harvester

import (
	"context"
	"fmt"
	"sort"

	"github.com/airbusgeo/wcs-remote-service/common"
	"github.com/airbusgeo/wcs-remote-service/service/log"
	"go.uber.org/zap"
)

// Harvest fetches the coverages currently advertised by the remote service and classifies them
// against the last-known ones (supplied by the host).
// If the coverages cannot be listed, the error is returned as is: no retry.
func (h *Harvester) Harvest(ctx context.Context, known []common.Coverage) (common.HarvestResult, error) {
	coverages, err := h.processor.ListCoverages(ctx)
	if err != nil {
		return common.HarvestResult{}, fmt.Errorf("Harvest: %w", err)
	}
	current := make([]common.Coverage, 0, len(coverages))
	for _, c := range coverages {
		if h.Config.keep(titleOrID(c.Title, c.Identifier)) {
			current = append(current, c)
		}
	}
	result := Diff(known, current)
	log.Logger(ctx).Info("harvested",
		zap.String("url", h.RemoteURL),
		zap.Int("coverages", len(current)),
		zap.Int("added", len(result.Added)),
		zap.Int("updated", len(result.Updated)),
		zap.Int("removed", len(result.Removed)))
	return result, nil
}

// Diff classifies the current coverages against the known ones, using the identifier as key.
// A known coverage whose fields changed (see SameCoverage) is updated.
// Results are sorted by identifier.
func Diff(known, current []common.Coverage) common.HarvestResult {
	result := common.HarvestResult{
		Added:   []common.Coverage{},
		Updated: []common.Coverage{},
		Removed: []string{},
	}
	knownByID := make(map[string]common.Coverage, len(known))
	for _, c := range known {
		knownByID[c.Identifier] = c
	}
	seen := make(map[string]struct{}, len(current))
	for _, c := range current {
		if _, ok := seen[c.Identifier]; ok {
			continue
		}
		seen[c.Identifier] = struct{}{}
		k, ok := knownByID[c.Identifier]
		switch {
		case !ok:
			result.Added = append(result.Added, c)
		case !SameCoverage(k, c):
			result.Updated = append(result.Updated, c)
		}
	}
	for id := range knownByID {
		if _, ok := seen[id]; !ok {
			result.Removed = append(result.Removed, id)
		}
	}

	sort.Slice(result.Added, func(i, j int) bool { return result.Added[i].Identifier < result.Added[j].Identifier })
	sort.Slice(result.Updated, func(i, j int) bool { return result.Updated[i].Identifier < result.Updated[j].Identifier })
	sort.Strings(result.Removed)
	return result
}

// SameCoverage is a shallow comparison of the fields of two versions of a coverage:
// title, abstract, bounding box, native crs and formats (whatever their order).
func SameCoverage(a, b common.Coverage) bool {
	if a.Title != b.Title || a.Abstract != b.Abstract || a.NativeCRS != b.NativeCRS {
		return false
	}
	if (a.BoundingBox == nil) != (b.BoundingBox == nil) {
		return false
	}
	if a.BoundingBox != nil && *a.BoundingBox != *b.BoundingBox {
		return false
	}
	return sameSet(a.Formats, b.Formats)
}

func sameSet(a, b []string) bool {
	count := map[string]int{}
	for _, s := range a {
		count[s]++
	}
	for _, s := range b {
		count[s]--
	}
	for _, n := range count {
		if n != 0 {
			return false
		}
	}
	return true
}
