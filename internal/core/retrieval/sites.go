package retrieval

import (
	"sort"
	"strings"

	apperrors "nlweb-orchestrator/internal/common/errors"
	"nlweb-orchestrator/internal/models"
)

// ParseSiteSelector turns "seriouseats,imdb" into a site list, restricted to
// allowed when that list is non-empty. Empty or "all" selects every allowed
// site, which is nil when nothing is restricted.
func ParseSiteSelector(raw string, allowed []string) ([]string, error) {
	var requested []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if strings.EqualFold(s, "all") {
			requested = nil
			break
		}
		requested = append(requested, s)
	}

	if len(allowed) == 0 {
		return dedupSites(requested), nil
	}
	if len(requested) == 0 {
		return dedupSites(allowed), nil
	}

	var out []string
	for _, s := range requested {
		for _, a := range allowed {
			if equalSite(s, a) {
				out = append(out, a)
				break
			}
		}
	}
	if len(out) == 0 {
		return nil, apperrors.NewInvalidRequestError("site " + raw + " is not served here")
	}
	return dedupSites(out), nil
}

// TopSites returns up to n sites ordered by how many candidates each contributed.
func TopSites(items []models.CandidateItem, n int) []string {
	counts := map[string]int{}
	var order []string
	for _, it := range items {
		if it.Site == "" {
			continue
		}
		if counts[it.Site] == 0 {
			order = append(order, it.Site)
		}
		counts[it.Site]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > n {
		order = order[:n]
	}
	return order
}

func equalSite(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func dedupSites(sites []string) []string {
	if len(sites) == 0 {
		return nil
	}
	seen := map[string]bool{}
	out := make([]string, 0, len(sites))
	for _, s := range sites {
		k := strings.ToLower(s)
		if !seen[k] {
			seen[k] = true
			out = append(out, s)
		}
	}
	return out
}
