package prompt

// RootType is the schema.org root every chain ends in.
const RootType = "Thing"

// DefaultHierarchy lists, for each known type, its ancestors from nearest to root.
var DefaultHierarchy = map[string][]string{
	"Recipe":            {"HowTo", "CreativeWork", RootType},
	"HowTo":             {"CreativeWork", RootType},
	"Movie":             {"CreativeWork", RootType},
	"TVSeries":          {"CreativeWork", RootType},
	"Book":              {"CreativeWork", RootType},
	"PodcastEpisode":    {"Episode", "CreativeWork", RootType},
	"Episode":           {"CreativeWork", RootType},
	"Article":           {"CreativeWork", RootType},
	"RealEstateListing": {"WebPage", "CreativeWork", RootType},
	"WebPage":           {"CreativeWork", RootType},
	"CreativeWork":      {RootType},
	"Restaurant":        {"FoodEstablishment", "LocalBusiness", "Organization", RootType},
	"FoodEstablishment": {"LocalBusiness", "Organization", RootType},
	"Hotel":             {"LodgingBusiness", "LocalBusiness", "Organization", RootType},
	"LodgingBusiness":   {"LocalBusiness", "Organization", RootType},
	"LocalBusiness":     {"Organization", RootType},
	"Organization":      {RootType},
	"Product":           {RootType},
	"Event":             {RootType},
}

// Hierarchy resolves the ancestor chain used for most-specific template lookup.
type Hierarchy map[string][]string

// Chain returns the type itself followed by its ancestors, always ending in Thing.
func (h Hierarchy) Chain(itemType string) []string {
	if itemType == "" {
		return []string{RootType}
	}
	chain := []string{itemType}
	seen := map[string]bool{itemType: true}
	for _, a := range h[itemType] {
		if !seen[a] {
			chain = append(chain, a)
			seen[a] = true
		}
	}
	if !seen[RootType] {
		chain = append(chain, RootType)
	}
	return chain
}

// Merge overlays extra entries onto a copy of h.
func (h Hierarchy) Merge(extra map[string][]string) Hierarchy {
	out := make(Hierarchy, len(h)+len(extra))
	for k, v := range h {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
