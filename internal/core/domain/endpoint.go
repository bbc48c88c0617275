package domain

// Endpoint describes one upstream inference backend as loaded from the
// endpoint descriptor file. URL is the key everything else is indexed by:
// health records, model lists and the inverted routing index all address
// an endpoint by this string, not by any generated identifier.
type Endpoint struct {
	// Name is a display label only; it defaults to URL and never
	// participates in routing or lookup.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	URL         string   `yaml:"url" json:"url"`
	AccessToken string   `yaml:"access_token" json:"-"`
	Groups      []string `yaml:"groups" json:"groups"`
	Task        Task     `yaml:"task" json:"task"`
}

// VisibleTo reports whether any of the caller's groups intersects this
// endpoint's configured groups.
func (e Endpoint) VisibleTo(callerGroups map[string]struct{}) bool {
	for _, g := range e.Groups {
		if _, ok := callerGroups[g]; ok {
			return true
		}
	}
	return false
}

// DisplayName returns Name if set, otherwise the URL.
func (e Endpoint) DisplayName() string {
	if e.Name != "" {
		return e.Name
	}
	return e.URL
}
