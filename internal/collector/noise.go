package collector

import "strings"

// NoiseFilter drops short-lived market-colour headlines (intraday wrap-ups,
// top-mover lists, opening commentary) before they reach the bus. The
// keyword list is curated configuration, not inference.
type NoiseFilter struct {
	keywords []string
}

func NewNoiseFilter(keywords []string) *NoiseFilter {
	return &NoiseFilter{keywords: keywords}
}

// IsNoise reports whether the headline contains any curated noise keyword.
func (f *NoiseFilter) IsNoise(headline string) bool {
	for _, kw := range f.keywords {
		if strings.Contains(headline, kw) {
			return true
		}
	}
	return false
}
