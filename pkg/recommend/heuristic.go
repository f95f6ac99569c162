// Package recommend implements the depth-recommendation heuristic named as
// an external collaborator in spec §1/§6: a minimal library function, not a
// full component, grounded on original_source/backend/depth.py.
package recommend

import (
	"strings"

	"github.com/itsneelabh/intelcore/pkg/intel"
)

var deepTriggers = []string{"analyze", "report", "comprehensive", "full text", "scrape", "deep"}
var shallowTriggers = []string{"price", "current", "weather", "who is", "define", "simple"}

// Recommend maps free-text query complexity signals to a Depth tier,
// defaulting to Standard when neither trigger set matches.
func Recommend(query string) (intel.Depth, string) {
	lower := strings.ToLower(query)

	for _, t := range deepTriggers {
		if strings.Contains(lower, t) {
			return intel.Deep, "matched deep trigger: " + t
		}
	}
	for _, t := range shallowTriggers {
		if strings.Contains(lower, t) {
			return intel.Shallow, "matched shallow trigger: " + t
		}
	}
	return intel.Standard, "no trigger matched, defaulting to standard"
}
