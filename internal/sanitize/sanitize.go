// Package sanitize removes sensitive fields from decoded metadata sets.
// Filtering is pure: it never touches pixels or the source set, and applying
// the same policy twice yields the same result.
package sanitize

import (
	"sort"
	"strings"

	"github.com/amirzhanov/pixpack/internal/metadata"
)

// DefaultSerialTags are the identity-bearing tags stripped by StripSerials
// when no custom blocklist is configured.
var DefaultSerialTags = []string{
	"BodySerialNumber",
	"LensSerialNumber",
	"SerialNumber",
	"InternalSerialNumber",
	"CameraOwnerName",
	"OwnerName",
	"ImageUniqueID",
}

const gpsIfdPrefix = "IFD/GPSInfo"

// Policy selects which tag categories to remove. StripAll wins over the
// category flags. The tag lists extend (not replace) structural matching:
// GPS tags are recognized by their IFD path regardless of GPSTags.
type Policy struct {
	StripGPS     bool
	StripSerials bool
	StripAll     bool

	GPSTags    []string
	SerialTags []string
}

// Filter returns a copy of the set with the policy applied, plus the sorted
// names of the removed tags. An empty policy returns an equal set.
func Filter(set *metadata.Set, policy Policy) (*metadata.Set, []string) {
	if policy.StripAll {
		removed := set.Names()
		if len(removed) == 0 {
			return metadata.Empty(), nil
		}
		return metadata.Empty(), removed
	}

	gps := toLowerSet(policy.GPSTags)
	serials := policy.SerialTags
	if serials == nil {
		serials = DefaultSerialTags
	}
	serialSet := toLowerSet(serials)

	var removed []string
	out := set.Filter(func(t metadata.Tag) bool {
		if policy.StripGPS && isGPS(t, gps) {
			removed = append(removed, t.Name)
			return false
		}
		if policy.StripSerials && serialSet[strings.ToLower(t.Name)] {
			removed = append(removed, t.Name)
			return false
		}
		return true
	})
	sort.Strings(removed)
	return out, removed
}

func isGPS(t metadata.Tag, extra map[string]bool) bool {
	if strings.HasPrefix(t.IfdPath, gpsIfdPrefix) {
		return true
	}
	if strings.HasPrefix(t.Name, "GPS") {
		return true
	}
	return extra[strings.ToLower(t.Name)]
}

func toLowerSet(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[strings.ToLower(n)] = true
	}
	return m
}
