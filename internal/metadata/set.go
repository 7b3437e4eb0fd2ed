package metadata

import (
	"sort"
	"strings"
	"time"
)

// Tag is a single decoded metadata field. Name is the identifier used
// throughout the system; IfdPath records which directory the tag came from.
type Tag struct {
	ID      uint16 `json:"id"`
	Name    string `json:"name"`
	IfdPath string `json:"ifd_path"`
	Type    string `json:"type"`
	Value   string `json:"value"`
}

// Set is a decoded metadata block: a mapping from tag name to Tag, plus the
// orientation read out separately and the original raw EXIF blob kept around
// so the set can be re-embedded without reconstructing every value.
type Set struct {
	tags        map[string]Tag
	orientation int
	raw         []byte
}

// Empty returns a set with no tags and nothing to re-embed.
func Empty() *Set {
	return &Set{tags: map[string]Tag{}}
}

// NewSet builds a set from explicit tags. Mainly useful for constructing
// fixtures; decoded sets additionally carry the raw EXIF needed for encoding.
func NewSet(tags ...Tag) *Set {
	s := Empty()
	for _, t := range tags {
		s.tags[t.Name] = t
	}
	return s
}

// Len reports the number of tags in the set.
func (s *Set) Len() int { return len(s.tags) }

// Get looks up a tag by name.
func (s *Set) Get(name string) (Tag, bool) {
	t, ok := s.tags[name]
	return t, ok
}

// Tags returns all tags sorted by name.
func (s *Set) Tags() []Tag {
	out := make([]Tag, 0, len(s.tags))
	for _, t := range s.tags {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns all tag names sorted.
func (s *Set) Names() []string {
	out := make([]string, 0, len(s.tags))
	for name := range s.tags {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Orientation returns the EXIF orientation (1-8), defaulting to 1 (normal)
// when the tag is absent or out of range.
func (s *Set) Orientation() int {
	if s.orientation >= 1 && s.orientation <= 8 {
		return s.orientation
	}
	return 1
}

// HasGPS reports whether any tag came from the GPS directory.
func (s *Set) HasGPS() bool {
	for _, t := range s.tags {
		if strings.HasPrefix(t.IfdPath, gpsIfdPath) {
			return true
		}
	}
	return false
}

// CaptureTime returns the capture timestamp, preferring DateTimeOriginal and
// falling back to DateTime. The second return is false when neither parses.
func (s *Set) CaptureTime() (time.Time, bool) {
	for _, name := range []string{"DateTimeOriginal", "DateTime"} {
		t, ok := s.tags[name]
		if !ok {
			continue
		}
		if ts, err := time.Parse(exifTimeLayout, t.Value); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// Camera returns the trimmed "Make Model" string, empty when unknown.
func (s *Set) Camera() string {
	var parts []string
	for _, name := range []string{"Make", "Model"} {
		if t, ok := s.tags[name]; ok && strings.TrimSpace(t.Value) != "" {
			parts = append(parts, strings.TrimSpace(t.Value))
		}
	}
	return strings.Join(parts, " ")
}

// Filter returns a new set containing only tags for which keep returns true.
// The raw EXIF and orientation carry over, so the filtered set can still be
// re-embedded; removed tags are dropped again at encode time.
func (s *Set) Filter(keep func(Tag) bool) *Set {
	out := &Set{
		tags:        make(map[string]Tag, len(s.tags)),
		orientation: s.orientation,
		raw:         s.raw,
	}
	for name, t := range s.tags {
		if keep(t) {
			out.tags[name] = t
		}
	}
	return out
}

const exifTimeLayout = "2006:01:02 15:04:05"
