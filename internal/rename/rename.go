// Package rename expands output filename patterns and guarantees unique
// names within a batch.
package rename

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const dateLayout = "20060102"

var unsafeChars = regexp.MustCompile(`\W+`)

// Renamer expands a pattern per image. It is not safe for concurrent use;
// names are assigned in input order by a single goroutine.
type Renamer struct {
	width int
	used  map[string]bool
}

// New returns a renamer sized for batchSize images. The {index} token is
// zero-padded to the number of digits in batchSize.
func New(batchSize int) *Renamer {
	width := 1
	for n := batchSize; n >= 10; n /= 10 {
		width++
	}
	return &Renamer{width: width, used: make(map[string]bool)}
}

// Expand renders the pattern for one image and reserves the result.
//
// Tokens: {index} is the 1-based position zero-padded to the batch width,
// {date} is the capture date as YYYYMMDD, {original} is the sanitized source
// name without extension, {ext} is the output extension. Unknown braces pass
// through literally. When the pattern does not mention {ext}, ".ext" is
// appended. Collisions get a "(2)", "(3)", ... suffix before the extension.
func (r *Renamer) Expand(pattern string, index int, original string, taken time.Time, ext string) string {
	if pattern == "" {
		pattern = "{original}"
	}

	name := pattern
	name = strings.ReplaceAll(name, "{index}", fmt.Sprintf("%0*d", r.width, index))
	name = strings.ReplaceAll(name, "{date}", taken.Format(dateLayout))
	name = strings.ReplaceAll(name, "{original}", sanitizeBase(original))

	if strings.Contains(name, "{ext}") {
		name = strings.ReplaceAll(name, "{ext}", ext)
	} else {
		name = name + "." + ext
	}

	name = r.dedupe(name)
	r.used[name] = true
	return name
}

// dedupe appends a counter suffix before the extension until the name is
// unused within the batch.
func (r *Renamer) dedupe(name string) string {
	if !r.used[name] {
		return name
	}
	stem, ext := name, ""
	if i := strings.LastIndex(name, "."); i > 0 {
		stem, ext = name[:i], name[i:]
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s(%d)%s", stem, n, ext)
		if !r.used[candidate] {
			return candidate
		}
	}
}

// sanitizeBase strips the extension from the source name and replaces any
// run of non-word characters with a single underscore.
func sanitizeBase(original string) string {
	base := original
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	base = unsafeChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "_")
	if base == "" {
		base = "image"
	}
	return base
}
