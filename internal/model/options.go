package model

// ResizeMode selects how target dimensions are derived from the source.
type ResizeMode string

const (
	ResizeNone    ResizeMode = ""        // keep source dimensions
	ResizeWidth   ResizeMode = "width"   // fixed width, height follows aspect
	ResizeHeight  ResizeMode = "height"  // fixed height, width follows aspect
	ResizePercent ResizeMode = "percent" // both dimensions scaled by value/100
	ResizeFit     ResizeMode = "fit"     // largest size fitting within width x height
)

// ResizeSpec is the caller-supplied resize request.
// Value carries the width, height or percent depending on Mode; Width and
// Height are the bounds for ResizeFit.
type ResizeSpec struct {
	Mode   ResizeMode `json:"mode"`
	Value  int        `json:"value,omitempty"`
	Width  int        `json:"width,omitempty"`
	Height int        `json:"height,omitempty"`
}

// Options holds the per-batch processing configuration supplied by the caller.
type Options struct {
	Resize        ResizeSpec `json:"resize"`
	StripGPS      bool       `json:"strip_gps"`
	StripSerials  bool       `json:"strip_serials"`
	StripAll      bool       `json:"strip_all"`
	RenamePattern string     `json:"rename_pattern"`
	OutputFormat  string     `json:"output_format,omitempty"` // jpg | png | webp; empty keeps source format
	Quality       int        `json:"quality,omitempty"`       // JPEG/WebP quality, 1-100
}
