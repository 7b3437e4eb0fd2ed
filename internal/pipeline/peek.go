package pipeline

import (
	"bytes"
	"context"
	"image"
	"time"

	"github.com/amirzhanov/pixpack/internal/metadata"
	"github.com/amirzhanov/pixpack/internal/resize"
)

// PeekResult summarizes one image without modifying or packaging anything.
type PeekResult struct {
	Name   string         `json:"name"`
	Width  int            `json:"width,omitempty"`
	Height int            `json:"height,omitempty"`
	Camera string         `json:"camera,omitempty"`
	Taken  *time.Time     `json:"taken,omitempty"`
	HasGPS bool           `json:"has_gps"`
	Tags   []metadata.Tag `json:"tags,omitempty"`
	Err    string         `json:"error,omitempty"`
}

// Peek inspects each image and reports dimensions, camera, capture time and
// GPS presence. Unreadable images get an entry with Err set; peek never
// fails the batch. Results come back in input order.
func (p *Pipeline) Peek(ctx context.Context, sources []Source) []PeekResult {
	out := make([]PeekResult, len(sources))
	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			out[i] = PeekResult{Name: src.Name, Err: err.Error()}
			continue
		}
		out[i] = peekOne(src)
	}
	return out
}

func peekOne(src Source) PeekResult {
	res := PeekResult{Name: src.Name}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(src.Data))
	if err != nil {
		res.Err = "decode image: " + err.Error()
		return res
	}
	res.Width, res.Height = cfg.Width, cfg.Height

	set, err := metadata.Decode(src.Data, src.Format)
	if err != nil {
		res.Err = "read metadata: " + err.Error()
		return res
	}
	if resize.SwapsDimensions(set.Orientation()) {
		res.Width, res.Height = res.Height, res.Width
	}
	res.Camera = set.Camera()
	if ts, ok := set.CaptureTime(); ok {
		res.Taken = &ts
	}
	res.HasGPS = set.HasGPS()
	res.Tags = set.Tags()
	return res
}
