// Package pipeline runs the per-image processing state machine over a batch:
// decode, sanitize, resize, re-encode, rename and package. Images are
// processed concurrently; the report always comes back in input order.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"runtime"
	"sync"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // register webp decoding

	"github.com/amirzhanov/pixpack/internal/archive"
	"github.com/amirzhanov/pixpack/internal/metadata"
	"github.com/amirzhanov/pixpack/internal/model"
	"github.com/amirzhanov/pixpack/internal/rename"
	"github.com/amirzhanov/pixpack/internal/resize"
	"github.com/amirzhanov/pixpack/internal/sanitize"
)

// DefaultQuality is the JPEG/WebP quality used when the caller does not set one.
const DefaultQuality = 85

// Source is one input image held fully in memory.
type Source struct {
	Name   string
	Format model.Format
	Data   []byte
}

// Config tunes the pipeline. Zero values select defaults.
type Config struct {
	Workers    int      // concurrent images; 0 means NumCPU
	MaxUpscale float64  // enlargement ceiling; 0 means resize.DefaultMaxUpscale
	Quality    int      // default output quality; 0 means DefaultQuality
	GPSTags    []string // extra GPS tag names beyond structural matching
	SerialTags []string // serial tag blocklist; nil means sanitize defaults
}

// Result is the outcome of a batch run. Archive is nil when no image
// succeeded.
type Result struct {
	Report  []model.ReportEntry
	Archive []byte
}

type Pipeline struct {
	cfg     Config
	resizer *resize.Resizer
}

func New(cfg Config) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Quality <= 0 {
		cfg.Quality = DefaultQuality
	}
	return &Pipeline{cfg: cfg, resizer: resize.New(cfg.MaxUpscale)}
}

// processed is the per-image state carried from the concurrent phase into
// the serial rename/package phase.
type processed struct {
	entry model.ReportEntry
	data  []byte
	ext   string
	taken time.Time
	ok    bool
}

// Run processes the batch. One image failing does not fail the batch; its
// report entry records the error and the rest proceed. Context cancellation
// lets in-flight images finish and marks unstarted ones skipped. A packaging
// failure is batch-fatal: the report is returned alongside the error.
func (p *Pipeline) Run(ctx context.Context, sources []Source, opts model.Options) (*Result, error) {
	results := make([]processed, len(sources))

	var wg sync.WaitGroup
	sem := make(chan struct{}, p.cfg.Workers)

	started := len(sources)
dispatch:
	for i := range sources {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			started = i
			break dispatch
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := ctx.Err(); err != nil {
				results[i] = skipped(sources[i].Name, err)
				return
			}
			results[i] = p.processOne(sources[i], opts)
		}(i)
	}
	for i := started; i < len(sources); i++ {
		results[i] = skipped(sources[i].Name, ctx.Err())
	}
	wg.Wait()

	// Naming and packaging are order-sensitive, so they run serially after
	// the concurrent phase.
	runStart := time.Now()
	renamer := rename.New(len(sources))
	entries := make([]archive.Entry, 0, len(sources))
	report := make([]model.ReportEntry, 0, len(sources))
	for i, res := range results {
		if res.ok {
			taken := res.taken
			if taken.IsZero() {
				taken = runStart
			}
			res.entry.Name = renamer.Expand(opts.RenamePattern, i+1, sources[i].Name, taken, res.ext)
			entries = append(entries, archive.Entry{
				Name:     res.entry.Name,
				Data:     res.data,
				Modified: runStart,
			})
		}
		report = append(report, res.entry)
	}

	if len(entries) == 0 {
		return &Result{Report: report}, nil
	}

	zipped, err := archive.Pack(entries, report)
	if err != nil {
		return &Result{Report: report}, err
	}
	return &Result{Report: report, Archive: zipped}, nil
}

// processOne runs the full per-image chain. Every failure is tagged with the
// stage it happened in.
func (p *Pipeline) processOne(src Source, opts model.Options) processed {
	entry := model.ReportEntry{Original: src.Name, Outcome: model.OutcomeFailed}

	set, err := metadata.Decode(src.Data, src.Format)
	if err != nil {
		entry.Error = fmt.Sprintf("read metadata: %v", err)
		return processed{entry: entry}
	}
	taken, _ := set.CaptureTime()

	kept, removed := sanitize.Filter(set, sanitize.Policy{
		StripGPS:     opts.StripGPS,
		StripSerials: opts.StripSerials,
		StripAll:     opts.StripAll,
		GPSTags:      p.cfg.GPSTags,
		SerialTags:   p.cfg.SerialTags,
	})
	entry.RemovedTags = removed

	img, err := imaging.Decode(bytes.NewReader(src.Data))
	if err != nil {
		entry.Error = fmt.Sprintf("decode image: %v", err)
		return processed{entry: entry}
	}

	// Orientation is baked into pixels, so planning happens on the
	// displayed dimensions.
	srcW, srcH := img.Bounds().Dx(), img.Bounds().Dy()
	if resize.SwapsDimensions(set.Orientation()) {
		srcW, srcH = srcH, srcW
	}
	entry.OriginalWidth, entry.OriginalHeight = srcW, srcH

	w, h, err := p.resizer.Plan(srcW, srcH, opts.Resize)
	if err != nil {
		entry.Error = fmt.Sprintf("plan resize: %v", err)
		return processed{entry: entry}
	}
	img = p.resizer.Apply(img, set.Orientation(), w, h)
	entry.Width, entry.Height = w, h

	outFormat := src.Format
	if opts.OutputFormat != "" {
		outFormat, err = model.ParseFormat(opts.OutputFormat)
		if err != nil {
			entry.Error = err.Error()
			return processed{entry: entry}
		}
	}

	quality := opts.Quality
	if quality <= 0 {
		quality = p.cfg.Quality
	}
	data, err := encodeImage(img, outFormat, quality)
	if err != nil {
		entry.Error = fmt.Sprintf("encode image: %v", err)
		return processed{entry: entry}
	}

	// Surviving metadata is embedded when the output container allows it.
	// Conversions re-embed into the new container; WebP stays bare.
	if kept.Len() > 0 && metadata.SupportsEmbedding(outFormat) {
		embedded, err := metadata.Encode(data, outFormat, kept)
		if err != nil {
			entry.Error = fmt.Sprintf("embed metadata: %v", err)
			return processed{entry: entry}
		}
		data = embedded
		entry.MetadataEmbedded = true
	}

	entry.Outcome = model.OutcomeSuccess
	return processed{entry: entry, data: data, ext: outFormat.Ext(), taken: taken, ok: true}
}

func encodeImage(img image.Image, format model.Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case model.FormatJPEG:
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return nil, err
		}
	case model.FormatPNG:
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, err
		}
	case model.FormatWebP:
		if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
	return buf.Bytes(), nil
}

func skipped(name string, cause error) processed {
	entry := model.ReportEntry{Original: name, Outcome: model.OutcomeSkipped}
	if cause != nil {
		entry.Error = cause.Error()
	}
	return processed{entry: entry}
}
