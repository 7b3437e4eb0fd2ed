package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	exif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"
	pngstructure "github.com/dsoprea/go-png-image-structure/v2"

	"github.com/amirzhanov/pixpack/internal/model"
)

// ErrUnreadable is returned when the container itself cannot be parsed.
// Images without EXIF are not an error; they decode to an empty set.
var ErrUnreadable = errors.New("metadata: unreadable image container")

const (
	gpsIfdPath       = "IFD/GPSInfo"
	thumbnailIfdPath = "IFD1"
	orientationTagID = 0x0112
)

// SupportsEmbedding reports whether the format can carry a re-encoded
// metadata block. WebP is decoded read-only.
func SupportsEmbedding(f model.Format) bool {
	return f == model.FormatJPEG || f == model.FormatPNG
}

// Decode extracts the metadata set from an image. A parseable image with no
// EXIF (or EXIF too damaged to walk) yields an empty set; only a broken
// container is an error.
func Decode(data []byte, format model.Format) (*Set, error) {
	rawExif, err := rawExifData(data, format)
	if err != nil {
		return nil, err
	}
	if rawExif == nil {
		return Empty(), nil
	}

	tags, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return Empty(), nil
	}

	set := Empty()
	set.raw = rawExif
	for _, t := range tags {
		// Child-pointer tags and the embedded thumbnail directory are
		// structural, not user metadata.
		if t.ChildIfdPath != "" || strings.HasPrefix(t.IfdPath, thumbnailIfdPath) {
			continue
		}
		if t.TagId == orientationTagID && t.IfdPath == exifcommon.IfdStandardIfdIdentity.UnindexedString() {
			if v, ok := t.Value.([]uint16); ok && len(v) > 0 {
				set.orientation = int(v[0])
			}
		}
		set.tags[t.TagName] = Tag{
			ID:      t.TagId,
			Name:    t.TagName,
			IfdPath: t.IfdPath,
			Type:    t.TagTypeName,
			Value:   t.FormattedFirst,
		}
	}
	return set, nil
}

// Encode writes the set back into the image, replacing whatever metadata the
// bytes carried. Tags that were filtered out of the set since decoding are
// dropped from the embedded block, and Orientation is reset to 1 so that
// viewers do not re-rotate pixels the pipeline has already baked.
func Encode(data []byte, format model.Format, set *Set) ([]byte, error) {
	if !SupportsEmbedding(format) {
		return nil, fmt.Errorf("metadata: embedding not supported for %s", format)
	}

	var ib *exif.IfdBuilder
	if set != nil && set.Len() > 0 && set.raw != nil {
		var err error
		ib, err = buildFiltered(set)
		if err != nil {
			return nil, fmt.Errorf("metadata: rebuild exif: %w", err)
		}
	}

	switch format {
	case model.FormatJPEG:
		return encodeJPEG(data, ib)
	case model.FormatPNG:
		return encodePNG(data, ib)
	}
	return nil, fmt.Errorf("metadata: embedding not supported for %s", format)
}

// buildFiltered reconstructs the IFD chain from the original raw EXIF and
// deletes every tag no longer present in the set.
func buildFiltered(set *Set) (*exif.IfdBuilder, error) {
	im, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		return nil, err
	}
	ti := exif.NewTagIndex()

	_, index, err := exif.Collect(im, ti, set.raw)
	if err != nil {
		return nil, err
	}

	rootIb := exif.NewIfdBuilderFromExistingChain(index.RootIfd)

	flat, _, err := exif.GetFlatExifData(set.raw, nil)
	if err != nil {
		return nil, err
	}
	for _, t := range flat {
		if t.ChildIfdPath != "" || strings.HasPrefix(t.IfdPath, thumbnailIfdPath) {
			continue
		}
		if _, kept := set.tags[t.TagName]; kept {
			continue
		}
		ifdIb, err := exif.GetOrCreateIbFromRootIb(rootIb, t.IfdPath)
		if err != nil {
			continue
		}
		_, _ = ifdIb.DeleteAll(t.TagId)
	}

	// Pixels are emitted in display orientation.
	if err := rootIb.SetStandardWithName("Orientation", []uint16{1}); err != nil {
		return nil, err
	}
	return rootIb, nil
}

func encodeJPEG(data []byte, ib *exif.IfdBuilder) ([]byte, error) {
	sl, err := parseJPEG(data)
	if err != nil {
		return nil, err
	}
	if _, err := sl.DropExif(); err != nil {
		return nil, fmt.Errorf("metadata: drop exif: %w", err)
	}
	if ib != nil {
		if err := sl.SetExif(ib); err != nil {
			return nil, fmt.Errorf("metadata: set exif: %w", err)
		}
	}
	var buf bytes.Buffer
	if err := sl.Write(&buf); err != nil {
		return nil, fmt.Errorf("metadata: write jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func encodePNG(data []byte, ib *exif.IfdBuilder) ([]byte, error) {
	cs, err := parsePNG(data)
	if err != nil {
		return nil, err
	}

	// Drop existing metadata chunks; eXIf is replaced below, the text
	// chunks can carry arbitrary key/value metadata.
	kept := make([]*pngstructure.Chunk, 0, len(cs.Chunks()))
	for _, chunk := range cs.Chunks() {
		switch chunk.Type {
		case "eXIf", "tEXt", "iTXt", "zTXt":
			continue
		default:
			kept = append(kept, chunk)
		}
	}
	out := pngstructure.NewChunkSlice(kept)

	if ib != nil {
		if err := out.SetExif(ib); err != nil {
			return nil, fmt.Errorf("metadata: set exif: %w", err)
		}
	}
	var buf bytes.Buffer
	if err := out.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("metadata: write png: %w", err)
	}
	return buf.Bytes(), nil
}

// rawExifData locates the EXIF blob for the format, returning nil when the
// image simply has none.
func rawExifData(data []byte, format model.Format) ([]byte, error) {
	switch format {
	case model.FormatJPEG:
		sl, err := parseJPEG(data)
		if err != nil {
			return nil, err
		}
		_, rawExif, err := sl.Exif()
		if err != nil {
			return nil, nil
		}
		return rawExif, nil
	case model.FormatPNG:
		cs, err := parsePNG(data)
		if err != nil {
			return nil, err
		}
		_, rawExif, err := cs.Exif()
		if err != nil {
			return nil, nil
		}
		return rawExif, nil
	case model.FormatWebP:
		if f, err := model.DetectFormat("", data); err != nil || f != model.FormatWebP {
			return nil, ErrUnreadable
		}
		rawExif, err := exif.SearchAndExtractExif(data)
		if err != nil {
			return nil, nil
		}
		return rawExif, nil
	}
	return nil, fmt.Errorf("metadata: unsupported format %q", format)
}

func parseJPEG(data []byte) (*jpegstructure.SegmentList, error) {
	intfc, err := jpegstructure.NewJpegMediaParser().ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	sl, ok := intfc.(*jpegstructure.SegmentList)
	if !ok {
		return nil, ErrUnreadable
	}
	return sl, nil
}

func parsePNG(data []byte) (*pngstructure.ChunkSlice, error) {
	intfc, err := pngstructure.NewPngMediaParser().ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	cs, ok := intfc.(*pngstructure.ChunkSlice)
	if !ok {
		return nil, ErrUnreadable
	}
	return cs, nil
}
