package metadata

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"

	"github.com/chai2010/webp"
	exif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"

	"github.com/amirzhanov/pixpack/internal/model"
)

func plainJPEG(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

// taggedJPEG builds a JPEG carrying camera, capture time, orientation and
// GPS coordinates.
func taggedJPEG(t *testing.T) []byte {
	t.Helper()

	im, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		t.Fatalf("ifd mapping: %v", err)
	}
	ti := exif.NewTagIndex()
	rootIb := exif.NewIfdBuilder(im, ti, exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder)

	if err := rootIb.AddStandardWithName("Make", "TestCam"); err != nil {
		t.Fatalf("add Make: %v", err)
	}
	if err := rootIb.AddStandardWithName("Model", "X100"); err != nil {
		t.Fatalf("add Model: %v", err)
	}
	if err := rootIb.AddStandardWithName("Orientation", []uint16{6}); err != nil {
		t.Fatalf("add Orientation: %v", err)
	}
	if err := rootIb.AddStandardWithName("DateTime", "2021:07:04 12:30:00"); err != nil {
		t.Fatalf("add DateTime: %v", err)
	}

	gpsIb, err := exif.GetOrCreateIbFromRootIb(rootIb, "IFD/GPSInfo")
	if err != nil {
		t.Fatalf("gps ifd: %v", err)
	}
	if err := gpsIb.AddStandardWithName("GPSLatitudeRef", "N"); err != nil {
		t.Fatalf("add GPSLatitudeRef: %v", err)
	}
	lat := []exifcommon.Rational{{Numerator: 51, Denominator: 1}, {Numerator: 30, Denominator: 1}, {Numerator: 0, Denominator: 1}}
	if err := gpsIb.AddStandardWithName("GPSLatitude", lat); err != nil {
		t.Fatalf("add GPSLatitude: %v", err)
	}

	intfc, err := jpegstructure.NewJpegMediaParser().ParseBytes(plainJPEG(t))
	if err != nil {
		t.Fatalf("parse jpeg: %v", err)
	}
	sl := intfc.(*jpegstructure.SegmentList)
	if err := sl.SetExif(rootIb); err != nil {
		t.Fatalf("set exif: %v", err)
	}

	var buf bytes.Buffer
	if err := sl.Write(&buf); err != nil {
		t.Fatalf("write jpeg: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeWithoutExif(t *testing.T) {
	set, err := Decode(plainJPEG(t), model.FormatJPEG)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if set.Len() != 0 {
		t.Errorf("expected empty set, got %d tags: %v", set.Len(), set.Names())
	}
	if set.Orientation() != 1 {
		t.Errorf("default orientation = %d, want 1", set.Orientation())
	}
}

func TestDecodeUnreadable(t *testing.T) {
	_, err := Decode([]byte("definitely not an image"), model.FormatJPEG)
	if !errors.Is(err, ErrUnreadable) {
		t.Fatalf("err = %v, want ErrUnreadable", err)
	}
}

func TestDecodeWebP(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: 90}); err != nil {
		t.Fatalf("encode webp: %v", err)
	}

	// A WebP without an EXIF chunk decodes to an empty set, not an error.
	set, err := Decode(buf.Bytes(), model.FormatWebP)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if set.Len() != 0 {
		t.Errorf("expected empty set, got %v", set.Names())
	}

	if _, err := Decode([]byte("not a riff container"), model.FormatWebP); !errors.Is(err, ErrUnreadable) {
		t.Errorf("err = %v, want ErrUnreadable", err)
	}
}

func TestDecodeTags(t *testing.T) {
	set, err := Decode(taggedJPEG(t), model.FormatJPEG)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got, ok := set.Get("Make"); !ok || got.Value != "TestCam" {
		t.Errorf("Make = %+v (ok=%v), want TestCam", got, ok)
	}
	if set.Orientation() != 6 {
		t.Errorf("orientation = %d, want 6", set.Orientation())
	}
	if !set.HasGPS() {
		t.Error("HasGPS = false, want true")
	}
	if set.Camera() != "TestCam X100" {
		t.Errorf("Camera = %q, want %q", set.Camera(), "TestCam X100")
	}

	ts, ok := set.CaptureTime()
	if !ok {
		t.Fatal("CaptureTime not found")
	}
	want := time.Date(2021, 7, 4, 12, 30, 0, 0, time.UTC)
	if !ts.Equal(want) {
		t.Errorf("CaptureTime = %v, want %v", ts, want)
	}
}

func TestEncodeDropsFilteredTags(t *testing.T) {
	data := taggedJPEG(t)

	set, err := Decode(data, model.FormatJPEG)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	kept := set.Filter(func(tag Tag) bool {
		return tag.IfdPath != "IFD/GPSInfo"
	})

	out, err := Encode(data, model.FormatJPEG, kept)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(out, model.FormatJPEG)
	if err != nil {
		t.Fatalf("Decode round-trip: %v", err)
	}
	if got.HasGPS() {
		t.Error("GPS survived the round-trip")
	}
	if tag, ok := got.Get("Make"); !ok || tag.Value != "TestCam" {
		t.Errorf("Make lost in round-trip: %+v (ok=%v)", tag, ok)
	}
	// The pipeline bakes rotation into pixels, so encoded images must not
	// ask viewers to rotate again.
	if got.Orientation() != 1 {
		t.Errorf("orientation = %d, want reset to 1", got.Orientation())
	}
}

func TestEncodeEmptySetStripsEverything(t *testing.T) {
	out, err := Encode(taggedJPEG(t), model.FormatJPEG, Empty())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(out, model.FormatJPEG)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Len() != 0 {
		t.Errorf("expected no tags, got %v", got.Names())
	}
}

func TestSupportsEmbedding(t *testing.T) {
	tests := []struct {
		format model.Format
		want   bool
	}{
		{model.FormatJPEG, true},
		{model.FormatPNG, true},
		{model.FormatWebP, false},
	}
	for _, tt := range tests {
		if got := SupportsEmbedding(tt.format); got != tt.want {
			t.Errorf("SupportsEmbedding(%s) = %v, want %v", tt.format, got, tt.want)
		}
	}
}

func TestFilterIsPure(t *testing.T) {
	set, err := Decode(taggedJPEG(t), model.FormatJPEG)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	before := set.Len()

	filtered := set.Filter(func(Tag) bool { return false })
	if filtered.Len() != 0 {
		t.Errorf("filtered set has %d tags, want 0", filtered.Len())
	}
	if set.Len() != before {
		t.Errorf("source set mutated: %d -> %d", before, set.Len())
	}
}
