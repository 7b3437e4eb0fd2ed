package sanitize

import (
	"reflect"
	"testing"

	"github.com/amirzhanov/pixpack/internal/metadata"
)

func sampleSet() *metadata.Set {
	return metadata.NewSet(
		metadata.Tag{Name: "Make", IfdPath: "IFD", Value: "TestCam"},
		metadata.Tag{Name: "Model", IfdPath: "IFD", Value: "X100"},
		metadata.Tag{Name: "GPSLatitude", IfdPath: "IFD/GPSInfo", Value: "51/1"},
		metadata.Tag{Name: "GPSLongitudeRef", IfdPath: "IFD/GPSInfo", Value: "E"},
		metadata.Tag{Name: "BodySerialNumber", IfdPath: "IFD/Exif", Value: "SN-123"},
		metadata.Tag{Name: "CameraOwnerName", IfdPath: "IFD/Exif", Value: "someone"},
	)
}

func TestFilterStripGPS(t *testing.T) {
	out, removed := Filter(sampleSet(), Policy{StripGPS: true})

	if out.HasGPS() {
		t.Error("GPS tags survived StripGPS")
	}
	if _, ok := out.Get("Make"); !ok {
		t.Error("Make removed by StripGPS")
	}
	if _, ok := out.Get("BodySerialNumber"); !ok {
		t.Error("BodySerialNumber removed by StripGPS")
	}

	want := []string{"GPSLatitude", "GPSLongitudeRef"}
	if !reflect.DeepEqual(removed, want) {
		t.Errorf("removed = %v, want %v", removed, want)
	}
}

func TestFilterStripSerials(t *testing.T) {
	out, removed := Filter(sampleSet(), Policy{StripSerials: true})

	want := []string{"BodySerialNumber", "CameraOwnerName"}
	if !reflect.DeepEqual(removed, want) {
		t.Errorf("removed = %v, want %v", removed, want)
	}
	if !out.HasGPS() {
		t.Error("GPS removed by StripSerials")
	}
}

func TestFilterStripAll(t *testing.T) {
	out, removed := Filter(sampleSet(), Policy{StripAll: true, StripGPS: true})

	if out.Len() != 0 {
		t.Errorf("StripAll left %d tags", out.Len())
	}
	if len(removed) != 6 {
		t.Errorf("removed %d tags, want 6", len(removed))
	}
}

func TestFilterEmptyPolicy(t *testing.T) {
	set := sampleSet()
	out, removed := Filter(set, Policy{})

	if out.Len() != set.Len() {
		t.Errorf("empty policy changed tag count: %d -> %d", set.Len(), out.Len())
	}
	if len(removed) != 0 {
		t.Errorf("empty policy removed %v", removed)
	}
}

// Applying the same policy to an already-filtered set must be a no-op.
func TestFilterIdempotent(t *testing.T) {
	policy := Policy{StripGPS: true, StripSerials: true}

	once, _ := Filter(sampleSet(), policy)
	twice, removed := Filter(once, policy)

	if len(removed) != 0 {
		t.Errorf("second pass removed %v", removed)
	}
	if !reflect.DeepEqual(once.Names(), twice.Names()) {
		t.Errorf("second pass changed set: %v -> %v", once.Names(), twice.Names())
	}
}

func TestFilterCustomBlocklists(t *testing.T) {
	set := metadata.NewSet(
		metadata.Tag{Name: "CustomLocation", IfdPath: "IFD", Value: "somewhere"},
		metadata.Tag{Name: "LensModel", IfdPath: "IFD/Exif", Value: "35mm"},
	)

	out, removed := Filter(set, Policy{
		StripGPS:     true,
		StripSerials: true,
		GPSTags:      []string{"CustomLocation"},
		SerialTags:   []string{"LensModel"},
	})

	if out.Len() != 0 {
		t.Errorf("custom blocklists left %v", out.Names())
	}
	want := []string{"CustomLocation", "LensModel"}
	if !reflect.DeepEqual(removed, want) {
		t.Errorf("removed = %v, want %v", removed, want)
	}
}

// Tags with a GPS name prefix strip even when decoded from an unexpected
// directory.
func TestFilterGPSNamePrefix(t *testing.T) {
	set := metadata.NewSet(
		metadata.Tag{Name: "GPSAltitude", IfdPath: "IFD", Value: "100/1"},
	)

	out, _ := Filter(set, Policy{StripGPS: true})
	if out.Len() != 0 {
		t.Errorf("GPS-prefixed tag survived: %v", out.Names())
	}
}
