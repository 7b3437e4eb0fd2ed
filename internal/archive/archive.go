// Package archive assembles the processed batch into an in-memory ZIP.
package archive

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/amirzhanov/pixpack/internal/model"
)

// ErrWrite marks an archive assembly failure. It is batch-fatal: a ZIP with
// a missing or truncated entry must never be handed to the caller.
var ErrWrite = errors.New("archive: write failed")

// ManifestName is the report entry written alongside the images.
const ManifestName = "manifest.json"

// Entry is one file to include in the archive.
type Entry struct {
	Name     string
	Data     []byte
	Modified time.Time
}

// Pack writes all entries plus a manifest.json describing the batch report.
// Entries are written in the order given, deflate-compressed.
func Pack(entries []Entry, report []model.ReportEntry) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     e.Name,
			Method:   zip.Deflate,
			Modified: e.Modified,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrWrite, e.Name, err)
		}
		if _, err := w.Write(e.Data); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrWrite, e.Name, err)
		}
	}

	manifest, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: manifest: %v", ErrWrite, err)
	}
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     ManifestName,
		Method:   zip.Deflate,
		Modified: time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: manifest: %v", ErrWrite, err)
	}
	if _, err := w.Write(manifest); err != nil {
		return nil, fmt.Errorf("%w: manifest: %v", ErrWrite, err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return buf.Bytes(), nil
}
