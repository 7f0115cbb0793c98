package services

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidArchive is returned when the uploaded image archive is
// not a readable ZIP file. An invalid archive aborts the whole run.
var ErrInvalidArchive = errors.New("invalid image archive")

var supportedImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

// ImageIndex maps lowercased image basenames to their raw bytes. It
// preserves archive order so matched images attach in the order they
// appear in the ZIP; re-adding an existing name replaces the bytes
// but keeps the original position.
type ImageIndex struct {
	names []string
	data  map[string][]byte
}

// NewImageIndex returns an empty index
func NewImageIndex() *ImageIndex {
	return &ImageIndex{data: make(map[string][]byte)}
}

// Add records one image under its lowercased basename. Last write wins.
func (idx *ImageIndex) Add(basename string, content []byte) {
	key := strings.ToLower(basename)
	if _, exists := idx.data[key]; !exists {
		idx.names = append(idx.names, key)
	}
	idx.data[key] = content
}

// Get returns the bytes stored under a lowercased basename
func (idx *ImageIndex) Get(basename string) ([]byte, bool) {
	content, ok := idx.data[strings.ToLower(basename)]
	return content, ok
}

// Names returns the indexed basenames in archive order
func (idx *ImageIndex) Names() []string {
	return idx.names
}

// Len returns the number of indexed images
func (idx *ImageIndex) Len() int {
	return len(idx.names)
}

// Match returns the basenames containing any of the given keys as a
// substring, in archive order, truncated to maxImages. A cap of zero
// or less disables image matching entirely. Keys are lowercased and
// empty keys are ignored.
func (idx *ImageIndex) Match(keys []string, maxImages int) []string {
	if maxImages <= 0 {
		return nil
	}
	lowered := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			lowered = append(lowered, strings.ToLower(k))
		}
	}
	if len(lowered) == 0 {
		return nil
	}

	var matched []string
	for _, name := range idx.names {
		for _, k := range lowered {
			if strings.Contains(name, k) {
				matched = append(matched, name)
				break
			}
		}
	}
	if len(matched) > maxImages {
		matched = matched[:maxImages]
	}
	return matched
}

// IndexArchive reads a ZIP archive and indexes every image file by its
// lowercased basename. Directory entries and unsupported extensions
// are skipped. A duplicate basename from a later entry wins.
func IndexArchive(archive []byte) (*ImageIndex, error) {
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}

	index := NewImageIndex()
	for _, file := range reader.File {
		if file.FileInfo().IsDir() || strings.HasSuffix(file.Name, "/") {
			continue
		}
		if !hasSupportedExtension(file.Name) {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", ErrInvalidArchive, file.Name, err)
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			rc.Close()
			return nil, fmt.Errorf("%w: reading %s: %v", ErrInvalidArchive, file.Name, err)
		}
		rc.Close()

		index.Add(basename(file.Name), buf.Bytes())
	}
	return index, nil
}

func hasSupportedExtension(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range supportedImageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// basename strips any directory prefix, treating both separators as
// path separators since ZIP entries may carry either.
func basename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}
