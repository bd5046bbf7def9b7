// Package util - filesystem helpers for feeding image corpora into the
// pipeline.
package util

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ImageFile represents an image file loaded from a frame directory.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Data is the raw bytes of the image file.
	Data []byte
	// Frame is the frame number parsed from the file name, or -1 when the
	// name carries no number.
	Frame int
}

// LoadDirectoryImageFiles reads all image files from a directory, sorted by
// frame number when the names carry one ("frame-17.jpg") and by name
// otherwise. Non-image files are skipped.
//
// Arguments:
//   - dir: Directory path containing image files.
//
// Returns:
//   - []ImageFile: Each entry holds the raw bytes of one image file.
//   - error: Error if the directory or a file cannot be read.
func LoadDirectoryImageFiles(dir string) ([]ImageFile, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading image directory %s", dir)
	}

	var images []ImageFile
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(file.Name()))
		switch ext {
		case ".jpg", ".jpeg", ".png", ".webp", ".bmp":
			imgPath := filepath.Join(dir, file.Name())
			data, readErr := os.ReadFile(imgPath)
			if readErr != nil {
				return nil, errors.Wrapf(readErr, "reading %s", imgPath)
			}
			images = append(images, ImageFile{
				Path:  imgPath,
				Data:  data,
				Frame: parseFrameNumber(file.Name(), ext),
			})
		}
	}

	sort.Slice(images, func(i, j int) bool {
		if images[i].Frame != images[j].Frame {
			return images[i].Frame < images[j].Frame
		}
		return images[i].Path < images[j].Path
	})

	return images, nil
}

// parseFrameNumber extracts the trailing number from names like
// "frame-17.jpg" or "00042.png". Names without one sort by path instead.
func parseFrameNumber(name, ext string) int {
	base := strings.TrimSuffix(name, ext)
	start := len(base)
	for start > 0 && base[start-1] >= '0' && base[start-1] <= '9' {
		start--
	}
	if start == len(base) {
		return -1
	}
	frame, err := strconv.Atoi(base[start:])
	if err != nil {
		return -1
	}
	return frame
}
