package scanner

import (
	"path/filepath"
	"strings"

	"github.com/amaumene/tubenest/internal/models"
)

// ConvertedMarker is the suffix of the directory holding transcoded copies of a
// file: "X.mp4" is converted into "X.converted/X.mp4".
const ConvertedMarker = ".converted"

// isConvertedDir reports whether a directory name carries the conversion marker
func isConvertedDir(name string) bool {
	return strings.HasSuffix(name, ConvertedMarker) && len(name) > len(ConvertedMarker)
}

// originalPrefix returns the path text preceding the marker segment, if any
func originalPrefix(path string) (string, bool) {
	slashed := filepath.ToSlash(path)
	idx := strings.Index(slashed, ConvertedMarker+"/")
	if idx <= 0 {
		return "", false
	}
	return slashed[:idx], true
}

// keepMask decides, for each path, whether it survives duplicate suppression.
// A converted path is dropped when an original sharing its prefix exists.
func keepMask(paths []string) []bool {
	var originals []string
	for _, p := range paths {
		if _, converted := originalPrefix(p); !converted {
			originals = append(originals, filepath.ToSlash(p))
		}
	}

	keep := make([]bool, len(paths))
	for i, p := range paths {
		prefix, converted := originalPrefix(p)
		if !converted {
			keep[i] = true
			continue
		}
		keep[i] = !hasOriginal(originals, prefix)
	}
	return keep
}

// hasOriginal reports whether some original is the prefix plus an extension
func hasOriginal(originals []string, prefix string) bool {
	for _, o := range originals {
		if strings.HasPrefix(o, prefix+".") {
			return true
		}
	}
	return false
}

// Filter drops converted videos whose original is also present. Order is preserved.
func Filter(videos []models.VideoRecord) []models.VideoRecord {
	paths := make([]string, len(videos))
	for i := range videos {
		paths[i] = videos[i].Path
	}
	keep := keepMask(paths)

	out := make([]models.VideoRecord, 0, len(videos))
	for i := range videos {
		if keep[i] {
			out = append(out, videos[i])
		}
	}
	return out
}

// countKept returns how many paths survive duplicate suppression
func countKept(paths []string) int {
	n := 0
	for _, k := range keepMask(paths) {
		if k {
			n++
		}
	}
	return n
}
