package asset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nao1215/sitesnap/internal/model"
)

// Bundle-relative locations of the fixed output scheme. All paths use
// forward slashes regardless of platform; they appear verbatim in the
// emitted HTML and CSS.
const (
	// CSSDir holds the consolidated stylesheet.
	CSSDir = "assets/css"

	// JSDir holds the consolidated script.
	JSDir = "assets/js"

	// JSOtherDir holds non-text script payloads kept as separate references.
	JSOtherDir = "assets/js/other"

	// MediaDir is the fallback destination for fonts and other binaries.
	MediaDir = "assets/media"

	// FaviconDir holds favicons and touch icons.
	FaviconDir = "assets/media/favicon"

	// ImagesDir holds images referenced from HTML and CSS.
	ImagesDir = "assets/media/uploads/images"

	// StylesPath is the consolidated stylesheet file.
	StylesPath = "assets/css/styles.css"

	// ScriptPath is the consolidated script file.
	ScriptPath = "assets/js/main.js"

	// IndexFile is the single HTML entry point at the bundle root.
	IndexFile = "index.html"
)

// Layout binds the fixed directory scheme to a concrete root directory.
type Layout struct {
	// Root is the bundle root on disk.
	Root string
}

// NewLayout creates a Layout and materializes every directory of the
// scheme under root.
func NewLayout(root string) (*Layout, error) {
	l := &Layout{Root: root}
	for _, dir := range []string{CSSDir, JSOtherDir, FaviconDir, ImagesDir} {
		if err := os.MkdirAll(filepath.Join(root, filepath.FromSlash(dir)), 0750); err != nil {
			return nil, fmt.Errorf("failed to create bundle directory %s: %w", dir, err)
		}
	}
	return l, nil
}

// Abs converts a bundle-relative path to an absolute filesystem path.
func (l *Layout) Abs(rel string) string {
	return filepath.Join(l.Root, filepath.FromSlash(rel))
}

// DirFor returns the bundle-relative destination directory for a category.
func DirFor(category model.Category) string {
	switch category {
	case model.CategoryFavicon:
		return FaviconDir
	case model.CategoryImage:
		return ImagesDir
	case model.CategoryScript:
		return JSOtherDir
	default:
		return MediaDir
	}
}

// RelPrefix returns the "../" chain that leads from a bundle-relative
// directory back to the bundle root. A stylesheet written at
// assets/media/site.css references assets through "../../", while the
// consolidated stylesheet at assets/css uses its own depth; callers
// must pass the EMITTING file's directory, never a constant.
func RelPrefix(fromDir string) string {
	fromDir = strings.Trim(fromDir, "/")
	if fromDir == "" || fromDir == "." {
		return ""
	}
	depth := strings.Count(fromDir, "/") + 1
	return strings.Repeat("../", depth)
}
