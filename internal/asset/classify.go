package asset

import (
	"encoding/hex"
	"net/url"
	"path"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/nao1215/sitesnap/internal/model"
	"github.com/nao1215/sitesnap/internal/urlnorm"
)

// faviconKeywords mark an asset as an icon regardless of content type.
// Sites name these files consistently enough that the basename is a
// better signal than the served MIME type, which is frequently wrong
// for .ico files.
var faviconKeywords = []string{"favicon", "apple-touch-icon", "mstile"}

// Classify decides the destination category for an asset from its URL
// basename and observed content type. It is a pure function so the
// folder decision is testable without any fetch.
func Classify(u urlnorm.Canonical, contentType string) model.Category {
	name := strings.ToLower(path.Base(u.Path()))
	for _, keyword := range faviconKeywords {
		if strings.Contains(name, keyword) {
			return model.CategoryFavicon
		}
	}
	if strings.HasPrefix(contentType, "image/") {
		return model.CategoryImage
	}
	return model.CategoryMedia
}

// extByType maps observed content types to filename extensions. The Go
// mime package resolves types to extensions in unspecified order, which
// would make repeated builds disagree on synthetic names, so we keep an
// explicit table of everything the web commonly serves.
var extByType = map[string]string{
	"image/jpeg":                    ".jpg",
	"image/png":                     ".png",
	"image/gif":                     ".gif",
	"image/webp":                    ".webp",
	"image/avif":                    ".avif",
	"image/svg+xml":                 ".svg",
	"image/x-icon":                  ".ico",
	"image/vnd.microsoft.icon":      ".ico",
	"image/tiff":                    ".tiff",
	"image/bmp":                     ".bmp",
	"font/woff2":                    ".woff2",
	"font/woff":                     ".woff",
	"font/ttf":                      ".ttf",
	"font/otf":                      ".otf",
	"application/font-woff":         ".woff",
	"application/vnd.ms-fontobject": ".eot",
	"text/css":                      ".css",
	"text/javascript":               ".js",
	"application/javascript":        ".js",
	"application/wasm":              ".wasm",
	"application/json":              ".json",
	"application/pdf":               ".pdf",
	"video/mp4":                     ".mp4",
	"video/webm":                    ".webm",
	"audio/mpeg":                    ".mp3",
}

// GuessExt infers a filename extension from the content type, falling
// back to the URL path's extension. XML served for a .svg URL counts as
// SVG: several CDNs label SVG as text/xml.
func GuessExt(contentType string, u urlnorm.Canonical) string {
	urlPath := strings.ToLower(u.Path())
	if contentType != "" {
		if (contentType == "text/xml" || contentType == "application/xml") &&
			strings.HasSuffix(urlPath, ".svg") {
			return ".svg"
		}
		return extByType[contentType]
	}
	return path.Ext(urlPath)
}

// urlDigest returns a stable 12-hex-character digest of the canonical
// URL, used for synthetic filenames. Hashing the URL rather than the
// content keeps names identical across runs even when content changes.
func urlDigest(u urlnorm.Canonical) string {
	sum := blake2b.Sum256([]byte(u.String()))
	return hex.EncodeToString(sum[:6])
}

// deriveFilename produces the base filename for an asset:
//   - the last path segment of the URL when present
//   - otherwise a synthetic "asset_<digest>" name
//   - the inferred extension is appended when the name lacks it; an
//     existing different extension is never replaced
func deriveFilename(u urlnorm.Canonical, contentType string) string {
	ext := GuessExt(contentType, u)

	base := path.Base(u.Path())
	if base == "/" || base == "." || base == "" {
		return "asset_" + urlDigest(u) + ext
	}
	// URL-encoded basenames decode to friendlier names when possible
	if decoded, err := url.PathUnescape(base); err == nil && decoded != "" {
		base = decoded
	}

	if ext != "" && !strings.HasSuffix(strings.ToLower(base), ext) {
		base += ext
	}
	return base
}
