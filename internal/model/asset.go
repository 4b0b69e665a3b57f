package model

// Category identifies the destination folder an asset is written to
// inside the bundle. It is a closed set so classification can be tested
// independently of fetch logic.
type Category string

// Asset destination categories. Each maps to a fixed directory in the
// bundle layout.
const (
	// CategoryFavicon covers favicons, apple-touch-icons, and tile images.
	// Stored under assets/media/favicon/.
	CategoryFavicon Category = "favicon"

	// CategoryImage covers resources whose observed content type begins
	// with "image/". Stored under assets/media/uploads/images/.
	CategoryImage Category = "image"

	// CategoryMedia is the fallback for fonts and other binaries.
	// Stored under assets/media/.
	CategoryMedia Category = "media"

	// CategoryScript covers non-text script payloads (for example WASM)
	// that cannot be merged into the consolidated JS file.
	// Stored under assets/js/other/.
	CategoryScript Category = "script"
)

// AssetRecord describes one localized asset. Exactly one record exists
// per canonical source URL within a build; once created it never changes.
type AssetRecord struct {
	// SourceURL is the canonical absolute URL the asset was fetched from.
	SourceURL string `json:"source_url"`

	// LocalPath is the bundle-relative path the bytes were written to,
	// always using forward slashes (e.g. "assets/media/uploads/images/a.png").
	LocalPath string `json:"local_path"`

	// ContentType is the MIME type observed on the response, without
	// parameters. Empty when the server sent no Content-Type header.
	ContentType string `json:"content_type,omitempty"`

	// Category is the destination classification the store chose.
	Category Category `json:"category"`

	// Size is the number of bytes written.
	Size int64 `json:"size"`

	// ExifWarnings lists privacy-relevant EXIF tags found in the asset
	// (GPS coordinates, serial numbers, author fields). Populated only
	// when image inspection is enabled.
	ExifWarnings []string `json:"exif_warnings,omitempty"`
}
