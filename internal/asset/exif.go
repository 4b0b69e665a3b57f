package asset

import (
	exif "github.com/dsoprea/go-exif/v3"
)

// exifWarnTags maps EXIF tag names to the warning recorded in the
// manifest. A snapshot is often published or shared; images carrying
// these tags identify where, when, and by whom the original was taken.
var exifWarnTags = map[string]string{
	"GPSLatitude":        "GPS coordinates present",
	"GPSLongitude":       "GPS coordinates present",
	"GPSLatitudeRef":     "GPS coordinates present",
	"GPSLongitudeRef":    "GPS coordinates present",
	"SerialNumber":       "device serial number present",
	"CameraSerialNumber": "device serial number present",
	"BodySerialNumber":   "device serial number present",
	"LensSerialNumber":   "device serial number present",
	"Artist":             "author information present",
	"XPAuthor":           "author information present",
	"Copyright":          "author information present",
	"HostComputer":       "host computer name present",
}

// InspectImage scans image bytes for privacy-relevant EXIF metadata and
// returns deduplicated human-readable warnings. Images without EXIF
// data (PNG, most web-optimized JPEGs) return nil.
func InspectImage(data []byte) []string {
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil || rawExif == nil {
		return nil
	}

	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	warnings := make([]string, 0)
	for _, entry := range entries {
		warning, ok := exifWarnTags[entry.TagName]
		if !ok || seen[warning] {
			continue
		}
		seen[warning] = true
		warnings = append(warnings, warning)
	}

	if len(warnings) == 0 {
		return nil
	}
	return warnings
}
