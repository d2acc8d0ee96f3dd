package media

import (
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"
)

// uploadTypes maps the accepted upload extensions to the content type the
// file is served with.
var uploadTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

// IsRasterImage reports whether filename has an extension accepted for upload
func IsRasterImage(filename string) bool {
	_, ok := uploadTypes[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// ContentType returns the content type for a stored asset, falling back to
// application/octet-stream.
func ContentType(filename string) string {
	if ct, ok := uploadTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}
