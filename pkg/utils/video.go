package utils

import (
	"path/filepath"
	"strings"
)

const (
	OriginalPrefix   = "uploads/"
	TranscodedPrefix = "transcoded/"

	defaultBaseName = "video"
)

// SplitFileName returns the base name of fileName without directories or
// extension, and the extension including its dot.
func SplitFileName(fileName string) (string, string) {
	base := filepath.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if base == "." || base == "/" {
		return defaultBaseName, ""
	}
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	if name == "" {
		name = defaultBaseName
	}
	return name, ext
}

// StorageKeys derives the object keys for an upload and its transcoded
// output. Both keys share suffix, so two uploads with the same file name
// never collide.
func StorageKeys(fileName, suffix, container string) (string, string) {
	name, ext := SplitFileName(fileName)
	modified := name + "_" + suffix
	return OriginalPrefix + modified + ext, TranscodedPrefix + modified + "." + container
}
