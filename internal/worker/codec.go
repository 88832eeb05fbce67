package worker

import "strings"

var DefaultOutputFormat = OutputFormat{Container: "mp4", VideoCodec: "libx264", MimeType: "video/mp4"}

var outputFormats = map[string]OutputFormat{
	"mp4": DefaultOutputFormat,
	"m4v": DefaultOutputFormat,
	"mkv": {Container: "mkv", VideoCodec: "libx265", MimeType: "video/x-matroska"},
	"mov": {Container: "mov", VideoCodec: "libx264", MimeType: "video/quicktime"},
	"avi": {Container: "avi", VideoCodec: "mpeg4", MimeType: "video/x-msvideo"},
	"flv": {Container: "flv", VideoCodec: "libx264", MimeType: "video/x-flv"},
	"ts":  {Container: "ts", VideoCodec: "libx264", MimeType: "video/mp2t"},
}

// ResolveOutput maps a requested format to its container and codec. Unknown
// formats fall back to DefaultOutputFormat.
func ResolveOutput(format string) OutputFormat {
	if f, ok := outputFormats[strings.ToLower(strings.TrimSpace(format))]; ok {
		return f
	}
	return DefaultOutputFormat
}
