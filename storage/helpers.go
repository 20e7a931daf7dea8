package storage

import "strings"

// SanitizeFilename replaces path separators and other characters unsafe in
// object keys or file names with underscores.
func SanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	return replacer.Replace(name)
}

// ExtensionForMIME maps an audio MIME type to a file extension, defaulting
// to ".bin" for unknown types.
func ExtensionForMIME(mimeType string) string {
	switch mimeType {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/ogg", "audio/opus":
		return ".ogg"
	case "audio/aac":
		return ".aac"
	case "audio/flac":
		return ".flac"
	case "audio/pcm", "audio/L16":
		return ".pcm"
	default:
		return ".bin"
	}
}

// MIMEForExtension is the inverse of ExtensionForMIME, used when serving
// or re-uploading stored objects.
func MIMEForExtension(ext string) string {
	switch strings.ToLower(ext) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".aac":
		return "audio/aac"
	case ".flac":
		return "audio/flac"
	case ".pcm":
		return "audio/pcm"
	default:
		return "application/octet-stream"
	}
}
