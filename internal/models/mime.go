package models

import (
	"bytes"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// DefaultMimeType is used when nothing better can be determined.
const DefaultMimeType = "application/octet-stream"

// Common binary file extensions
var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
	".ico": true, ".tiff": true, ".webp": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".zip": true, ".rar": true, ".7z": true, ".tar": true, ".gz": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true,
	".mp3": true, ".mp4": true, ".mov": true, ".wav": true, ".ogg": true,
}

// DetectMimeType picks a MIME type from the file extension, falling back to
// content sniffing.
func DetectMimeType(name string, content []byte) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext != "" {
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
	}

	if len(content) == 0 {
		return DefaultMimeType
	}

	if IsBinaryContent(name, content) {
		sniffed := http.DetectContentType(content)
		if strings.HasPrefix(sniffed, "text/") {
			return DefaultMimeType
		}
		return sniffed
	}
	return http.DetectContentType(content)
}

// IsBinaryContent detects binary payloads by extension or content.
func IsBinaryContent(name string, content []byte) bool {
	if binaryExtensions[strings.ToLower(filepath.Ext(name))] {
		return true
	}
	if len(content) == 0 {
		return false
	}

	checkLen := len(content)
	if checkLen > 8192 {
		checkLen = 8192
	}

	if bytes.IndexByte(content[:checkLen], 0) != -1 {
		return true
	}

	nonPrintable := 0
	for i := 0; i < checkLen; i++ {
		b := content[i]
		if b < 32 && b != '\t' && b != '\n' && b != '\r' {
			nonPrintable++
		}
	}

	return float64(nonPrintable)/float64(checkLen) > 0.3
}
