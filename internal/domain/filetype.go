package domain

import (
	"mime"
	"path/filepath"
	"strings"
)

// FileType is the closed set of upload formats the chunker can decode.
type FileType string

const (
	FileTypePlainText   FileType = "text"
	FileTypeMarkdown    FileType = "markdown"
	FileTypeJSON        FileType = "json"
	FileTypePDF         FileType = "pdf"
	FileTypeUnsupported FileType = "unsupported"
)

// AcceptedType describes one accepted upload format.
type AcceptedType struct {
	Type      FileType
	MimeType  string
	Extension string
}

// AcceptedTypes lists the upload formats in display order.
var AcceptedTypes = []AcceptedType{
	{Type: FileTypePlainText, MimeType: "text/plain", Extension: ".txt"},
	{Type: FileTypeMarkdown, MimeType: "text/markdown", Extension: ".md"},
	{Type: FileTypeJSON, MimeType: "application/json", Extension: ".json"},
	{Type: FileTypePDF, MimeType: "application/pdf", Extension: ".pdf"},
}

// extra aliases some browsers and tools send
var mimeAliases = map[string]FileType{
	"text/x-markdown": FileTypeMarkdown,
	"text/json":       FileTypeJSON,
}

var extAliases = map[string]FileType{
	".markdown": FileTypeMarkdown,
	".text":     FileTypePlainText,
}

// DetectFileType picks the decoder for an upload. The MIME type wins when it
// names an accepted format; otherwise the filename extension decides.
func DetectFileType(filename, mimeType string) FileType {
	if ft := fileTypeFromMime(mimeType); ft != FileTypeUnsupported {
		return ft
	}
	return fileTypeFromExt(filepath.Ext(filename))
}

func fileTypeFromMime(mimeType string) FileType {
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		return FileTypeUnsupported
	}
	if parsed, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = parsed
	}
	mimeType = strings.ToLower(mimeType)
	for _, at := range AcceptedTypes {
		if at.MimeType == mimeType {
			return at.Type
		}
	}
	if ft, ok := mimeAliases[mimeType]; ok {
		return ft
	}
	return FileTypeUnsupported
}

func fileTypeFromExt(ext string) FileType {
	ext = strings.ToLower(ext)
	for _, at := range AcceptedTypes {
		if at.Extension == ext {
			return at.Type
		}
	}
	if ft, ok := extAliases[ext]; ok {
		return ft
	}
	return FileTypeUnsupported
}

// IsText reports whether the type decodes as UTF-8 text.
func (t FileType) IsText() bool {
	return t == FileTypePlainText || t == FileTypeMarkdown || t == FileTypeJSON
}

// IsSupportedExtension reports whether a path has an accepted extension.
func IsSupportedExtension(path string) bool {
	return fileTypeFromExt(filepath.Ext(path)) != FileTypeUnsupported
}

// AcceptedTypesDescription renders the accepted set for error messages.
func AcceptedTypesDescription() string {
	parts := make([]string, 0, len(AcceptedTypes))
	for _, at := range AcceptedTypes {
		parts = append(parts, at.MimeType+" ("+at.Extension+")")
	}
	return strings.Join(parts, ", ")
}
