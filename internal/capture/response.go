package capture

import (
	"strings"
)

var exportContentTypes = []string{
	"text/csv",
	"application/csv",
	"text/comma-separated-values",
	"text/tab-separated-values",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/octet-stream",
	"application/force-download",
}

var exportURLHints = []string{"export", "download", "csv"}

// ResponseMeta is the part of an HTTP response the predicate looks at.
// Header names must be lower-cased.
type ResponseMeta struct {
	URL          string
	MimeType     string
	ResourceType string
	Headers      map[string]string
}

// LooksLikeExport decides whether a network response may carry an export.
// Static assets never qualify.
func LooksLikeExport(r ResponseMeta) bool {
	switch strings.ToLower(r.ResourceType) {
	case "image", "stylesheet", "script", "font", "media", "manifest", "websocket":
		return false
	}

	ct := strings.ToLower(r.MimeType)
	if v := r.Headers["content-type"]; v != "" {
		ct += ";" + strings.ToLower(v)
	}
	for _, t := range exportContentTypes {
		if strings.Contains(ct, t) {
			return true
		}
	}
	if strings.Contains(strings.ToLower(r.Headers["content-disposition"]), "attachment") {
		return true
	}

	u := strings.ToLower(r.URL)
	if strings.HasPrefix(u, "data:") || strings.HasPrefix(u, "blob:") {
		return false
	}
	for _, h := range exportURLHints {
		if strings.Contains(u, h) {
			return true
		}
	}
	return false
}
