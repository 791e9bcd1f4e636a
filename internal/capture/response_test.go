package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLooksLikeExport(t *testing.T) {
	tests := []struct {
		name string
		meta ResponseMeta
		want bool
	}{
		{"csv mime", ResponseMeta{URL: "https://api.example.test/v1/items", MimeType: "text/csv"}, true},
		{"excel header", ResponseMeta{URL: "https://x.test/r", Headers: map[string]string{"content-type": "application/vnd.ms-excel; charset=utf-8"}}, true},
		{"octet stream", ResponseMeta{URL: "https://x.test/f", MimeType: "application/octet-stream", ResourceType: "XHR"}, true},
		{"attachment", ResponseMeta{URL: "https://x.test/r", MimeType: "text/plain", Headers: map[string]string{"content-disposition": "attachment; filename=items.csv"}}, true},
		{"export url", ResponseMeta{URL: "https://r.example.test/data/exportItems", MimeType: "application/json", ResourceType: "Fetch"}, true},
		{"plain json", ResponseMeta{URL: "https://r.example.test/data/items", MimeType: "application/json", ResourceType: "XHR"}, false},
		{"script named download", ResponseMeta{URL: "https://cdn.test/download.js", MimeType: "application/javascript", ResourceType: "Script"}, false},
		{"image", ResponseMeta{URL: "https://cdn.test/export.png", MimeType: "image/png", ResourceType: "Image"}, false},
		{"blob url", ResponseMeta{URL: "blob:https://x.test/1234-export", MimeType: "text/html"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LooksLikeExport(tt.meta))
		})
	}
}
