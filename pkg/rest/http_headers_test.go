package rest

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePrefer(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		want   *Prefer
	}{
		{
			name:   "absent",
			header: nil,
			want:   nil,
		},
		{
			name:   "single directive",
			header: []string{"return=representation"},
			want:   &Prefer{Return: "representation"},
		},
		{
			name:   "several directives and headers",
			header: []string{"return=minimal, count=exact", `resolution="merge-duplicates"`, "missing=default"},
			want:   &Prefer{Return: "minimal", Count: "exact", Resolution: "merge-duplicates", Missing: "default"},
		},
		{
			name:   "invalid values are ignored",
			header: []string{"return=everything,count=some,tx=commit"},
			want:   &Prefer{Return: "minimal"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/t", nil)
			for _, h := range tt.header {
				r.Header.Add("Prefer", h)
			}
			assert.Equal(t, tt.want, parsePrefer(r))
		})
	}
}

func TestPreferHelpers(t *testing.T) {
	var none *Prefer
	assert.False(t, none.WantsRepresentation())
	assert.False(t, none.WantsCount())
	assert.False(t, none.MergeDuplicates())
	assert.False(t, none.IgnoreDuplicates())

	p := &Prefer{Return: "representation", Count: "planned", Resolution: "ignore-duplicates"}
	assert.True(t, p.WantsRepresentation())
	assert.True(t, p.WantsCount())
	assert.False(t, p.MergeDuplicates())
	assert.True(t, p.IgnoreDuplicates())
}

func TestParseHeaders(t *testing.T) {
	get := httptest.NewRequest(http.MethodGet, "/t", nil)
	get.Header.Set("Accept", "text/csv; charset=utf-8, application/json")
	get.Header.Set("Accept-Profile", "api")
	get.Header.Set("Content-Profile", "ignored")
	h := parseHeaders(get)
	assert.Equal(t, "text/csv", h.Accept)
	assert.Equal(t, "api", h.Profile)

	post := httptest.NewRequest(http.MethodPost, "/t", nil)
	post.Header.Set("Accept-Profile", "ignored")
	post.Header.Set("Content-Profile", "api")
	h = parseHeaders(post)
	assert.Equal(t, mediaJSON, h.Accept)
	assert.Equal(t, "api", h.Profile)
}

func TestParseAccept(t *testing.T) {
	assert.Equal(t, mediaJSON, parseAccept(""))
	assert.Equal(t, mediaJSON, parseAccept("*/*"))
	assert.Equal(t, mediaObject, parseAccept("application/vnd.pgrst.object+json"))
	assert.Equal(t, mediaGeo, parseAccept("application/geo+json;q=0.9"))
}
