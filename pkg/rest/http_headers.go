package rest

import (
	"mime"
	"net/http"
	"strings"
)

// Prefer holds preferences from the Prefer header (RFC 7240).
type Prefer struct {
	Return     string // "minimal", "representation", "headers-only"
	Count      string // "exact", "planned", "estimated"
	Resolution string // "merge-duplicates", "ignore-duplicates"
	Missing    string // "default", "null"
}

// Headers holds all parsed HTTP headers relevant to REST actions.
type Headers struct {
	Prefer  *Prefer
	Accept  string // media type, without parameters
	Profile string // schema selected by Accept-Profile or Content-Profile
}

// parseHeaders parses all relevant headers from the HTTP request
func parseHeaders(r *http.Request) *Headers {
	h := &Headers{
		Prefer: parsePrefer(r),
		Accept: parseAccept(r.Header.Get("Accept")),
	}
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		h.Profile = r.Header.Get("Accept-Profile")
	} else {
		h.Profile = r.Header.Get("Content-Profile")
	}
	return h
}

// parseAccept returns the first media type of an Accept header, defaulting
// to application/json.
func parseAccept(header string) string {
	first, _, _ := strings.Cut(header, ",")
	mt, _, err := mime.ParseMediaType(strings.TrimSpace(first))
	if err != nil || mt == "*/*" {
		return mediaJSON
	}
	return mt
}

// parsePrefer parses the Prefer header according to RFC 7240.
// It returns nil if the header is not present.
func parsePrefer(r *http.Request) *Prefer {
	header := strings.Join(r.Header.Values("Prefer"), ",")
	if header == "" {
		return nil
	}

	p := &Prefer{
		Return: "minimal", // RFC 7240 default behavior
	}

	parseKeyValPairs(header, func(key, value string) {
		switch key {
		case "return":
			if isValidReturn(value) {
				p.Return = value
			}
		case "count":
			if isValidCount(value) {
				p.Count = value
			}
		case "resolution":
			if value == "merge-duplicates" || value == "ignore-duplicates" {
				p.Resolution = value
			}
		case "missing":
			if value == "default" || value == "null" {
				p.Missing = value
			}
		}
	})

	return p
}

// parseKeyValPairs parses comma-separated preference directives.
// For each key=value pair found, it calls fn with the key and value.
func parseKeyValPairs(header string, fn func(key, value string)) {
	for pref := range strings.SplitSeq(header, ",") {
		pref = strings.TrimSpace(pref)
		if key, value, found := strings.Cut(pref, "="); found {
			key = strings.TrimSpace(strings.ToLower(key))
			value = strings.ToLower(strings.Trim(strings.TrimSpace(value), `"`))
			fn(key, value)
		}
	}
}

// isValidReturn reports whether s is a valid return preference value.
func isValidReturn(s string) bool {
	switch s {
	case "minimal", "representation", "headers-only":
		return true
	}
	return false
}

// isValidCount reports whether s is a valid count preference value.
func isValidCount(s string) bool {
	switch s {
	case "exact", "planned", "estimated":
		return true
	}
	return false
}

// WantsRepresentation reports whether the client prefers full representation
// in the response body for mutation operations.
func (p *Prefer) WantsRepresentation() bool {
	return p != nil && p.Return == "representation"
}

// WantsCount reports whether the client asked for a total count. The
// in-memory store always counts exactly.
func (p *Prefer) WantsCount() bool {
	return p != nil && p.Count != ""
}

// MergeDuplicates reports whether conflicting inserts update the existing row.
func (p *Prefer) MergeDuplicates() bool {
	return p != nil && p.Resolution == "merge-duplicates"
}

// IgnoreDuplicates reports whether conflicting inserts are skipped.
func (p *Prefer) IgnoreDuplicates() bool {
	return p != nil && p.Resolution == "ignore-duplicates"
}
