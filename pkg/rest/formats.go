package rest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"slices"
)

// encodeCSV writes a header line with the keys of the result followed by one
// line per object. Null is an empty field.
func encodeCSV(objs []*object) ([]byte, error) {
	var header []string
	for _, o := range objs {
		for _, k := range o.keys {
			if !slices.Contains(header, k) {
				header = append(header, k)
			}
		}
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if len(header) > 0 {
		if err := cw.Write(header); err != nil {
			return nil, err
		}
	}
	record := make([]string, len(header))
	for _, o := range objs {
		for i, k := range header {
			record[i] = csvField(o.get(k))
		}
		if err := cw.Write(record); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	return buf.Bytes(), cw.Error()
}

func csvField(v any) string {
	switch v := v.(type) {
	case *object, []*object:
		b, _ := json.Marshal(v)
		return string(b)
	}
	return textOf(v)
}

type geoFeature struct {
	Type       string         `json:"type"`
	Geometry   any            `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type geoCollection struct {
	Type     string       `json:"type"`
	Features []geoFeature `json:"features"`
}

// encodeGeoJSON returns a FeatureCollection. The first value that looks like
// a GeoJSON geometry becomes the feature geometry; the rest are properties.
func encodeGeoJSON(objs []*object) ([]byte, error) {
	fc := geoCollection{Type: "FeatureCollection", Features: make([]geoFeature, 0, len(objs))}
	for _, o := range objs {
		f := geoFeature{Type: "Feature", Properties: map[string]any{}}
		for _, k := range o.keys {
			v := o.vals[k]
			if f.Geometry == nil && isGeometry(v) {
				f.Geometry = v
				continue
			}
			f.Properties[k] = v
		}
		fc.Features = append(fc.Features, f)
	}
	return json.Marshal(fc)
}

func isGeometry(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	_, hasType := m["type"].(string)
	_, hasCoords := m["coordinates"]
	_, hasGeoms := m["geometries"]
	return hasType && (hasCoords || hasGeoms)
}
