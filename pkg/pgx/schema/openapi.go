package schema

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// OpenAPIInfo contains API metadata for the OpenAPI description
type OpenAPIInfo struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

// OpenAPI describes the relations of one schema as a Swagger 2.0 document,
// the format PostgREST serves at its root: a path per relation with the
// shared select, order, limit and offset parameters plus one row filter per
// column, and a definition per relation.
func OpenAPI(tables []Table, info OpenAPIInfo) map[string]any {
	tables = slices.Clone(tables)
	slices.SortFunc(tables, func(a, b Table) int {
		return cmp.Compare(a.Name, b.Name)
	})

	paths := map[string]any{
		"/": map[string]any{
			"get": map[string]any{
				"summary":  "OpenAPI description (this document)",
				"produces": []string{"application/openapi+json", "application/json"},
				"responses": map[string]any{
					"200": map[string]any{"description": "OK"},
				},
			},
		},
	}
	definitions := map[string]any{}
	for _, t := range tables {
		paths["/"+t.Name] = relationPath(t)
		definitions[t.Name] = definition(t)
	}

	return map[string]any{
		"swagger": "2.0",
		"info": map[string]any{
			"title":       cmp.Or(info.Title, "PostgREST API"),
			"description": info.Description,
			"version":     cmp.Or(info.Version, "dev"),
		},
		"basePath":    "/",
		"schemes":     []string{"http", "https"},
		"consumes":    []string{"application/json", "application/vnd.pgrst.object+json", "text/csv"},
		"produces":    []string{"application/json", "application/vnd.pgrst.object+json", "text/csv"},
		"paths":       paths,
		"definitions": definitions,
		"parameters":  sharedParameters(),
	}
}

func relationPath(t Table) map[string]any {
	ref := func(name string) map[string]any {
		return map[string]any{"$ref": "#/parameters/" + name}
	}
	var filters []map[string]any
	for _, c := range t.Columns {
		filters = append(filters, map[string]any{
			"name":     c.Name,
			"in":       "query",
			"required": false,
			"type":     "string",
			"format":   c.DataType,
		})
	}
	body := map[string]any{
		"name":     t.Name,
		"in":       "body",
		"required": false,
		"schema":   map[string]any{"$ref": "#/definitions/" + t.Name},
	}
	ok := func(desc string) map[string]any {
		return map[string]any{"description": desc}
	}

	get := append([]map[string]any{ref("select"), ref("order"), ref("range"), ref("offset"), ref("limit"), ref("preferCount")}, filters...)
	path := map[string]any{
		"get": map[string]any{
			"tags":       []string{t.Name},
			"parameters": get,
			"responses": map[string]any{
				"200": map[string]any{
					"description": "OK",
					"schema": map[string]any{
						"type":  "array",
						"items": map[string]any{"$ref": "#/definitions/" + t.Name},
					},
				},
				"206": ok("Partial Content"),
			},
		},
	}
	if t.Type != TypeTable {
		return path
	}
	path["post"] = map[string]any{
		"tags":       []string{t.Name},
		"parameters": []map[string]any{body, ref("select"), ref("preferPost")},
		"responses":  map[string]any{"201": ok("Created")},
	}
	path["patch"] = map[string]any{
		"tags":       []string{t.Name},
		"parameters": append([]map[string]any{body, ref("preferReturn")}, filters...),
		"responses":  map[string]any{"204": ok("No Content")},
	}
	path["delete"] = map[string]any{
		"tags":       []string{t.Name},
		"parameters": append([]map[string]any{ref("preferReturn")}, filters...),
		"responses":  map[string]any{"204": ok("No Content")},
	}
	return path
}

func definition(t Table) map[string]any {
	properties := map[string]any{}
	var required []string
	for _, c := range t.Columns {
		prop := columnType(c)
		prop["format"] = c.DataType
		var notes []string
		if slices.Contains(t.PrimaryKeys, c.Name) || c.IsPrimaryKey {
			notes = append(notes, "This is a Primary Key.<pk/>")
		}
		for _, fk := range t.ForeignKeys {
			if fk.Column == c.Name {
				notes = append(notes, fmt.Sprintf("This is a Foreign Key to `%s.%s`.<fk table='%s' column='%s'/>",
					fk.ReferencedTable, fk.ReferencedColumn, fk.ReferencedTable, fk.ReferencedColumn))
			}
		}
		if len(notes) > 0 {
			prop["description"] = "Note:\n" + strings.Join(notes, "\n")
		}
		properties[c.Name] = prop
		if !c.IsNullable {
			required = append(required, c.Name)
		}
	}
	def := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		def["required"] = required
	}
	return def
}

// columnType maps a PostgreSQL data type to a json schema type.
func columnType(c Column) map[string]any {
	dt := strings.ToLower(c.DataType)
	if strings.HasSuffix(dt, "[]") || strings.HasPrefix(dt, "_") {
		return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	}
	switch dt {
	case "int2", "int4", "int8", "smallint", "integer", "bigint", "smallserial", "serial", "bigserial":
		return map[string]any{"type": "integer"}
	case "numeric", "decimal", "real", "double precision", "float4", "float8", "money":
		return map[string]any{"type": "number"}
	}
	switch {
	case strings.HasPrefix(dt, "bool"):
		return map[string]any{"type": "boolean"}
	case strings.HasPrefix(dt, "json"):
		return map[string]any{}
	}
	return map[string]any{"type": "string"}
}

func sharedParameters() map[string]any {
	param := func(name, in, desc string) map[string]any {
		return map[string]any{"name": name, "in": in, "required": false, "type": "string", "description": desc}
	}
	prefer := func(desc string, values ...string) map[string]any {
		p := param("Prefer", "header", desc)
		p["enum"] = values
		return p
	}
	return map[string]any{
		"select":       param("select", "query", "Filtering Columns"),
		"order":        param("order", "query", "Ordering"),
		"range":        param("Range", "header", "Limiting and Pagination"),
		"offset":       param("offset", "query", "Limiting and Pagination"),
		"limit":        param("limit", "query", "Limiting and Pagination"),
		"preferCount":  prefer("Preference", "count=none", "count=exact", "count=planned", "count=estimated"),
		"preferReturn": prefer("Preference", "return=representation", "return=minimal", "return=none"),
		"preferPost": prefer("Preference", "return=representation", "return=minimal", "return=none",
			"resolution=ignore-duplicates", "resolution=merge-duplicates"),
	}
}
