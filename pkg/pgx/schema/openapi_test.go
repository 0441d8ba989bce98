package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAPI(t *testing.T) {
	tables := []Table{
		{
			Schema:      "public",
			Name:        "users",
			Type:        TypeTable,
			PrimaryKeys: []string{"username"},
			Columns: []Column{
				{Name: "username", DataType: "text"},
				{Name: "age", DataType: "int4", IsNullable: true},
				{Name: "tags", DataType: "text[]", IsNullable: true},
			},
		},
		{
			Schema: "public",
			Name:   "active_users",
			Type:   TypeView,
			Columns: []Column{
				{Name: "username", DataType: "text", IsNullable: true},
			},
			ForeignKeys: []ForeignKey{
				{Name: "active_users_username_fkey", Column: "username", ReferencedTable: "users", ReferencedColumn: "username"},
			},
		},
	}

	doc := OpenAPI(tables, OpenAPIInfo{Title: "chat"})
	assert.Equal(t, "2.0", doc["swagger"])
	assert.Equal(t, map[string]any{"title": "chat", "description": "", "version": "dev"}, doc["info"])

	paths := doc["paths"].(map[string]any)
	require.Contains(t, paths, "/users")
	require.Contains(t, paths, "/active_users")
	assert.ElementsMatch(t, []string{"get", "post", "patch", "delete"}, keys(paths["/users"].(map[string]any)))
	assert.Equal(t, []string{"get"}, keys(paths["/active_users"].(map[string]any)))

	get := paths["/users"].(map[string]any)["get"].(map[string]any)
	params := get["parameters"].([]map[string]any)
	assert.Equal(t, map[string]any{"$ref": "#/parameters/select"}, params[0])
	assert.Equal(t, "username", params[len(params)-3]["name"])

	defs := doc["definitions"].(map[string]any)
	users := defs["users"].(map[string]any)
	assert.Equal(t, []string{"username"}, users["required"])
	props := users["properties"].(map[string]any)
	assert.Equal(t, "integer", props["age"].(map[string]any)["type"])
	assert.Equal(t, "array", props["tags"].(map[string]any)["type"])
	assert.Equal(t, "Note:\nThis is a Primary Key.<pk/>", props["username"].(map[string]any)["description"])

	view := defs["active_users"].(map[string]any)
	assert.NotContains(t, view, "required")
	assert.Equal(t,
		"Note:\nThis is a Foreign Key to `users.username`.<fk table='users' column='username'/>",
		view["properties"].(map[string]any)["username"].(map[string]any)["description"])
}

func TestColumnType(t *testing.T) {
	tests := map[string]string{
		"int8":        "integer",
		"bigint":      "integer",
		"numeric":     "number",
		"float8":      "number",
		"bool":        "boolean",
		"timestamptz": "string",
		"uuid":        "string",
		"_int4":       "array",
	}
	for dt, want := range tests {
		assert.Equal(t, want, columnType(Column{DataType: dt})["type"], dt)
	}
	assert.NotContains(t, columnType(Column{DataType: "jsonb"}), "type")
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
