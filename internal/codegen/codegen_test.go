package codegen_test

import (
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/forgeapi/forgeapi/internal/codegen"
	"github.com/forgeapi/forgeapi/pkg/datamodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shopModel = `{
	"name": "shop",
	"models": [
		{
			"name": "customer",
			"description": "A customer of the shop.",
			"timestamps": true,
			"attributes": [
				{"name": "name", "type": "string", "required": true},
				{"name": "email", "type": "string"},
				{"name": "birthDate", "type": "date"}
			],
			"relationships": [
				{"name": "orders", "type": "hasMany", "model": "order"}
			]
		},
		{
			"name": "order",
			"attributes": [
				{"name": "id", "type": "uuid", "primaryKey": true},
				{"name": "total", "type": "number", "required": true},
				{"name": "paid", "type": "boolean"},
				{"name": "meta", "type": "json"}
			],
			"relationships": [
				{"name": "customer", "type": "belongsTo", "model": "customer", "required": true}
			]
		},
		{
			"name": "lineItem",
			"attributes": [
				{"name": "quantity", "type": "integer", "required": true}
			]
		}
	]
}`

func schema(t *testing.T, content string) *datamodel.Schema {
	t.Helper()

	doc, err := datamodel.Parse([]byte(content), datamodel.FormatJSON)
	require.NoError(t, err, "Setup: failed to parse data model")
	s, err := datamodel.Merge(doc)
	require.NoError(t, err, "Setup: failed to compile data model")
	return s
}

// structFields parses a generated file and returns the type and tag of each field of the named struct.
func structFields(t *testing.T, path, name string) map[string]string {
	t.Helper()

	f, err := parser.ParseFile(token.NewFileSet(), path, nil, 0)
	require.NoError(t, err, "generated file should parse")

	fields := make(map[string]string)
	ast.Inspect(f, func(n ast.Node) bool {
		ts, ok := n.(*ast.TypeSpec)
		if !ok || ts.Name.Name != name {
			return true
		}
		st, ok := ts.Type.(*ast.StructType)
		require.True(t, ok, "%s should be a struct", name)
		for _, fd := range st.Fields.List {
			tag := reflect.StructTag(strings.Trim(fd.Tag.Value, "`")).Get("json")
			fields[fd.Names[0].Name] = types.ExprString(fd.Type) + " " + tag
		}
		return false
	})
	return fields
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	g := codegen.Generator{Module: "example.com/shop", OutputDir: dir}
	paths, err := g.Generate(schema(t, shopModel))
	require.NoError(t, err, "Generate should succeed")

	var rel []string
	for _, p := range paths {
		r, err := filepath.Rel(dir, p)
		require.NoError(t, err, "Setup: failed to get relative path")
		rel = append(rel, filepath.ToSlash(r))
	}
	assert.Equal(t, []string{
		"controllers/customer.go", "controllers/line_item.go", "controllers/order.go",
		"endpoints/customer.go", "endpoints/line_item.go", "endpoints/order.go", "endpoints/routes.go",
		"models/customer.go", "models/line_item.go", "models/order.go",
	}, rel, "unexpected generated files")

	// Every generated file is valid Go.
	for _, p := range paths {
		_, err := parser.ParseFile(token.NewFileSet(), p, nil, parser.AllErrors)
		require.NoError(t, err, "%s should parse", p)
	}

	assert.Equal(t, map[string]string{
		"ID":        "int64 id",
		"Name":      "string name",
		"Email":     "*string email,omitempty",
		"BirthDate": "*time.Time birthDate,omitempty",
		"CreatedAt": "*time.Time createdAt,omitempty",
		"UpdatedAt": "*time.Time updatedAt,omitempty",
		"Orders":    "[]Order orders,omitempty",
	}, structFields(t, filepath.Join(dir, "models", "customer.go"), "Customer"), "unexpected customer fields")

	assert.Equal(t, map[string]string{
		"ID":         "uuid.UUID id",
		"Total":      "float64 total",
		"Paid":       "*bool paid,omitempty",
		"Meta":       "json.RawMessage meta,omitempty",
		"CustomerID": "int64 customerId",
		"Customer":   "*Customer customer,omitempty",
	}, structFields(t, filepath.Join(dir, "models", "order.go"), "Order"), "unexpected order fields")

	src, err := os.ReadFile(filepath.Join(dir, "models", "customer.go"))
	require.NoError(t, err, "Setup: failed to read generated model")
	assert.True(t, strings.HasPrefix(string(src), "// Code generated by forgeapi generate. DO NOT EDIT."), "model should be marked as generated")
	assert.Contains(t, string(src), "// A customer of the shop.", "model description should be documented")

	routes, err := os.ReadFile(filepath.Join(dir, "endpoints", "routes.go"))
	require.NoError(t, err, "Setup: failed to read generated routes")
	assert.Contains(t, string(routes), `"example.com/shop/controllers"`, "routes should import the project controllers")
	assert.Contains(t, string(routes), "lineItemController, err := controllers.NewLineItem(db, builder)", "routes should create every controller")

	endpoint, err := os.ReadFile(filepath.Join(dir, "endpoints", "line_item.go"))
	require.NoError(t, err, "Setup: failed to read generated endpoint")
	assert.Contains(t, string(endpoint), `"DELETE /api/lineItem/{id}"`, "endpoints should route by model name")

	// Generating again overwrites the previous sources.
	_, err = g.Generate(schema(t, shopModel))
	require.NoError(t, err, "Generate should overwrite previously generated files")
}

func TestGenerateEmptySchema(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	paths, err := codegen.Generator{Module: "example.com/empty", OutputDir: dir}.Generate(schema(t, `{"models": []}`))
	require.NoError(t, err, "Generate should succeed without models")
	require.Equal(t, []string{filepath.Join(dir, "endpoints", "routes.go")}, paths, "only the routes should be generated")

	_, err = parser.ParseFile(token.NewFileSet(), paths[0], nil, parser.AllErrors)
	require.NoError(t, err, "routes without models should parse")
}

func TestGenerateErrors(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		module string
		model  string

		wantClash bool
	}{
		"Error when module is missing": {model: shopModel},

		"Error when model collides with the routes file": {
			module:    "example.com/x",
			model:     `{"models": [{"name": "routes", "attributes": []}]}`,
			wantClash: true,
		},
		"Error when model collides with the register function": {
			module:    "example.com/x",
			model:     `{"models": [{"name": "register", "attributes": []}]}`,
			wantClash: true,
		},
		"Error when models share a Go name": {
			module:    "example.com/x",
			model:     `{"models": [{"name": "line_item", "table": "a", "attributes": []}, {"name": "lineItem", "table": "b", "attributes": []}]}`,
			wantClash: true,
		},
		"Error when attributes share a Go name": {
			module:    "example.com/x",
			model:     `{"models": [{"name": "a", "attributes": [{"name": "user_name", "column": "a", "type": "string"}, {"name": "userName", "column": "b", "type": "string"}]}]}`,
			wantClash: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := codegen.Generator{Module: tc.module, OutputDir: t.TempDir()}.Generate(schema(t, tc.model))
			require.Error(t, err, "Generate should fail")
			if tc.wantClash {
				require.ErrorIs(t, err, codegen.ErrClash, "unexpected error")
			}
		})
	}
}
