// Package codegen generates typed Go sources, SQL migrations and new projects from a data model.
package codegen

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"go/format"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/template"

	"github.com/forgeapi/forgeapi/internal/fileutils"
	"github.com/forgeapi/forgeapi/pkg/datamodel"
	"github.com/ubuntu/decorate"
)

//go:embed templates/*.tmpl templates/scaffold/*.tmpl
var templatesFS embed.FS

var templates = template.Must(template.New("").ParseFS(templatesFS, "templates/*.tmpl"))

// Generated package directories, relative to the output directory.
const (
	ModelsDir      = "models"
	ControllersDir = "controllers"
	EndpointsDir   = "endpoints"
)

// routesFile is the endpoints file registering every model.
const routesFile = "routes"

// ErrClash is returned when a data model name collides with generated code.
var ErrClash = errors.New("name collides with generated code")

// Generator writes the models, controllers and endpoints packages of a data model.
type Generator struct {
	// Module is the Go module path of the generated project.
	Module string
	// OutputDir is the root directory of the generated packages.
	OutputDir string
	// Project names the project in package documentation.
	Project string
}

type field struct {
	GoName string
	Type   string
	Tag    string
}

type model struct {
	Module  string
	Name    string
	GoName  string
	Var     string
	Doc     []string
	Imports []string
	Fields  []field
}

// Generate renders every model of the schema and returns the written paths.
// Generated files are overwritten.
func (g Generator) Generate(s *datamodel.Schema) (paths []string, err error) {
	defer decorate.OnError(&err, "couldn't generate sources")

	if g.Module == "" {
		return nil, errors.New("module path is required")
	}

	var models []model
	seen := make(map[string]string)
	for _, m := range s.Models() {
		md, err := g.newModel(m)
		if err != nil {
			return nil, err
		}
		if other, ok := seen[md.GoName]; ok {
			return nil, fmt.Errorf("%w: models %q and %q are both named %s", ErrClash, other, m.Name, md.GoName)
		}
		seen[md.GoName] = m.Name
		models = append(models, md)
	}

	for _, md := range models {
		file := datamodel.SnakeCase(md.Name) + ".go"
		for dir, tmpl := range map[string]string{
			ModelsDir:      "model.go.tmpl",
			ControllersDir: "controller.go.tmpl",
			EndpointsDir:   "endpoint.go.tmpl",
		} {
			p := filepath.Join(g.OutputDir, dir, file)
			if err := render(p, tmpl, md); err != nil {
				return nil, err
			}
			paths = append(paths, p)
		}
	}

	p := filepath.Join(g.OutputDir, EndpointsDir, routesFile+".go")
	project := g.Project
	if project == "" {
		project = filepath.Base(g.Module)
	}
	data := struct {
		Module  string
		Project string
		Models  []model
	}{g.Module, project, models}
	if err := render(p, "routes.go.tmpl", data); err != nil {
		return nil, err
	}
	paths = append(paths, p)

	slices.Sort(paths)
	slog.Info("Generated sources", "files", len(paths), "dir", g.OutputDir)
	return paths, nil
}

func (g Generator) newModel(m *datamodel.Model) (model, error) {
	md := model{
		Module: g.Module,
		Name:   m.Name,
		GoName: datamodel.GoName(m.Name),
		Var:    datamodel.LowerCamel(m.Name) + "Controller",
	}
	if md.GoName == "Register" || datamodel.SnakeCase(m.Name) == routesFile {
		return model{}, fmt.Errorf("%w: model %q", ErrClash, m.Name)
	}
	if m.Description != "" {
		md.Doc = strings.Split(strings.TrimSpace(m.Description), "\n")
	}

	imports := make(map[string]struct{})
	names := make(map[string]string)
	add := func(name, goName, typ, tag string) error {
		if other, ok := names[goName]; ok {
			return fmt.Errorf("%w: %q and %q of model %q are both named %s", ErrClash, other, name, m.Name, goName)
		}
		names[goName] = name
		md.Fields = append(md.Fields, field{GoName: goName, Type: typ, Tag: tag})
		return nil
	}

	for _, a := range m.Attributes {
		typ, imp := goType(a.Type)
		if imp != "" {
			imports[imp] = struct{}{}
		}
		optional := !a.Required && !a.PrimaryKey
		if optional && a.Type != datamodel.TypeJSON {
			typ = "*" + typ
		}
		if err := add(a.Name, datamodel.GoName(a.Name), typ, jsonTag(a.Name, optional)); err != nil {
			return model{}, err
		}
	}

	for _, r := range m.Relationships {
		typ := "*" + datamodel.GoName(r.Model)
		if r.Kind == datamodel.HasMany {
			typ = "[]" + datamodel.GoName(r.Model)
		}
		if err := add(r.Name, datamodel.GoName(r.Name), typ, jsonTag(r.Name, true)); err != nil {
			return model{}, err
		}
	}

	for imp := range imports {
		md.Imports = append(md.Imports, imp)
	}
	slices.Sort(md.Imports)
	return md, nil
}

// goType returns the Go type of an attribute type and the package it requires.
func goType(t datamodel.AttributeType) (typ, imp string) {
	switch t {
	case datamodel.TypeInteger:
		return "int64", ""
	case datamodel.TypeNumber:
		return "float64", ""
	case datamodel.TypeBoolean:
		return "bool", ""
	case datamodel.TypeDate, datamodel.TypeDateTime:
		return "time.Time", "time"
	case datamodel.TypeUUID:
		return "uuid.UUID", "github.com/google/uuid"
	case datamodel.TypeJSON:
		return "json.RawMessage", "encoding/json"
	default:
		return "string", ""
	}
}

func jsonTag(name string, omitEmpty bool) string {
	if omitEmpty {
		return fmt.Sprintf(`json:"%s,omitempty"`, name)
	}
	return fmt.Sprintf(`json:"%s"`, name)
}

// render executes a template, formats the result and writes it atomically.
func render(path, name string, data any) error {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("failed to render %s: %v", name, err)
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return fmt.Errorf("generated %s is not valid Go: %v", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create %s: %v", filepath.Dir(path), err)
	}
	if err := fileutils.AtomicWrite(path, src, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %v", path, err)
	}
	slog.Debug("Wrote generated file", "path", path)
	return nil
}
