package codegen

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"text/template"

	"github.com/forgeapi/forgeapi/internal/constants"
	"github.com/forgeapi/forgeapi/internal/fileutils"
	"github.com/joho/godotenv"
	"github.com/ubuntu/decorate"
)

var scaffoldTemplates = template.Must(template.New("").ParseFS(templatesFS, "templates/scaffold/*.tmpl"))

// ConfigFile is the application configuration written in new projects.
const ConfigFile = constants.CmdName + ".yaml"

// ScaffoldOptions tunes the created project.
type ScaffoldOptions struct {
	// Name of the project, defaulting to the directory name.
	Name string
	// Module is the Go module path of the project, defaulting to the project name.
	Module string
	// Force overwrites existing files.
	Force bool
}

type scaffoldFile struct {
	path string
	data []byte
	perm fs.FileMode
}

// Scaffold creates a new project tree in dir and returns the written files.
//
// Nothing is written if any of the project files exists, unless opts.Force is set.
func Scaffold(dir string, opts ScaffoldOptions) (paths []string, err error) {
	defer decorate.OnError(&err, "couldn't create project in %s", dir)

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if opts.Name == "" {
		opts.Name = filepath.Base(abs)
	}
	if opts.Module == "" {
		opts.Module = opts.Name
	}

	data := struct {
		Name       string
		DBName     string
		DataModel  string
		Series     string
		Migrations string
		Packages   string
	}{
		Name:       opts.Name,
		DBName:     dbIdentifier(opts.Name),
		DataModel:  constants.DataModelFile,
		Series:     constants.DynamicConfigFile,
		Migrations: constants.MigrationsDir,
		Packages:   constants.PackagesDir,
	}

	var files []scaffoldFile
	for name, tmpl := range map[string]string{
		ConfigFile:                  "forgeapi.yaml.tmpl",
		constants.DataModelFile:     "datamodel.json.tmpl",
		constants.DynamicConfigFile: "series.json.tmpl",
	} {
		var buf bytes.Buffer
		if err := scaffoldTemplates.ExecuteTemplate(&buf, tmpl, data); err != nil {
			return nil, fmt.Errorf("failed to render %s: %v", name, err)
		}
		files = append(files, scaffoldFile{path: filepath.Join(dir, name), data: buf.Bytes(), perm: 0644})
	}

	env, err := envFile()
	if err != nil {
		return nil, err
	}
	files = append(files,
		scaffoldFile{path: filepath.Join(dir, constants.EnvFile), data: env, perm: 0600},
		scaffoldFile{path: filepath.Join(dir, "go.mod"), data: fmt.Appendf(nil, "module %s\n\ngo 1.24\n", opts.Module), perm: 0644},
	)

	if !opts.Force {
		var errs []error
		for _, f := range files {
			if _, err := os.Lstat(f.path); err == nil {
				errs = append(errs, fmt.Errorf("%s: %w", f.path, fileutils.ErrExists))
			}
		}
		if err := errors.Join(errs...); err != nil {
			return nil, err
		}
	}

	for _, d := range []string{ModelsDir, ControllersDir, EndpointsDir, constants.MigrationsDir, constants.PackagesDir} {
		if err := os.MkdirAll(filepath.Join(dir, d), 0750); err != nil {
			return nil, err
		}
	}
	for _, f := range files {
		if err := fileutils.WriteNew(f.path, f.data, f.perm, true); err != nil {
			return nil, err
		}
		paths = append(paths, f.path)
	}

	slog.Info("Created project", "name", opts.Name, "dir", dir)
	return paths, nil
}

// envFile renders the environment file holding a random token signing secret.
func envFile() ([]byte, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate token secret: %v", err)
	}

	env, err := godotenv.Marshal(map[string]string{
		constants.TokenSecretEnv: hex.EncodeToString(secret),
		"FORGEAPI_DB_PASSWORD":   "",
	})
	if err != nil {
		return nil, err
	}
	return []byte(env + "\n"), nil
}

// dbIdentifier turns a project name into a database and role name.
func dbIdentifier(name string) string {
	var b []byte
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b = append(b, byte(r))
		case r >= 'A' && r <= 'Z':
			b = append(b, byte(r-'A'+'a'))
		default:
			b = append(b, '_')
		}
	}
	if len(b) == 0 || (b[0] >= '0' && b[0] <= '9') {
		b = append([]byte("app_"), b...)
	}
	return string(b)
}
