package codegen

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/forgeapi/forgeapi/internal/fileutils"
	"github.com/forgeapi/forgeapi/pkg/datamodel"
	"github.com/ubuntu/decorate"
)

// versionLayout formats timestamp migration versions.
const versionLayout = "20060102150405"

// now is overridden in tests.
var now = time.Now

// WriteMigration writes the up and down golang-migrate scripts creating the schema tables.
// A zero version uses the current UTC time. Existing migrations are never overwritten.
func WriteMigration(s *datamodel.Schema, dir string, version uint64, title string) (up, down string, err error) {
	defer decorate.OnError(&err, "couldn't write migration")

	if title = datamodel.SnakeCase(title); title == "" {
		return "", "", errors.New("migration title is required")
	}
	v := fmt.Sprint(version)
	if version == 0 {
		v = now().UTC().Format(versionLayout)
	}

	upSQL, downSQL := s.Migration()
	base := filepath.Join(dir, v+"_"+title)
	up, down = base+".up.sql", base+".down.sql"

	if err := fileutils.WriteNew(up, []byte(upSQL), 0644, false); err != nil {
		return "", "", err
	}
	if err := fileutils.WriteNew(down, []byte(downSQL), 0644, false); err != nil {
		return "", "", err
	}

	slog.Info("Wrote migration", "version", v, "up", up, "down", down)
	return up, down, nil
}
