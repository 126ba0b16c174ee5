package database

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
)

const (
	markerUp   = "-- +migrate Up"
	markerDown = "-- +migrate Down"
	markerID   = "-- +migrate ID:"
)

var (
	errMissingUpSection  = errors.New("missing or empty Up section")
	errEmptyIDOverride   = errors.New("empty ID override")
	errDuplicateIDMarker = errors.New("duplicate ID override marker")
	errIDMarkerNotFirst  = errors.New("ID override marker must be the first marker")
)

// ParseMigrations parses SQL bootstrap migration files from an fs.FS.
// Files must have .sql extension and contain -- +migrate Up marker.
// The -- +migrate Down marker is optional.
// Migration ID is derived from the filename without extension,
// unless overridden with -- +migrate ID: <custom_id> as the first marker.
// Only one ID override marker is allowed and it must appear before any other markers.
// Migrations are returned sorted lexicographically by filename.
func ParseMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var filenames []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		filenames = append(filenames, entry.Name())
	}

	slices.Sort(filenames)

	migrations := make([]Migration, 0, len(filenames))
	for _, filename := range filenames {
		migration, err := parseMigrationFile(fsys, filename)
		if err != nil {
			return nil, fmt.Errorf("failed to parse migration %s: %w", filename, err)
		}
		migrations = append(migrations, migration)
	}

	return migrations, nil
}

type migrationParser struct {
	id            string
	idOverridden  bool
	anyMarkerSeen bool

	up      strings.Builder
	down    strings.Builder
	section *strings.Builder
}

func (p *migrationParser) line(raw string) error {
	trimmed := strings.TrimSpace(raw)

	if strings.HasPrefix(trimmed, markerID) {
		if p.idOverridden {
			return errDuplicateIDMarker
		}
		if p.anyMarkerSeen {
			return errIDMarkerNotFirst
		}
		override := strings.TrimSpace(strings.TrimPrefix(trimmed, markerID))
		if override == "" {
			return errEmptyIDOverride
		}
		p.id = override
		p.idOverridden = true
		p.anyMarkerSeen = true
		return nil
	}

	switch trimmed {
	case markerUp:
		p.section = &p.up
		p.anyMarkerSeen = true
		return nil
	case markerDown:
		p.section = &p.down
		p.anyMarkerSeen = true
		return nil
	}

	if p.section != nil {
		p.section.WriteString(raw)
		p.section.WriteString("\n")
	}
	return nil
}

func (p *migrationParser) migration() (Migration, error) {
	up := strings.TrimSpace(p.up.String())
	if up == "" {
		return Migration{}, errMissingUpSection
	}

	return Migration{
		ID:   p.id,
		Up:   up,
		Down: strings.TrimSpace(p.down.String()),
	}, nil
}

func parseMigrationFile(fsys fs.FS, filename string) (Migration, error) {
	file, err := fsys.Open(filename)
	if err != nil {
		return Migration{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	parser := &migrationParser{id: strings.TrimSuffix(filename, ".sql")}

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if err := parser.line(scanner.Text()); err != nil {
			return Migration{}, err
		}
	}

	if err := scanner.Err(); err != nil {
		return Migration{}, fmt.Errorf("failed to read file: %w", err)
	}

	return parser.migration()
}
