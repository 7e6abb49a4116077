package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wastetwin/provision-core/internal/entity"
	"github.com/wastetwin/provision-core/internal/schema"
)

// Item is one record streamed out of a descriptor file. Exactly one of
// Record and Err is set: row-level parse or classification failures are
// delivered as items so the driver can count them without losing its
// place in the file.
type Item struct {
	Source string
	Line   int
	Record *entity.Record
	Err    error
}

// ExpandPaths resolves path arguments into descriptor files.
//
// Directory arguments contribute their .csv/.yml/.yaml files in name
// order (non-recursive). File arguments must carry a recognised
// extension.
//
// Returns:
//   - []string: descriptor file paths, in argument order
//   - error: ErrNoDescriptors when nothing matched, ErrUnsupportedFormat
//     for a file argument with an unknown extension
func ExpandPaths(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("resolving path: %w", err)
		}

		if !info.IsDir() {
			if !supportedExt(path) {
				return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
			}
			files = append(files, path)
			continue
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("listing directory: %w", err)
		}
		var found []string
		for _, e := range entries {
			if !e.IsDir() && supportedExt(e.Name()) {
				found = append(found, filepath.Join(path, e.Name()))
			}
		}
		sort.Strings(found)
		files = append(files, found...)
	}

	if len(files) == 0 {
		return nil, ErrNoDescriptors
	}
	return files, nil
}

// supportedExt reports whether the file name has a descriptor extension.
func supportedExt(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".yml", ".yaml":
		return true
	default:
		return false
	}
}

// forEachRecord streams the records of one descriptor file in source
// order. An error returned by fn aborts the stream and is passed
// through. File-level failures (unreadable file, invalid header) are
// returned directly; row-level failures are delivered as Item.Err.
//
// groups accumulates service groups across files so YAML entities can
// reference groups defined in a file processed earlier in the run.
func forEachRecord(path, defaultProtocol string, groups map[string]*entity.Group, fn func(Item) error) error {
	if strings.ToLower(filepath.Ext(path)) == ".csv" {
		return forEachCSVRecord(path, defaultProtocol, fn)
	}
	return forEachYAMLRecord(path, defaultProtocol, groups, fn)
}

// forEachCSVRecord streams a CSV descriptor.
//
// The first record is the header; a second record whose non-empty cells
// are all type annotations is merged into it. Blank rows are skipped.
func forEachCSVRecord(path, defaultProtocol string, fn func(Item) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening descriptor: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %s", ErrEmptyDescriptor, path)
		}
		return fmt.Errorf("reading header: %w", err)
	}
	line := 1

	// The annotation row, when present, is always the second record.
	var annotations []string
	var pending []string
	next, err := reader.Read()
	switch {
	case errors.Is(err, io.EOF):
	case err != nil:
		return fmt.Errorf("reading row %d: %w", line+1, err)
	case schema.IsAnnotationRow(next):
		line++
		annotations = next
	default:
		line++
		pending = next
	}

	s, err := schema.Parse(header, annotations)
	if err != nil {
		return fmt.Errorf("parsing header of %s: %w", path, err)
	}
	builder := entity.NewBuilder(s, defaultProtocol)

	emit := func(line int, row []string) error {
		if blankRow(row) {
			return nil
		}
		item := Item{Source: path, Line: line}
		record, err := builder.Build(row)
		if err != nil {
			item.Err = fmt.Errorf("%s row %d: %w", path, line, err)
		} else {
			item.Record = record
		}
		return fn(item)
	}

	if pending != nil {
		if err := emit(line, pending); err != nil {
			return err
		}
	}

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading row %d: %w", line+1, err)
		}
		line++
		if err := emit(line, row); err != nil {
			return err
		}
	}
}

// blankRow reports whether every cell of the row is empty or whitespace.
func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
