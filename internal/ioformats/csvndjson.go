package ioformats

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"scd-extractor/internal/models"
)

// WriteTable writes the spreadsheet-friendly table: a "sep=" directive, the
// header and one line per record. Values are written verbatim; a value that
// contains the delimiter is not quoted.
func WriteTable(w io.Writer, delim string, records []models.Record) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "sep=%s\n", delim); err != nil {
		return err
	}
	if _, err := bw.WriteString(strings.Join(models.Header, delim) + "\n"); err != nil {
		return err
	}
	for _, r := range records {
		if _, err := bw.WriteString(strings.Join(r.Columns(), delim) + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteTableFile writes the table to path atomically.
func WriteTableFile(path, delim string, records []models.Record) error {
	return WriteFileAtomic(path, func(w io.Writer) error {
		return WriteTable(w, delim, records)
	})
}

// WriteFileAtomic writes next to path and renames into place, so a failure
// never leaves a partial file behind.
func WriteFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }

	if err := write(tmp); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		cleanup()
		return err
	}
	return nil
}

// OutputPath swaps the extension of input for ext ("a/b.vsdx" -> "a/b.csv").
func OutputPath(input, ext string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + ext
}

// WithExt appends ext to name unless name already ends with it, ignoring
// case ("plant" -> "plant.vsdx").
func WithExt(name, ext string) string {
	if strings.HasSuffix(strings.ToLower(name), strings.ToLower(ext)) {
		return name
	}
	return name + ext
}

// ReadPaths reads the drawings named in a list file: CSV with a "path"
// column, or NDJSON holding strings, {"path": ...} objects or bare paths.
// Entries may leave out ext. Repeated entries are dropped.
func ReadPaths(list, ext string) ([]string, error) {
	f, err := os.Open(list)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []string
	switch strings.ToLower(filepath.Ext(list)) {
	case ".csv":
		entries, err = readCSV(f)
	default:
		entries, err = readNDJSON(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", list, err)
	}

	seen := make(map[string]bool, len(entries))
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		p := WithExt(e, ext)
		if seen[filepath.Clean(p)] {
			continue
		}
		seen[filepath.Clean(p)] = true
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: no drawings listed", list)
	}
	return out, nil
}

func readCSV(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("empty csv")
	}
	if err != nil {
		return nil, err
	}
	col := slices.IndexFunc(header, func(h string) bool {
		return strings.EqualFold(strings.TrimSpace(h), "path")
	})
	if col == -1 {
		return nil, errors.New("csv must contain a 'path' header column")
	}

	var out []string
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if col < len(row) {
			if p := strings.TrimSpace(row[col]); p != "" {
				out = append(out, p)
			}
		}
	}
}

func readNDJSON(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "{"):
			var v struct {
				Path string `json:"path"`
			}
			if err := json.Unmarshal([]byte(line), &v); err != nil {
				return nil, fmt.Errorf("line %d: %w", n, err)
			}
			if v.Path == "" {
				return nil, fmt.Errorf("line %d: no path", n)
			}
			out = append(out, v.Path)
		case strings.HasPrefix(line, `"`):
			var p string
			if err := json.Unmarshal([]byte(line), &p); err != nil {
				return nil, fmt.Errorf("line %d: %w", n, err)
			}
			if p != "" {
				out = append(out, p)
			}
		default:
			out = append(out, line)
		}
	}
	return out, sc.Err()
}

// WriteNDJSON writes any JSON-marshalable items as NDJSON to w.
func WriteNDJSON[T any](w io.Writer, items []T) error {
	enc := json.NewEncoder(w)
	for _, it := range items {
		if err := enc.Encode(it); err != nil {
			return err
		}
	}
	return nil
}
