
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"scd-extractor/internal/parser"
)

var (
	// ErrMalformedArchive: a required part is missing or does not parse in
	// the expected schema.
	ErrMalformedArchive = errors.New("malformed archive")
	// ErrInconsistentArchive: a cross reference between parts cannot be
	// resolved.
	ErrInconsistentArchive = errors.New("inconsistent archive")
)

// DefaultSizeCap bounds a single decompressed part.
const DefaultSizeCap = 64 << 20

// Archive is a read-only view over a .vsdx package.
type Archive struct {
	name    string
	zr      *zip.Reader
	closer  io.Closer
	files   map[string]*zip.File
	names   []string
	sizeCap int64
	parser  *parser.Parser
}

func Open(path string, sizeCap int64) (*Archive, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedArchive, path, err)
	}
	a := newArchive(path, &rc.Reader, sizeCap)
	a.closer = rc
	return a, nil
}

// NewReader reads an archive held in memory or any other io.ReaderAt. name is
// only used in error messages.
func NewReader(r io.ReaderAt, size int64, name string, sizeCap int64) (*Archive, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedArchive, name, err)
	}
	return newArchive(name, zr, sizeCap), nil
}

func newArchive(name string, zr *zip.Reader, sizeCap int64) *Archive {
	if sizeCap <= 0 {
		sizeCap = DefaultSizeCap
	}
	a := &Archive{
		name:    name,
		zr:      zr,
		files:   make(map[string]*zip.File, len(zr.File)),
		sizeCap: sizeCap,
		parser:  parser.New(),
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if _, dup := a.files[f.Name]; dup {
			continue
		}
		a.files[f.Name] = f
		a.names = append(a.names, f.Name)
	}
	return a
}

func (a *Archive) Name() string { return a.name }

func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// Parts lists the entries whose path contains marker, in archive order.
func (a *Archive) Parts(marker string) []string {
	var out []string
	for _, n := range a.names {
		if strings.Contains(n, marker) {
			out = append(out, n)
		}
	}
	return out
}

func (a *Archive) Has(part string) bool {
	_, ok := a.files[part]
	return ok
}

// ReadPart returns the decompressed bytes of part, capped at the size limit.
func (a *Archive) ReadPart(part string) ([]byte, error) {
	f, ok := a.files[part]
	if !ok {
		return nil, fmt.Errorf("%w: expected part %q not found", ErrMalformedArchive, part)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open part %q: %v", ErrMalformedArchive, part, err)
	}
	defer rc.Close()

	// enforce a size cap
	data, err := io.ReadAll(io.LimitReader(rc, a.sizeCap+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read part %q: %v", ErrMalformedArchive, part, err)
	}
	if int64(len(data)) > a.sizeCap {
		return nil, fmt.Errorf("%w: part %q exceeds %d bytes", ErrMalformedArchive, part, a.sizeCap)
	}
	return data, nil
}

// Document reads and parses an XML part.
func (a *Archive) Document(part string) (*goquery.Document, error) {
	data, err := a.ReadPart(part)
	if err != nil {
		return nil, err
	}
	doc, err := a.parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: part %q is not valid XML: %v", ErrMalformedArchive, part, err)
	}
	return doc, nil
}
