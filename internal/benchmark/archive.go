package benchmark

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/amccray/stigward/internal/database"
)

var (
	// ErrResourceLimit reports an archive that exceeds the configured
	// entry-count or total-size limits.
	ErrResourceLimit = errors.New("archive resource limit exceeded")

	// ErrNoDefinitionFound reports an archive with no candidate
	// benchmark document at all.
	ErrNoDefinitionFound = errors.New("no benchmark definition found in archive")
)

// Limits bounds how much of an uploaded archive will be unpacked.
type Limits struct {
	MaxEntries       int
	MaxTotalBytes    int64
	MaxDocumentBytes int64
}

// Parsed is the outcome for one archive entry. A library upload yields one
// Parsed per nested archive; individual failures carry Err and do not
// abort the rest.
type Parsed struct {
	EntryName  string               `json:"entry"`
	Definition *database.Definition `json:"-"`
	Rules      []database.Rule      `json:"-"`
	Err        error                `json:"-"`
}

// Unpack opens a compressed archive, enforces resource limits, classifies
// it as a single benchmark or a library of nested benchmark archives, and
// parses every benchmark it finds.
func Unpack(data []byte, limits Limits) ([]Parsed, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	if err := checkLimits(zr, limits); err != nil {
		return nil, err
	}

	nested := nestedArchives(zr)
	if len(nested) == 0 {
		p := parseSingle(zr, limits, "")
		if p.Err != nil {
			return nil, p.Err
		}
		return []Parsed{p}, nil
	}

	// Library upload: each nested archive is parsed independently, and
	// one bad entry never stops the others.
	parsed := make([]Parsed, 0, len(nested))
	for _, f := range nested {
		inner, err := readEntry(f, limits.MaxDocumentBytes)
		if err != nil {
			parsed = append(parsed, Parsed{EntryName: f.Name, Err: err})
			continue
		}
		izr, err := zip.NewReader(bytes.NewReader(inner), int64(len(inner)))
		if err != nil {
			parsed = append(parsed, Parsed{EntryName: f.Name, Err: fmt.Errorf("%w: %v", ErrInvalidFormat, err)})
			continue
		}
		if err := checkLimits(izr, limits); err != nil {
			parsed = append(parsed, Parsed{EntryName: f.Name, Err: err})
			continue
		}
		parsed = append(parsed, parseSingle(izr, limits, f.Name))
	}
	return parsed, nil
}

// checkLimits fails fast, before any entry is decompressed, using the
// sizes declared in the central directory.
func checkLimits(zr *zip.Reader, limits Limits) error {
	if limits.MaxEntries > 0 && len(zr.File) > limits.MaxEntries {
		return fmt.Errorf("%w: %d entries (limit %d)", ErrResourceLimit, len(zr.File), limits.MaxEntries)
	}
	if limits.MaxTotalBytes > 0 {
		var total int64
		for _, f := range zr.File {
			total += int64(f.UncompressedSize64)
		}
		if total > limits.MaxTotalBytes {
			return fmt.Errorf("%w: %d uncompressed bytes (limit %d)", ErrResourceLimit, total, limits.MaxTotalBytes)
		}
	}
	return nil
}

func nestedArchives(zr *zip.Reader) []*zip.File {
	var out []*zip.File
	for _, f := range zr.File {
		if junkEntry(f.Name) {
			continue
		}
		if strings.HasSuffix(strings.ToLower(f.Name), ".zip") {
			out = append(out, f)
		}
	}
	return out
}

// parseSingle locates the benchmark document inside one archive and runs
// the parser on it. entryPrefix carries the nested archive name for
// library uploads.
func parseSingle(zr *zip.Reader, limits Limits, entryPrefix string) Parsed {
	f := findDefinitionEntry(zr)
	if f == nil {
		return Parsed{EntryName: entryPrefix, Err: ErrNoDefinitionFound}
	}

	name := f.Name
	if entryPrefix != "" {
		name = entryPrefix + "/" + f.Name
	}

	data, err := readEntry(f, limits.MaxDocumentBytes)
	if err != nil {
		return Parsed{EntryName: name, Err: err}
	}

	def, rules, err := ParseBenchmark(data, f.Name)
	return Parsed{EntryName: name, Definition: def, Rules: rules, Err: err}
}

// findDefinitionEntry prefers an XCCDF-named XML entry and falls back to
// the first XML entry that is not a macOS metadata artifact.
func findDefinitionEntry(zr *zip.Reader) *zip.File {
	var fallback *zip.File
	for _, f := range zr.File {
		if junkEntry(f.Name) {
			continue
		}
		lower := strings.ToLower(f.Name)
		if !strings.HasSuffix(lower, ".xml") {
			continue
		}
		if strings.Contains(lower, "xccdf") {
			return f
		}
		if fallback == nil {
			fallback = f
		}
	}
	return fallback
}

func junkEntry(name string) bool {
	if strings.HasPrefix(name, "__MACOSX/") {
		return true
	}
	base := path.Base(name)
	return strings.HasPrefix(base, "._") || base == ".DS_Store" || strings.HasSuffix(name, "/")
}

func readEntry(f *zip.File, maxBytes int64) ([]byte, error) {
	if maxBytes > 0 && int64(f.UncompressedSize64) > maxBytes {
		return nil, fmt.Errorf("%w: entry %s is %d bytes (limit %d)",
			ErrResourceLimit, f.Name, f.UncompressedSize64, maxBytes)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", f.Name, err)
	}
	defer rc.Close()

	r := io.Reader(rc)
	if maxBytes > 0 {
		// Declared sizes can lie; cap the actual read as well.
		r = io.LimitReader(rc, maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.Name, err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: entry %s inflated past %d bytes", ErrResourceLimit, f.Name, maxBytes)
	}
	return data, nil
}
