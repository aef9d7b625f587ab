// pkg/appx/package.go - scoped read access to an MSIX/APPX package container.

package appx

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/windowsadmins/msixinstaller/pkg/logging"
)

const manifestName = "AppxManifest.xml"

// footprintNames are package metadata files installed next to the payload.
var footprintNames = map[string]bool{
	"appxmanifest.xml": true,
	"appxblockmap.xml": true,
}

// skipped reports package files that are neither payload nor installed.
func skipped(lower string) bool {
	return lower == "[content_types].xml" || lower == "appxsignature.p7x" || strings.HasPrefix(lower, "appxmetadata/")
}

// PackageReadError reports a package that could not be opened or understood.
type PackageReadError struct {
	Path string
	Err  error
}

func (e *PackageReadError) Error() string {
	return fmt.Sprintf("reading package %s: %v", e.Path, e.Err)
}

func (e *PackageReadError) Unwrap() error { return e.Err }

// Entry is one file inside the package.
type Entry struct {
	// Name is the decoded, slash-separated path inside the package.
	Name string
	Size int64
	open func() (io.ReadCloser, error)
}

// NewEntry builds an entry backed by an arbitrary stream.
func NewEntry(name string, size int64, open func() (io.ReadCloser, error)) Entry {
	return Entry{Name: name, Size: size, open: open}
}

// Open returns the entry's byte stream.
func (e Entry) Open() (io.ReadCloser, error) {
	if e.open == nil {
		return nil, fmt.Errorf("entry %s has no content", e.Name)
	}
	return e.open()
}

// Package is an open package. It is only valid until Close.
type Package struct {
	path      string
	zr        *zip.ReadCloser
	manifest  *Manifest
	payload   []Entry
	footprint []Entry
	byName    map[string]*zip.File
}

// Open opens a package and parses its manifest.
func Open(packagePath string) (*Package, error) {
	zr, err := zip.OpenReader(packagePath)
	if err != nil {
		return nil, &PackageReadError{Path: packagePath, Err: err}
	}

	p := &Package{
		path:   packagePath,
		zr:     zr,
		byName: make(map[string]*zip.File, len(zr.File)),
	}

	var manifestFile *zip.File
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		name := decodeName(f.Name)
		p.byName[strings.ToLower(name)] = f

		entry := NewEntry(name, int64(f.UncompressedSize64), f.Open)
		lower := strings.ToLower(name)
		switch {
		case lower == strings.ToLower(manifestName):
			manifestFile = f
			p.footprint = append(p.footprint, entry)
		case skipped(lower):
		case footprintNames[lower]:
			p.footprint = append(p.footprint, entry)
		default:
			p.payload = append(p.payload, entry)
		}
	}

	if manifestFile == nil {
		zr.Close()
		return nil, &PackageReadError{Path: packagePath, Err: fmt.Errorf("%s not found", manifestName)}
	}

	rc, err := manifestFile.Open()
	if err != nil {
		zr.Close()
		return nil, &PackageReadError{Path: packagePath, Err: err}
	}
	defer rc.Close()

	p.manifest, err = ParseManifest(rc)
	if err != nil {
		zr.Close()
		return nil, &PackageReadError{Path: packagePath, Err: err}
	}

	logging.Debug("Opened package", "path", packagePath,
		"payload_entries", len(p.payload), "footprint_entries", len(p.footprint))
	return p, nil
}

// WithPackage opens a package, runs fn and always closes the package.
func WithPackage(packagePath string, fn func(*Package) error) error {
	p, err := Open(packagePath)
	if err != nil {
		return err
	}
	defer p.Close()
	return fn(p)
}

// Path returns the package file path.
func (p *Package) Path() string { return p.path }

// Manifest returns the parsed manifest.
func (p *Package) Manifest() *Manifest { return p.manifest }

// PayloadEntries returns application files in package order.
func (p *Package) PayloadEntries() []Entry {
	return append([]Entry(nil), p.payload...)
}

// Footprint returns the package metadata files that are installed with the payload.
func (p *Package) Footprint() []Entry {
	return append([]Entry(nil), p.footprint...)
}

// Extensions returns the extension declarations of every application.
func (p *Package) Extensions() []Extension {
	return p.manifest.Extensions()
}

// ReadFile reads a package file by manifest-relative path. Backslashes and
// case differences are tolerated because manifests are authored on Windows.
func (p *Package) ReadFile(name string) ([]byte, error) {
	f, ok := p.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%s not found in package", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// lookup resolves a manifest asset reference. Logos are usually stored with a
// resource qualifier (Logo.scale-200.png) that the manifest omits; the
// highest-sorting qualified variant wins.
func (p *Package) lookup(name string) (*zip.File, bool) {
	key := strings.ToLower(path.Clean(strings.ReplaceAll(name, `\`, "/")))
	if f, ok := p.byName[key]; ok {
		return f, true
	}

	ext := path.Ext(key)
	stem := strings.TrimSuffix(key, ext) + "."
	var best string
	for candidate := range p.byName {
		if strings.HasPrefix(candidate, stem) && strings.HasSuffix(candidate, ext) && candidate > best {
			best = candidate
		}
	}
	if best == "" {
		return nil, false
	}
	return p.byName[best], true
}

// Close releases the underlying archive.
func (p *Package) Close() error {
	if p.zr == nil {
		return nil
	}
	err := p.zr.Close()
	p.zr = nil
	return err
}

// decodeName undoes the percent-encoding applied to package part names.
func decodeName(name string) string {
	decoded, err := url.PathUnescape(name)
	if err != nil {
		return name
	}
	return decoded
}
