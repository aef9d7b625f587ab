// pkg/ledger/ledger.go - durable, append-only record of what an install created.
//
// One ledger file per installed package lives in the store directory, named
// after the package full name. Its existence is what "installed" means.

package ledger

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/windowsadmins/msixinstaller/pkg/identity"
)

const schemaVersion = 1

var (
	// ErrLedgerAlreadyExists means the identity is already tracked; uninstall first.
	ErrLedgerAlreadyExists = errors.New("ledger already exists")
	// ErrLedgerNotFound means there is nothing recorded for the identity or path.
	ErrLedgerNotFound = errors.New("ledger not found")
	// ErrDiscarded is returned when appending to a discarded ledger.
	ErrDiscarded = errors.New("ledger has been discarded")
)

// Ledger is the ordered record of one install transaction.
type Ledger struct {
	ID          string
	Identity    identity.Identity
	DisplayName string
	InstallRoot string
	CreatedAt   time.Time

	mu        sync.Mutex
	path      string
	entries   []Entry
	discarded bool
}

// Store locates ledgers in a directory.
type Store struct {
	dir   string
	now   func() time.Time
	newID func() string
}

// NewStore returns a store rooted at dir. The directory is created on first Begin.
func NewStore(dir string) *Store {
	return &Store{
		dir:   dir,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// Path returns where the ledger for id is stored.
func (s *Store) Path(id identity.Identity) string {
	return filepath.Join(s.dir, id.FullName()+".xml")
}

// Begin reserves the storage slot for id and persists an empty ledger.
// Creation is exclusive, which makes Begin the per-identity install lock.
func (s *Store) Begin(id identity.Identity, displayName, installRoot string) (*Ledger, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("creating ledger directory %s: %w", s.dir, err)
	}

	l := &Ledger{
		ID:          s.newID(),
		Identity:    id,
		DisplayName: displayName,
		InstallRoot: installRoot,
		CreatedAt:   s.now().UTC().Truncate(time.Second),
		path:        s.Path(id),
	}
	data, err := l.marshal()
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("%s: %w", l.path, ErrLedgerAlreadyExists)
	}
	if err != nil {
		return nil, fmt.Errorf("reserving ledger %s: %w", l.path, err)
	}
	_, werr := f.Write(data)
	if werr == nil {
		werr = f.Sync()
	}
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(l.path)
		return nil, fmt.Errorf("writing ledger %s: %w", l.path, werr)
	}
	return l, nil
}

// Load reads the ledger recorded for id.
func (s *Store) Load(id identity.Identity) (*Ledger, error) {
	return LoadFile(s.Path(id))
}

// LoadByName reads the ledger for a package full name.
func (s *Store) LoadByName(fullName string) (*Ledger, error) {
	if fullName == "" || strings.ContainsAny(fullName, `\/`) {
		return nil, fmt.Errorf("invalid package full name %q", fullName)
	}
	return LoadFile(filepath.Join(s.dir, fullName+".xml"))
}

// List loads every ledger in the store, sorted by package full name.
// Unreadable files are skipped and reported in the returned error slice.
func (s *Store) List() ([]*Ledger, []error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.xml"))
	if err != nil {
		return nil, []error{err}
	}
	sort.Strings(matches)

	var out []*Ledger
	var errs []error
	for _, m := range matches {
		l, err := LoadFile(m)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, l)
	}
	return out, errs
}

// LoadFile reads a ledger from an explicit path.
func LoadFile(path string) (*Ledger, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrLedgerNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading ledger %s: %w", path, err)
	}
	l, err := unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("parsing ledger %s: %w", path, err)
	}
	l.path = path
	return l, nil
}

// Path returns the persisted location.
func (l *Ledger) Path() string { return l.path }

// Entries returns a copy of the entries in insertion order.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Append durably records one entry. When it returns nil the entry survives a crash.
func (l *Ledger) Append(e Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.discarded {
		return ErrDiscarded
	}

	l.entries = append(l.entries, e)
	if err := l.persist(); err != nil {
		l.entries = l.entries[:len(l.entries)-1]
		return err
	}
	return nil
}

// Discard deletes the persisted ledger. A ledger already gone is not an error.
func (l *Ledger) Discard() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("discarding ledger %s: %w", l.path, err)
	}
	l.discarded = true
	return nil
}

// persist rewrites the whole document next to the slot and renames it into
// place, so readers see either the previous or the new state.
func (l *Ledger) persist() error {
	data, err := l.marshal()
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(l.path), "."+filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("persisting ledger: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("persisting ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("persisting ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("persisting ledger: %w", err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("persisting ledger: %w", err)
	}
	return nil
}

type ledgerXML struct {
	XMLName     xml.Name   `xml:"Ledger"`
	Schema      int        `xml:"schema,attr"`
	ID          string     `xml:"id,attr"`
	Created     string     `xml:"created,attr"`
	Package     packageXML `xml:"Package"`
	DisplayName string     `xml:"DisplayName"`
	InstallRoot string     `xml:"InstallRoot"`
	Entries     entriesXML `xml:"Entries"`
}

type packageXML struct {
	Name         string `xml:"name,attr"`
	FullName     string `xml:"fullName,attr"`
	Version      string `xml:"version,attr"`
	Architecture string `xml:"architecture,attr,omitempty"`
	ResourceID   string `xml:"resourceId,attr,omitempty"`
	Publisher    string `xml:"publisher,attr"`
}

type entriesXML struct {
	Items []entryXML `xml:",any"`
}

type entryXML struct {
	XMLName xml.Name
	Path    string `xml:"path,attr,omitempty"`
	Hive    string `xml:"hive,attr,omitempty"`
	Key     string `xml:"key,attr,omitempty"`
	Name    string `xml:"name,attr,omitempty"`
	Size    int64  `xml:"size,attr,omitempty"`
	SHA256  string `xml:"sha256,attr,omitempty"`
}

func (l *Ledger) marshal() ([]byte, error) {
	doc := ledgerXML{
		Schema:  schemaVersion,
		ID:      l.ID,
		Created: l.CreatedAt.Format(time.RFC3339),
		Package: packageXML{
			Name:         l.Identity.Name,
			FullName:     l.Identity.FullName(),
			Version:      l.Identity.Version.String(),
			Architecture: l.Identity.Architecture,
			ResourceID:   l.Identity.ResourceID,
			Publisher:    l.Identity.Publisher,
		},
		DisplayName: l.DisplayName,
		InstallRoot: l.InstallRoot,
	}
	for _, e := range l.entries {
		doc.Entries.Items = append(doc.Entries.Items, entryXML{
			XMLName: xml.Name{Local: string(e.Kind)},
			Path:    e.Path,
			Hive:    e.Hive,
			Key:     e.Key,
			Name:    e.Name,
			Size:    e.Size,
			SHA256:  e.SHA256,
		})
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding ledger: %w", err)
	}
	return append([]byte(xml.Header), append(body, '\n')...), nil
}

func unmarshal(data []byte) (*Ledger, error) {
	var doc ledgerXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Schema > schemaVersion {
		return nil, fmt.Errorf("ledger schema %d is newer than supported %d", doc.Schema, schemaVersion)
	}
	version, err := identity.ParseVersion(doc.Package.Version)
	if err != nil {
		return nil, err
	}
	created, _ := time.Parse(time.RFC3339, doc.Created)

	l := &Ledger{
		ID: doc.ID,
		Identity: identity.Identity{
			Name:         doc.Package.Name,
			Version:      version,
			Architecture: doc.Package.Architecture,
			ResourceID:   doc.Package.ResourceID,
			Publisher:    doc.Package.Publisher,
		},
		DisplayName: doc.DisplayName,
		InstallRoot: doc.InstallRoot,
		CreatedAt:   created,
	}
	for i, item := range doc.Entries.Items {
		e := Entry{
			Kind:   Kind(item.XMLName.Local),
			Path:   item.Path,
			Hive:   item.Hive,
			Key:    item.Key,
			Name:   item.Name,
			Size:   item.Size,
			SHA256: item.SHA256,
		}
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		l.entries = append(l.entries, e)
	}
	return l, nil
}
