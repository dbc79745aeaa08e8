// Package library manages the uploaded source files kept on disk and a
// manifest describing what was loaded from each of them.
package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/tabletalk/internal/utils"
)

const manifestFileName = "library.json"

var (
	// ErrNotFound is returned for files that are not in the library.
	ErrNotFound = errors.New("file not found")
	// ErrInvalidFilename is returned when nothing usable remains of a name
	// after sanitizing.
	ErrInvalidFilename = errors.New("invalid filename")
)

// ExtensionError rejects a file type the library does not store.
type ExtensionError struct {
	Filename string
}

func (e *ExtensionError) Error() string {
	return fmt.Sprintf("invalid file type %q. Allowed: %s", filepath.Ext(e.Filename), strings.Join(AllowedExtensions, ", "))
}

// AllowedExtensions lists the accepted file types without the dot.
var AllowedExtensions = []string{"csv", "tsv", "xlsx", "xls"}

// Entry describes one stored file. Size and Modified come from disk; the
// rest is recorded when the file is loaded.
type Entry struct {
	ID         string    `json:"id,omitempty"`
	Filename   string    `json:"filename"`
	Table      string    `json:"table_name,omitempty"`
	Rows       int       `json:"rows,omitempty"`
	Columns    []string  `json:"columns,omitempty"`
	UploadedAt time.Time `json:"uploaded_at,omitempty"`
	Size       int64     `json:"size"`
	Modified   float64   `json:"modified"`
}

type manifest struct {
	Files map[string]*Entry `json:"files"`
}

// Library is a directory of uploaded files.
type Library struct {
	mu  sync.Mutex
	dir string
}

// Open prepares dir for use, creating it when missing.
func Open(dir string) (*Library, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("ensure dir: %w", err)
	}
	return &Library{dir: dir}, nil
}

// Dir returns the storage directory.
func (l *Library) Dir() string { return l.dir }

// Allowed reports whether filename has an accepted extension.
func Allowed(filename string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	for _, a := range AllowedExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

// Clean sanitizes name and checks its extension.
func Clean(name string) (string, error) {
	if !Allowed(name) {
		return "", &ExtensionError{Filename: name}
	}
	clean := utils.SecureFilename(name)
	if clean == "" || !Allowed(clean) {
		return "", ErrInvalidFilename
	}
	return clean, nil
}

// Save stores data under the sanitized form of name, replacing any file of
// the same name, and returns its path.
func (l *Library) Save(name string, data []byte) (*Entry, string, error) {
	clean, err := Clean(name)
	if err != nil {
		return nil, "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	path := filepath.Join(l.dir, clean)
	if err := utils.SafeWriteFile(path, data); err != nil {
		return nil, "", err
	}
	m, err := l.readManifest()
	if err != nil {
		return nil, "", err
	}
	e := &Entry{ID: uuid.NewString(), Filename: clean, UploadedAt: time.Now().UTC()}
	m.Files[clean] = e
	if err := l.writeManifest(m); err != nil {
		return nil, "", err
	}
	return e, path, nil
}

// Record stores what loading filename produced.
func (l *Library) Record(filename, table string, rows int, columns []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, err := l.readManifest()
	if err != nil {
		return err
	}
	e, ok := m.Files[filename]
	if !ok {
		e = &Entry{ID: uuid.NewString(), Filename: filename}
		m.Files[filename] = e
	}
	e.Table = table
	e.Rows = rows
	e.Columns = columns
	return l.writeManifest(m)
}

// Path resolves a stored file by name. The name is sanitized first so it
// cannot escape the library directory.
func (l *Library) Path(name string) (string, error) {
	clean := utils.SecureFilename(name)
	if clean == "" || !Allowed(clean) {
		return "", ErrNotFound
	}
	path := filepath.Join(l.dir, clean)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", ErrNotFound
	}
	return path, nil
}

// List returns the stored files with an accepted extension, sorted by name.
// Files copied into the directory by hand are listed with disk metadata only.
func (l *Library) List() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, err := l.readManifest()
	if err != nil {
		return nil, err
	}
	dirents, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	out := []Entry{}
	for _, d := range dirents {
		if d.IsDir() || !Allowed(d.Name()) {
			continue
		}
		info, err := d.Info()
		if err != nil {
			continue
		}
		e := Entry{Filename: d.Name()}
		if rec, ok := m.Files[d.Name()]; ok {
			e = *rec
		}
		e.Size = info.Size()
		e.Modified = float64(info.ModTime().UnixNano()) / 1e9
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out, nil
}

// Delete removes a stored file and its manifest entry. It returns the
// sanitized name that was removed.
func (l *Library) Delete(name string) (string, error) {
	path, err := l.Path(name)
	if err != nil {
		return "", err
	}
	clean := filepath.Base(path)

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("remove file: %w", err)
	}
	m, err := l.readManifest()
	if err != nil {
		return clean, err
	}
	if _, ok := m.Files[clean]; ok {
		delete(m.Files, clean)
		if err := l.writeManifest(m); err != nil {
			return clean, err
		}
	}
	return clean, nil
}

func (l *Library) readManifest() (*manifest, error) {
	m := &manifest{Files: map[string]*Entry{}}
	b, err := os.ReadFile(filepath.Join(l.dir, manifestFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return m, nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(b, m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Files == nil {
		m.Files = map[string]*Entry{}
	}
	return m, nil
}

func (l *Library) writeManifest(m *manifest) error {
	data, err := utils.PrettyJSON(m)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(filepath.Join(l.dir, manifestFileName), data)
}
