// Package imagestore is the directory of captured face images shared by the
// capture, naming, crop, verify and gallery commands. Images are identified by
// file name.
package imagestore

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofrs/flock"
	"github.com/kozaktomas/face-registry/internal/database"
	"golang.org/x/image/bmp"
)

// Supported image extensions, lowercase.
var Extensions = []string{".jpg", ".jpeg", ".png", ".bmp"}

var (
	// ErrInvalidName is returned for names that are empty or would leave the directory.
	ErrInvalidName = errors.New("invalid image name")
	// ErrExists is returned when a rename or save target is taken.
	ErrExists = errors.New("image already exists")
	// ErrLocked is returned when another process holds the directory lock.
	ErrLocked = errors.New("image directory is locked by another process")
)

// Store is a directory of images.
type Store struct {
	dir string
}

// New returns a store rooted at dir. The directory is not created until Ensure.
func New(dir string) *Store {
	return &Store{dir: filepath.Clean(dir)}
}

// Dir returns the directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Ensure creates the directory if it does not exist.
func (s *Store) Ensure() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating image directory: %w", err)
	}
	return nil
}

// IsImage reports whether name has a supported image extension.
func IsImage(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// BaseName strips the extension: "alice.jpg" -> "alice".
func BaseName(name string) string {
	name = filepath.Base(name)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// List returns the image file names in byte order. Every call rereads the
// directory, so a listing can be restarted after files change.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading image directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && IsImage(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Path returns the full path of an image after validating its name.
func (s *Store) Path(name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name), nil
}

// Exists reports whether an image with this name is present.
func (s *Store) Exists(name string) bool {
	p, err := s.Path(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Load decodes an image.
func (s *Store) Load(name string) (image.Image, error) {
	p, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	return LoadFile(p)
}

// LoadFile decodes an image at any path.
func LoadFile(path string) (image.Image, error) {
	f, err := os.Open(path) //nolint:gosec // path is chosen by the operator
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// ReadFile returns the raw bytes of an image.
func (s *Store) ReadFile(name string) ([]byte, error) {
	p, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}

// Save encodes img in the format given by the name's extension, replacing any existing file.
func (s *Store) Save(name string, img image.Image) error {
	p, err := s.Path(name)
	if err != nil {
		return err
	}
	if !IsImage(name) {
		return fmt.Errorf("%w: unsupported extension %q", ErrInvalidName, filepath.Ext(name))
	}

	tmp := p + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating image file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		err = png.Encode(f, img)
	case ".bmp":
		err = bmp.Encode(f, img)
	default:
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 95})
	}
	if err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("closing image file: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("replacing %s: %w", name, err)
	}
	return nil
}

// Delete removes an image.
func (s *Store) Delete(name string) error {
	p, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return fmt.Errorf("deleting %s: %w", name, err)
	}
	return nil
}

// Rename gives an image a new base name, keeping its extension, and returns the new file name.
func (s *Store) Rename(name, newBase string) (string, error) {
	from, err := s.Path(name)
	if err != nil {
		return "", err
	}
	newName := newBase + filepath.Ext(name)
	to, err := s.Path(newName)
	if err != nil {
		return "", err
	}
	if newName == name {
		return name, nil
	}
	if _, err := os.Stat(to); err == nil {
		return "", fmt.Errorf("%w: %s", ErrExists, newName)
	}
	if err := os.Rename(from, to); err != nil {
		return "", fmt.Errorf("renaming %s: %w", name, err)
	}
	return newName, nil
}

// NextCaptureName returns the first face_<n>.jpg, counting from 0, that does not exist yet.
func (s *Store) NextCaptureName() string {
	for n := 0; ; n++ {
		name := fmt.Sprintf("%s%d.jpg", database.SynthesizedPrefix, n)
		if !s.Exists(name) {
			return name
		}
	}
}

// Lock takes an exclusive, non-blocking lock on <dir>.lock. The returned
// function releases it.
func (s *Store) Lock() (func(), error) {
	lockPath := s.dir + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return func() {}, fmt.Errorf("creating lock directory: %w", err)
	}

	l := flock.New(lockPath)
	locked, err := l.TryLock()
	if err != nil {
		return func() {}, fmt.Errorf("cannot acquire image directory lock: %w", err)
	}
	if !locked {
		return func() {}, fmt.Errorf("%w (lock: %s)", ErrLocked, lockPath)
	}
	return func() { _ = l.Unlock() }, nil
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || name != filepath.Base(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
