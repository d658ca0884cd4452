// Package rotator selects the next image to show from a directory.
//
// The rotation order is the byte-wise order of file names. It is never
// stored: every call scans the whole directory once and keeps only the name
// of the last image returned, so files may be added, removed or renamed, or
// the card swapped, between calls without leaving a stale order behind.
package rotator

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// MaxNameLength bounds the cursor and the names taking part in rotation.
const MaxNameLength = 255

// ErrNoImage is returned when the directory holds no suitable image.
var ErrNoImage = errors.New("rotator: no suitable image")

const readdirBatch = 64

// Opts is the configuration of a Rotator.
type Opts struct {
	// ImageSize is the exact size of a suitable file (default: 600*448/2).
	ImageSize int64
	// SystemDir holds auxiliary images outside the rotation (default: "system").
	SystemDir string
	// Start seeds the cursor, e.g. with the last name shown by a previous run.
	// It must be a plain file name in the image directory; anything else,
	// including a path into SystemDir, is ignored.
	Start string
}

// Rotator keeps the rotation cursor: the name of the last image returned.
//
// The cursor only lives in memory.
type Rotator struct {
	storage   Storage
	imageSize int64
	systemDir string

	// bus is held for the span of a Session.
	bus sync.Mutex

	mu     sync.Mutex
	cursor string
}

// New returns a Rotator over s. opts can be nil to use defaults.
func New(s Storage, opts *Opts) *Rotator {
	if opts == nil {
		opts = &Opts{}
	}
	r := &Rotator{
		storage:   s,
		imageSize: opts.ImageSize,
		systemDir: opts.SystemDir,
	}
	if start := truncate(opts.Start); start != "" {
		if validName(start) && !strings.HasPrefix(start, ".") {
			r.cursor = start
		} else {
			log.Warn().Str("start", start).Msg("ignoring invalid rotation seed")
		}
	}
	if r.imageSize <= 0 {
		r.imageSize = 600 * 448 / 2
	}
	if r.systemDir == "" {
		r.systemDir = "system"
	}
	return r
}

// Cursor returns the name of the last image returned, or "". It is safe to
// call while a Session is open.
func (r *Rotator) Cursor() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

func (r *Rotator) setCursor(name string) {
	r.mu.Lock()
	r.cursor = name
	r.mu.Unlock()
}

// ImageSize returns the size a file must have to take part in rotation.
func (r *Rotator) ImageSize() int64 {
	return r.imageSize
}

// Begin takes the storage bus and mounts the medium.
//
// The returned Session must be closed; files it returned stay readable until
// then. Begin blocks while another session is open.
func (r *Rotator) Begin() (*Session, error) {
	r.bus.Lock()
	fs, err := r.storage.Mount()
	if err != nil {
		r.bus.Unlock()
		return nil, err
	}
	return &Session{r: r, fs: fs}, nil
}

// Session is exclusive use of the storage bus.
type Session struct {
	r      *Rotator
	fs     afero.Fs
	closed bool
}

// Close unmounts the medium and releases the storage bus.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.r.bus.Unlock()
	return s.r.storage.Unmount()
}

// NextImage advances the cursor to the next suitable image, wrapping to the
// first one after the last, and opens it.
//
// When no suitable image exists the cursor is emptied and ErrNoImage is
// returned.
func (s *Session) NextImage() (afero.File, error) {
	if s.closed {
		return nil, errors.New("rotator: session closed")
	}
	cursor := s.r.Cursor()
	first, next, err := s.scan(cursor)
	if err != nil {
		return nil, err
	}

	name := next
	if name == "" {
		name = first
	}
	if name == "" {
		log.Debug().Str("cursor", cursor).Msg("no suitable image")
		s.r.setCursor("")
		return nil, ErrNoImage
	}

	f, err := s.fs.Open(path.Join("/", name))
	if err != nil {
		return nil, fmt.Errorf("rotator: failed to open %s: %w", name, err)
	}
	log.Debug().Str("from", cursor).Str("to", name).Bool("wrapped", next == "").Msg("next image")
	s.r.setCursor(name)
	return f, nil
}

// CurrentImage opens the image under the cursor. If it is gone, it behaves
// exactly as NextImage. The cursor is left alone on success.
func (s *Session) CurrentImage() (afero.File, error) {
	if s.closed {
		return nil, errors.New("rotator: session closed")
	}
	if cursor := s.r.Cursor(); cursor != "" {
		f, err := s.fs.Open(path.Join("/", cursor))
		if err == nil {
			return f, nil
		}
		log.Debug().Err(err).Str("cursor", cursor).Msg("current image unavailable")
	}
	return s.NextImage()
}

// SystemImage opens a named image from the system directory. It is not size
// checked and does not touch the cursor.
func (s *Session) SystemImage(name string) (afero.File, error) {
	if s.closed {
		return nil, errors.New("rotator: session closed")
	}
	if !validName(name) {
		return nil, fmt.Errorf("rotator: invalid system image name %q", name)
	}
	f, err := s.fs.Open(path.Join("/", s.r.systemDir, name))
	if err != nil {
		return nil, fmt.Errorf("rotator: failed to open system image %s: %w", name, err)
	}
	return f, nil
}

// scan reads the root directory once and returns the smallest suitable name
// and the smallest suitable name after cursor. Either is "" when none exists.
func (s *Session) scan(cursor string) (first, next string, err error) {
	root, err := s.fs.Open("/")
	if err != nil {
		return "", "", fmt.Errorf("rotator: failed to open root: %w", err)
	}
	defer root.Close()

	for {
		entries, err := root.Readdir(readdirBatch)
		for _, fi := range entries {
			if !s.suitable(fi) {
				continue
			}
			name := fi.Name()
			if first == "" || name < first {
				first = name
			}
			if name > cursor && (next == "" || name < next) {
				next = name
			}
		}
		if err == io.EOF || (err == nil && len(entries) == 0) {
			return first, next, nil
		}
		if err != nil {
			return "", "", fmt.Errorf("rotator: failed to read root: %w", err)
		}
	}
}

// suitable reports whether fi takes part in rotation.
func (s *Session) suitable(fi os.FileInfo) bool {
	name := fi.Name()
	return fi.Mode().IsRegular() &&
		!strings.HasPrefix(name, ".") &&
		len(name) <= MaxNameLength &&
		fi.Size() == s.r.imageSize
}

// validName reports whether name is a single path element.
func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

func truncate(name string) string {
	if len(name) > MaxNameLength {
		return name[:MaxNameLength]
	}
	return name
}
