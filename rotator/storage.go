package rotator

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"
)

// Storage is the removable medium holding the images.
//
// Mount brings the medium up and returns its filesystem rooted at the
// directory that holds the images. It is called at the start of every
// session, so a swapped card is picked up. Unmount releases it.
type Storage interface {
	Mount() (afero.Fs, error)
	Unmount() error
}

// DirStorage serves images from a directory of the host filesystem, usually
// the mount point of an SD card.
type DirStorage struct {
	Root string
	fs   afero.Fs // backing filesystem, OS when nil
}

// Mount fails when Root is missing or not a directory, e.g. because the
// card is not inserted.
func (s *DirStorage) Mount() (afero.Fs, error) {
	base := s.fs
	if base == nil {
		base = afero.NewOsFs()
	}
	fi, err := base.Stat(s.Root)
	if err != nil {
		return nil, fmt.Errorf("rotator: storage unavailable: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("rotator: storage unavailable: %s is not a directory", s.Root)
	}
	return afero.NewReadOnlyFs(afero.NewBasePathFs(base, s.Root)), nil
}

// Unmount is a no-op; the directory stays mounted by the host.
func (*DirStorage) Unmount() error {
	return nil
}

// FsStorage serves images from an existing afero filesystem.
type FsStorage struct {
	Fs afero.Fs
	// Err, when set, is returned by Mount to simulate a failed medium.
	Err error
}

// Mount returns the filesystem.
func (s *FsStorage) Mount() (afero.Fs, error) {
	if s.Err != nil {
		return nil, fmt.Errorf("rotator: storage unavailable: %w", s.Err)
	}
	if s.Fs == nil {
		return nil, errors.New("rotator: storage unavailable: no filesystem")
	}
	return s.Fs, nil
}

// Unmount is a no-op.
func (*FsStorage) Unmount() error {
	return nil
}
