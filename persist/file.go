// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package persist

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// FileStore keeps the record in a file, replaced atomically on every save.
type FileStore struct {
	Path string
}

// NewFileStore returns a store writing to path.
func NewFileStore(path string) *FileStore { return &FileStore{Path: path} }

func (s *FileStore) Load() (*Config, error) {
	b, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "persist: read")
	}
	var c Config
	if err := c.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *FileStore) Save(c *Config) error {
	b, err := c.MarshalBinary()
	if err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(s.Path), filepath.Base(s.Path)+".*")
	if err != nil {
		return errors.Wrap(err, "persist: create temp file")
	}
	tmp := f.Name()
	if _, err = f.Write(b); err == nil {
		err = f.Sync()
	}
	if err2 := f.Close(); err == nil {
		err = err2
	}
	if err == nil {
		err = os.Rename(tmp, s.Path)
	}
	if err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "persist: write")
	}
	return nil
}
