package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// corpus is the concatenation of one or more input files.
type corpus struct {
	io.Reader
	files []*os.File
	size  int64
}

// openCorpus opens every path up front so that a missing or unreadable file
// is reported before any model is built. Files are joined with a newline so
// the last word of one file never fuses with the first word of the next.
func openCorpus(paths []string) (*corpus, error) {
	if len(paths) == 0 {
		return nil, errors.New("no input files given")
	}

	c := &corpus{}
	readers := make([]io.Reader, 0, 2*len(paths))
	for i, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to open corpus file: %w", err)
		}
		c.files = append(c.files, f)

		info, err := f.Stat()
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to stat corpus file %s: %w", path, err)
		}
		if info.IsDir() {
			_ = c.Close()
			return nil, fmt.Errorf("corpus path %s is a directory", path)
		}
		c.size += info.Size()

		if i > 0 {
			readers = append(readers, strings.NewReader("\n"))
		}
		readers = append(readers, f)
	}
	c.Reader = io.MultiReader(readers...)
	return c, nil
}

// Close closes every underlying file.
func (c *corpus) Close() error {
	var errs []error
	for _, f := range c.files {
		errs = append(errs, f.Close())
	}
	return errors.Join(errs...)
}
