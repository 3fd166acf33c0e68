// Package fs collects local files for upload into a scene.
package fs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalFile is a regular file found by Collect.
type LocalFile struct {
	// Path is the file's location on disk.
	Path string
	// Name is the slash separated path relative to the collected root,
	// used as the scene file name.
	Name string
	Size int64
}

// Collect lists the regular files to upload from root.
//
// A file root yields itself under its base name. For a directory root the
// names are relative to the directory, and the patterns of its ignore file
// apply. Without recursive only the top level of the directory is listed.
// Symlinks, devices, pipes and sockets are skipped.
func Collect(root string, recursive bool) ([]LocalFile, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("not a regular file: %s", root)
		}
		return []LocalFile{{Path: root, Name: filepath.Base(root), Size: info.Size()}}, nil
	}

	lines, err := ReadIgnoreFile(filepath.Join(root, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	matcher := NewIgnoreMatcher(lines)

	var files []LocalFile
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if !recursive || matcher.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || matcher.Match(rel, false) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		files = append(files, LocalFile{Path: p, Name: rel, Size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return files, nil
}
