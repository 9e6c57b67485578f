// Package profile archives browser user-data directories so a restored
// session resumes with its cookies and storage.
package profile

import (
	"archive/tar"
	"compress/gzip"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNoProfile is returned by Load when nothing was saved for a token
var ErrNoProfile = errors.New("no saved profile")

// Files chrome holds locks on; restoring them blocks the next launch
var skipped = map[string]bool{
	"SingletonLock":   true,
	"SingletonSocket": true,
	"SingletonCookie": true,
}

// Store keeps one tar.gz archive per session token
type Store struct {
	root string
	mu   sync.Mutex
}

// NewStore creates the archive directory if it doesn't exist
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) path(token string) string {
	return filepath.Join(s.root, base64.RawURLEncoding.EncodeToString([]byte(token))+".tar.gz")
}

// Has reports whether a profile was saved for token
func (s *Store) Has(token string) bool {
	_, err := os.Stat(s.path(token))
	return err == nil
}

// Save archives userDataDir under token, replacing any earlier archive
func (s *Store) Save(token, userDataDir string) error {
	if userDataDir == "" {
		return fmt.Errorf("save profile %s: empty user data dir", token)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.path(token)
	tmp := target + ".tmp"
	if err := compress(userDataDir, tmp); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to archive profile: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to store profile: %w", err)
	}
	return nil
}

// Load extracts the profile saved for token into dest
func (s *Store) Load(token, dest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	source := s.path(token)
	if _, err := os.Stat(source); errors.Is(err, os.ErrNotExist) {
		return ErrNoProfile
	}
	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("failed to create profile target: %w", err)
	}
	if err := extract(source, dest); err != nil {
		return fmt.Errorf("failed to extract profile: %w", err)
	}
	return nil
}

func compress(source, target string) error {
	file, err := os.Create(target)
	if err != nil {
		return err
	}
	defer file.Close()

	gzWriter := gzip.NewWriter(file)
	tarWriter := tar.NewWriter(gzWriter)

	walkErr := filepath.Walk(source, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			// chrome may delete temp files while we walk
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if skipped[info.Name()] || !(info.IsDir() || info.Mode().IsRegular()) {
			return nil
		}

		relPath, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relPath)
		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.CopyN(tarWriter, f, header.Size)
		return err
	})
	if walkErr != nil {
		return walkErr
	}
	if err := tarWriter.Close(); err != nil {
		return err
	}
	return gzWriter.Close()
}

func extract(source, target string) error {
	file, err := os.Open(source)
	if err != nil {
		return err
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return err
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)
	root := filepath.Clean(target) + string(os.PathSeparator)

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		targetPath := filepath.Join(target, filepath.FromSlash(header.Name))
		if !strings.HasPrefix(targetPath, root) {
			return fmt.Errorf("archive entry %q escapes target", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(targetPath, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
				return err
			}
			outFile, err := os.OpenFile(targetPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(header.Mode)&0o777)
			if err != nil {
				return err
			}
			if _, err := io.Copy(outFile, tarReader); err != nil {
				outFile.Close()
				return err
			}
			if err := outFile.Close(); err != nil {
				return err
			}
		}
	}
}
