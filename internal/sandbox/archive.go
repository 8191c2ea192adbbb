package sandbox

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// BuildTarFromFS walks root and tars every regular file under it,
// rooted at arcname, matching _compress_sandbox_files's
// tar.add("/exec/sandbox", arcname="sandbox") shape.
func BuildTarFromFS(filesystem fs.FS, root, arcname string) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	err := fs.WalkDir(filesystem, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		data, err := fs.ReadFile(filesystem, p)
		if err != nil {
			return err
		}
		name := p
		if root != "." {
			name = strings.TrimPrefix(strings.TrimPrefix(p, root), "/")
		}
		rel := path.Join(arcname, name)
		if err := tw.WriteHeader(&tar.Header{
			Name: rel,
			Mode: 0o555,
			Size: int64(len(data)),
		}); err != nil {
			return err
		}
		_, err = tw.Write(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

// SubmissionSource resolves a validated hex submission hash to the set
// of files that make up its archive, read from wherever the
// out-of-scope persistence layer put them on the host's repo path.
type SubmissionSource interface {
	Files(ctx context.Context, hash string) (map[string][]byte, error)
}

// FSSubmissionSource reads submission archives from baseDir/<hash>/ on
// the local filesystem, the well-known host repo path §4.2 assumes.
type FSSubmissionSource struct {
	BaseDir string
}

// Files walks baseDir/hash and returns every regular file it contains,
// keyed by its path relative to that directory.
func (f FSSubmissionSource) Files(ctx context.Context, hash string) (map[string][]byte, error) {
	if !hexOnly.MatchString(hash) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSubmission, hash)
	}

	root := filepath.Join(f.BaseDir, hash)
	files := map[string][]byte{}
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		data, readErr := os.ReadFile(p)
		if readErr != nil {
			return readErr
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return relErr
		}
		files[filepath.ToSlash(rel)] = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading submission archive %s: %w", hash, err)
	}
	return files, nil
}

// BuildSubmissionArchive tars a single submission source tree and adds
// the importable __init__.py marker provisioning step 3 requires.
func BuildSubmissionArchive(files map[string][]byte) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	write := func(name string, data []byte) error {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o555, Size: int64(len(data))}); err != nil {
			return err
		}
		_, err := tw.Write(data)
		return err
	}

	if _, ok := files["__init__.py"]; !ok {
		if err := write("__init__.py", nil); err != nil {
			return nil, err
		}
	}
	for name, data := range files {
		if err := write(name, data); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}
