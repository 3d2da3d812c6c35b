package backup

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ArchiveInfo contains metadata about a created archive
type ArchiveInfo struct {
	Filename    string
	Path        string
	SizeBytes   int64
	CreatedAt   time.Time
	Paths       []string
	FileCount   int
	Compression CompressionConfig
}

// CreateArchive writes a tar archive of paths, relative to root, into
// stagingDir as name plus the compression's extension. Entries keep their
// root-relative names.
func CreateArchive(root string, paths, exclude []string, stagingDir, name string, compression CompressionConfig) (*ArchiveInfo, error) {
	compression = normalizeCompression(compression)

	for _, p := range paths {
		if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(p))); err != nil {
			return nil, fmt.Errorf("directory or file does not exist: %s", p)
		}
	}
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	filename := name + "." + compressionArchiveExtension(compression)
	archivePath := filepath.Join(stagingDir, filename)

	log.Printf("[Archive] Creating archive %s from %v in %s", filename, paths, root)

	file, err := os.Create(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}

	count, err := writeArchive(file, root, paths, exclude, compression)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(archivePath)
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}

	stat, err := os.Stat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to get archive size: %w", err)
	}

	info := &ArchiveInfo{
		Filename:    filename,
		Path:        archivePath,
		SizeBytes:   stat.Size(),
		CreatedAt:   time.Now(),
		Paths:       paths,
		FileCount:   count,
		Compression: compression,
	}
	log.Printf("[Archive] Archive created successfully: %s (size: %d bytes, files: %d)",
		filename, info.SizeBytes, count)
	return info, nil
}

func writeArchive(w io.Writer, root string, paths, exclude []string, compression CompressionConfig) (int, error) {
	var gz *gzip.Writer
	if compression.Type == "gzip" {
		var err error
		gz, err = gzip.NewWriterLevel(w, compression.Level)
		if err != nil {
			return 0, err
		}
		w = gz
	}
	tw := tar.NewWriter(w)

	count := 0
	for _, p := range paths {
		start := filepath.Join(root, filepath.FromSlash(p))
		err := filepath.WalkDir(start, func(current string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(root, current)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			if excluded(rel, exclude) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			// the running server holds session.lock open
			if d.Name() == "session.lock" {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				return err
			}
			if !info.Mode().IsRegular() && !info.IsDir() {
				return nil
			}
			header, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			header.Name = rel
			if info.IsDir() {
				header.Name += "/"
			}
			if err := tw.WriteHeader(header); err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}

			f, err := os.Open(current)
			if err != nil {
				return err
			}
			_, err = io.CopyN(tw, f, header.Size)
			f.Close()
			if err != nil {
				return fmt.Errorf("%s: %w", rel, err)
			}
			count++
			return nil
		})
		if err != nil {
			return count, err
		}
	}

	if err := tw.Close(); err != nil {
		return count, err
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return count, err
		}
	}
	return count, nil
}

// ExtractArchive unpacks an archive into destination. Entries that would land
// outside destination are rejected.
func ExtractArchive(archivePath, destination string) error {
	log.Printf("[Archive] Extracting archive %s to %s", archivePath, destination)

	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	tr, closer, err := openTar(file, detectCompressionFromFilename(archivePath))
	if err != nil {
		return err
	}
	defer closer()

	if err := os.MkdirAll(destination, 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}

		target, err := safeJoin(destination, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, header.FileInfo().Mode().Perm())
			if err != nil {
				return err
			}
			_, err = io.Copy(out, tr)
			if closeErr := out.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				return fmt.Errorf("failed to extract %s: %w", header.Name, err)
			}
			os.Chtimes(target, header.ModTime, header.ModTime)
		default:
			log.Printf("[Archive] Skipping unsupported entry %s", header.Name)
		}
	}

	log.Printf("[Archive] Archive extracted successfully to %s", destination)
	return nil
}

// ListArchiveContents lists the entry names of an archive
func ListArchiveContents(archivePath string) ([]string, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	tr, closer, err := openTar(file, detectCompressionFromFilename(archivePath))
	if err != nil {
		return nil, err
	}
	defer closer()

	var names []string
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return names, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list archive contents: %w", err)
		}
		names = append(names, header.Name)
	}
}

func openTar(r io.Reader, compression CompressionConfig) (*tar.Reader, func(), error) {
	if normalizeCompression(compression).Type != "gzip" {
		return tar.NewReader(r), func() {}, nil
	}
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	return tar.NewReader(gz), func() { gz.Close() }, nil
}

func safeJoin(root, name string) (string, error) {
	clean := path.Clean("/" + strings.TrimPrefix(name, "./"))
	if clean == "/" {
		return root, nil
	}
	target := filepath.Join(root, filepath.FromSlash(clean))
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive entry %q escapes the destination", name)
	}
	return target, nil
}
