//
// Copyright (c) 2025 NAV (Norwegian Labour and Welfare Administration)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package toolcache

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	log "github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz"
)

const (
	// maxArchiveBytes is the maximum total number of bytes that can be written across all extracted archive entries.
	maxArchiveBytes int64 = 1 << 30
	// maxArchiveFileBytes is the maximum size in bytes permitted for a single extracted archive entry.
	maxArchiveFileBytes int64 = 512 << 20
)

// Compression identifies the compression wrapped around a tar stream.
type Compression int

const (
	// CompressionNone is a bare tar stream.
	CompressionNone Compression = iota
	// CompressionGzip is a gzip-compressed tar stream.
	CompressionGzip
	// CompressionXz is an xz-compressed tar stream.
	CompressionXz
	// CompressionZstd is a zstd-compressed tar stream.
	CompressionZstd
	// CompressionBzip2 is a bzip2-compressed tar stream.
	CompressionBzip2
)

// String returns the string representation of the compression.
func (compression Compression) String() string {
	switch compression {
	case CompressionGzip:
		return "gzip"
	case CompressionXz:
		return "xz"
	case CompressionZstd:
		return "zstd"
	case CompressionBzip2:
		return "bzip2"
	default:
		return "none"
	}
}

// Magic numbers of the supported compression formats.
var (
	gzipMagic  = []byte{0x1f, 0x8b}
	xzMagic    = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	zstdMagic  = []byte{0x28, 0xb5, 0x2f, 0xfd}
	bzip2Magic = []byte{'B', 'Z', 'h'}
)

var (
	// errTarEntryTooLarge indicates a single tar entry exceeds the allowed maximum size.
	errTarEntryTooLarge = errors.New("tar entry too large")
	// errInvalidArchiveFilePath is returned when a tar entry would escape the extraction directory.
	errInvalidArchiveFilePath = errors.New("invalid file path in tar archive")
	// errLimitedArchiveWriterTotalIsNil indicates the shared total counter was not provided.
	errLimitedArchiveWriterTotalIsNil = errors.New("limitedArchiveWriter total counter is nil")
	// errInvalidArchiveSizeLimits indicates the configured archive size limits are invalid.
	errInvalidArchiveSizeLimits = errors.New("invalid archive size limits")
	// errArchiveSizeLimitExceeded indicates an archive exceeded one of the configured size limits.
	errArchiveSizeLimitExceeded = errors.New("archive size limit exceeded")
)

type (
	// Extractor unpacks tar archives into fresh directories under a temp directory.
	Extractor struct {
		logger  log.FieldLogger
		tempDir string
	}

	// limitedArchiveWriter is a writer that limits the total size of the archive.
	limitedArchiveWriter struct {
		w        io.Writer
		total    *int64
		maxTotal int64
		maxFile  int64
		written  int64
	}

	// contextReader fails reads once its context is done.
	contextReader struct {
		ctx    context.Context //nolint:containedctx // scoped to a single extraction
		reader io.Reader
	}
)

// NewExtractor creates an Extractor writing under tempDir.
func NewExtractor(tempDir string, logger log.FieldLogger) *Extractor {
	if logger == nil {
		logger = log.StandardLogger()
	}

	return &Extractor{tempDir: tempDir, logger: logger}
}

// ExtractTar extracts the tar archive at archivePath into a new directory and
// returns that directory. The compression is detected from the leading bytes.
func (extractor *Extractor) ExtractTar(ctx context.Context, archivePath string) (string, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("opening archive: %w", err)
	}
	defer file.Close()

	buffered := bufio.NewReader(&contextReader{ctx: ctx, reader: file})

	compression, err := DetectCompression(buffered)
	if err != nil {
		return "", err
	}

	extractor.logger.Debugf("Extracting %s archive %s", compression, archivePath)

	stream, closeStream, err := decompress(buffered, compression)
	if err != nil {
		return "", err
	}
	defer closeStream()

	destDir := filepath.Join(extractor.tempDir, uuid.NewString())
	if err := os.MkdirAll(destDir, DirectoryPermission); err != nil {
		return "", fmt.Errorf("creating directory %s: %w", destDir, err)
	}

	if err := extractTarEntries(tar.NewReader(stream), destDir); err != nil {
		os.RemoveAll(destDir)
		return "", err
	}

	return destDir, nil
}

// DetectCompression sniffs the compression of a stream without consuming it.
func DetectCompression(reader *bufio.Reader) (Compression, error) {
	header, err := reader.Peek(len(xzMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return CompressionNone, fmt.Errorf("reading archive header: %w", err)
	}

	switch {
	case bytes.HasPrefix(header, gzipMagic):
		return CompressionGzip, nil
	case bytes.HasPrefix(header, xzMagic):
		return CompressionXz, nil
	case bytes.HasPrefix(header, zstdMagic):
		return CompressionZstd, nil
	case bytes.HasPrefix(header, bzip2Magic):
		return CompressionBzip2, nil
	default:
		return CompressionNone, nil
	}
}

// decompress wraps reader in the decoder for compression.
func decompress(reader io.Reader, compression Compression) (io.Reader, func(), error) {
	switch compression {
	case CompressionGzip:
		gzr, err := gzip.NewReader(reader)
		if err != nil {
			return nil, nil, fmt.Errorf("creating gzip reader: %w", err)
		}

		return gzr, func() { gzr.Close() }, nil

	case CompressionXz:
		xzr, err := xz.NewReader(reader)
		if err != nil {
			return nil, nil, fmt.Errorf("creating xz reader: %w", err)
		}

		return xzr, func() {}, nil

	case CompressionZstd:
		zr, err := zstd.NewReader(reader)
		if err != nil {
			return nil, nil, fmt.Errorf("creating zstd reader: %w", err)
		}

		return zr, zr.Close, nil

	case CompressionBzip2:
		return bzip2.NewReader(reader), func() {}, nil

	default:
		return reader, func() {}, nil
	}
}

// extractTarEntries extracts all entries from a tar reader to the destination
// directory. Every write goes through an os.Root opened on destDir, so symlinks
// created by earlier entries cannot redirect later ones outside of it.
func extractTarEntries(tr *tar.Reader, destDir string) error {
	var totalWritten int64

	cleanDestDir := filepath.Clean(destDir)

	root, err := os.OpenRoot(cleanDestDir)
	if err != nil {
		return fmt.Errorf("opening directory %s: %w", cleanDestDir, err)
	}
	defer root.Close()

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}

		if err != nil {
			return fmt.Errorf("reading tar: %w", err)
		}

		target := filepath.Join(cleanDestDir, filepath.Clean(header.Name))
		if !isPathWithinDir(target, cleanDestDir) {
			return fmt.Errorf("%w: %s", errInvalidArchiveFilePath, header.Name)
		}

		name, err := filepath.Rel(cleanDestDir, target)
		if err != nil {
			return fmt.Errorf("%w: %s", errInvalidArchiveFilePath, header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := root.MkdirAll(name, header.FileInfo().Mode().Perm()); err != nil {
				return fmt.Errorf("creating directory %s: %w", target, err)
			}

		case tar.TypeReg:
			if header.Size > maxArchiveFileBytes {
				return fmt.Errorf("%w: %d bytes", errTarEntryTooLarge, header.Size)
			}

			if err := root.MkdirAll(filepath.Dir(name), DirectoryPermission); err != nil {
				return fmt.Errorf("creating parent directory: %w", err)
			}

			outFile, err := root.OpenFile(name, os.O_CREATE|os.O_RDWR|os.O_TRUNC, header.FileInfo().Mode())
			if err != nil {
				return fmt.Errorf("creating file %s: %w", target, err)
			}

			lw := &limitedArchiveWriter{
				w:        outFile,
				total:    &totalWritten,
				maxTotal: maxArchiveBytes,
				maxFile:  maxArchiveFileBytes,
			}

			if _, err := io.Copy(lw, tr); err != nil {
				outFile.Close()
				return fmt.Errorf("writing file %s: %w", target, err)
			}

			outFile.Close()

		case tar.TypeSymlink:
			linkTarget := filepath.Join(filepath.Dir(target), header.Linkname)
			if filepath.IsAbs(header.Linkname) || !isPathWithinDir(linkTarget, cleanDestDir) {
				return fmt.Errorf("%w: %s -> %s", errInvalidArchiveFilePath, header.Name, header.Linkname)
			}

			if err := root.MkdirAll(filepath.Dir(name), DirectoryPermission); err != nil {
				return fmt.Errorf("creating parent directory: %w", err)
			}

			if err := root.Symlink(header.Linkname, name); err != nil {
				return fmt.Errorf("creating symlink %s: %w", target, err)
			}
		}
	}

	return nil
}

// Read implements io.Reader.
func (reader *contextReader) Read(buff []byte) (int, error) {
	if err := reader.ctx.Err(); err != nil {
		return 0, err
	}

	return reader.reader.Read(buff)
}

// Write implements io.Writer.
func (writer *limitedArchiveWriter) Write(buff []byte) (int, error) {
	if writer.total == nil {
		return 0, errLimitedArchiveWriterTotalIsNil
	}

	if writer.maxFile <= 0 || writer.maxTotal <= 0 {
		return 0, errInvalidArchiveSizeLimits
	}

	remainingFile := writer.maxFile - writer.written

	remainingTotal := writer.maxTotal - *writer.total
	if remainingFile <= 0 || remainingTotal <= 0 {
		return 0, errArchiveSizeLimitExceeded
	}

	toWrite := min(min(int64(len(buff)), remainingFile), remainingTotal)

	numBytes, err := writer.w.Write(buff[:toWrite])

	writer.written += int64(numBytes)
	*writer.total += int64(numBytes)

	if err != nil {
		return numBytes, err
	}

	if int64(numBytes) < int64(len(buff)) {
		return numBytes, errArchiveSizeLimitExceeded
	}

	return numBytes, nil
}

// isPathWithinDir checks if the path is within the directory.
func isPathWithinDir(path, dir string) bool {
	cleanDir := filepath.Clean(dir)
	cleanPath := filepath.Clean(path)

	if cleanDir == cleanPath {
		return true
	}

	return strings.HasPrefix(cleanPath, cleanDir+string(os.PathSeparator))
}
