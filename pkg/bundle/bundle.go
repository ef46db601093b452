// Package bundle reads and writes the single-file archives used to ship a
// precomputed LUT set.
package bundle

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

const (
	bundleMagic   = "Atmosphere LUTs"
	bundleVersion = 0x100
	headerSize    = 46
	entryFixed    = 13
)

// Entry flags.
const (
	FlagFile uint8 = 0x01
	// FlagStored marks an entry kept uncompressed.
	FlagStored uint8 = 0x02
)

// Bundle errors.
var (
	ErrInvalidMagic       = errors.New("invalid bundle magic")
	ErrUnsupportedVersion = errors.New("unsupported bundle version")
	ErrNotFound           = errors.New("file not found")
	ErrDuplicateEntry     = errors.New("duplicate entry")
	ErrCorruptEntry       = errors.New("corrupt entry")
)

// Header contains bundle file header information.
type Header struct {
	Magic       [15]byte
	Reserved    [15]byte
	TableOffset uint32
	Flags       uint32
	FileCount   uint32
	Version     uint32
}

// Entry represents a file entry in the bundle.
type Entry struct {
	Name             string
	CompressedSize   uint32
	UncompressedSize uint32
	Flags            uint8
	Offset           uint32
}

// Archive represents an opened bundle.
type Archive struct {
	file     *os.File
	size     int64
	header   Header
	fileList map[string]*Entry
}

// Open opens a bundle for reading. Reads are safe for concurrent use.
func Open(path string) (*Archive, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat: %w", err)
	}

	archive := &Archive{
		file:     file,
		size:     info.Size(),
		fileList: make(map[string]*Entry),
	}

	if err := archive.readHeader(); err != nil {
		file.Close()
		return nil, fmt.Errorf("reading header: %w", err)
	}

	if err := archive.readFileTable(); err != nil {
		file.Close()
		return nil, fmt.Errorf("reading file table: %w", err)
	}

	return archive, nil
}

// Close closes the bundle.
func (a *Archive) Close() error {
	if a.file != nil {
		return a.file.Close()
	}
	return nil
}

// Header returns the parsed header.
func (a *Archive) Header() Header {
	return a.header
}

func (a *Archive) readHeader() error {
	r := io.NewSectionReader(a.file, 0, headerSize)
	if err := binary.Read(r, binary.LittleEndian, &a.header); err != nil {
		return fmt.Errorf("reading header: %w", err)
	}

	if string(a.header.Magic[:]) != bundleMagic {
		return ErrInvalidMagic
	}

	if a.header.Version != bundleVersion {
		return fmt.Errorf("%w: 0x%x", ErrUnsupportedVersion, a.header.Version)
	}

	return nil
}

func (a *Archive) readFileTable() error {
	tableOffset := int64(a.header.TableOffset) + headerSize

	var sizes [8]byte
	if _, err := a.file.ReadAt(sizes[:], tableOffset); err != nil {
		return fmt.Errorf("reading table sizes: %w", err)
	}
	compressedSize := binary.LittleEndian.Uint32(sizes[0:])
	uncompressedSize := binary.LittleEndian.Uint32(sizes[4:])

	compressedData, err := a.readRange(tableOffset+8, compressedSize)
	if err != nil {
		return fmt.Errorf("reading table: %w", err)
	}
	tableData, err := inflate(compressedData, uncompressedSize)
	if err != nil {
		return fmt.Errorf("decompressing table: %w", err)
	}

	offset := 0
	for i := uint32(0); i < a.header.FileCount; i++ {
		nameEnd := bytes.IndexByte(tableData[offset:], 0)
		if nameEnd < 0 {
			return fmt.Errorf("%w: unterminated name in entry %d", ErrCorruptEntry, i)
		}
		name := string(tableData[offset : offset+nameEnd])
		offset += nameEnd + 1

		if offset+entryFixed > len(tableData) {
			return fmt.Errorf("%w: entry %d truncated", ErrCorruptEntry, i)
		}

		entry := &Entry{
			Name:             normalizePath(name),
			CompressedSize:   binary.LittleEndian.Uint32(tableData[offset:]),
			UncompressedSize: binary.LittleEndian.Uint32(tableData[offset+4:]),
			Flags:            tableData[offset+8],
			Offset:           binary.LittleEndian.Uint32(tableData[offset+9:]),
		}
		offset += entryFixed

		if entry.Flags&FlagFile != 0 {
			a.fileList[entry.Name] = entry
		}
	}

	return nil
}

// List returns all file paths in the bundle, sorted.
func (a *Archive) List() []string {
	result := make([]string, 0, len(a.fileList))
	for path := range a.fileList {
		result = append(result, path)
	}
	sort.Strings(result)
	return result
}

// Contains checks if a file exists.
func (a *Archive) Contains(path string) bool {
	_, ok := a.fileList[normalizePath(path)]
	return ok
}

// Stat returns the entry for a file.
func (a *Archive) Stat(path string) (Entry, error) {
	entry, ok := a.fileList[normalizePath(path)]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return *entry, nil
}

// Read reads a file from the bundle.
func (a *Archive) Read(path string) ([]byte, error) {
	entry, ok := a.fileList[normalizePath(path)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	data, err := a.readRange(int64(entry.Offset)+headerSize, entry.CompressedSize)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", entry.Name, err)
	}

	if entry.Flags&FlagStored != 0 {
		if entry.CompressedSize != entry.UncompressedSize {
			return nil, fmt.Errorf("%w: %s stored with mismatched sizes", ErrCorruptEntry, entry.Name)
		}
		return data, nil
	}

	result, err := inflate(data, entry.UncompressedSize)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", entry.Name, err)
	}
	return result, nil
}

// readRange reads size bytes at off. Ranges past the end of the file are
// rejected before anything is allocated.
func (a *Archive) readRange(off int64, size uint32) ([]byte, error) {
	if off < 0 || off > a.size || int64(size) > a.size-off {
		return nil, fmt.Errorf("%w: %d bytes at %d beyond file size %d", ErrCorruptEntry, size, off, a.size)
	}
	data := make([]byte, size)
	if _, err := a.file.ReadAt(data, off); err != nil {
		return nil, err
	}
	return data, nil
}

// inflate decompresses data that must expand to exactly size bytes. The
// output grows with the decompressed stream, not with the declared size.
func inflate(data []byte, size uint32) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	defer reader.Close()

	result, err := io.ReadAll(io.LimitReader(reader, int64(size)+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	if len(result) != int(size) {
		return nil, fmt.Errorf("%w: inflated to %d bytes, expected %d", ErrCorruptEntry, len(result), size)
	}
	return result, nil
}

func normalizePath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.TrimPrefix(path, "/")
	return strings.ToLower(path)
}
