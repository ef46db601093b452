package bundle

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

// ErrWriterClosed is returned by Add after Close.
var ErrWriterClosed = errors.New("bundle writer closed")

// Writer creates a bundle. Entries are compressed as they are added and the
// file table is written by Close.
type Writer struct {
	file    *os.File
	entries []Entry
	names   map[string]bool
	offset  uint32
	closed  bool
}

// Create creates or truncates a bundle at path.
func Create(path string) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}

	// Header placeholder, rewritten by Close.
	if _, err := file.Write(make([]byte, headerSize)); err != nil {
		file.Close()
		return nil, fmt.Errorf("writing header: %w", err)
	}

	return &Writer{file: file, names: make(map[string]bool)}, nil
}

// Add compresses data and appends it under name. Entries that do not shrink
// are stored uncompressed.
func (w *Writer) Add(name string, data []byte) error {
	if w.closed {
		return ErrWriterClosed
	}
	name = normalizePath(name)
	if w.names[name] {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, name)
	}

	payload, err := compress(data)
	if err != nil {
		return fmt.Errorf("compressing %s: %w", name, err)
	}
	flags := FlagFile
	if len(payload) >= len(data) {
		payload = data
		flags |= FlagStored
	}

	if _, err := w.file.Write(payload); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}

	w.entries = append(w.entries, Entry{
		Name:             name,
		CompressedSize:   uint32(len(payload)),
		UncompressedSize: uint32(len(data)),
		Flags:            flags,
		Offset:           w.offset,
	})
	w.names[name] = true
	w.offset += uint32(len(payload))
	return nil
}

// Close writes the file table and header and closes the file.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.finish(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

func (w *Writer) finish() error {
	table := new(bytes.Buffer)
	var fixed [entryFixed]byte
	for _, e := range w.entries {
		table.WriteString(e.Name)
		table.WriteByte(0)
		binary.LittleEndian.PutUint32(fixed[0:], e.CompressedSize)
		binary.LittleEndian.PutUint32(fixed[4:], e.UncompressedSize)
		fixed[8] = e.Flags
		binary.LittleEndian.PutUint32(fixed[9:], e.Offset)
		table.Write(fixed[:])
	}

	compressed, err := compress(table.Bytes())
	if err != nil {
		return fmt.Errorf("compressing table: %w", err)
	}

	var sizes [8]byte
	binary.LittleEndian.PutUint32(sizes[0:], uint32(len(compressed)))
	binary.LittleEndian.PutUint32(sizes[4:], uint32(table.Len()))
	if _, err := w.file.Write(sizes[:]); err != nil {
		return fmt.Errorf("writing table: %w", err)
	}
	if _, err := w.file.Write(compressed); err != nil {
		return fmt.Errorf("writing table: %w", err)
	}

	header := Header{
		TableOffset: w.offset,
		FileCount:   uint32(len(w.entries)),
		Version:     bundleVersion,
	}
	copy(header.Magic[:], bundleMagic)

	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("encoding header: %w", err)
	}
	if _, err := w.file.WriteAt(buf.Bytes(), 0); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	return nil
}

func compress(data []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	zw, err := zlib.NewWriterLevel(buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
