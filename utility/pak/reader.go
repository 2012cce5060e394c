// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package pak

import (
	"encoding/binary"
	"io"
	"io/ioutil"

	"github.com/pierrec/lz4"
)

// Open opens the pak archive from r. It will also check if the file
// is actually a pak archive, and will return an error when it is not.
func Open(r io.ReaderAt) (*Archive, error) {
	magic := make([]byte, MagicLength)
	if _, err := r.ReadAt(magic, 0); err != nil && err != io.EOF {
		return nil, err
	}
	if string(magic) != Magic {
		return nil, ErrFileFormat
	}

	sizeSlot := make([]byte, HeaderSizeLength)
	if _, err := r.ReadAt(sizeSlot, MagicLength); err != nil && err != io.EOF {
		return nil, err
	}
	headerSize, n := binary.Varint(sizeSlot)
	if n <= 0 || headerSize <= 0 {
		return nil, ErrFileFormat
	}

	headerBytes := make([]byte, headerSize)
	if _, err := r.ReadAt(headerBytes, MagicLength+HeaderSizeLength); err != nil && err != io.EOF {
		return nil, err
	}

	var header Header
	if err := gobDecode(&header, headerBytes); err != nil {
		return nil, ErrFileFormat
	}

	ar := Archive{
		reader:     r,
		header:     header,
		dataOffset: MagicLength + HeaderSizeLength + headerSize,
		entries:    make(map[string]IndexEntry, len(header.Index)),
	}
	for _, e := range header.Index {
		ar.entries[e.Name] = e
	}
	return &ar, nil
}

// Archive provides concurrent io for a pak file, and can provide
// an io.Reader for each file separately to perform actions on.
type Archive struct {
	reader     io.ReaderAt
	header     Header
	dataOffset int64
	entries    map[string]IndexEntry
}

// Header returns a copy of the archive header.
func (a *Archive) Header() Header {
	return a.header
}

// Index returns the file index of the archive.
func (a *Archive) Index() []IndexEntry {
	index := make([]IndexEntry, len(a.header.Index))
	copy(index, a.header.Index)
	return index
}

// ReadAll returns the entire contents of a file with a given name.
func (a *Archive) ReadAll(name string) ([]byte, error) {
	f, err := a.Open(name)
	if err != nil {
		return nil, err
	}
	data, err := ioutil.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) != f.entry.Size {
		return nil, ErrFileFormat
	}
	return data, nil
}

// Open returns a Reader for a file in the Archive.
func (a *Archive) Open(name string) (*Reader, error) {
	entry, ok := a.entries[name]
	if !ok {
		return nil, ErrNotFound
	}
	section := io.NewSectionReader(a.reader, a.dataOffset+entry.Offset, entry.CompressedSize)
	return &Reader{
		entry:   entry,
		decoder: lz4.NewReader(section),
	}, nil
}

// Reader is a reader for a single file in an Archive.
// Abstracts away the location that needs to be known.
type Reader struct {
	entry   IndexEntry
	decoder *lz4.Reader
}

// Read reads already decompressed data.
func (r *Reader) Read(p []byte) (n int, err error) {
	return r.decoder.Read(p)
}

// Close implements io.Closer. The archive stays open, readers hold
// no resources of their own.
func (r *Reader) Close() error {
	return nil
}

// Size returns the uncompressed size of the file.
func (r *Reader) Size() int64 {
	return r.entry.Size
}
