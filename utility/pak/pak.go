// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package pak is an api for an lz4 backed resource archive format.
// Its purpose is to get assets from disk to a usable state as fast
// as possible. The archive itself is not compressed in any form,
// rather every file is individually compressed, so it can be read
// from its place and decompressed on the fly. Unlike tar, the index
// up front knows where all the files are located before they're
// read, which makes the format well suited for memory mapping. An
// open archive can be read from concurrently.
//
// A pak file starts with the magic bytes, a fixed size slot holding
// the header length as a varint, and the gob encoded header. The
// data section with the compressed files follows immediately after,
// index offsets are relative to its start.
package pak

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
)

// package errors
var (
	ErrFileFormat = errors.New("corrupted or not a pak archive")
	ErrNotFound   = errors.New("no such file in the archive")
)

// Magic identifies a pak archive.
const Magic = "PAK\x00"

// Sizes relevant to the fixed part of the file header.
const (
	MagicLength      = 4
	HeaderSizeLength = binary.MaxVarintLen64
)

// IndexEntry is info for one file in the file index. Offset points
// into the data section, Size is the uncompressed length and
// CompressedSize the stored length of the lz4 frame.
type IndexEntry struct {
	Name           string
	Offset         int64
	Size           int64
	CompressedSize int64
}

// Header is the file header for pak files.
type Header struct {
	Author      string
	DateCreated int64
	Version     int64
	Index       []IndexEntry
}

func gobEncode(data interface{}) ([]byte, error) {
	var encoded bytes.Buffer
	enc := gob.NewEncoder(&encoded)
	if err := enc.Encode(data); err != nil {
		return nil, err
	}
	return encoded.Bytes(), nil
}

func gobDecode(obj interface{}, bts []byte) error {
	dec := gob.NewDecoder(bytes.NewBuffer(bts))
	if err := dec.Decode(obj); err != nil {
		return err
	}
	return nil
}
