/*
 * Copyright (c) SAS Institute Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package magic sniffs what kind of file a package body is.
package magic

import (
	"bytes"
	"io"
)

type FileType int

const (
	FileTypeUnknown FileType = iota
	FileTypeGzip
	FileTypeBzip2
	FileTypeXz
	FileTypeTar
	// FileTypeUpdate is a finished update package.
	FileTypeUpdate
)

func (t FileType) String() string {
	switch t {
	case FileTypeGzip:
		return "gzip"
	case FileTypeBzip2:
		return "bzip2"
	case FileTypeXz:
		return "xz"
	case FileTypeTar:
		return "tar"
	case FileTypeUpdate:
		return "update package"
	}
	return "unknown"
}

var updatePrefixes = [][]byte{
	[]byte("FB0"),
	[]byte("FC0"),
	[]byte("FD0"),
	[]byte("FL0"),
	[]byte("SP01"),
}

// Detect reads the start of r and guesses its type. The reader is not
// rewound.
func Detect(r io.Reader) FileType {
	var buf [512]byte
	n, err := io.ReadFull(r, buf[:])
	if err != nil && err != io.ErrUnexpectedEOF {
		return FileTypeUnknown
	}
	blob := buf[:n]
	switch {
	case bytes.HasPrefix(blob, []byte{0x1f, 0x8b}):
		return FileTypeGzip
	case bytes.HasPrefix(blob, []byte("BZh")):
		return FileTypeBzip2
	case bytes.HasPrefix(blob, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}):
		return FileTypeXz
	case len(blob) >= 262 && bytes.Equal(blob[257:262], []byte("ustar")):
		return FileTypeTar
	}
	for _, prefix := range updatePrefixes {
		if len(blob) >= 64 && bytes.HasPrefix(blob, prefix) {
			return FileTypeUpdate
		}
	}
	return FileTypeUnknown
}
