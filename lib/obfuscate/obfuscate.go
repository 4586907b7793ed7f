//
// Copyright (c) SAS Institute Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

// Package obfuscate implements the byte scrambling used by update packages to
// keep digests and payloads from being readable in a hex dump. It is not a
// security control.
package obfuscate

import (
	"crypto/md5"
	"encoding/hex"
	"io"

	"github.com/kindlemodding/kindletool/lib/builderr"
)

// BufferSize is the chunk size used when streaming.
const BufferSize = 1024

const xorKey = 0x7a

// Direction selects which half of the transform Transform applies.
type Direction int

const (
	// Munge scrambles plain bytes, as done when building a package.
	Munge Direction = iota
	// Demunge restores scrambled bytes.
	Demunge
)

func swap(b byte) byte {
	return b>>4 | b<<4
}

// Encode scrambles b in place. Decode reverses it.
func Encode(b []byte) {
	for i, c := range b {
		b[i] = swap(c) ^ xorKey
	}
}

// Decode restores bytes previously scrambled by Encode, in place.
func Decode(b []byte) {
	for i, c := range b {
		b[i] = swap(c ^ xorKey)
	}
}

func (d Direction) apply(b []byte) {
	if d == Demunge {
		Decode(b)
	} else {
		Encode(b)
	}
}

// Digest reads r to EOF and returns its MD5 digest. The reader is not rewound.
func Digest(r io.Reader) (sum [md5.Size]byte, err error) {
	d := md5.New()
	buf := make([]byte, BufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			d.Write(buf[:n])
		}
		if err == io.EOF {
			break
		} else if err != nil {
			return sum, builderr.IOError{Op: "digest", Err: err}
		}
	}
	copy(sum[:], d.Sum(nil))
	return sum, nil
}

// HexDigest is like Digest but returns the lowercase hex form, which is what
// package headers and archive indexes carry.
func HexDigest(r io.Reader) (string, error) {
	sum, err := Digest(r)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum[:]), nil
}

// EncodedDigest returns the hex digest of r scrambled with Encode, ready to be
// embedded in a header.
func EncodedDigest(r io.Reader) ([]byte, error) {
	h, err := HexDigest(r)
	if err != nil {
		return nil, err
	}
	b := []byte(h)
	Encode(b)
	return b, nil
}

// Transform copies src to dst in BufferSize chunks, scrambling or restoring
// each chunk according to dir. If limit is greater than zero at most limit
// bytes are copied, otherwise src is copied until EOF. It returns the number
// of bytes written.
func Transform(dst io.Writer, src io.Reader, dir Direction, limit int64) (int64, error) {
	var written int64
	buf := make([]byte, BufferSize)
	for {
		chunk := buf
		if limit > 0 {
			remaining := limit - written
			if remaining <= 0 {
				return written, nil
			} else if remaining < int64(len(chunk)) {
				chunk = chunk[:remaining]
			}
		}
		n, rerr := src.Read(chunk)
		if n > 0 {
			dir.apply(chunk[:n])
			m, werr := dst.Write(chunk[:n])
			written += int64(m)
			if werr != nil {
				return written, builderr.IOError{Op: "write package body", Err: werr}
			} else if m < n {
				return written, builderr.IOError{Op: "write package body", Err: io.ErrShortWrite}
			}
		}
		if rerr == io.EOF {
			return written, nil
		} else if rerr != nil {
			return written, builderr.IOError{Op: "read package body", Err: rerr}
		}
	}
}
