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

package signtar

import (
	"archive/tar"
	"fmt"
	"io"
	"time"
)

// EntryInfo describes one member appended to an Archive.
type EntryInfo struct {
	Size    int64
	Mode    int64
	ModTime time.Time
}

// Archive is the container the builder deposits files, signatures and the
// index into. Entries are append-only and their order is significant.
type Archive interface {
	Append(name string, info EntryInfo, r io.Reader) error
}

// TarArchive writes bundle members as a GNU tar stream owned by root.
type TarArchive struct {
	tw *tar.Writer
}

func NewTarArchive(w io.Writer) *TarArchive {
	return &TarArchive{tw: tar.NewWriter(w)}
}

// Append writes exactly info.Size bytes from r under name.
func (a *TarArchive) Append(name string, info EntryInfo, r io.Reader) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     info.Mode,
		Size:     info.Size,
		ModTime:  info.ModTime.Truncate(time.Second),
		Typeflag: tar.TypeReg,
		Uname:    "root",
		Gname:    "root",
		Format:   tar.FormatGNU,
	}
	if err := a.tw.WriteHeader(hdr); err != nil {
		return err
	}
	n, err := io.CopyN(a.tw, r, info.Size)
	if err == io.EOF {
		return fmt.Errorf("%s shrank while archiving: expected %d bytes, got %d", name, info.Size, n)
	}
	return err
}

// Close writes the end-of-archive trailer. The underlying writer is not
// closed.
func (a *TarArchive) Close() error {
	return a.tw.Close()
}
