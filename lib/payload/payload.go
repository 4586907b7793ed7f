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

// Package payload prepares the compressed body of an update package from a
// directory tree.
package payload

import (
	"crypto"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/klauspost/compress/gzip"

	"github.com/kindlemodding/kindletool/lib/builderr"
	"github.com/kindlemodding/kindletool/lib/readercounter"
	"github.com/kindlemodding/kindletool/lib/signtar"
)

type Options struct {
	Archive signtar.Options
	// Level is a gzip compression level. Zero selects gzip.DefaultCompression.
	Level int
}

// Payload is a temporary file holding a gzipped signed archive, positioned at
// its start. Close removes it.
type Payload struct {
	*os.File
	Size    int64
	Archive *signtar.Result
}

// Close closes and deletes the temporary file.
func (p *Payload) Close() error {
	var merr *multierror.Error
	if err := p.File.Close(); err != nil {
		merr = multierror.Append(merr, err)
	}
	if err := os.Remove(p.File.Name()); err != nil {
		merr = multierror.Append(merr, err)
	}
	return merr.ErrorOrNil()
}

// FromDirectory builds a signed archive of root and compresses it into a
// temporary file created in opts.Archive.TempDir. Nothing is left behind on
// error.
func FromDirectory(root string, signer crypto.Signer, opts Options) (*Payload, error) {
	level := opts.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	f, err := os.CreateTemp(opts.Archive.TempDir, "kindletool-payload-*.tar.gz")
	if err != nil {
		return nil, builderr.IOError{Op: "create payload", Err: err}
	}
	p := &Payload{File: f}
	if err := p.fill(root, signer, level, opts.Archive); err != nil {
		if cerr := p.Close(); cerr != nil {
			err = multierror.Append(err, cerr)
		}
		return nil, err
	}
	return p, nil
}

func (p *Payload) fill(root string, signer crypto.Signer, level int, opts signtar.Options) error {
	counter := readercounter.NewWriter(p.File)
	zw, err := gzip.NewWriterLevel(counter, level)
	if err != nil {
		return builderr.ValidationError{Field: "compression", Reason: fmt.Sprintf("bad gzip level %d", level)}
	}
	result, err := signtar.BuildTar(root, signer, zw, opts)
	if err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return builderr.IOError{Op: "compress payload", Path: p.File.Name(), Err: err}
	}
	if _, err := p.File.Seek(0, io.SeekStart); err != nil {
		return builderr.IOError{Op: "rewind payload", Path: p.File.Name(), Err: err}
	}
	p.Size = counter.N
	p.Archive = result
	if opts.Log != nil {
		opts.Log.Debug().
			Int("files", len(result.Entries)).
			Int64("compressed", p.Size).
			Msg("payload ready")
	}
	return nil
}
