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

// Package signtar turns a directory tree into the signed tarball carried
// inside update packages. Every regular file is followed by a detached
// signature, and an index listing every file closes the archive together
// with its own signature.
package signtar

import (
	"crypto"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/kindlemodding/kindletool/lib/builderr"
	"github.com/kindlemodding/kindletool/lib/obfuscate"
	"github.com/kindlemodding/kindletool/lib/streamsign"
)

const (
	// DefaultIndexName is the index file name the device looks for.
	DefaultIndexName = "update-filelist.dat"
	sigSuffix        = ".sig"
)

type Options struct {
	// IndexName overrides DefaultIndexName.
	IndexName string
	// TempDir holds the index and scratch signature while building. Empty
	// means os.TempDir().
	TempDir string
	Log     *zerolog.Logger
}

// Result lists what went into the archive, in order.
type Result struct {
	Entries []IndexEntry
	Members []string
}

type builder struct {
	signer  crypto.Signer
	archive Archive
	index   *os.File
	scratch *os.File
	log     zerolog.Logger
	result  *Result
}

// Build walks root depth-first and appends every regular file, its signature,
// and finally the index and index signature to archive. On error the archive
// contents are incomplete and must be discarded; all temporary files are
// removed either way.
func Build(root string, signer crypto.Signer, archive Archive, opts Options) (result *Result, err error) {
	st, err := os.Stat(root)
	if err != nil {
		return nil, builderr.IOError{Op: "stat", Path: root, Err: err}
	} else if !st.IsDir() {
		return nil, builderr.IOError{Op: "open directory", Path: root, Err: fmt.Errorf("not a directory")}
	}
	b := &builder{
		signer:  signer,
		archive: archive,
		log:     zerolog.Nop(),
		result:  new(Result),
	}
	if opts.Log != nil {
		b.log = *opts.Log
	}
	var temps []*os.File
	defer func() {
		var merr *multierror.Error
		for _, f := range temps {
			if cerr := f.Close(); cerr != nil {
				merr = multierror.Append(merr, cerr)
			}
			if rerr := os.Remove(f.Name()); rerr != nil {
				merr = multierror.Append(merr, rerr)
			}
		}
		if err == nil && merr.ErrorOrNil() != nil {
			result = nil
			err = builderr.IOError{Op: "clean up temporary files", Err: merr.ErrorOrNil()}
		}
	}()
	b.index, err = os.CreateTemp(opts.TempDir, "kindletool-index-*")
	if err != nil {
		return nil, builderr.IOError{Op: "create index", Err: err}
	}
	temps = append(temps, b.index)
	b.scratch, err = os.CreateTemp(opts.TempDir, "kindletool-sig-*")
	if err != nil {
		return nil, builderr.IOError{Op: "create signature scratch file", Err: err}
	}
	temps = append(temps, b.scratch)

	if err := b.walk(root, ""); err != nil {
		return nil, err
	}
	indexName := opts.IndexName
	if indexName == "" {
		indexName = DefaultIndexName
	}
	if err := b.addIndex(indexName); err != nil {
		return nil, err
	}
	return b.result, nil
}

// walk processes one directory. Each call owns its own prefix.
func (b *builder) walk(dir, prefix string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return builderr.IOError{Op: "read directory", Path: dir, Err: err}
	}
	for _, ent := range entries {
		name := ent.Name()
		fullPath := filepath.Join(dir, name)
		relPath := prefix + name
		st, err := os.Stat(fullPath)
		if err != nil {
			return builderr.IOError{Op: "stat", Path: relPath, Err: err}
		}
		switch {
		case st.IsDir():
			if ent.Type()&fs.ModeSymlink != 0 {
				b.log.Warn().Str("path", relPath).Msg("skipping symlink to directory")
				continue
			}
			if err := b.walk(fullPath, relPath+"/"); err != nil {
				return err
			}
		case st.Mode().IsRegular():
			if err := b.addFile(fullPath, relPath, name, st); err != nil {
				return err
			}
		default:
			b.log.Warn().Str("path", relPath).Stringer("mode", st.Mode()).Msg("skipping special file")
		}
	}
	return nil
}

func (b *builder) resetScratch() error {
	if err := b.scratch.Truncate(0); err != nil {
		return builderr.IOError{Op: "truncate signature scratch file", Err: err}
	}
	if _, err := b.scratch.Seek(0, io.SeekStart); err != nil {
		return builderr.IOError{Op: "rewind signature scratch file", Err: err}
	}
	return nil
}

// signInto signs r into the scratch file and rewinds it, returning the
// signature length.
func (b *builder) signInto(r io.Reader) (int64, error) {
	if err := b.resetScratch(); err != nil {
		return 0, err
	}
	n, err := streamsign.Sign(r, b.signer, b.scratch)
	if err != nil {
		return 0, err
	}
	if _, err := b.scratch.Seek(0, io.SeekStart); err != nil {
		return 0, builderr.IOError{Op: "rewind signature scratch file", Err: err}
	}
	return int64(n), nil
}

func (b *builder) append(name string, info EntryInfo, r io.Reader) error {
	if err := b.archive.Append(name, info, r); err != nil {
		return builderr.IOError{Op: "add to archive", Path: name, Err: err}
	}
	b.result.Members = append(b.result.Members, name)
	return nil
}

func (b *builder) addFile(fullPath, relPath, name string, st fs.FileInfo) error {
	f, err := os.Open(fullPath)
	if err != nil {
		return builderr.IOError{Op: "open", Path: relPath, Err: err}
	}
	defer f.Close()
	digest, err := obfuscate.HexDigest(f)
	if err != nil {
		return fmt.Errorf("hashing %s: %w", relPath, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return builderr.IOError{Op: "rewind", Path: relPath, Err: err}
	}
	sigSize, err := b.signInto(f)
	if err != nil {
		return fmt.Errorf("signing %s: %w", relPath, err)
	}
	entry := IndexEntry{
		Type:   TypeRegular,
		Digest: digest,
		Path:   relPath,
		Blocks: st.Size() / BlockSize,
		Name:   name,
	}
	mode := int64(0644)
	if IsScript(name) {
		entry.Type = TypeScript
		mode = 0777
	}
	if _, err := io.WriteString(b.index, entry.String()); err != nil {
		return builderr.IOError{Op: "write index", Err: err}
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return builderr.IOError{Op: "rewind", Path: relPath, Err: err}
	}
	if err := b.append(relPath, EntryInfo{Size: st.Size(), Mode: mode, ModTime: st.ModTime()}, f); err != nil {
		return err
	}
	if err := b.append(relPath+sigSuffix, EntryInfo{Size: sigSize, Mode: 0644, ModTime: st.ModTime()}, b.scratch); err != nil {
		return err
	}
	b.result.Entries = append(b.result.Entries, entry)
	b.log.Debug().
		Str("path", relPath).
		Int("type", entry.Type).
		Str("md5", digest).
		Int64("size", st.Size()).
		Msg("signed file")
	return nil
}

func (b *builder) addIndex(indexName string) error {
	size, err := b.index.Seek(0, io.SeekCurrent)
	if err != nil {
		return builderr.IOError{Op: "seek index", Err: err}
	}
	if _, err := b.index.Seek(0, io.SeekStart); err != nil {
		return builderr.IOError{Op: "rewind index", Err: err}
	}
	sigSize, err := b.signInto(b.index)
	if err != nil {
		return fmt.Errorf("signing index: %w", err)
	}
	if _, err := b.index.Seek(0, io.SeekStart); err != nil {
		return builderr.IOError{Op: "rewind index", Err: err}
	}
	st, err := b.index.Stat()
	if err != nil {
		return builderr.IOError{Op: "stat index", Err: err}
	}
	if err := b.append(indexName, EntryInfo{Size: size, Mode: 0644, ModTime: st.ModTime()}, b.index); err != nil {
		return err
	}
	if err := b.append(indexName+sigSuffix, EntryInfo{Size: sigSize, Mode: 0644, ModTime: st.ModTime()}, b.scratch); err != nil {
		return err
	}
	b.log.Debug().Int("files", len(b.result.Entries)).Msg("signed index")
	return nil
}

// BuildTar is Build writing a complete tar stream to w.
func BuildTar(root string, signer crypto.Signer, w io.Writer, opts Options) (*Result, error) {
	archive := NewTarArchive(w)
	result, err := Build(root, signer, archive, opts)
	if err != nil {
		return nil, err
	}
	if err := archive.Close(); err != nil {
		return nil, builderr.IOError{Op: "finish archive", Err: err}
	}
	return result, nil
}
