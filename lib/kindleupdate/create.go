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

// Package kindleupdate encodes firmware update packages for Kindle e-readers:
// recovery, OTA and signed OTA2 layouts.
package kindleupdate

import (
	"crypto"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/kindlemodding/kindletool/lib/builderr"
	"github.com/kindlemodding/kindletool/lib/obfuscate"
	"github.com/kindlemodding/kindletool/lib/readercounter"
	"github.com/kindlemodding/kindletool/lib/streamsign"
)

type Options struct {
	// TempDir holds the unsigned OTA2 package while it is being signed.
	// Empty means os.TempDir().
	TempDir string
	Log     *zerolog.Logger
}

// Summary describes a package that was written.
type Summary struct {
	Format     Format
	Magic      string
	Digest     string // payload MD5, plain hex
	HeaderSize int
	BodySize   int64
	// Written counts every byte sent to the output, signature included.
	Written int64
}

// WriteSignature writes a signature block for cert followed by the signature
// of everything read from signed. Nothing is written if signing fails.
func WriteSignature(w io.Writer, cert CertificateNumber, signed io.Reader, signer crypto.Signer) (int64, error) {
	sig, err := streamsign.Signature(signed, signer)
	if err != nil {
		return 0, err
	}
	counter := readercounter.NewWriter(w)
	if _, err := counter.Write(EncodeSignatureHeader(cert)); err != nil {
		return counter.N, builderr.IOError{Op: "write signature header", Err: err}
	}
	if _, err := counter.Write(sig); err != nil {
		return counter.N, builderr.IOError{Op: "write signature", Err: err}
	}
	return counter.N, nil
}

// Create validates req and writes a complete package for payload to out.
// payload must be the compressed bundle and is read from its start.
//
// On error out may hold a partial package, which the caller must discard.
// Temporary files are always removed.
func Create(req *Request, payload io.ReadSeeker, out io.Writer, opts Options) (summary *Summary, err error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	log := zerolog.Nop()
	if opts.Log != nil {
		log = *opts.Log
	}
	if _, err := payload.Seek(0, io.SeekStart); err != nil {
		return nil, builderr.IOError{Op: "rewind payload", Err: err}
	}
	measured := readercounter.New(payload)
	digest, err := obfuscate.HexDigest(measured)
	if err != nil {
		return nil, err
	}
	if _, err := payload.Seek(0, io.SeekStart); err != nil {
		return nil, builderr.IOError{Op: "rewind payload", Err: err}
	}
	header, err := EncodeHeader(req, digest)
	if err != nil {
		return nil, err
	}
	summary = &Summary{
		Format:     req.Format,
		Magic:      req.BundleMagic(),
		Digest:     digest,
		HeaderSize: len(header),
	}
	log.Debug().
		Stringer("format", req.Format).
		Str("magic", summary.Magic).
		Str("md5", digest).
		Int("header", len(header)).
		Msg("encoded header")

	counter := readercounter.NewWriter(out)
	if req.Format != FormatOTA2 {
		summary.BodySize, err = writePackage(counter, header, payload, measured.N)
		if err != nil {
			return nil, err
		}
		summary.Written = counter.N
		return summary, nil
	}

	// OTA2 packages are signed over their complete contents, so stage them
	// in a temporary file first.
	scratch, err := os.CreateTemp(opts.TempDir, "kindletool-ota2-*")
	if err != nil {
		return nil, builderr.IOError{Op: "create temporary package", Err: err}
	}
	defer func() {
		var merr *multierror.Error
		if cerr := scratch.Close(); cerr != nil {
			merr = multierror.Append(merr, cerr)
		}
		if rerr := os.Remove(scratch.Name()); rerr != nil {
			merr = multierror.Append(merr, rerr)
		}
		if err == nil && merr.ErrorOrNil() != nil {
			summary = nil
			err = builderr.IOError{Op: "clean up temporary package", Err: merr.ErrorOrNil()}
		}
	}()
	summary.BodySize, err = writePackage(scratch, header, payload, measured.N)
	if err != nil {
		return nil, err
	}
	if _, err := scratch.Seek(0, io.SeekStart); err != nil {
		return nil, builderr.IOError{Op: "rewind temporary package", Err: err}
	}
	if _, err := WriteSignature(counter, req.Certificate, scratch, req.Signer); err != nil {
		return nil, err
	}
	log.Debug().Stringer("certificate", req.Certificate).Msg("signed package")
	if _, err := scratch.Seek(0, io.SeekStart); err != nil {
		return nil, builderr.IOError{Op: "rewind temporary package", Err: err}
	}
	if _, err := io.Copy(counter, scratch); err != nil {
		return nil, builderr.IOError{Op: "write package", Err: err}
	}
	summary.Written = counter.N
	return summary, nil
}

// writePackage writes the header then the disguised payload, returning the
// body length. The body must be exactly as long as what was digested.
func writePackage(w io.Writer, header []byte, payload io.Reader, digested int64) (int64, error) {
	if _, err := w.Write(header); err != nil {
		return 0, builderr.IOError{Op: "write header", Err: err}
	}
	n, err := obfuscate.Transform(w, payload, obfuscate.Munge, 0)
	if err != nil {
		return n, err
	} else if n != digested {
		return n, builderr.IOError{Op: "read package body", Err: fmt.Errorf("payload changed while packaging: digested %d bytes, wrote %d", digested, n)}
	}
	return n, nil
}
