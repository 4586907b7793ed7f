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

// Package streamsign produces and checks detached RSA-SHA256 signatures over
// arbitrarily large streams.
package streamsign

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"

	"github.com/kindlemodding/kindletool/lib/builderr"
)

// BufferSize is the chunk size the input is hashed in.
const BufferSize = 1024

// Hash is the digest algorithm every signature is made over.
const Hash = crypto.SHA256

var errNoKey = errors.New("no signing key configured")

// Digest hashes r to EOF with a fresh SHA-256 context.
func Digest(r io.Reader) ([]byte, error) {
	d := Hash.New()
	buf := make([]byte, BufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := d.Write(buf[:n]); werr != nil {
				return nil, builderr.CryptoError{Op: "digest update", Err: werr}
			}
		}
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, builderr.CryptoError{Op: "digest", Err: builderr.IOError{Op: "read", Err: err}}
		}
	}
	return d.Sum(nil), nil
}

func checkKey(signer crypto.Signer) error {
	if signer == nil {
		return builderr.CryptoError{Op: "sign", Err: errNoKey}
	}
	if _, ok := signer.Public().(*rsa.PublicKey); !ok {
		return builderr.CryptoError{Op: "sign", Err: fmt.Errorf("unsupported key type %T, need RSA", signer.Public())}
	}
	return nil
}

// Signature reads r to EOF and returns a PKCS#1 v1.5 signature of its SHA-256
// digest.
func Signature(r io.Reader, signer crypto.Signer) ([]byte, error) {
	if err := checkKey(signer); err != nil {
		return nil, err
	}
	digest, err := Digest(r)
	if err != nil {
		return nil, err
	}
	sig, err := signer.Sign(rand.Reader, digest, Hash)
	if err != nil {
		return nil, builderr.CryptoError{Op: "sign", Err: err}
	}
	return sig, nil
}

// Sign reads r to EOF and writes its detached signature to w. Nothing is
// written to w unless the signature was produced.
func Sign(r io.Reader, signer crypto.Signer, w io.Writer) (int, error) {
	sig, err := Signature(r, signer)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(sig)
	if err == nil && n < len(sig) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return n, builderr.IOError{Op: "write signature", Err: err}
	}
	return n, nil
}

// Verify checks a detached signature made by Sign against the contents of r.
func Verify(r io.Reader, pub crypto.PublicKey, sig []byte) error {
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return builderr.CryptoError{Op: "verify", Err: fmt.Errorf("unsupported key type %T, need RSA", pub)}
	}
	digest, err := Digest(r)
	if err != nil {
		return err
	}
	if err := rsa.VerifyPKCS1v15(rsaPub, Hash, digest, sig); err != nil {
		return builderr.CryptoError{Op: "verify", Err: err}
	}
	return nil
}
