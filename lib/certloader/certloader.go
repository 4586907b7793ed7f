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

package certloader

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kindlemodding/kindletool/lib/builderr"
)

const asn1Magic = 0x30 // weak but good enough?

// SigningKey is a private key loaded from disk along with where it came from.
type SigningKey struct {
	PrivateKey *rsa.PrivateKey
	KeyName    string
}

// Signer returns the key as a crypto.Signer for lib/streamsign.
func (k *SigningKey) Signer() crypto.Signer {
	return k.PrivateKey
}

// Public returns the public half of the key.
func (k *SigningKey) Public() crypto.PublicKey {
	return k.PrivateKey.Public()
}

// Parse a private key from a blob of PEM or DER data
func ParsePrivateKey(pemData []byte) (crypto.PrivateKey, error) {
	if len(pemData) >= 1 && pemData[0] == asn1Magic {
		// already DER form
		return parsePrivateKey(pemData)
	}
	for {
		var keyBlock *pem.Block
		keyBlock, pemData = pem.Decode(pemData)
		if keyBlock == nil {
			return nil, errors.New("failed to find any private keys in PEM data")
		} else if keyBlock.Type == "PRIVATE KEY" || strings.HasSuffix(keyBlock.Type, " PRIVATE KEY") {
			if _, encrypted := keyBlock.Headers["DEK-Info"]; encrypted || keyBlock.Type == "ENCRYPTED PRIVATE KEY" {
				return nil, errors.New("encrypted private keys are not supported")
			}
			return parsePrivateKey(keyBlock.Bytes)
		}
	}
}

// Parse a private key from a DER block
// See crypto/tls.parsePrivateKey
func parsePrivateKey(der []byte) (crypto.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		switch key := key.(type) {
		case *rsa.PrivateKey, *ecdsa.PrivateKey, ed25519.PrivateKey:
			return key, nil
		default:
			return nil, errors.New("found unknown private key type in PKCS#8 wrapping")
		}
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	return nil, errors.New("failed to parse private key")
}

// ParseSigningKey parses a PEM or DER blob and checks that it holds an RSA
// key, the only kind update packages can be signed with.
func ParseSigningKey(blob []byte, name string) (*SigningKey, error) {
	key, err := ParsePrivateKey(blob)
	if err != nil {
		return nil, builderr.CryptoError{Op: "load key " + name, Err: err}
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, builderr.CryptoError{Op: "load key " + name, Err: fmt.Errorf("key is %T, need RSA", key)}
	}
	return &SigningKey{PrivateKey: rsaKey, KeyName: name}, nil
}

// LoadSigningKey reads an RSA private key from a PEM or DER file.
func LoadSigningKey(path string) (*SigningKey, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, builderr.IOError{Op: "read key", Path: path, Err: err}
	}
	return ParseSigningKey(blob, path)
}
