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

package streamsign

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kindlemodding/kindletool/lib/builderr"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestDigestMatchesOneShot(t *testing.T) {
	data := bytes.Repeat([]byte{1, 2, 3}, 5000)
	expect := sha256.Sum256(data)
	got, err := Digest(iotest.HalfReader(bytes.NewReader(data)))
	require.NoError(t, err)
	assert.Equal(t, expect[:], got)
}

func TestSignVerify(t *testing.T) {
	key := testKey(t)
	data := bytes.Repeat([]byte("payload"), 1000)
	var sig bytes.Buffer
	n, err := Sign(bytes.NewReader(data), key, &sig)
	require.NoError(t, err)
	assert.Equal(t, key.Size(), n)
	assert.Equal(t, key.Size(), sig.Len())
	require.NoError(t, Verify(bytes.NewReader(data), &key.PublicKey, sig.Bytes()))

	data[0] ^= 0xff
	err = Verify(bytes.NewReader(data), &key.PublicKey, sig.Bytes())
	var cryptoErr builderr.CryptoError
	assert.ErrorAs(t, err, &cryptoErr)
}

func TestSignFailures(t *testing.T) {
	key := testKey(t)
	t.Run("NoKey", func(t *testing.T) {
		var sig bytes.Buffer
		_, err := Sign(bytes.NewReader(nil), nil, &sig)
		var cryptoErr builderr.CryptoError
		require.ErrorAs(t, err, &cryptoErr)
		assert.Zero(t, sig.Len())
	})
	t.Run("WrongKeyType", func(t *testing.T) {
		ec, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)
		var sig bytes.Buffer
		_, err = Sign(bytes.NewReader(nil), ec, &sig)
		assert.ErrorContains(t, err, "need RSA")
		assert.Zero(t, sig.Len())
	})
	t.Run("ReadError", func(t *testing.T) {
		var sig bytes.Buffer
		r := io.MultiReader(bytes.NewReader([]byte("some")), iotest.ErrReader(errors.New("disk gone")))
		_, err := Sign(r, key, &sig)
		var cryptoErr builderr.CryptoError
		require.ErrorAs(t, err, &cryptoErr)
		var ioErr builderr.IOError
		assert.ErrorAs(t, err, &ioErr)
		assert.Zero(t, sig.Len())
	})
	t.Run("WriteError", func(t *testing.T) {
		_, err := Sign(bytes.NewReader([]byte("x")), key, shortWriter{})
		var ioErr builderr.IOError
		require.ErrorAs(t, err, &ioErr)
		assert.ErrorIs(t, err, io.ErrShortWrite)
	})
}

type shortWriter struct{}

func (shortWriter) Write(d []byte) (int, error) { return len(d) / 2, nil }
