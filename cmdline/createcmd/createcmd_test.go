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

package createcmd

import (
	"archive/tar"
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kindlemodding/kindletool/cmdline/shared"
	"github.com/kindlemodding/kindletool/config"
	"github.com/kindlemodding/kindletool/lib/builderr"
	"github.com/kindlemodding/kindletool/lib/kindleupdate"
	"github.com/kindlemodding/kindletool/lib/obfuscate"
	"github.com/kindlemodding/kindletool/lib/streamsign"
)

func resetArgs(t *testing.T) {
	reset := func() {
		argDevices, argMeta = nil, nil
		argKey, argBundle, argCert, argIndexName = "", "", "", ""
		argSrcRev, argTgtRev = 0, 0
		argMagic1, argMagic2, argMinor = 0, 0, 0
		argOptional, argCritical = 0, 0
		shared.ArgConfig = ""
		shared.CurrentConfig = nil
	}
	reset()
	shared.CurrentConfig = &config.Config{TempDir: t.TempDir()}
	t.Cleanup(reset)
}

func writeKey(t *testing.T) (*rsa.PrivateKey, string) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "dev.pem")
	blob := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	require.NoError(t, os.WriteFile(path, blob, 0600))
	return key, path
}

func TestBuildRequest(t *testing.T) {
	_, keyPath := writeKey(t)

	t.Run("BundleOverridesFormat", func(t *testing.T) {
		resetArgs(t)
		argBundle = "FL01"
		argDevices = []string{"k5w"}
		argKey = keyPath
		req, err := buildRequest("ota")
		require.NoError(t, err)
		assert.Equal(t, kindleupdate.FormatOTA2, req.Format)
		assert.Equal(t, "FL01", req.BundleMagic())
	})
	t.Run("UnknownBundle", func(t *testing.T) {
		resetArgs(t)
		argBundle = "ZZ99"
		argDevices = []string{"k5w"}
		_, err := buildRequest("ota2")
		var valErr builderr.ValidationError
		require.ErrorAs(t, err, &valErr)
		assert.Equal(t, "bundle", valErr.Field)
	})
	t.Run("ConfigDefaults", func(t *testing.T) {
		resetArgs(t)
		shared.CurrentConfig.Key = keyPath
		shared.CurrentConfig.Certificate = "2k"
		argDevices = []string{"k4", "k5g"}
		req, err := buildRequest("ota2")
		require.NoError(t, err)
		assert.Equal(t, kindleupdate.Certificate2K, req.Certificate)
		assert.NotNil(t, req.Signer)
		assert.Len(t, req.Devices, 2)
	})
	t.Run("TooManyDevices", func(t *testing.T) {
		resetArgs(t)
		argDevices = []string{"k3w", "k3g"}
		_, err := buildRequest("recovery")
		var valErr builderr.ValidationError
		assert.ErrorAs(t, err, &valErr)
	})
	t.Run("BadFormat", func(t *testing.T) {
		resetArgs(t)
		argDevices = []string{"k3w"}
		_, err := buildRequest("ota9")
		var fmtErr builderr.FormatError
		assert.ErrorAs(t, err, &fmtErr)
	})
}

func TestCreateDirectory(t *testing.T) {
	key, keyPath := writeKey(t)
	resetArgs(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "install.sh"), []byte("echo installing\n"), 0644))
	out := filepath.Join(t.TempDir(), "update.bin")

	argDevices = []string{"k5w"}
	argKey = keyPath
	argMeta = []string{"PackageName=hack"}
	require.NoError(t, createCmd(CreateCmd, []string{"ota2", root, out}))

	pkg, err := os.ReadFile(out)
	require.NoError(t, err)
	sig := pkg[kindleupdate.SignatureHeaderSize : kindleupdate.SignatureHeaderSize+key.Size()]
	signed := pkg[kindleupdate.SignatureHeaderSize+key.Size():]
	require.NoError(t, streamsign.Verify(bytes.NewReader(signed), &key.PublicKey, sig))
	h, err := kindleupdate.DecodeOTA2Header(signed)
	require.NoError(t, err)
	assert.Equal(t, []string{"PackageName=hack"}, h.Metadata)

	body := append([]byte(nil), signed[h.Size:]...)
	obfuscate.Decode(body)
	zr, err := gzip.NewReader(bytes.NewReader(body))
	require.NoError(t, err)
	tr := tar.NewReader(zr)
	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
	}
	assert.Equal(t, []string{"install.sh", "install.sh.sig", "update-filelist.dat", "update-filelist.dat.sig"}, names)

	leftovers, err := os.ReadDir(shared.CurrentConfig.TempDir)
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestCreateStdin(t *testing.T) {
	resetArgs(t)
	r, w, err := os.Pipe()
	require.NoError(t, err)
	saved := os.Stdin
	os.Stdin = r
	defer func() { os.Stdin = saved }()
	go func() {
		w.Write([]byte("prebuilt bundle"))
		w.Close()
	}()

	out := filepath.Join(t.TempDir(), "update.bin")
	argDevices = []string{"k3w"}
	argMinor = 2
	require.NoError(t, createCmd(CreateCmd, []string{"recovery", "-", out}))
	r.Close()

	pkg, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Len(t, pkg, kindleupdate.RecoveryHeaderSize+len("prebuilt bundle"))
	h, err := kindleupdate.DecodeFixedHeader(pkg)
	require.NoError(t, err)
	assert.Equal(t, "FB02", h.Magic)
	assert.Equal(t, uint32(2), h.Minor)
	assert.Equal(t, uint32(0x08), h.Device)

	leftovers, err := os.ReadDir(shared.CurrentConfig.TempDir)
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestCreateDirectoryNeedsKey(t *testing.T) {
	resetArgs(t)
	argDevices = []string{"k3w"}
	out := filepath.Join(t.TempDir(), "update.bin")
	err := createCmd(CreateCmd, []string{"ota", t.TempDir(), out})
	assert.ErrorContains(t, err, "signing key is required")
	_, err = os.Stat(out)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCreateRefusesPackage(t *testing.T) {
	resetArgs(t)
	argDevices = []string{"k3w"}
	in := filepath.Join(t.TempDir(), "update.bin")
	require.NoError(t, os.WriteFile(in, append([]byte("FC02"), make([]byte, 100)...), 0644))
	out := filepath.Join(t.TempDir(), "again.bin")
	err := createCmd(CreateCmd, []string{"ota", in, out})
	var valErr builderr.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "input", valErr.Field)
}
