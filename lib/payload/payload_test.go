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

package payload

import (
	"archive/tar"
	"crypto/rand"
	"crypto/rsa"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kindlemodding/kindletool/lib/builderr"
	"github.com/kindlemodding/kindletool/lib/signtar"
)

func TestFromDirectory(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "install.sh"), []byte("echo ok\n"), 0644))

	t.Run("Compressed", func(t *testing.T) {
		tmp := t.TempDir()
		p, err := FromDirectory(root, key, Options{Archive: signtar.Options{TempDir: tmp}})
		require.NoError(t, err)
		st, err := p.Stat()
		require.NoError(t, err)
		assert.Equal(t, st.Size(), p.Size)
		assert.Equal(t, []string{"install.sh", "install.sh.sig", "update-filelist.dat", "update-filelist.dat.sig"}, p.Archive.Members)

		zr, err := gzip.NewReader(p)
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
		assert.Equal(t, p.Archive.Members, names)

		require.NoError(t, p.Close())
		leftovers, err := os.ReadDir(tmp)
		require.NoError(t, err)
		assert.Empty(t, leftovers)
	})
	t.Run("BuildFails", func(t *testing.T) {
		tmp := t.TempDir()
		_, err := FromDirectory(filepath.Join(root, "missing"), key, Options{Archive: signtar.Options{TempDir: tmp}})
		var ioErr builderr.IOError
		require.ErrorAs(t, err, &ioErr)
		leftovers, err := os.ReadDir(tmp)
		require.NoError(t, err)
		assert.Empty(t, leftovers)
	})
	t.Run("BadLevel", func(t *testing.T) {
		tmp := t.TempDir()
		_, err := FromDirectory(root, key, Options{Level: 42, Archive: signtar.Options{TempDir: tmp}})
		var valErr builderr.ValidationError
		require.ErrorAs(t, err, &valErr)
		assert.Equal(t, "compression", valErr.Field)
		leftovers, err := os.ReadDir(tmp)
		require.NoError(t, err)
		assert.Empty(t, leftovers)
	})
}
