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

package magic

import (
	"archive/tar"
	"bytes"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "a", Mode: 0644, Size: 1}))
	_, err := tw.Write([]byte("a"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())

	var gzBuf bytes.Buffer
	zw := gzip.NewWriter(&gzBuf)
	_, err = zw.Write(tarBuf.Bytes())
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	pkg := append([]byte("FC04"), make([]byte, 60)...)

	for _, tc := range []struct {
		name   string
		blob   []byte
		expect FileType
	}{
		{"Gzip", gzBuf.Bytes(), FileTypeGzip},
		{"Tar", tarBuf.Bytes(), FileTypeTar},
		{"Bzip2", []byte("BZh91AY&SY"), FileTypeBzip2},
		{"Xz", []byte{0xfd, '7', 'z', 'X', 'Z', 0, 0, 4}, FileTypeXz},
		{"Update", pkg, FileTypeUpdate},
		{"ShortUpdate", []byte("FC04"), FileTypeUnknown},
		{"Empty", nil, FileTypeUnknown},
		{"Text", []byte("hello"), FileTypeUnknown},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, Detect(bytes.NewReader(tc.blob)))
		})
	}
}
