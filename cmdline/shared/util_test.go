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

package shared

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetConfig(t *testing.T) {
	t.Cleanup(func() {
		ArgConfig = ""
		CurrentConfig = nil
	})
	ArgConfig = ""
	CurrentConfig = nil
}

func TestInitConfig(t *testing.T) {
	t.Run("MissingDefault", func(t *testing.T) {
		resetConfig(t)
		t.Setenv("USERPROFILE", "")
		t.Setenv("HOME", t.TempDir())
		require.NoError(t, InitConfig())
		require.NotNil(t, CurrentConfig)
		assert.Equal(t, "", CurrentConfig.Key)
	})
	t.Run("MissingExplicit", func(t *testing.T) {
		resetConfig(t)
		ArgConfig = filepath.Join(t.TempDir(), "nope.yaml")
		assert.Error(t, InitConfig())
		assert.Nil(t, CurrentConfig)
	})
	t.Run("Explicit", func(t *testing.T) {
		resetConfig(t)
		ArgConfig = filepath.Join(t.TempDir(), "kt.yaml")
		require.NoError(t, os.WriteFile(ArgConfig, []byte("key: dev.pem\n"), 0644))
		require.NoError(t, InitConfig())
		assert.Equal(t, "dev.pem", CurrentConfig.Key)
	})
}

func TestSetupLogging(t *testing.T) {
	saved := log.Logger
	defer func() { log.Logger = saved }()
	require.NoError(t, SetupLogging("debug"))
	assert.Equal(t, zerolog.DebugLevel, log.Logger.GetLevel())
	require.NoError(t, SetupLogging(""))
	assert.Equal(t, zerolog.InfoLevel, log.Logger.GetLevel())
	assert.Error(t, SetupLogging("loud"))
}

func TestOpenOutput(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.bin")
	f, err := OpenOutput(dest)
	require.NoError(t, err)
	_, err = f.Write([]byte("pkg"))
	require.NoError(t, err)
	require.NoError(t, f.Commit())
	blob, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "pkg", string(blob))
}
