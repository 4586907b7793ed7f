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
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/kindlemodding/kindletool/config"
	"github.com/kindlemodding/kindletool/lib/atomicfile"
)

// InitConfig loads --config, or the default configuration if it exists.
func InitConfig() error {
	if CurrentConfig != nil {
		return nil
	}
	usedDefault := false
	path := ArgConfig
	if path == "" {
		path = config.DefaultConfig()
		usedDefault = true
	}
	if path == "" {
		CurrentConfig = new(config.Config)
		return nil
	}
	cfg, err := config.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && usedDefault {
			CurrentConfig = new(config.Config)
			return nil
		}
		return err
	}
	CurrentConfig = cfg
	return nil
}

// SetupLogging points the global logger at stderr in human readable form.
func SetupLogging(levelName string) error {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	})
	if levelName == "" {
		levelName = zerolog.InfoLevel.String()
	}
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	log.Logger = log.Logger.Level(level)
	return nil
}

func OpenFile(path string) (*os.File, error) {
	if path == "-" {
		return os.Stdin, nil
	}
	return os.Open(path)
}

// OpenOutput opens a destination for binary output. "-" is stdout, which is
// refused if it is a terminal.
func OpenOutput(path string) (atomicfile.AtomicFile, error) {
	if path == "" {
		path = "-"
	}
	if path == "-" && term.IsTerminal(int(atomicfile.Stdout.Fd())) {
		return nil, errors.New("refusing to write binary output to a terminal, give an output file or redirect stdout")
	}
	return atomicfile.WriteAny(path)
}

func Fail(err error) error {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(70)
	}
	return err
}
