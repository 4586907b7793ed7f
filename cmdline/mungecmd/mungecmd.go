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

package mungecmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kindlemodding/kindletool/cmdline/shared"
	"github.com/kindlemodding/kindletool/lib/atomicfile"
	"github.com/kindlemodding/kindletool/lib/builderr"
	"github.com/kindlemodding/kindletool/lib/obfuscate"
)

var MungeCmd = &cobra.Command{
	Use:   "md [<input> [<output>]]",
	Short: "Obfuscate a file the way package bodies are",
	Args:  cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return munge(args, obfuscate.Munge)
	},
}

var DemungeCmd = &cobra.Command{
	Use:   "dm [<input> [<output>]]",
	Short: "Reverse the obfuscation applied by md",
	Args:  cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return munge(args, obfuscate.Demunge)
	},
}

var argLimit int64

func init() {
	shared.RootCmd.AddCommand(MungeCmd)
	shared.RootCmd.AddCommand(DemungeCmd)
	for _, cmd := range []*cobra.Command{MungeCmd, DemungeCmd} {
		cmd.Flags().Int64Var(&argLimit, "limit", 0, "Stop after this many bytes, 0 for all")
	}
}

func munge(args []string, dir obfuscate.Direction) error {
	inPath, outPath := "-", "-"
	if len(args) > 0 {
		inPath = args[0]
	}
	if len(args) > 1 {
		outPath = args[1]
	}
	in, err := shared.OpenFile(inPath)
	if err != nil {
		return builderr.IOError{Op: "open", Path: inPath, Err: err}
	}
	defer in.Close()
	// scrambled output is binary, plain output may be text
	var out atomicfile.AtomicFile
	if dir == obfuscate.Munge {
		out, err = shared.OpenOutput(outPath)
	} else {
		out, err = atomicfile.WriteAny(outPath)
	}
	if err != nil {
		return err
	}
	defer out.Close()
	n, err := obfuscate.Transform(out, in, dir, argLimit)
	if err != nil {
		return err
	}
	if err := out.Commit(); err != nil {
		return builderr.IOError{Op: "write", Path: outPath, Err: err}
	}
	log.Debug().Int64("bytes", n).Msg("transformed")
	return nil
}
