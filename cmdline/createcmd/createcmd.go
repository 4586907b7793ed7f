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
	"crypto"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kindlemodding/kindletool/cmdline/shared"
	"github.com/kindlemodding/kindletool/lib/builderr"
	"github.com/kindlemodding/kindletool/lib/certloader"
	"github.com/kindlemodding/kindletool/lib/kindleupdate"
	"github.com/kindlemodding/kindletool/lib/magic"
	"github.com/kindlemodding/kindletool/lib/payload"
	"github.com/kindlemodding/kindletool/lib/signtar"
)

var CreateCmd = &cobra.Command{
	Use:   "create {ota|ota2|recovery} <input> [<output>]",
	Short: "Build an update package from a directory or a compressed bundle",
	Long: `Build an update package.

If input is a directory, every file in it is signed and the tree is packed
into a gzipped tarball together with a signed index. Otherwise input is used
as the package body as-is; "-" reads it from stdin. The package is written
to output, or to stdout if it is omitted.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: createCmd,
}

var (
	argDevices   []string
	argKey       string
	argBundle    string
	argSrcRev    uint64
	argTgtRev    uint64
	argMagic1    uint32
	argMagic2    uint32
	argMinor     uint32
	argCert      string
	argOptional  uint8
	argCritical  uint8
	argMeta      []string
	argIndexName string
)

func init() {
	shared.RootCmd.AddCommand(CreateCmd)
	CreateCmd.Flags().StringArrayVarP(&argDevices, "device", "d", nil, "Target device, may be repeated for ota2 (see 'devices')")
	CreateCmd.Flags().StringVarP(&argKey, "key", "k", "", "PEM private key used for signing")
	CreateCmd.Flags().StringVarP(&argBundle, "bundle", "b", "", "Bundle magic number, overrides the package format")
	CreateCmd.Flags().Uint64VarP(&argSrcRev, "srcrev", "s", 0, "Source revision")
	CreateCmd.Flags().Uint64VarP(&argTgtRev, "tgtrev", "t", 0, "Target revision")
	CreateCmd.Flags().Uint32VarP(&argMagic1, "magic1", "1", 0, "Recovery magic number 1")
	CreateCmd.Flags().Uint32VarP(&argMagic2, "magic2", "2", 0, "Recovery magic number 2")
	CreateCmd.Flags().Uint32VarP(&argMinor, "minor", "m", 0, "Recovery minor number")
	CreateCmd.Flags().StringVarP(&argCert, "cert", "c", "", "Certificate the device verifies with: developer, 1k, 2k")
	CreateCmd.Flags().Uint8VarP(&argOptional, "opt", "o", 0, "Mark an ota package optional")
	CreateCmd.Flags().Uint8VarP(&argCritical, "crit", "r", 0, "Mark an ota2 package critical")
	CreateCmd.Flags().StringArrayVarP(&argMeta, "meta", "x", nil, "key=value metadata for ota2 packages, may be repeated")
	CreateCmd.Flags().StringVar(&argIndexName, "index-name", "", "Name of the signed index inside directory payloads")
}

func loadSigner() (crypto.Signer, error) {
	keyPath := argKey
	if keyPath == "" {
		keyPath = shared.CurrentConfig.Key
	}
	if keyPath == "" {
		return nil, nil
	}
	key, err := certloader.LoadSigningKey(keyPath)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("key", key.KeyName).Int("bits", key.PrivateKey.N.BitLen()).Msg("loaded signing key")
	return key.Signer(), nil
}

// buildRequest turns the command line into a validated request.
func buildRequest(formatName string) (*kindleupdate.Request, error) {
	format, err := kindleupdate.ParseFormat(formatName)
	if err != nil {
		return nil, err
	}
	if argBundle != "" {
		format = kindleupdate.FormatForMagic(argBundle)
		if format == kindleupdate.FormatUnknown {
			return nil, builderr.ValidationError{Field: "bundle", Reason: fmt.Sprintf("unknown bundle magic %q", argBundle)}
		}
	}
	devices, err := kindleupdate.LookupDevices(argDevices)
	if err != nil {
		return nil, err
	}
	certName := argCert
	if certName == "" {
		certName = shared.CurrentConfig.Certificate
	}
	cert, err := kindleupdate.ParseCertificate(certName)
	if err != nil {
		return nil, err
	}
	signer, err := loadSigner()
	if err != nil {
		return nil, err
	}
	req := &kindleupdate.Request{
		Format:         format,
		Magic:          argBundle,
		SourceRevision: argSrcRev,
		TargetRevision: argTgtRev,
		Devices:        devices,
		Certificate:    cert,
		Critical:       argCritical,
		Optional:       argOptional,
		Magic1:         argMagic1,
		Magic2:         argMagic2,
		Minor:          argMinor,
		Metadata:       argMeta,
		Signer:         signer,
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// input is a seekable package body and the function releasing it.
type input struct {
	io.ReadSeeker
	close func() error
}

func openInput(path string, signer crypto.Signer) (*input, error) {
	cfg := shared.CurrentConfig
	if path != "-" {
		st, err := os.Stat(path)
		if err != nil {
			return nil, builderr.IOError{Op: "stat", Path: path, Err: err}
		}
		if st.IsDir() {
			if signer == nil {
				return nil, errors.New("a signing key is required to package a directory")
			}
			indexName := argIndexName
			if indexName == "" {
				indexName = cfg.IndexName
			}
			logger := log.Logger
			p, err := payload.FromDirectory(path, signer, payload.Options{
				Level: cfg.Compression,
				Archive: signtar.Options{
					IndexName: indexName,
					TempDir:   cfg.TempDir,
					Log:       &logger,
				},
			})
			if err != nil {
				return nil, err
			}
			log.Info().
				Int("files", len(p.Archive.Entries)).
				Str("size", humanize.Bytes(uint64(p.Size))).
				Msg("built signed bundle")
			return &input{p, p.Close}, nil
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, builderr.IOError{Op: "open", Path: path, Err: err}
		}
		if err := checkPayload(f, path); err != nil {
			f.Close()
			return nil, err
		}
		return &input{f, f.Close}, nil
	}
	// stdin can't be rewound, so keep a copy
	f, err := os.CreateTemp(cfg.TempDir, "kindletool-stdin-*")
	if err != nil {
		return nil, builderr.IOError{Op: "create temporary input", Err: err}
	}
	release := func() error {
		var merr *multierror.Error
		if err := f.Close(); err != nil {
			merr = multierror.Append(merr, err)
		}
		if err := os.Remove(f.Name()); err != nil {
			merr = multierror.Append(merr, err)
		}
		return merr.ErrorOrNil()
	}
	if _, err := io.Copy(f, os.Stdin); err != nil {
		release()
		return nil, builderr.IOError{Op: "read", Path: "stdin", Err: err}
	}
	if err := checkPayload(f, "stdin"); err != nil {
		release()
		return nil, err
	}
	return &input{f, release}, nil
}

// checkPayload refuses finished packages and warns about bodies the device
// won't unpack. f is left at its start.
func checkPayload(f io.ReadSeeker, name string) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return builderr.IOError{Op: "rewind", Path: name, Err: err}
	}
	fileType := magic.Detect(f)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return builderr.IOError{Op: "rewind", Path: name, Err: err}
	}
	switch fileType {
	case magic.FileTypeUpdate:
		return builderr.ValidationError{Field: "input", Reason: fmt.Sprintf("%s is already an update package", name)}
	case magic.FileTypeGzip:
	default:
		log.Warn().Str("input", name).Stringer("type", fileType).Msg("payload is not a gzipped tarball")
	}
	return nil
}

func createCmd(cmd *cobra.Command, args []string) (err error) {
	req, err := buildRequest(args[0])
	if err != nil {
		return err
	}
	in, err := openInput(args[1], req.Signer)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := in.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	outPath := "-"
	if len(args) > 2 {
		outPath = args[2]
	}
	out, err := shared.OpenOutput(outPath)
	if err != nil {
		return err
	}
	defer out.Close()
	logger := log.Logger
	summary, err := kindleupdate.Create(req, in, out, kindleupdate.Options{
		TempDir: shared.CurrentConfig.TempDir,
		Log:     &logger,
	})
	if err != nil {
		return err
	}
	if err := out.Commit(); err != nil {
		return builderr.IOError{Op: "write", Path: outPath, Err: err}
	}
	log.Info().
		Stringer("format", summary.Format).
		Str("magic", summary.Magic).
		Str("md5", summary.Digest).
		Str("size", humanize.Bytes(uint64(summary.Written))).
		Msg("created update package")
	return nil
}
