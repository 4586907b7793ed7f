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

package kindleupdate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kindlemodding/kindletool/lib/builderr"
)

// Format is one of the on-disk update package layouts.
type Format int

const (
	FormatUnknown Format = iota
	FormatRecovery
	FormatOTA
	FormatOTA2
)

var formatNames = map[Format]string{
	FormatRecovery: "recovery",
	FormatOTA:      "ota",
	FormatOTA2:     "ota2",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return "unknown"
}

// ParseFormat maps a format name as used on the command line to a Format.
func ParseFormat(name string) (Format, error) {
	lower := strings.ToLower(name)
	for f, n := range formatNames {
		if n == lower {
			return f, nil
		}
	}
	return FormatUnknown, builderr.FormatError{Format: name}
}

// Bundle magic numbers. The first four bytes of every package identify its
// layout.
const (
	MagicRecovery   = "FB01"
	MagicRecovery2  = "FB02"
	MagicOTA        = "FC02"
	MagicOTAAlt     = "FD03"
	MagicOTA2       = "FC04"
	MagicOTA2Touch  = "FD04"
	MagicOTA2Latest = "FL01"
	MagicSignature  = "SP01"

	// MagicLength is the size of a bundle magic number.
	MagicLength = 4
)

var magicFormats = map[string]Format{
	MagicRecovery:   FormatRecovery,
	MagicRecovery2:  FormatRecovery,
	MagicOTA:        FormatOTA,
	MagicOTAAlt:     FormatOTA,
	MagicOTA2:       FormatOTA2,
	MagicOTA2Touch:  FormatOTA2,
	MagicOTA2Latest: FormatOTA2,
}

// FormatForMagic returns the layout a bundle magic number announces, or
// FormatUnknown.
func FormatForMagic(magic string) Format {
	return magicFormats[magic]
}

// defaultMagic is used when neither the caller nor the device selection
// picked a magic number.
func (f Format) defaultMagic() string {
	switch f {
	case FormatRecovery:
		return MagicRecovery2
	case FormatOTA:
		return MagicOTA
	case FormatOTA2:
		return MagicOTA2
	}
	return ""
}

// CertificateNumber selects which certificate on the device verifies a
// signed package.
type CertificateNumber uint32

const (
	CertificateDeveloper CertificateNumber = 0
	Certificate1K        CertificateNumber = 1
	Certificate2K        CertificateNumber = 2
)

func (c CertificateNumber) String() string {
	switch c {
	case CertificateDeveloper:
		return "developer"
	case Certificate1K:
		return "1k"
	case Certificate2K:
		return "2k"
	}
	return strconv.FormatUint(uint64(c), 10)
}

// ParseCertificate accepts a certificate name (developer, 1k, 2k) or a
// number.
func ParseCertificate(s string) (CertificateNumber, error) {
	switch strings.ToLower(s) {
	case "", "developer", "dev":
		return CertificateDeveloper, nil
	case "1k":
		return Certificate1K, nil
	case "2k":
		return Certificate2K, nil
	}
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, builderr.ValidationError{Field: "certificate", Reason: fmt.Sprintf("%q is not a certificate name or number", s)}
	}
	return CertificateNumber(n), nil
}
