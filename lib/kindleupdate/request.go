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
	"crypto"
	"fmt"
	"math"
	"strings"

	"github.com/kindlemodding/kindletool/lib/builderr"
)

// MaxMetadataLength bounds both the length of one metadata string and the
// number of strings in an OTA2 header.
const MaxMetadataLength = math.MaxUint16

// Request describes one package to build. Build it once, validate it, and
// don't modify it while a package is being created.
type Request struct {
	Format Format
	// Magic overrides the bundle magic number. It must belong to Format.
	Magic string

	SourceRevision uint64
	TargetRevision uint64
	Devices        []Device
	Certificate    CertificateNumber

	// Critical is only meaningful for OTA2 packages.
	Critical uint8
	// Optional is only meaningful for OTA packages.
	Optional uint8

	// Recovery only, embedded verbatim.
	Magic1 uint32
	Magic2 uint32
	Minor  uint32

	// Metadata holds key=value strings, OTA2 only.
	Metadata []string

	// Signer signs OTA2 packages. Other formats don't use it.
	Signer crypto.Signer
}

// BundleMagic returns the magic number written at the start of the package.
// An explicit Magic wins, then the last device that selects a generation,
// then the format's default.
func (r *Request) BundleMagic() string {
	if r.Magic != "" {
		return r.Magic
	}
	magic := r.Format.defaultMagic()
	for _, d := range r.Devices {
		if d.Magic != "" {
			magic = d.Magic
		}
	}
	return magic
}

func invalid(field, format string, args ...interface{}) error {
	return builderr.ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the request against the constraints of its format and
// returns the first violation.
func (r *Request) Validate() error {
	if _, ok := formatNames[r.Format]; !ok {
		return builderr.FormatError{}
	}
	if r.Magic != "" {
		if len(r.Magic) != MagicLength {
			return invalid("bundle", "magic number %q must be %d characters", r.Magic, MagicLength)
		}
		if f := FormatForMagic(r.Magic); f != r.Format {
			return invalid("bundle", "magic number %q is not a %s bundle", r.Magic, r.Format)
		}
	}
	switch {
	case len(r.Devices) == 0:
		return invalid("device", "at least one device is required")
	case r.Format != FormatOTA2 && len(r.Devices) > 1:
		return invalid("device", "%s packages support exactly one device, got %d", r.Format, len(r.Devices))
	case len(r.Devices) > math.MaxUint16:
		return invalid("device", "too many devices: %d", len(r.Devices))
	}
	if r.Format != FormatOTA2 {
		if r.SourceRevision > math.MaxUint32 || r.TargetRevision > math.MaxUint32 {
			return invalid("revision", "%s revisions cannot exceed %d", r.Format, uint32(math.MaxUint32))
		}
		if len(r.Metadata) != 0 {
			return invalid("metadata", "only ota2 packages carry metadata")
		}
		if r.Critical != 0 {
			return invalid("critical", "only ota2 packages can be critical")
		}
	}
	if r.Format != FormatOTA && r.Optional != 0 {
		return invalid("optional", "only ota packages can be optional")
	}
	if r.Format != FormatRecovery && (r.Magic1 != 0 || r.Magic2 != 0 || r.Minor != 0) {
		return invalid("magic", "magic1, magic2 and minor only apply to recovery packages")
	}
	if len(r.Metadata) > MaxMetadataLength {
		return invalid("metadata", "too many entries: %d", len(r.Metadata))
	}
	for _, m := range r.Metadata {
		if !strings.Contains(m, "=") {
			return invalid("metadata", "%q is not in key=value form", m)
		}
		if len(m) > MaxMetadataLength {
			return invalid("metadata", "entry of %d bytes exceeds %d", len(m), MaxMetadataLength)
		}
	}
	if r.Format == FormatOTA2 && r.Signer == nil {
		return invalid("key", "ota2 packages must be signed")
	}
	return nil
}
