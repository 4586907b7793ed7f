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
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/kindlemodding/kindletool/lib/builderr"
	"github.com/kindlemodding/kindletool/lib/obfuscate"
)

const (
	// DigestLength is the size of the hex MD5 digest embedded in headers.
	DigestLength = 32

	OTAHeaderSize       = 64
	RecoveryHeaderSize  = 131072
	SignatureHeaderSize = 64

	recoveryDigestOffset = MagicLength + 12
	recoveryFieldsOffset = recoveryDigestOffset + DigestLength
	otaDigestOffset      = MagicLength + 4 + 4 + 2 + 1 + 1
)

var errTruncated = errors.New("header is truncated")

func disguisedDigest(hexDigest string) ([]byte, error) {
	if len(hexDigest) != DigestLength {
		return nil, invalid("digest", "expected %d hex characters, got %d", DigestLength, len(hexDigest))
	}
	d := []byte(hexDigest)
	obfuscate.Encode(d)
	return d, nil
}

func revealedDigest(b []byte) string {
	d := make([]byte, DigestLength)
	copy(d, b)
	obfuscate.Decode(d)
	return string(d)
}

func putMagic(buf []byte, magic string) {
	copy(buf[:MagicLength], magic)
}

// EncodeOTA returns the 64 byte header of an OTA package. hexDigest is the
// payload's MD5 in lowercase hex; it is disguised before being embedded.
func EncodeOTA(req *Request, hexDigest string) ([]byte, error) {
	digest, err := disguisedDigest(hexDigest)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, OTAHeaderSize)
	putMagic(buf, req.BundleMagic())
	binary.LittleEndian.PutUint32(buf[4:], uint32(req.SourceRevision))
	binary.LittleEndian.PutUint32(buf[8:], uint32(req.TargetRevision))
	binary.LittleEndian.PutUint16(buf[12:], req.Devices[0].ID)
	buf[14] = req.Optional
	copy(buf[otaDigestOffset:], digest)
	return buf, nil
}

// EncodeRecovery returns the 128 KiB header of a recovery package.
func EncodeRecovery(req *Request, hexDigest string) ([]byte, error) {
	digest, err := disguisedDigest(hexDigest)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, RecoveryHeaderSize)
	putMagic(buf, req.BundleMagic())
	copy(buf[recoveryDigestOffset:], digest)
	fields := buf[recoveryFieldsOffset:]
	binary.LittleEndian.PutUint32(fields[0:], req.Magic1)
	binary.LittleEndian.PutUint32(fields[4:], req.Magic2)
	binary.LittleEndian.PutUint32(fields[8:], req.Minor)
	binary.LittleEndian.PutUint32(fields[12:], uint32(req.Devices[0].ID))
	return buf, nil
}

// EncodeMetadata serializes OTA2 metadata: a little-endian count followed by
// each entry as a big-endian length and the raw bytes.
func EncodeMetadata(entries []string) ([]byte, error) {
	if len(entries) > MaxMetadataLength {
		return nil, invalid("metadata", "too many entries: %d", len(entries))
	}
	size := 2
	for _, e := range entries {
		if len(e) > MaxMetadataLength {
			return nil, invalid("metadata", "entry of %d bytes exceeds %d", len(e), MaxMetadataLength)
		}
		size += 2 + len(e)
	}
	buf := make([]byte, 0, size)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(entries)))
	for _, e := range entries {
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(e)))
		buf = append(buf, e...)
	}
	return buf, nil
}

// ParseMetadata decodes a block written by EncodeMetadata and returns the
// entries together with the number of bytes consumed.
func ParseMetadata(b []byte) ([]string, int, error) {
	if len(b) < 2 {
		return nil, 0, errTruncated
	}
	count := int(binary.LittleEndian.Uint16(b))
	pos := 2
	entries := make([]string, 0, count)
	for i := 0; i < count; i++ {
		if len(b) < pos+2 {
			return nil, 0, errTruncated
		}
		n := int(binary.BigEndian.Uint16(b[pos:]))
		pos += 2
		if len(b) < pos+n {
			return nil, 0, errTruncated
		}
		entries = append(entries, string(b[pos:pos+n]))
		pos += n
	}
	return entries, pos, nil
}

// EncodeOTA2 returns the variable length header of an OTA2 package.
func EncodeOTA2(req *Request, hexDigest string) ([]byte, error) {
	digest, err := disguisedDigest(hexDigest)
	if err != nil {
		return nil, err
	}
	meta, err := EncodeMetadata(req.Metadata)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, MagicLength, MagicLength+8+8+2+2*len(req.Devices)+2+DigestLength+len(meta))
	putMagic(buf, req.BundleMagic())
	buf = binary.LittleEndian.AppendUint64(buf, req.SourceRevision)
	buf = binary.LittleEndian.AppendUint64(buf, req.TargetRevision)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(req.Devices)))
	for _, d := range req.Devices {
		buf = binary.LittleEndian.AppendUint16(buf, d.ID)
	}
	buf = append(buf, req.Critical, 0)
	buf = append(buf, digest...)
	buf = append(buf, meta...)
	return buf, nil
}

// EncodeHeader dispatches to the encoder for the request's format.
func EncodeHeader(req *Request, hexDigest string) ([]byte, error) {
	switch req.Format {
	case FormatRecovery:
		return EncodeRecovery(req, hexDigest)
	case FormatOTA:
		return EncodeOTA(req, hexDigest)
	case FormatOTA2:
		return EncodeOTA2(req, hexDigest)
	}
	return nil, builderr.FormatError{Format: req.Format.String()}
}

// EncodeSignatureHeader returns the fixed block preceding a package
// signature.
func EncodeSignatureHeader(cert CertificateNumber) []byte {
	buf := make([]byte, SignatureHeaderSize)
	putMagic(buf, MagicSignature)
	binary.LittleEndian.PutUint32(buf[MagicLength:], uint32(cert))
	return buf
}

// FixedHeader is the decoded form of an OTA or recovery header. Digest is
// the plain hex MD5 of the body.
type FixedHeader struct {
	Magic  string
	Format Format
	Digest string
	Device uint32

	SourceRevision uint32
	TargetRevision uint32
	Optional       uint8

	Magic1 uint32
	Magic2 uint32
	Minor  uint32
}

// DecodeFixedHeader parses the start of an OTA or recovery package.
func DecodeFixedHeader(b []byte) (*FixedHeader, error) {
	if len(b) < OTAHeaderSize {
		return nil, errTruncated
	}
	h := &FixedHeader{Magic: string(b[:MagicLength])}
	h.Format = FormatForMagic(h.Magic)
	switch h.Format {
	case FormatOTA:
		h.SourceRevision = binary.LittleEndian.Uint32(b[4:])
		h.TargetRevision = binary.LittleEndian.Uint32(b[8:])
		h.Device = uint32(binary.LittleEndian.Uint16(b[12:]))
		h.Optional = b[14]
		h.Digest = revealedDigest(b[otaDigestOffset:])
	case FormatRecovery:
		h.Digest = revealedDigest(b[recoveryDigestOffset:])
		fields := b[recoveryFieldsOffset:]
		h.Magic1 = binary.LittleEndian.Uint32(fields[0:])
		h.Magic2 = binary.LittleEndian.Uint32(fields[4:])
		h.Minor = binary.LittleEndian.Uint32(fields[8:])
		h.Device = binary.LittleEndian.Uint32(fields[12:])
	default:
		return nil, builderr.FormatError{Format: h.Magic}
	}
	return h, nil
}

// OTA2Header is the decoded form of an OTA2 header.
type OTA2Header struct {
	Magic          string
	SourceRevision uint64
	TargetRevision uint64
	Devices        []uint16
	Critical       uint8
	Digest         string
	Metadata       []string
	// Size is the encoded length of the header.
	Size int
}

// DecodeOTA2Header parses an OTA2 header from the start of b.
func DecodeOTA2Header(b []byte) (*OTA2Header, error) {
	const fixed = MagicLength + 8 + 8 + 2
	if len(b) < fixed {
		return nil, errTruncated
	}
	h := &OTA2Header{Magic: string(b[:MagicLength])}
	if FormatForMagic(h.Magic) != FormatOTA2 {
		return nil, builderr.FormatError{Format: h.Magic}
	}
	h.SourceRevision = binary.LittleEndian.Uint64(b[4:])
	h.TargetRevision = binary.LittleEndian.Uint64(b[12:])
	ndev := int(binary.LittleEndian.Uint16(b[20:]))
	pos := fixed
	if len(b) < pos+2*ndev+2+DigestLength {
		return nil, errTruncated
	}
	h.Devices = make([]uint16, ndev)
	for i := range h.Devices {
		h.Devices[i] = binary.LittleEndian.Uint16(b[pos:])
		pos += 2
	}
	h.Critical = b[pos]
	pos += 2
	h.Digest = revealedDigest(b[pos:])
	pos += DigestLength
	meta, n, err := ParseMetadata(b[pos:])
	if err != nil {
		return nil, err
	}
	h.Metadata = meta
	h.Size = pos + n
	return h, nil
}

// SignatureHeader is the decoded signature block of a signed package.
type SignatureHeader struct {
	Certificate CertificateNumber
}

// DecodeSignatureHeader parses the fixed block written by
// EncodeSignatureHeader.
func DecodeSignatureHeader(b []byte) (*SignatureHeader, error) {
	if len(b) < SignatureHeaderSize {
		return nil, errTruncated
	}
	if magic := string(b[:MagicLength]); magic != MagicSignature {
		return nil, fmt.Errorf("not a signature block: %s", strings.ToValidUTF8(magic, "?"))
	}
	return &SignatureHeader{Certificate: CertificateNumber(binary.LittleEndian.Uint32(b[MagicLength:]))}, nil
}
