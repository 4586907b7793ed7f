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

package signtar

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	// BlockSize is the unit the index reports file sizes in.
	BlockSize = 64

	// TypeRegular marks a plain file in the index.
	TypeRegular = 128
	// TypeScript marks a file the device should run.
	TypeScript = 129
)

var scriptSuffixes = []string{".sh", ".ffs"}

// IsScript reports whether a file name is one the device executes.
func IsScript(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range scriptSuffixes {
		if len(lower) > len(suffix) && strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// IndexEntry is one line of the bundle index.
type IndexEntry struct {
	Type   int
	Digest string // MD5, lowercase hex
	Path   string // relative to the bundle root, slash separated
	Blocks int64
	Name   string
}

// String formats the entry as an index line, including the newline.
func (e IndexEntry) String() string {
	return fmt.Sprintf("%d %s %s %d %s\n", e.Type, e.Digest, e.Path, e.Blocks, e.Name)
}

// ParseIndex reads index lines written by the builder.
func ParseIndex(r io.Reader) ([]IndexEntry, error) {
	var entries []IndexEntry
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 5)
		if len(fields) != 5 {
			return nil, fmt.Errorf("malformed index line %q", line)
		}
		typ, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("malformed index line %q: %w", line, err)
		}
		blocks, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed index line %q: %w", line, err)
		}
		entries = append(entries, IndexEntry{
			Type:   typ,
			Digest: fields[1],
			Path:   fields[2],
			Blocks: blocks,
			Name:   fields[4],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
