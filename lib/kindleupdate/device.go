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
	"strings"

	"github.com/kindlemodding/kindletool/lib/builderr"
)

// Device is a target model an update can be restricted to.
type Device struct {
	Code string // short name used on the command line
	ID   uint16 // value embedded in headers
	Name string
	// Magic is the bundle magic number selecting a device generation, if
	// any.
	Magic string
}

// Devices lists every known model in ID order.
var Devices = []Device{
	{"k1", 0x01, "Kindle 1", ""},
	{"k2", 0x02, "Kindle 2 US", ""},
	{"k2i", 0x03, "Kindle 2 International", ""},
	{"dx", 0x04, "Kindle DX US", ""},
	{"dxi", 0x05, "Kindle DX International", ""},
	{"k3g", 0x06, "Kindle 3 Wifi+3G", ""},
	{"k3w", 0x08, "Kindle 3 Wifi", ""},
	{"dxg", 0x09, "Kindle DX Graphite", ""},
	{"k3gb", 0x0A, "Kindle 3 Wifi+3G Europe", ""},
	{"k4", 0x0E, "Kindle 4 Non-Touch", MagicOTA2},
	{"k5g", 0x0F, "Kindle 5 Touch Wifi+3G", MagicOTA2Touch},
	{"k5w", 0x11, "Kindle 5 Touch Wifi", MagicOTA2Touch},
}

// LookupDevice finds a device by its exact code.
func LookupDevice(code string) (Device, error) {
	lower := strings.ToLower(code)
	for _, d := range Devices {
		if d.Code == lower {
			return d, nil
		}
	}
	return Device{}, builderr.ValidationError{Field: "device", Reason: fmt.Sprintf("unknown device %q", code)}
}

// LookupDevices resolves a list of device codes, preserving order.
func LookupDevices(codes []string) ([]Device, error) {
	devices := make([]Device, 0, len(codes))
	for _, code := range codes {
		d, err := LookupDevice(code)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, nil
}
