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

package devicescmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kindlemodding/kindletool/cmdline/shared"
	"github.com/kindlemodding/kindletool/lib/kindleupdate"
)

var DevicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the device codes accepted by create",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listDevices(os.Stdout)
	},
}

func init() {
	shared.RootCmd.AddCommand(DevicesCmd)
}

func listDevices(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tID\tMAGIC\tMODEL")
	for _, d := range kindleupdate.Devices {
		magic := d.Magic
		if magic == "" {
			magic = "-"
		}
		fmt.Fprintf(tw, "%s\t0x%02X\t%s\t%s\n", d.Code, d.ID, magic, d.Name)
	}
	return tw.Flush()
}
