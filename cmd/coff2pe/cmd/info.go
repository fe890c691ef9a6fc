/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"os"
	"path/filepath"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/blacktop/coff2pe/internal/colors"
	"github.com/blacktop/coff2pe/internal/commands/obj"
	"github.com/blacktop/coff2pe/internal/magic"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(infoCmd)

	infoCmd.Flags().BoolP("header", "d", false, "Print the COFF file header")
	infoCmd.Flags().BoolP("sections", "s", false, "Print the section headers")
	infoCmd.Flags().BoolP("symbols", "n", false, "Print the symbol table")
	infoCmd.Flags().BoolP("hex", "x", false, "Hexdump auxiliary symbol records")
	infoCmd.Flags().BoolP("json", "j", false, "Print as JSON")
	viper.BindPFlag("info.header", infoCmd.Flags().Lookup("header"))
	viper.BindPFlag("info.sections", infoCmd.Flags().Lookup("sections"))
	viper.BindPFlag("info.symbols", infoCmd.Flags().Lookup("symbols"))
	viper.BindPFlag("info.hex", infoCmd.Flags().Lookup("hex"))
	viper.BindPFlag("info.json", infoCmd.Flags().Lookup("json"))
}

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:     "info <OBJECT>",
	Aliases: []string{"i"},
	Short:   "Dump the headers, sections and symbols of a COFF object",
	Example: heredoc.Doc(`
		# Dump everything
		❯ coff2pe info main.obj

		# Only the symbol table with aux records hexdumped
		❯ coff2pe info -n -x main.obj

		# Output as JSON
		❯ coff2pe info --json main.obj`),
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		infile := filepath.Clean(args[0])

		if ok, err := magic.IsCOFF(infile); !ok {
			return err
		}

		return obj.Info(infile, &obj.InfoConfig{
			Header:   viper.GetBool("info.header"),
			Sections: viper.GetBool("info.sections"),
			Symbols:  viper.GetBool("info.symbols"),
			Hex:      viper.GetBool("info.hex"),
			JSON:     viper.GetBool("info.json"),
			Color:    colors.Enabled(),
			Out:      os.Stdout,
		})
	},
}
