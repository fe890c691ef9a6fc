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

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/blacktop/coff2pe/internal/commands/obj"
	"github.com/blacktop/coff2pe/internal/config"
	"github.com/blacktop/coff2pe/pkg/pe"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(linkCmd)

	linkCmd.Flags().StringP("output", "o", config.DefaultOutput, "Output PE image (overwritten for every object)")
	linkCmd.Flags().String("stack-reserve", "1MiB", "Stack reserve size")
	linkCmd.Flags().String("stack-commit", "4KiB", "Stack commit size")
	linkCmd.Flags().Bool("trace", true, "Trace decoded headers, sections and symbols to stderr")
	linkCmd.Flags().BoolP("hex", "x", false, "Hexdump auxiliary symbol records in the trace")
	linkCmd.Flags().BoolP("keep-going", "k", false, "Continue with the next object after a failure")
	viper.BindPFlag("link.output", linkCmd.Flags().Lookup("output"))
	viper.BindPFlag("link.stack-reserve", linkCmd.Flags().Lookup("stack-reserve"))
	viper.BindPFlag("link.stack-commit", linkCmd.Flags().Lookup("stack-commit"))
	viper.BindPFlag("link.trace", linkCmd.Flags().Lookup("trace"))
	viper.BindPFlag("link.hex", linkCmd.Flags().Lookup("hex"))
	viper.BindPFlag("link.keep-going", linkCmd.Flags().Lookup("keep-going"))
}

// linkCmd represents the link command
var linkCmd = &cobra.Command{
	Use:     "link <OBJECT>...",
	Short:   "Decode COFF objects and write a header-only PE32+ image",
	Example: heredoc.Doc(`
		# Convert an object and trace its headers and symbols
		❯ coff2pe link -o out.exe main.obj

		# Hexdump auxiliary symbol records while tracing
		❯ coff2pe link --hex main.obj

		# Use a larger stack and continue past bad objects
		❯ coff2pe link --stack-reserve 8MiB --stack-commit 64KiB -k a.obj b.obj`),
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {

		conf, err := config.LoadConfig()
		if err != nil {
			return err
		}

		lconf := &obj.LinkConfig{
			Output:    conf.Link.Output,
			Image:     conf.ImageConfig(),
			Stub:      pe.MSDOSStub,
			Hex:       viper.GetBool("link.hex"),
			KeepGoing: viper.GetBool("link.keep-going"),
		}
		if conf.Link.Trace {
			lconf.Trace = os.Stderr
		}

		return obj.Link(args, lconf)
	},
}
