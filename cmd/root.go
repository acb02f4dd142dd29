// Copyright © 2026 The HYMET Authors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// VERSION is meant for linker injection (-ldflags "-X ...VERSION=..."),
// following the same convention kmcp/cmd/root.go uses for its own VERSION
// package var.
var VERSION = "0.0.0-dev"

// RootCmd is the base command when hymet is called without any subcommand.
var RootCmd = &cobra.Command{
	Use:   "hymet",
	Short: "Reference-guided metagenomic taxonomic classifier",
	Long: fmt.Sprintf(`
    Program: hymet (Hybrid Metagenomic Taxonomic classifier)
    Version: v%s

hymet classifies assembled contigs or raw reads against a sketch-screened,
content-addressed reference cache, resolving each query to a taxon with a
weighted lowest-common-ancestor walk and emitting a CAMI-format abundance
profile.
`, VERSION),
}

// Execute adds every subcommand and runs the selected one. Called once by
// main.main().
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
}

func init() {
	defaultThreads := runtime.NumCPU()

	RootCmd.PersistentFlags().IntP("threads", "j", defaultThreads, "number of CPUs to use")
	RootCmd.PersistentFlags().BoolP("quiet", "q", false, "do not print any verbose information")
}
