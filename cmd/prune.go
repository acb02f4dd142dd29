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

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hymet-project/hymet/internal/cache"
	cfgpkg "github.com/hymet-project/hymet/internal/config"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Evict cache entries by age or total size",
	Run: func(cmd *cobra.Command, args []string) {
		pruneMain(cmd)
	},
}

func init() {
	pruneCmd.Flags().String("cache-root", "", "reference cache root (defaults to CACHE_ROOT or the per-user cache directory)")
	pruneCmd.Flags().Duration("max-age", 0, "evict entries older than this duration (0 disables the age bound)")
	pruneCmd.Flags().String("max-size", "", "evict oldest entries until the cache is under this size, e.g. 50GiB (empty disables the size bound)")

	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the reference cache",
	}
	cacheCmd.AddCommand(pruneCmd)
	RootCmd.AddCommand(cacheCmd)
}

func pruneMain(cmd *cobra.Command) {
	root, _ := cmd.Flags().GetString("cache-root")
	if root == "" {
		root = os.Getenv("CACHE_ROOT")
	}
	if root == "" {
		root = cfgpkg.Default().CacheRoot
	}
	maxAge, _ := cmd.Flags().GetDuration("max-age")
	maxSizeStr, _ := cmd.Flags().GetString("max-size")

	var maxSize uint64
	if maxSizeStr != "" {
		parsed, err := humanize.ParseBytes(maxSizeStr)
		if err != nil {
			log.Errorf("invalid --max-size %q: %v", maxSizeStr, err)
			os.Exit(2)
		}
		maxSize = parsed
	}

	n, err := cache.Prune(root, cache.PruneOptions{
		MaxAge:       maxAge,
		MaxTotalSize: int64(maxSize),
		Log:          log.Infof,
	})
	if err != nil {
		log.Errorf("pruning %s: %v", root, err)
		os.Exit(2)
	}
	fmt.Printf("evicted %d cache entries from %s\n", n, root)
}
