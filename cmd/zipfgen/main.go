// Command zipfgen emits a Zipf-distributed sequence of destination queue
// pair indices, for driving a skewed workload shape against the device.
package main

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newZipfgenCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type zipfgenOptions struct {
	s      float64
	v      float64
	imax   uint64
	count  uint64
	seed   int64
	header bool
}

func newZipfgenCmd() *cobra.Command {
	opts := &zipfgenOptions{}
	cmd := &cobra.Command{
		Use:   "zipfgen",
		Short: "Generate a Zipf-distributed workload of destination indices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeZipfWorkload(opts, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.Float64Var(&opts.s, "s", 1.5, "Zipf exponent parameter s, must be > 1")
	flags.Float64Var(&opts.v, "v", 1.0, "Zipf parameter v, must be >= 1")
	flags.Uint64Var(&opts.imax, "imax", 255, "largest destination index the generator can emit")
	flags.Uint64Var(&opts.count, "count", 10000, "number of indices to emit")
	flags.Int64Var(&opts.seed, "seed", 1, "PRNG seed, for a reproducible workload shape")
	flags.BoolVar(&opts.header, "header", false, "also print a histogram summary to stderr")

	return cmd
}

// writeZipfWorkload builds math/rand's Zipf generator once, then streams
// samples.
func writeZipfWorkload(opts *zipfgenOptions, out io.Writer) error {
	src := rand.New(rand.NewSource(opts.seed))
	zipf := rand.NewZipf(src, opts.s, opts.v, opts.imax)

	w := bufio.NewWriter(out)
	defer w.Flush()

	histogram := make(map[uint64]uint64)
	for i := uint64(0); i < opts.count; i++ {
		idx := zipf.Uint64()
		if _, err := fmt.Fprintln(w, idx); err != nil {
			return fmt.Errorf("write index: %w", err)
		}
		if opts.header {
			histogram[idx]++
		}
	}

	if opts.header {
		if err := w.Flush(); err != nil {
			return err
		}
		printHistogram(histogram, opts.count)
	}
	return nil
}

func printHistogram(histogram map[uint64]uint64, total uint64) {
	var top uint64
	var topCount uint64
	for idx, count := range histogram {
		if count > topCount {
			top, topCount = idx, count
		}
	}
	fmt.Fprintf(os.Stderr, "zipfgen: %d distinct destinations, hottest=%d (%.1f%% of samples)\n",
		len(histogram), top, 100*float64(topCount)/float64(total))
}
