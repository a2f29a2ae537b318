// Command bench drives a loopback post_send/post_recv workload against the
// simulated device and reports throughput and completion latency.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/sdk/metric"

	"github.com/example/rnicsim/internal/engine"
	"github.com/example/rnicsim/rdma"
)

func main() {
	if err := newBenchCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type benchOptions struct {
	maxQPs           int
	maxCQs           int
	maxMRs           int
	maxPDs           int
	enableMiddle     bool
	deviceDelayNs    uint32
	middleDelayNs    uint32
	hostDelayNs      uint32
	duration         time.Duration
	payloadSize      int
	pollBackoffUs    int
	workers          int
	enableOTelExport bool
}

func newBenchCmd() *cobra.Command {
	opts := &benchOptions{}
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark loopback post_send/post_recv throughput and latency",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(opts)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&opts.maxQPs, "max-qps", 256, "device queue pair capacity (device tier)")
	flags.IntVar(&opts.maxCQs, "max-cqs", 256, "device completion queue capacity (device tier)")
	flags.IntVar(&opts.maxMRs, "max-mrs", 1024, "device memory region capacity (device tier)")
	flags.IntVar(&opts.maxPDs, "max-pds", 64, "device protection domain capacity (device tier)")
	flags.BoolVar(&opts.enableMiddle, "enable-middle-cache", true, "enable the middle residency cache tier")
	flags.Uint32Var(&opts.deviceDelayNs, "device-delay-ns", 0, "simulated device-tier access delay, in nanoseconds")
	flags.Uint32Var(&opts.middleDelayNs, "middle-delay-ns", 0, "simulated middle-tier access delay, in nanoseconds")
	flags.Uint32Var(&opts.hostDelayNs, "host-delay-ns", 0, "simulated host-swap-tier access delay, in nanoseconds")
	flags.DurationVar(&opts.duration, "duration", 5*time.Second, "benchmark run duration")
	flags.IntVar(&opts.payloadSize, "payload-size", 64, "send payload size, in bytes")
	flags.IntVar(&opts.pollBackoffUs, "poll-backoff-us", 5, "poll_cq busy-wait backoff, in microseconds")
	flags.IntVar(&opts.workers, "workers", 1, "number of concurrent sender queue pairs")
	flags.BoolVar(&opts.enableOTelExport, "otel", false, "wire an OpenTelemetry SDK MeterProvider and export counters through it")

	return cmd
}

func runBench(opts *benchOptions) error {
	tuning := engine.NewTuning()
	tuning.SetSimulationMode(opts.enableMiddle, opts.hostDelayNs, opts.deviceDelayNs, opts.middleDelayNs)

	deviceCfg := rdma.Config{MaxQPs: opts.maxQPs, MaxCQs: opts.maxCQs, MaxMRs: opts.maxMRs, MaxPDs: opts.maxPDs}
	if opts.enableOTelExport {
		provider := metric.NewMeterProvider()
		defer provider.Shutdown(context.Background())

		deviceMetrics, err := rdma.NewOTelDeviceMetrics(rdma.OTelDeviceMetricsOptions{MeterProvider: provider})
		if err != nil {
			return fmt.Errorf("build otel device metrics: %w", err)
		}
		deviceCfg.Metrics = deviceMetrics
	}

	registry := rdma.NewRegistry()
	device := rdma.NewDevice(registry, tuning, deviceCfg)
	defer device.Close()

	type worker struct {
		qp     *rdma.QueuePair
		sendCQ *rdma.CompletionQueue
		recvCQ *rdma.CompletionQueue
		buf    []byte
	}

	workers := make([]*worker, opts.workers)
	for i := range workers {
		sendCQ, err := device.CreateCQ(4096)
		if err != nil {
			return fmt.Errorf("create send cq: %w", err)
		}
		recvCQ, err := device.CreateCQ(4096)
		if err != nil {
			return fmt.Errorf("create recv cq: %w", err)
		}
		qp, err := device.CreateQP(rdma.QPInitAttr{MaxSendWR: 4096, MaxRecvWR: 4096, SendCQ: sendCQ, RecvCQ: recvCQ})
		if err != nil {
			return fmt.Errorf("create qp: %w", err)
		}
		info, err := qp.Info()
		if err != nil {
			return fmt.Errorf("qp info: %w", err)
		}
		for _, s := range []rdma.QPState{rdma.QPStateInit, rdma.QPStateRTR, rdma.QPStateRTS} {
			if err := qp.Modify(s); err != nil {
				return fmt.Errorf("modify qp to %s: %w", s, err)
			}
		}
		if err := qp.Connect(rdma.QPInfo{QPNum: info.QPNum}); err != nil {
			return fmt.Errorf("connect_qp (loopback): %w", err)
		}
		workers[i] = &worker{qp: qp, sendCQ: sendCQ, recvCQ: recvCQ, buf: make([]byte, opts.payloadSize)}
	}

	var (
		mu         sync.Mutex
		latencies  []time.Duration
		totalSends uint64
	)
	backoff := time.Duration(opts.pollBackoffUs) * time.Microsecond

	var wg sync.WaitGroup
	stop := time.Now().Add(opts.duration)
	for _, w := range workers {
		wg.Add(1)
		go func(w *worker) {
			defer wg.Done()
			recvBuf := make([]byte, opts.payloadSize)
			var local []time.Duration
			var localSends uint64
			for time.Now().Before(stop) {
				if err := w.qp.PostRecv(rdma.WorkRequest{LocalAddr: recvBuf, Length: uint32(len(recvBuf))}); err != nil {
					continue
				}
				start := time.Now()
				if err := w.qp.PostSend(rdma.WorkRequest{Opcode: rdma.OpSend, LocalAddr: w.buf, Length: uint32(len(w.buf)), Signaled: true}); err != nil {
					continue
				}
				for {
					if entries, err := w.recvCQ.Poll(1); err == nil && len(entries) > 0 {
						local = append(local, time.Since(start))
						localSends++
						break
					}
					time.Sleep(backoff)
				}
				w.sendCQ.Poll(16)
			}
			mu.Lock()
			latencies = append(latencies, local...)
			totalSends += localSends
			mu.Unlock()
		}(w)
	}
	wg.Wait()

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	elapsed := opts.duration.Seconds()
	fmt.Printf("ops=%d elapsed=%s throughput=%.0f ops/s\n", totalSends, opts.duration, float64(totalSends)/elapsed)
	if n := len(latencies); n > 0 {
		fmt.Printf("latency p50=%s p99=%s max=%s\n", latencies[n/2], latencies[n*99/100], latencies[n-1])
	}
	return nil
}
