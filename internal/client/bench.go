package client

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/danmuck/edgekv/internal/protocol"
)

// BenchmarkReport summarizes one RunBenchmark pass.
type BenchmarkReport struct {
	Ops           int
	SetDuration   time.Duration
	GetDuration   time.Duration
	SetOpsPerSec  float64
	GetOpsPerSec  float64
	GetAvgLatency time.Duration
	GetP99Latency time.Duration
	Errors        int
}

// RunBenchmark issues n SETs then n GETs over c and writes progress to w.
func RunBenchmark(ctx context.Context, c *Client, n int, w io.Writer) (BenchmarkReport, error) {
	if n <= 0 {
		return BenchmarkReport{}, fmt.Errorf("client: benchmark needs a positive op count, got %d", n)
	}
	report := BenchmarkReport{Ops: n}

	setCmds := make([][][]byte, n)
	getCmds := make([][][]byte, n)
	fmt.Fprintf(w, "Preparing %d commands for benchmarking...\n", n)
	for i := 0; i < n; i++ {
		id := strconv.Itoa(i)
		setCmds[i] = protocol.RequestStrings("SET", "key"+id, "value"+id)
		getCmds[i] = protocol.RequestStrings("GET", "key"+id)
	}
	fmt.Fprintln(w, "--- BENCHMARKING ---")

	start := time.Now()
	for _, cmd := range setCmds {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := report.observe(c.Do(cmd...)); err != nil {
			return report, err
		}
	}
	report.SetDuration = time.Since(start)
	report.SetOpsPerSec = perSecond(n, report.SetDuration)
	fmt.Fprintf(w, "[SET] %d requests in %.2f seconds\n", n, report.SetDuration.Seconds())
	fmt.Fprintf(w, "      Throughput: %.0f ops/sec\n\n", report.SetOpsPerSec)

	latencies := make([]time.Duration, 0, n)
	start = time.Now()
	for _, cmd := range getCmds {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		opStart := time.Now()
		if err := report.observe(c.Do(cmd...)); err != nil {
			return report, err
		}
		latencies = append(latencies, time.Since(opStart))
	}
	report.GetDuration = time.Since(start)
	report.GetOpsPerSec = perSecond(n, report.GetDuration)

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	report.GetAvgLatency = sum / time.Duration(n)
	report.GetP99Latency = latencies[min(n*99/100, n-1)]

	fmt.Fprintf(w, "[GET] %d requests in %.2f seconds\n", n, report.GetDuration.Seconds())
	fmt.Fprintf(w, "      Throughput: %.0f ops/sec\n", report.GetOpsPerSec)
	fmt.Fprintf(w, "      Avg Latency: %.3f ms\n", millis(report.GetAvgLatency))
	fmt.Fprintf(w, "      p99 Latency: %.3f ms\n", millis(report.GetP99Latency))
	if report.Errors > 0 {
		fmt.Fprintf(w, "      Error replies: %d\n", report.Errors)
	}
	return report, nil
}

func (r *BenchmarkReport) observe(v protocol.Value, err error) error {
	if err != nil {
		return err
	}
	if _, isErr := v.(protocol.Error); isErr {
		r.Errors++
	}
	return nil
}

func perSecond(n int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
