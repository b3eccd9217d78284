package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/arohanajit/WSN-Formation/pkg/api"
	"github.com/arohanajit/WSN-Formation/pkg/client"
)

// Configuration options
var (
	targetURL      string
	numWorkers     int
	duration       time.Duration
	viewRatio      float64
	requestsPerSec float64
	reportInterval time.Duration
	outputFile     string
	topology       string
	minReading     int64
	maxReading     int64
)

// Stats collects request outcomes
type Stats struct {
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	ViewRequests    int64
	ReadingRequests int64
	ReroutedHops    int64
	Latencies       []int64 // in microseconds
	StatusCodes     map[int]int64
	StartTime       time.Time
	EndTime         time.Time
	mu              sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		Latencies:   make([]int64, 0, 100000),
		StatusCodes: make(map[int]int64),
		StartTime:   time.Now(),
	}
}

func (s *Stats) Record(latency time.Duration, err error) {
	atomic.AddInt64(&s.TotalRequests, 1)

	code := 200
	var statusErr *client.StatusError
	switch {
	case errors.As(err, &statusErr):
		code = statusErr.StatusCode
	case err != nil:
		code = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.Latencies = append(s.Latencies, latency.Microseconds())
	s.StatusCodes[code]++
	if err == nil {
		s.SuccessRequests++
	} else {
		s.FailedRequests++
	}
}

// percentile returns the p-th latency percentile in milliseconds.
// Latencies must be sorted.
func (s *Stats) percentile(p float64) float64 {
	if len(s.Latencies) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(s.Latencies)))) - 1
	if idx < 0 {
		idx = 0
	}
	return float64(s.Latencies[idx]) / 1000.0
}

func (s *Stats) Summary() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	sort.Slice(s.Latencies, func(i, j int) bool {
		return s.Latencies[i] < s.Latencies[j]
	})

	elapsed := s.EndTime.Sub(s.StartTime).Seconds()
	total := float64(atomic.LoadInt64(&s.TotalRequests))
	summary := map[string]float64{
		"duration_seconds":    elapsed,
		"total_requests":      total,
		"successful_requests": float64(s.SuccessRequests),
		"failed_requests":     float64(s.FailedRequests),
		"view_requests":       float64(atomic.LoadInt64(&s.ViewRequests)),
		"reading_requests":    float64(atomic.LoadInt64(&s.ReadingRequests)),
		"rerouted_readings":   float64(atomic.LoadInt64(&s.ReroutedHops)),
		"p50_latency_ms":      s.percentile(0.50),
		"p90_latency_ms":      s.percentile(0.90),
		"p99_latency_ms":      s.percentile(0.99),
	}
	if elapsed > 0 {
		summary["requests_per_second"] = total / elapsed
	}
	if total > 0 {
		summary["error_rate"] = float64(s.FailedRequests) / total * 100.0
	}
	return summary
}

func writeResults(filename string, summary map[string]float64, codes map[int]int64) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", filename, err)
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	keys := make([]string, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintln(file, "metric,value")
	for _, k := range keys {
		fmt.Fprintf(file, "%s,%.2f\n", k, summary[k])
	}
	for code, count := range codes {
		fmt.Fprintf(file, "status_code_%d,%d\n", code, count)
	}
	return nil
}

// worker injects readings at random nodes or fetches node views until ctx ends
func worker(ctx context.Context, c *client.Client, addrs []uint64, limiter *rate.Limiter, stats *Stats, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		addr := addrs[rng.Intn(len(addrs))]
		start := time.Now()
		var err error
		if rng.Float64() < viewRatio {
			atomic.AddInt64(&stats.ViewRequests, 1)
			_, err = c.GetNode(ctx, addr)
		} else {
			atomic.AddInt64(&stats.ReadingRequests, 1)
			reading := minReading + rng.Int63n(maxReading-minReading+1)
			var delivery api.DeliveryResponse
			delivery, err = c.ReadSensorInput(ctx, addr, reading)
			if err == nil && delivery.Rerouted {
				atomic.AddInt64(&stats.ReroutedHops, 1)
			}
		}
		if ctx.Err() != nil {
			return
		}
		stats.Record(time.Since(start), err)
	}
}

// prepare seeds and forms the network when it is still empty
func prepare(ctx context.Context, c *client.Client) ([]uint64, error) {
	addrs, err := c.ListNodes(ctx)
	if err != nil {
		return nil, err
	}
	if len(addrs) > 0 {
		return addrs, nil
	}

	fmt.Printf("Network is empty, seeding %s topology...\n", topology)
	if _, err := c.Seed(ctx, topology); err != nil {
		return nil, err
	}
	addrs, err = c.ListNodes(ctx)
	if err != nil {
		return nil, err
	}
	sink := addrs[0]
	if err := c.RegisterAsClusterHead(ctx, sink, 0); err != nil {
		return nil, err
	}

	// Beacon, join and elect level by level until no new cluster heads appear
	heads := []uint64{sink}
	for len(heads) > 0 {
		for _, h := range heads {
			if _, err := c.SendBeacon(ctx, h); err != nil {
				return nil, err
			}
		}
		if _, err := c.SendJoinRequests(ctx); err != nil {
			return nil, err
		}
		if _, err := c.IdentifyBackupClusterHeads(ctx); err != nil {
			return nil, err
		}
		next := make([]uint64, 0)
		for _, h := range heads {
			result, err := c.ElectClusterHeads(ctx, h, nil)
			if err != nil {
				return nil, err
			}
			next = append(next, result.ClusterHeads...)
		}
		heads = next
	}
	return addrs, nil
}

func main() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "Target URL of the simulator")
	flag.IntVar(&numWorkers, "workers", 8, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.Float64Var(&viewRatio, "view-ratio", 0.5, "Share of node view requests (0.5 = 50% views, 50% readings)")
	flag.Float64Var(&requestsPerSec, "rps", 0, "Target requests per second (0 = unlimited)")
	flag.DurationVar(&reportInterval, "report-interval", time.Second, "Progress report interval")
	flag.StringVar(&outputFile, "output", "loadtest-results.csv", "Output file for results")
	flag.StringVar(&topology, "topology", "three-layer", "Topology to seed when the network is empty")
	flag.Int64Var(&minReading, "min-reading", 20000, "Smallest injected reading")
	flag.Int64Var(&maxReading, "max-reading", 40000, "Largest injected reading")
	flag.Parse()

	if maxReading < minReading {
		log.Fatalf("max-reading %d is below min-reading %d", maxReading, minReading)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := client.NewClient(targetURL)
	addrs, err := prepare(ctx, c)
	if err != nil {
		log.Fatalf("Failed to prepare network: %v", err)
	}

	fmt.Println("=== Load Test Configuration ===")
	fmt.Printf("Target URL: %s\n", targetURL)
	fmt.Printf("Workers: %d\n", numWorkers)
	fmt.Printf("Duration: %s\n", duration)
	fmt.Printf("Nodes: %d\n", len(addrs))
	fmt.Printf("View Ratio: %.2f\n", viewRatio)
	fmt.Printf("Target RPS: %.0f\n", requestsPerSec)

	limit := rate.Inf
	if requestsPerSec > 0 {
		limit = rate.Limit(requestsPerSec)
	}
	limiter := rate.NewLimiter(limit, numWorkers)

	runCtx, stop := context.WithTimeout(ctx, duration)
	defer stop()

	stats := NewStats()
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			worker(runCtx, c, addrs, limiter, stats, seed)
		}(int64(i) + time.Now().UnixNano())
	}

	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()
	prev := int64(0)
loop:
	for {
		select {
		case <-runCtx.Done():
			break loop
		case <-ticker.C:
			current := atomic.LoadInt64(&stats.TotalRequests)
			fmt.Printf("[%s] Requests: %d (%.2f/sec)\n",
				time.Now().Format("15:04:05"),
				current,
				float64(current-prev)/reportInterval.Seconds())
			prev = current
		}
	}

	wg.Wait()
	stats.EndTime = time.Now()
	summary := stats.Summary()

	fmt.Println("\n=== Load Test Results ===")
	for _, k := range []string{"total_requests", "successful_requests", "failed_requests", "view_requests",
		"reading_requests", "rerouted_readings", "requests_per_second", "error_rate",
		"p50_latency_ms", "p90_latency_ms", "p99_latency_ms"} {
		fmt.Printf("%s: %.2f\n", k, summary[k])
	}

	if err := writeResults(outputFile, summary, stats.StatusCodes); err != nil {
		log.Printf("Error writing results to file: %v", err)
	} else {
		fmt.Printf("\nResults written to %s\n", outputFile)
	}
}
