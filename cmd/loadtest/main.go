// Command loadtest drives the ingestion service with log lines, either
// over HTTP as NDJSON batches or straight onto the raw records Kafka topic,
// and prints throughput and latency percentiles.
//
// Usage:
//
//	go run ./cmd/loadtest [-url http://localhost:8081] [-batch 100] [file...]
//	go run ./cmd/loadtest -kafka -brokers localhost:9092 [file...]
package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/kafka"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	BatchSize   int
	Lines       []string
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	recordsSent   atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, records, statusCode int, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		s.countStatus(0)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
		s.recordsSent.Add(int64(records))
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()
	s.countStatus(statusCode)
}

func (s *Stats) countStatus(statusCode int) {
	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

// sender delivers one batch and reports the resulting status code.
type sender func(ctx context.Context, batch []string) (int, error)

func main() {
	baseURL := flag.String("url", "http://localhost:8081", "base URL of the ingestion service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	batch := flag.Int("batch", 100, "records per request")
	useKafka := flag.Bool("kafka", false, "publish to kafka instead of posting over HTTP")
	brokers := flag.String("brokers", "localhost:9092", "comma separated kafka brokers")
	topic := flag.String("topic", "raw-records", "kafka topic for raw records")
	flag.Parse()

	lines, err := loadLines(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read input: %v\n", err)
		os.Exit(1)
	}

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		BatchSize:   max(*batch, 1),
		Lines:       lines,
	}

	var send sender
	target := cfg.BaseURL
	if *useKafka {
		producer := kafka.NewProducer(config.KafkaConfig{Brokers: strings.Split(*brokers, ",")}, *topic)
		defer producer.Close()
		send = kafkaSender(producer)
		target = "kafka://" + *brokers + "/" + *topic
	} else {
		send = httpSender(cfg)
	}

	fmt.Println("=== Log Ingest Load Test ===")
	fmt.Printf("Target:      %s\n", target)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Batch:       %d records\n", cfg.BatchSize)
	fmt.Printf("Lines:       %d unique\n", len(cfg.Lines))
	fmt.Println()

	stats := runLoadTest(cfg, send)
	printReport(stats, cfg.Duration)
}

// loadLines reads the non-blank lines of paths, or synthesizes access log
// lines when none are given.
func loadLines(paths []string) ([]string, error) {
	if len(paths) == 0 {
		lines := make([]string, 0, 64)
		for i := 0; i < 64; i++ {
			lines = append(lines, fmt.Sprintf(
				`{"level":"info","msg":"GET /api/v1/items/%d served","status":200,"host":"web-%d"}`, i, i%4))
		}
		return lines, nil
	}
	var lines []string
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, err
		}
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 64*1024), 1<<20)
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" {
				lines = append(lines, line)
			}
		}
		f.Close()
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("no lines in %s", strings.Join(paths, ", "))
	}
	return lines, nil
}

func httpSender(cfg Config) sender {
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	endpoint := cfg.BaseURL + "/api/v1/records"
	return func(ctx context.Context, batch []string) (int, error) {
		body := strings.Join(batch, "\n") + "\n"
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(body))
		if err != nil {
			return 0, err
		}
		req.Header.Set("Content-Type", ingest.NDJSONContentType)
		resp, err := client.Do(req)
		if err != nil {
			return 0, err
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return resp.StatusCode, nil
	}
}

func kafkaSender(p *kafka.Producer) sender {
	return func(ctx context.Context, batch []string) (int, error) {
		recs := make([]kafka.Record, len(batch))
		for i, line := range batch {
			recs[i] = kafka.Record{Value: []byte(line)}
		}
		if err := p.PublishBatch(ctx, recs); err != nil {
			return 0, err
		}
		return http.StatusAccepted, nil
	}
}

func runLoadTest(cfg Config, send sender) *Stats {
	stats := NewStats()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			lineIdx := workerID * cfg.BatchSize
			batch := make([]string, cfg.BatchSize)

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				for i := range batch {
					batch[i] = cfg.Lines[lineIdx%len(cfg.Lines)]
					lineIdx++
				}

				start := time.Now()
				status, err := send(ctx, batch)
				duration := time.Since(start)
				if ctx.Err() != nil {
					return
				}
				stats.RecordRequest(duration, len(batch), status, err)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Records Sent:    %d\n", stats.recordsSent.Load())
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errors)

	if total > 0 {
		errorRate := float64(errors) / float64(total) * 100
		fmt.Printf("Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Printf("Requests/sec:    %.2f\n", rps)
		fmt.Printf("Records/sec:     %.2f\n", float64(stats.recordsSent.Load())/duration.Seconds())
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])

		var sumSquared float64
		avgFloat := float64(avg)
		for _, l := range latencies {
			diff := float64(l) - avgFloat
			sumSquared += diff * diff
		}
		stddev := time.Duration(math.Sqrt(sumSquared / float64(len(latencies))))
		fmt.Printf("StdDev: %s\n", stddev)
	}

	fmt.Println()
	fmt.Println("=== Status Codes (0 = transport or kafka error) ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		count := stats.statusCodes[code].Load()
		fmt.Printf("  %d: %d\n", code, count)
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
