package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	totalBooks  int
	totalReader int
)

// Metrics
var (
	totalRequests uint64
	borrowed201   uint64 // Loans created
	returned200   uint64 // Loans closed
	precond422    uint64 // Precondition failures (unavailable, caps, credit)
	conflict409   uint64 // Concurrent-mutation aborts
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.IntVar(&totalBooks, "books", 500, "Number of seeded books")
	flag.IntVar(&totalReader, "readers", 200, "Number of seeded readers")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

// worker borrows a book and, on success, returns it immediately. The hotspot
// workload concentrates borrows on one book to stress the availability race.
func worker(wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		readerNo := fmt.Sprintf("R%05d", rand.Intn(totalReader))
		bookID := generateBookID()

		payload := map[string]interface{}{
			"reader_no": readerNo,
			"book_id":   bookID,
		}
		body, _ := json.Marshal(payload)

		req, _ := http.NewRequest("POST", targetURL+"/api/v1/loans", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case 201:
			atomic.AddUint64(&borrowed201, 1)
			var created struct {
				LoanNo string `json:"loan_no"`
			}
			json.NewDecoder(resp.Body).Decode(&created)
			resp.Body.Close()
			returnLoan(client, created.LoanNo)
		case 422:
			atomic.AddUint64(&precond422, 1)
			resp.Body.Close()
		case 409:
			atomic.AddUint64(&conflict409, 1)
			resp.Body.Close()
		default:
			atomic.AddUint64(&failOther, 1)
			resp.Body.Close()
		}
	}
}

func returnLoan(client *http.Client, loanNo string) {
	if loanNo == "" {
		return
	}
	req, _ := http.NewRequest("POST", targetURL+"/api/v1/loans/"+loanNo+"/return", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		atomic.AddUint64(&failOther, 1)
		return
	}
	atomic.AddUint64(&totalRequests, 1)
	if resp.StatusCode == 200 {
		atomic.AddUint64(&returned200, 1)
	} else {
		atomic.AddUint64(&failOther, 1)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func generateBookID() int64 {
	if workload == "hotspot" {
		// Hotspot: 90% of borrows target book 1
		if rand.Float32() < 0.90 {
			return 1
		}
	}
	return int64(rand.Intn(totalBooks) + 1)
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	b201 := atomic.LoadUint64(&borrowed201)
	r200 := atomic.LoadUint64(&returned200)
	p422 := atomic.LoadUint64(&precond422)
	c409 := atomic.LoadUint64(&conflict409)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()
	conflictRate := float64(c409) / float64(total) * 100

	results := map[string]interface{}{
		"workload":          workload,
		"duration_sec":      d.Seconds(),
		"total_requests":    total,
		"throughput_tps":    tps,
		"loans_created":     b201,
		"loans_returned":    r200,
		"precond_failures":  p422,
		"conflicts":         c409,
		"conflict_rate_pct": conflictRate,
		"errors":            fErr,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	// Also save to file
	filename := fmt.Sprintf("results_%s.json", workload)
	file, _ := os.Create(filename)
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
