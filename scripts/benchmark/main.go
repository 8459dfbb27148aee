package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
)

// CLI flags
var (
	apiURL  = flag.String("api-url", "http://localhost:8080", "pricewatch API base URL")
	apiKey  = flag.String("api-key", "", "API key for authenticated requests")
	runs    = flag.Int("runs", 1, "Number of runs per URL for averaging")
	urlFile = flag.String("urls", "", "File with one product URL per line (default: built-in set)")
	output  = flag.String("output", "benchmark-results.json", "JSON output file path")
)

// Default product URLs, one per origin retailer.
var defaultURLs = []string{
	"https://www.amazon.in/dp/B0CHX1W1XY",
	"https://www.flipkart.com/apple-iphone-15-black-128-gb/p/itm6ac6485515ae4",
	"https://www.croma.com/apple-iphone-15-128gb-black-/p/300652",
}

// --- Request / Response types (mirrors models package) ---

type compareRequest struct {
	URL     string `json:"url"`
	Timeout int    `json:"timeout"`
}

type compareResponse struct {
	Success     bool              `json:"success"`
	ProductName string            `json:"product_name"`
	Prices      map[string]string `json:"prices"`
	Timing      timingInfo        `json:"timing"`
	Error       *errorDetail      `json:"error,omitempty"`
}

type timingInfo struct {
	TotalMs int64 `json:"total_ms"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// --- Benchmark result types ---

type runResult struct {
	Run         int               `json:"run"`
	TotalMs     int64             `json:"total_ms"`
	ProductName string            `json:"product_name"`
	Prices      map[string]string `json:"prices"`
	PricesFound int               `json:"prices_found"`
	Success     bool              `json:"success"`
	Error       string            `json:"error,omitempty"`
}

type urlAverages struct {
	TotalMs     float64 `json:"total_ms"`
	PricesFound float64 `json:"prices_found"`
}

type urlResult struct {
	URL      string       `json:"url"`
	Runs     []runResult  `json:"runs"`
	Averages *urlAverages `json:"averages,omitempty"`
}

type benchmarkReport struct {
	Timestamp  string      `json:"timestamp"`
	APIURL     string      `json:"api_url"`
	RunsPerURL int         `json:"runs_per_url"`
	Results    []urlResult `json:"results"`
}

func main() {
	flag.Parse()

	urls, err := loadURLs(*urlFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("=== pricewatch Benchmark ===")
	fmt.Printf("API URL:   %s\n", *apiURL)
	fmt.Printf("URLs:      %d\n", len(urls))
	fmt.Printf("Runs/URL:  %d\n", *runs)
	fmt.Printf("Output:    %s\n", *output)
	fmt.Println()

	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		fmt.Fprintf(os.Stderr, "Make sure pricewatch is running (e.g. make run)\n")
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		APIURL:     *apiURL,
		RunsPerURL: *runs,
	}

	for _, u := range urls {
		fmt.Printf("Comparing %s ...\n", u)
		ur := urlResult{URL: u}

		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			rr := benchmarkURL(u, i)
			if rr.Success {
				fmt.Printf("OK  %dms  %d/%d prices  %q\n", rr.TotalMs, rr.PricesFound, len(rr.Prices), rr.ProductName)
			} else {
				fmt.Printf("FAILED: %s\n", rr.Error)
			}
			ur.Runs = append(ur.Runs, rr)
		}

		ur.Averages = computeAverages(ur.Runs)
		report.Results = append(report.Results, ur)
		fmt.Println()
	}

	printTable(report.Results)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func loadURLs(path string) ([]string, error) {
	if path == "" {
		return defaultURLs, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("%s contains no URLs", path)
	}
	return urls, nil
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func benchmarkURL(url string, run int) runResult {
	rr := runResult{Run: run}

	bodyBytes, err := json.Marshal(compareRequest{URL: url, Timeout: 180})
	if err != nil {
		rr.Error = fmt.Sprintf("marshal error: %v", err)
		return rr
	}

	req, err := http.NewRequest(http.MethodPost, *apiURL+"/api/v1/compare", bytes.NewReader(bodyBytes))
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	client := &http.Client{Timeout: 200 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()

	var cr compareResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}

	rr.Success = cr.Success
	rr.TotalMs = cr.Timing.TotalMs
	rr.ProductName = cr.ProductName
	rr.Prices = cr.Prices
	rr.PricesFound = countPrices(cr.Prices)
	if cr.Error != nil {
		rr.Error = cr.Error.Message
	}
	return rr
}

// countPrices counts entries holding a number rather than a sentinel.
func countPrices(prices map[string]string) int {
	n := 0
	for _, v := range prices {
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			n++
		}
	}
	return n
}

func computeAverages(runs []runResult) *urlAverages {
	var successCount int
	var avg urlAverages

	for _, r := range runs {
		if !r.Success {
			continue
		}
		successCount++
		avg.TotalMs += float64(r.TotalMs)
		avg.PricesFound += float64(r.PricesFound)
	}

	if successCount == 0 {
		return nil
	}

	n := float64(successCount)
	avg.TotalMs /= n
	avg.PricesFound /= n
	return &avg
}

func printTable(results []urlResult) {
	fmt.Println(strings.Repeat("─", 85))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "URL\tAvg Latency\tPrices Found\tRuns OK\n")
	fmt.Fprintf(w, "───\t───────────\t────────────\t───────\n")

	for _, r := range results {
		if r.Averages == nil {
			fmt.Fprintf(w, "%s\tFAILED\t-\t0/%d\n", truncateURL(r.URL, 50), len(r.Runs))
			continue
		}
		fmt.Fprintf(w, "%s\t%dms\t%.1f\t%d/%d\n",
			truncateURL(r.URL, 50),
			int64(r.Averages.TotalMs),
			r.Averages.PricesFound,
			successfulRuns(r.Runs),
			len(r.Runs),
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 85))
}

func successfulRuns(runs []runResult) int {
	n := 0
	for _, r := range runs {
		if r.Success {
			n++
		}
	}
	return n
}

func truncateURL(u string, max int) string {
	if len(u) <= max {
		return u
	}
	return u[:max-3] + "..."
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
