package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"propsearch/internal/model"
	"propsearch/pkg/log"

	"go.uber.org/zap"
)

// Case is one ground-truth query
type Case struct {
	Query       string   `json:"query"`
	Expected    []string `json:"expected_properties"`
	Description string   `json:"description,omitempty"`
}

// DefaultCases match data/sample_listings.json
func DefaultCases() []Case {
	return []Case{
		{Query: "I want a luxury condo in Miami with ocean views and pool", Expected: []string{"PROP_001"}, Description: "Miami Beach waterfront condo"},
		{Query: "Family house with 4 bedrooms under 500k", Expected: []string{"PROP_002", "PROP_010"}, Description: "4+ bedroom family homes under $500k"},
		{Query: "Studio apartment in Manhattan for under 350k", Expected: []string{"PROP_003"}, Description: "Chelsea studio"},
		{Query: "Townhouse in San Francisco with fireplace", Expected: []string{"PROP_004"}, Description: "Nob Hill townhouse"},
		{Query: "Pet friendly apartment in Denver with balcony", Expected: []string{"PROP_005"}, Description: "Capitol Hill apartment"},
		{Query: "Beachfront house in California over 2 million", Expected: []string{"PROP_006"}, Description: "La Jolla beachfront house"},
		{Query: "High rise condo in Chicago with gym access", Expected: []string{"PROP_007"}, Description: "River North high-rise"},
		{Query: "Historic house in Portland with original hardwood floors", Expected: []string{"PROP_008"}, Description: "Alberta Arts cottage"},
		{Query: "Modern loft in Brooklyn with exposed brick", Expected: []string{"PROP_009"}, Description: "Williamsburg loft"},
		{Query: "Properties with pools in warm climates", Expected: []string{"PROP_001", "PROP_006", "PROP_010"}, Description: "pools in FL, CA and AZ"},
	}
}

// LoadCases reads a JSON array of cases from path
func LoadCases(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cases: %w", err)
	}
	var cases []Case
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("failed to parse cases in %s: %w", path, err)
	}
	for i, c := range cases {
		if strings.TrimSpace(c.Query) == "" || len(c.Expected) == 0 {
			return nil, fmt.Errorf("case %d needs a query and expected properties", i)
		}
	}
	return cases, nil
}

// Searcher is the search surface under evaluation
type Searcher interface {
	Search(ctx context.Context, query string, topK int, overrides *model.QueryFilter) (*model.SearchResponse, error)
}

// CaseResult is the outcome of one case
type CaseResult struct {
	Query          string   `json:"query"`
	Expected       []string `json:"expected"`
	Returned       []string `json:"returned"`
	Hit            bool     `json:"hit"`
	Recall         float64  `json:"recall"`
	ReciprocalRank float64  `json:"reciprocal_rank"`
	LatencyMS      float64  `json:"latency_ms"`
	Relaxations    int      `json:"relaxations"`
	Degraded       bool     `json:"degraded"`
	Error          string   `json:"error,omitempty"`
}

// Report aggregates a run. Failed cases count as misses.
type Report struct {
	Cases         []CaseResult `json:"cases"`
	Total         int          `json:"total"`
	Errors        int          `json:"errors"`
	HitRate       float64      `json:"hit_rate"`
	MeanRecall    float64      `json:"mean_recall"`
	MRR           float64      `json:"mrr"`
	MeanLatencyMS float64      `json:"mean_latency_ms"`
	P95LatencyMS  float64      `json:"p95_latency_ms"`
}

// Runner executes cases sequentially against a Searcher
type Runner struct {
	searcher Searcher
	topK     int
	logger   *zap.SugaredLogger
}

// NewRunner creates a runner returning topK results per query
func NewRunner(searcher Searcher, topK int) *Runner {
	return &Runner{
		searcher: searcher,
		topK:     topK,
		logger:   log.Named("evaluation"),
	}
}

// Run evaluates every case and aggregates the results
func (r *Runner) Run(ctx context.Context, cases []Case) *Report {
	report := &Report{Total: len(cases), Cases: make([]CaseResult, 0, len(cases))}
	latencies := make([]float64, 0, len(cases))

	for _, c := range cases {
		start := time.Now()
		resp, err := r.searcher.Search(ctx, c.Query, r.topK, nil)
		latency := float64(time.Since(start).Microseconds()) / 1000

		result := CaseResult{Query: c.Query, Expected: c.Expected, Returned: []string{}, LatencyMS: latency}
		if err != nil {
			r.logger.Warnw("Case failed", "query", c.Query, "error", err)
			result.Error = err.Error()
			report.Errors++
		} else {
			for _, res := range resp.Results {
				result.Returned = append(result.Returned, res.Listing.ID())
			}
			result.Relaxations = len(resp.Relaxations)
			result.Degraded = resp.Degraded
			score(&result)
		}

		report.Cases = append(report.Cases, result)
		latencies = append(latencies, latency)
	}

	if n := float64(len(cases)); n > 0 {
		var hits, recall, rr, totalLatency float64
		for _, res := range report.Cases {
			if res.Hit {
				hits++
			}
			recall += res.Recall
			rr += res.ReciprocalRank
			totalLatency += res.LatencyMS
		}
		report.HitRate = hits / n
		report.MeanRecall = recall / n
		report.MRR = rr / n
		report.MeanLatencyMS = totalLatency / n
		report.P95LatencyMS = percentile(latencies, 0.95)
	}

	r.logger.Infow("Evaluation finished",
		"cases", report.Total,
		"hit_rate", report.HitRate,
		"mrr", report.MRR,
		"errors", report.Errors,
	)
	return report
}

// score fills hit, recall and reciprocal rank from Returned and Expected
func score(res *CaseResult) {
	expected := make(map[string]bool, len(res.Expected))
	for _, id := range res.Expected {
		expected[id] = true
	}
	found := 0
	for i, id := range res.Returned {
		if !expected[id] {
			continue
		}
		if found == 0 {
			res.ReciprocalRank = 1 / float64(i+1)
		}
		found++
		// count each expected id once
		expected[id] = false
	}
	res.Hit = found > 0
	if len(res.Expected) > 0 {
		res.Recall = float64(found) / float64(len(res.Expected))
	}
}

// percentile uses the nearest-rank method
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	return sorted[rank]
}

// Print writes a summary table followed by one line per case
func (rep *Report) Print(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "QUERY\tHIT\tRECALL\tRR\tLATENCY (ms)\tRETURNED\n")
	for _, c := range rep.Cases {
		returned := strings.Join(c.Returned, ",")
		if c.Error != "" {
			returned = "error: " + c.Error
		}
		fmt.Fprintf(tw, "%s\t%v\t%.2f\t%.2f\t%.1f\t%s\n", c.Query, c.Hit, c.Recall, c.ReciprocalRank, c.LatencyMS, returned)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\nCases: %d  Errors: %d  Hit rate: %.3f  Mean recall: %.3f  MRR: %.3f  Latency mean/p95: %.1f/%.1f ms\n",
		rep.Total, rep.Errors, rep.HitRate, rep.MeanRecall, rep.MRR, rep.MeanLatencyMS, rep.P95LatencyMS)
	return err
}
