package testutil

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/joaohlviana/99novo-sub001/internal/models"
)

// BenchmarkConfig holds configuration for benchmark tests
type BenchmarkConfig struct {
	NumTrainers  int
	Specialties  []string
	MaxTags      int // per trainer and per generated filter
	Concurrency  int
	TestDuration time.Duration
	Seed         int64
}

// DefaultBenchmarkConfig returns a default benchmark configuration
func DefaultBenchmarkConfig() *BenchmarkConfig {
	return &BenchmarkConfig{
		NumTrainers: 1000,
		Specialties: []string{
			"musculacao", "crossfit", "yoga", "pilates", "funcional",
			"corrida", "natacao", "emagrecimento", "hipertrofia", "alongamento",
			"boxe", "muay thai", "spinning", "reabilitacao", "idosos",
		},
		MaxTags:      4,
		Concurrency:  10,
		TestDuration: 2 * time.Second,
		Seed:         42,
	}
}

// BenchmarkHelper generates deterministic trainer data and filters
type BenchmarkHelper struct {
	Config *BenchmarkConfig
	Random *rand.Rand
}

// NewBenchmarkHelper creates a new benchmark helper
func NewBenchmarkHelper(config *BenchmarkConfig) *BenchmarkHelper {
	if config == nil {
		config = DefaultBenchmarkConfig()
	}

	return &BenchmarkHelper{
		Config: config,
		Random: rand.New(rand.NewSource(config.Seed)),
	}
}

func (bh *BenchmarkHelper) pickTags(max int) []string {
	n := 1 + bh.Random.Intn(max)
	perm := bh.Random.Perm(len(bh.Config.Specialties))
	tags := make([]string, 0, n)
	for _, i := range perm[:n] {
		tags = append(tags, bh.Config.Specialties[i])
	}
	return tags
}

// GenerateTrainers creates trainers with random specialties. Roughly one in
// ten has no specialties and some tags are mixed case with padding, the way
// profile forms store them.
func (bh *BenchmarkHelper) GenerateTrainers(count int) []*models.TrainerRow {
	trainers := make([]*models.TrainerRow, count)

	for i := 0; i < count; i++ {
		var specialties models.JSONList
		if bh.Random.Intn(10) > 0 {
			for _, tag := range bh.pickTags(bh.Config.MaxTags) {
				if bh.Random.Intn(4) == 0 {
					tag = fmt.Sprintf(" %s ", strings.ToUpper(tag[:1])+tag[1:])
				}
				specialties = append(specialties, tag)
			}
		}

		trainers[i] = &models.TrainerRow{
			ID:          fmt.Sprintf("trainer-%05d", i),
			Slug:        fmt.Sprintf("trainer-%05d", i),
			Name:        fmt.Sprintf("Trainer %05d", i),
			Specialties: specialties,
			Fields:      models.JSONObject{"avatar": fmt.Sprintf("https://cdn.example/%05d.png", i)},
		}
	}

	return trainers
}

// GenerateFilters creates random search filters over the configured tags
func (bh *BenchmarkHelper) GenerateFilters(count int) []models.SearchFilters {
	filters := make([]models.SearchFilters, count)

	for i := 0; i < count; i++ {
		mode := models.MatchAny
		if bh.Random.Intn(3) == 0 {
			mode = models.MatchAll
		}
		filters[i] = models.SearchFilters{
			Specialties: bh.pickTags(2),
			MatchMode:   mode,
			Limit:       20,
		}
	}

	return filters
}

// LoadTestConfig holds configuration for load testing
type LoadTestConfig struct {
	Duration    time.Duration
	Concurrency int
	RequestRate int // per worker requests per second, 0 is unthrottled
}

// LoadTestRunner runs a function from concurrent workers for a fixed time
type LoadTestRunner struct {
	config *LoadTestConfig
}

// NewLoadTestRunner creates a new load test runner
func NewLoadTestRunner(config *LoadTestConfig) *LoadTestRunner {
	return &LoadTestRunner{config: config}
}

// RequestResult holds the result of a single request
type RequestResult struct {
	Latency time.Duration
	Error   error
}

// LoadTestResults holds the results of a load test
type LoadTestResults struct {
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
	Concurrency    int
	TotalRequests  int64
	SuccessCount   int64
	ErrorCount     int64
	Latencies      []time.Duration
	MinLatency     time.Duration
	MaxLatency     time.Duration
	AvgLatency     time.Duration
	P95Latency     time.Duration
	P99Latency     time.Duration
	RequestsPerSec float64
	ErrorRate      float64
}

// RunLoadTest runs testFunc until the configured duration elapses or ctx is
// done
func (ltr *LoadTestRunner) RunLoadTest(ctx context.Context, testFunc func(context.Context) error) *LoadTestResults {
	results := &LoadTestResults{
		StartTime:   time.Now(),
		Duration:    ltr.config.Duration,
		Concurrency: ltr.config.Concurrency,
	}

	testCtx, cancel := context.WithTimeout(ctx, ltr.config.Duration)
	defer cancel()

	resultsChan := make(chan RequestResult, ltr.config.Concurrency*100)

	var workers sync.WaitGroup
	for i := 0; i < ltr.config.Concurrency; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			ltr.worker(testCtx, testFunc, resultsChan)
		}()
	}

	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for result := range resultsChan {
			results.TotalRequests++
			results.Latencies = append(results.Latencies, result.Latency)

			if result.Error != nil {
				results.ErrorCount++
			} else {
				results.SuccessCount++
			}
		}
	}()

	workers.Wait()
	close(resultsChan)
	<-collected

	results.EndTime = time.Now()
	results.calculateStatistics()

	return results
}

func (ltr *LoadTestRunner) worker(ctx context.Context, testFunc func(context.Context) error, results chan<- RequestResult) {
	var interval time.Duration
	if ltr.config.RequestRate > 0 {
		interval = time.Second / time.Duration(ltr.config.RequestRate)
	}

	for ctx.Err() == nil {
		start := time.Now()
		err := testFunc(ctx)
		results <- RequestResult{Latency: time.Since(start), Error: err}

		if interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(interval):
			}
		}
	}
}

// calculateStatistics fills in latency percentiles and rates
func (results *LoadTestResults) calculateStatistics() {
	if len(results.Latencies) == 0 {
		return
	}

	latencies := make([]time.Duration, len(results.Latencies))
	copy(latencies, results.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	results.MinLatency = latencies[0]
	results.MaxLatency = latencies[len(latencies)-1]

	var total time.Duration
	for _, latency := range latencies {
		total += latency
	}
	results.AvgLatency = total / time.Duration(len(latencies))

	results.P95Latency = latencies[int(float64(len(latencies)-1)*0.95)]
	results.P99Latency = latencies[int(float64(len(latencies)-1)*0.99)]

	results.RequestsPerSec = float64(results.TotalRequests) / results.EndTime.Sub(results.StartTime).Seconds()
	results.ErrorRate = float64(results.ErrorCount) / float64(results.TotalRequests) * 100
}
