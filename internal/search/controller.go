package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/joaohlviana/99novo-sub001/internal/models"
)

// DefaultDebounce is the delay between the last Search call and execution
const DefaultDebounce = 300 * time.Millisecond

const subscriberBuffer = 16

// State is the lifecycle position of a Controller
type State string

const (
	StateIdle       State = "idle"
	StateDebouncing State = "debouncing"
	StateInFlight   State = "in_flight"
	StateSuccess    State = "success"
	StateError      State = "error"
)

// Engine is what a Controller needs from the search service
type Engine interface {
	Normalize(filters models.SearchFilters) (models.SearchFilters, error)
	Lookup(ctx context.Context, filters models.SearchFilters) (*models.SearchOutcome, bool)
	Execute(ctx context.Context, filters models.SearchFilters) *models.SearchOutcome
	RefreshMaterializedView(ctx context.Context) error
}

// Snapshot is the observable state of a Controller
type Snapshot struct {
	State             State                        `json:"state"`
	Filters           models.SearchFilters         `json:"filters"`
	Trainers          []models.TrainerSearchResult `json:"trainers"`
	TotalCount        int                          `json:"totalCount"`
	Error             *string                      `json:"error,omitempty"`
	Source            string                       `json:"source,omitempty"`
	Cached            bool                         `json:"cached"`
	CacheHits         int                          `json:"cacheHits"`
	LastExecutionTime time.Duration                `json:"-"`
	LastExecutionMS   int64                        `json:"lastExecutionTimeMs"`
	Generation        uint64                       `json:"generation"`
}

// Controller coalesces rapid filter changes into one search. Every Search
// call advances a generation counter; a result is applied only if no newer
// call was made while it was being computed.
type Controller struct {
	engine   Engine
	debounce time.Duration
	logger   *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	state       Snapshot
	generation  uint64
	timer       *time.Timer
	subscribers map[int]chan Snapshot
	nextSubID   int
	closed      bool
}

// NewController creates an idle controller. A non-positive debounce means
// DefaultDebounce.
func NewController(engine Engine, debounce time.Duration, logger *logrus.Logger) *Controller {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Controller{
		engine:      engine,
		debounce:    debounce,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		state:       Snapshot{State: StateIdle, Trainers: []models.TrainerSearchResult{}},
		subscribers: make(map[int]chan Snapshot),
	}
}

// Search schedules a search for filters after the debounce delay, replacing
// any pending one
func (c *Controller) Search(filters models.SearchFilters) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.generation++
	gen := c.generation
	if c.timer != nil {
		c.timer.Stop()
	}

	c.state.State = StateDebouncing
	c.state.Filters = filters
	c.state.Generation = gen
	c.timer = time.AfterFunc(c.debounce, func() {
		c.run(gen, filters)
	})
	c.publishLocked()
}

// ClearResults resets filters, results and error. Pending and in-flight
// searches are discarded; the cache is left alone.
func (c *Controller) ClearResults() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	c.state = Snapshot{
		State:             StateIdle,
		Trainers:          []models.TrainerSearchResult{},
		CacheHits:         c.state.CacheHits,
		LastExecutionTime: c.state.LastExecutionTime,
		LastExecutionMS:   c.state.LastExecutionMS,
		Generation:        c.generation,
	}
	c.publishLocked()
}

// RefreshMV refreshes the materialized view; on success the shared cache is
// cleared by the engine
func (c *Controller) RefreshMV(ctx context.Context) error {
	return c.engine.RefreshMaterializedView(ctx)
}

// Snapshot returns the current state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe returns a channel receiving every state change and a function
// that removes the subscription. Slow subscribers lose the oldest updates.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Snapshot, subscriberBuffer)
	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subscribers[id]; ok {
				delete(c.subscribers, id)
				close(sub)
			}
		})
	}
}

// Close stops pending work and closes every subscription
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.generation++
	if c.timer != nil {
		c.timer.Stop()
	}
	c.cancel()

	for id, ch := range c.subscribers {
		delete(c.subscribers, id)
		close(ch)
	}
}

func (c *Controller) run(gen uint64, filters models.SearchFilters) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorf("Search panicked: %v", r)
			msg := fmt.Sprintf("unexpected search error: %v", r)
			c.finish(gen, &models.SearchOutcome{Data: []models.TrainerSearchResult{}, Error: &msg}, 0, false)
		}
	}()

	if !c.isCurrent(gen) {
		return
	}

	normalized, err := c.engine.Normalize(filters)
	if err != nil {
		msg := err.Error()
		c.finish(gen, &models.SearchOutcome{Data: []models.TrainerSearchResult{}, Error: &msg}, 0, false)
		return
	}

	if outcome, ok := c.engine.Lookup(c.ctx, normalized); ok {
		c.finish(gen, outcome, 0, false)
		return
	}

	if !c.transition(gen, StateInFlight) {
		return
	}

	start := time.Now()
	outcome := c.engine.Execute(c.ctx, normalized)
	c.finish(gen, outcome, time.Since(start), true)
}

func (c *Controller) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && gen == c.generation
}

func (c *Controller) transition(gen uint64, state State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || gen != c.generation {
		return false
	}
	c.state.State = state
	c.publishLocked()
	return true
}

// finish applies an outcome if gen is still the latest generation
func (c *Controller) finish(gen uint64, outcome *models.SearchOutcome, elapsed time.Duration, executed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || gen != c.generation {
		c.logger.Debugf("Discarding result of superseded search generation %d", gen)
		return
	}

	if executed {
		c.state.LastExecutionTime = elapsed
		c.state.LastExecutionMS = elapsed.Milliseconds()
	}

	if outcome.Failed() {
		c.state.State = StateError
		c.state.Error = outcome.Error
		c.state.Trainers = []models.TrainerSearchResult{}
		c.state.TotalCount = 0
		c.state.Source = ""
		c.state.Cached = false
		c.publishLocked()
		return
	}

	if outcome.Cached {
		c.state.CacheHits++
	}
	c.state.State = StateSuccess
	c.state.Error = nil
	c.state.Trainers = outcome.Data
	if c.state.Trainers == nil {
		c.state.Trainers = []models.TrainerSearchResult{}
	}
	c.state.TotalCount = outcome.Count
	c.state.Source = outcome.Source
	c.state.Cached = outcome.Cached
	c.publishLocked()
}

// publishLocked sends the state to every subscriber without blocking
func (c *Controller) publishLocked() {
	snap := c.state
	for _, ch := range c.subscribers {
		select {
		case ch <- snap:
		default:
			// Drop the oldest update to make room
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
