// Package tick spreads periodic shopkeeper work across host ticks. The population is
// partitioned into a fixed number of groups; each host tick exactly one group is
// processed, so every shopkeeper is visited once per full cycle of Groups ticks.
package tick

import (
	"github.com/rotisserie/eris"
)

const (
	// DefaultGroups is the default number of ticking groups. Small enough that a full
	// population pass completes quickly, large enough that no single tick touches more
	// than a fraction of the population.
	DefaultGroups = 4

	// MaxGroups caps the group count. Beyond this the per-shopkeeper check interval
	// becomes longer than the roughly-once-per-second coverage the groups exist for.
	MaxGroups = 20
)

// CyclicCounter counts 0, 1, ..., period-1 and wraps around. Not safe for concurrent
// use.
type CyclicCounter struct {
	period int
	next   int
}

func NewCyclicCounter(period int) *CyclicCounter {
	return &CyclicCounter{period: period}
}

func (c *CyclicCounter) Next() int {
	v := c.next
	c.next++
	if c.next >= c.period {
		c.next = 0
	}
	return v
}

// Scheduler owns the monotonic tick counter and the round-robin group assignment.
// Group membership is handed out once per shopkeeper at creation and never changes, so
// the work distribution stays stable without rebalancing. Not safe for concurrent use.
type Scheduler struct {
	groups   int
	counter  uint64
	assigner *CyclicCounter
}

func NewScheduler(groups int) (*Scheduler, error) {
	if groups < 1 || groups > MaxGroups {
		return nil, eris.Errorf("ticking groups must be in [1, %d], got %d", MaxGroups, groups)
	}
	return &Scheduler{
		groups:   groups,
		assigner: NewCyclicCounter(groups),
	}, nil
}

func (s *Scheduler) Groups() int {
	return s.groups
}

// AssignGroup returns the ticking group for the next created shopkeeper.
func (s *Scheduler) AssignGroup() int {
	return s.assigner.Next()
}

// Advance moves the scheduler to the next tick and returns the group that is active for
// it. Each group is active exactly once in any window of Groups consecutive ticks.
func (s *Scheduler) Advance() int {
	active := int(s.counter % uint64(s.groups))
	s.counter++
	return active
}

// CurrentTick returns the number of ticks advanced so far.
func (s *Scheduler) CurrentTick() uint64 {
	return s.counter
}
