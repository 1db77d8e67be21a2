package tick

import (
	"testing"

	"pkg.world.dev/bazaar/assert"
)

func TestCyclicCounterWraps(t *testing.T) {
	c := NewCyclicCounter(3)
	got := []int{c.Next(), c.Next(), c.Next(), c.Next(), c.Next()}
	assert.DeepEqual(t, []int{0, 1, 2, 0, 1}, got)
}

func TestCyclicCounterPeriodOne(t *testing.T) {
	c := NewCyclicCounter(1)
	assert.Equal(t, 0, c.Next())
	assert.Equal(t, 0, c.Next())
}

func TestNewSchedulerValidatesGroups(t *testing.T) {
	_, err := NewScheduler(0)
	assert.IsError(t, err)

	_, err = NewScheduler(MaxGroups + 1)
	assert.IsError(t, err)

	s, err := NewScheduler(DefaultGroups)
	assert.NilError(t, err)
	assert.Equal(t, DefaultGroups, s.Groups())
}

func TestAssignGroupRoundRobin(t *testing.T) {
	s, err := NewScheduler(4)
	assert.NilError(t, err)

	got := make([]int, 0, 8)
	for i := 0; i < 8; i++ {
		got = append(got, s.AssignGroup())
	}
	assert.DeepEqual(t, []int{0, 1, 2, 3, 0, 1, 2, 3}, got)
}

func TestAdvanceCoversEveryGroupOncePerCycle(t *testing.T) {
	const groups = 4
	s, err := NewScheduler(groups)
	assert.NilError(t, err)

	// Any window of `groups` consecutive ticks must activate each group exactly once.
	for cycle := 0; cycle < 3; cycle++ {
		seen := make(map[int]int)
		for i := 0; i < groups; i++ {
			seen[s.Advance()]++
		}
		for g := 0; g < groups; g++ {
			assert.Equal(t, 1, seen[g])
		}
	}
	assert.Equal(t, uint64(3*groups), s.CurrentTick())
}

func TestAdvanceSingleGroup(t *testing.T) {
	s, err := NewScheduler(1)
	assert.NilError(t, err)
	assert.Equal(t, 0, s.Advance())
	assert.Equal(t, 0, s.Advance())
	assert.Equal(t, uint64(2), s.CurrentTick())
}
