package conversation

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_AppendAndHistory(t *testing.T) {
	s := NewStore(3, 10)

	s.Append("a", Turn{Question: "q1", Answer: "a1"})
	s.Append("a", Turn{Question: "q2", Answer: "a2"})
	s.Append("b", Turn{Question: "other", Answer: "x"})

	got := s.History("a")
	require.Len(t, got, 2)
	assert.Equal(t, "q1", got[0].Question)
	assert.Equal(t, "a2", got[1].Answer)

	assert.Len(t, s.History("b"), 1, "sessions are isolated")
	assert.Nil(t, s.History("missing"))
}

func TestStore_TrimsToMaxTurns(t *testing.T) {
	s := NewStore(2, 10)
	for i := range 5 {
		s.Append("a", Turn{Question: fmt.Sprintf("q%d", i)})
	}

	got := s.History("a")
	require.Len(t, got, 2)
	assert.Equal(t, "q3", got[0].Question)
	assert.Equal(t, "q4", got[1].Question)
}

func TestStore_EmptySessionIsStateless(t *testing.T) {
	s := NewStore(0, 0)
	s.Append("", Turn{Question: "q"})

	assert.Nil(t, s.History(""))
	assert.Zero(t, s.Len())
}

func TestStore_EvictsLeastRecentlyUsed(t *testing.T) {
	s := NewStore(5, 2)
	s.Append("a", Turn{Question: "a"})
	s.Append("b", Turn{Question: "b"})

	// touch a so b becomes the oldest
	s.History("a")
	s.Append("c", Turn{Question: "c"})

	assert.Equal(t, 2, s.Len())
	assert.NotNil(t, s.History("a"))
	assert.Nil(t, s.History("b"))
	assert.NotNil(t, s.History("c"))
}

func TestStore_Reset(t *testing.T) {
	s := NewStore(5, 5)
	s.Append("a", Turn{Question: "q"})

	assert.True(t, s.Reset("a"))
	assert.False(t, s.Reset("a"))
	assert.Nil(t, s.History("a"))
}

func TestStore_HistoryIsACopy(t *testing.T) {
	s := NewStore(5, 5)
	s.Append("a", Turn{Question: "q"})

	got := s.History("a")
	got[0].Question = "changed"

	assert.Equal(t, "q", s.History("a")[0].Question)
}

func TestStore_ConcurrentSessions(t *testing.T) {
	s := NewStore(100, 100)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for j := range 50 {
				s.Append(id, Turn{Question: fmt.Sprintf("%s-%d", id, j)})
			}
		}(fmt.Sprintf("s%d", i))
	}
	wg.Wait()

	for i := range 8 {
		id := fmt.Sprintf("s%d", i)
		turns := s.History(id)
		require.Len(t, turns, 50)
		for j, turn := range turns {
			assert.Equal(t, fmt.Sprintf("%s-%d", id, j), turn.Question)
		}
	}
}

func TestStore_AppendRefreshesRecency(t *testing.T) {
	s := NewStore(5, 2)
	s.Append("a", Turn{Question: "a1"})
	s.Append("b", Turn{Question: "b1"})
	s.Append("a", Turn{Question: "a2"})
	s.Append("c", Turn{Question: "c1"})

	assert.Len(t, s.History("a"), 2)
	assert.Nil(t, s.History("b"))
}
