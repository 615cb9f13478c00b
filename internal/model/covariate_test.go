package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubsetKeyOrderIndependent(t *testing.T) {
	a := NewSubset([]string{"intercept"}, []string{"x1", "x2"})
	b := NewSubset([]string{"intercept"}, []string{"x2", "x1"})

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Key(), b.Key())
}

func TestSubsetNamesPreserveInputOrder(t *testing.T) {
	s := NewSubset([]string{"intercept", "age"}, []string{"x2", "x1"})

	assert.Equal(t, []string{"intercept", "age", "x2", "x1"}, s.Names())
	assert.Equal(t, 4, s.Len())
}

func TestSubsetNamesReturnsCopy(t *testing.T) {
	s := NewSubset([]string{"intercept"}, []string{"x1"})
	names := s.Names()
	names[0] = "mutated"

	assert.Equal(t, []string{"intercept", "x1"}, s.Names())
}

func TestSubsetContains(t *testing.T) {
	s := NewSubset([]string{"intercept"}, []string{"x1"})

	assert.True(t, s.Contains("x1"))
	assert.True(t, s.Contains("intercept"))
	assert.False(t, s.Contains("x2"))
}

func TestSubsetString(t *testing.T) {
	s := NewSubset([]string{"intercept"}, []string{"x1", "x2"})
	assert.Equal(t, "{intercept,x1,x2}", s.String())
}
