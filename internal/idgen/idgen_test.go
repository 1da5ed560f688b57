package idgen

import (
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var idPattern = regexp.MustCompile(`^[0-9a-f]{8}$`)

func TestNewFormat(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		id := New()
		require.Regexp(t, idPattern, id)
		seen[id] = true
	}
	assert.Greater(t, len(seen), 990, "ids must be effectively unique across a small batch")
}

func TestUniqueSkipsTakenIDs(t *testing.T) {
	rejections := 3
	id, err := Unique(func(string) (bool, error) {
		if rejections > 0 {
			rejections--
			return true, nil
		}
		return false, nil
	})
	require.NoError(t, err)
	assert.Regexp(t, idPattern, id)
	assert.Zero(t, rejections)
}

func TestUniquePropagatesExistsError(t *testing.T) {
	boom := errors.New("store unavailable")
	_, err := Unique(func(string) (bool, error) { return false, boom })
	assert.ErrorIs(t, err, boom)
}

func TestUniqueGivesUpEventually(t *testing.T) {
	_, err := Unique(func(string) (bool, error) { return true, nil })
	assert.Error(t, err)
}
