package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainsGenre(t *testing.T) {
	genres := []string{"Rock", "Jazz", "hip-hop"}

	assert.True(t, containsGenre(genres, "Rock"))
	assert.True(t, containsGenre(genres, "rock"), "match ignores case")
	assert.True(t, containsGenre(genres, "JAZZ"))
	assert.True(t, containsGenre(genres, "Hip-Hop"))
	assert.False(t, containsGenre(genres, "country"))
	assert.False(t, containsGenre(nil, "rock"))
}
