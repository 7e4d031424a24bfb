package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	t.Run("Should floor at 60s for the first failure", func(t *testing.T) {
		assert.Equal(t, 60*time.Second, Backoff(1))
	})

	t.Run("Should double on each subsequent failure", func(t *testing.T) {
		assert.Equal(t, 120*time.Second, Backoff(2))
		assert.Equal(t, 240*time.Second, Backoff(3))
		assert.Equal(t, 480*time.Second, Backoff(4))
	})

	t.Run("Should cap at 86400s", func(t *testing.T) {
		assert.Equal(t, 86_400*time.Second, Backoff(20))
		assert.Equal(t, 86_400*time.Second, Backoff(100))
	})

	t.Run("Should treat non-positive counts as the first failure", func(t *testing.T) {
		assert.Equal(t, 60*time.Second, Backoff(0))
		assert.Equal(t, 60*time.Second, Backoff(-3))
	})
}
