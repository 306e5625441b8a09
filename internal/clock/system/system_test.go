package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNowIsUTCAndMonotonicEnough(t *testing.T) {
	t.Parallel()

	c := New()
	before := time.Now().UTC().Add(-time.Second)
	now := c.Now()
	require.Equal(t, time.UTC, now.Location())
	require.True(t, now.After(before))
}
