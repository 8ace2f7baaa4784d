package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNilClientFailsRequests(t *testing.T) {
	var c *Client
	_, err := c.CreateAuditJob(context.Background(), 1, 2, 0)
	assert.ErrorIs(t, err, ErrNotConnected)

	// Close on a nil client is a no-op.
	c.Close()
}
