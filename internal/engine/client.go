// Package engine connects the orchestrator to the remote audit executor
// over NATS: request/reply for job creation, a subscription for
// completion events.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	subjectCreate   = "stigward.audit.create"
	subjectComplete = "stigward.audit.complete"
)

// ErrNotConnected reports an audit request issued while the engine
// transport is down. The orchestrator records it per definition and
// carries on.
var ErrNotConnected = errors.New("audit engine not connected")

// Client talks to the remote audit executor.
type Client struct {
	nc      *nats.Conn
	timeout time.Duration
}

// Connect dials NATS. Callers may treat a connect failure as non-fatal:
// a nil client fails each audit request individually instead of taking
// the service down.
func Connect(url string, timeout time.Duration) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.Name("stigward"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return &Client{nc: nc, timeout: timeout}, nil
}

func (c *Client) Close() {
	if c != nil && c.nc != nil {
		c.nc.Drain()
	}
}

type createRequest struct {
	RequestID    string `json:"request_id"`
	TargetID     int64  `json:"target_id"`
	DefinitionID int64  `json:"definition_id"`
	GroupID      int64  `json:"group_id,omitempty"`
}

type createReply struct {
	JobID string `json:"job_id"`
	Error string `json:"error,omitempty"`
}

// CreateAuditJob asks the executor to run one benchmark against one
// target and returns the executor-side job identifier.
func (c *Client) CreateAuditJob(ctx context.Context, targetID, definitionID, groupID int64) (string, error) {
	if c == nil || c.nc == nil {
		return "", ErrNotConnected
	}

	req := createRequest{
		RequestID:    uuid.NewString(),
		TargetID:     targetID,
		DefinitionID: definitionID,
		GroupID:      groupID,
	}
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.nc.RequestWithContext(ctx, subjectCreate, data)
	if err != nil {
		return "", fmt.Errorf("audit engine request: %w", err)
	}

	var reply createReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return "", fmt.Errorf("decoding reply: %w", err)
	}
	if reply.Error != "" {
		return "", fmt.Errorf("audit engine: %s", reply.Error)
	}
	if reply.JobID == "" {
		return "", errors.New("audit engine returned no job id")
	}

	slog.Debug("audit job submitted",
		"request_id", req.RequestID,
		"external_id", reply.JobID,
		"definition_id", definitionID,
	)
	return reply.JobID, nil
}
