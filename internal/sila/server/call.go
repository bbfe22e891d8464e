package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	silaerrors "github.com/silaforge/silac/internal/sila/errors"
	"github.com/silaforge/silac/internal/sila/identifier"
)

// CallState is a step in the lifecycle of one SiLA call
type CallState int

const (
	StateReceived CallState = iota
	StateValidatingMetadata
	StateDispatching
	StateSucceeded
	StateFailed
)

func (s CallState) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateValidatingMetadata:
		return "validating_metadata"
	case StateDispatching:
		return "dispatching"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// transitions lists the states each state may advance to
var transitions = map[CallState][]CallState{
	StateReceived:           {StateValidatingMetadata},
	StateValidatingMetadata: {StateDispatching, StateFailed},
	StateDispatching:        {StateSucceeded, StateFailed},
}

// Outcomes recorded in call metrics besides the SiLA error kinds
const (
	OutcomeOK             = "ok"
	OutcomeBinaryTransfer = "binary_transfer"
)

// call tracks one SiLA call from arrival to its final state
type call struct {
	server  *Server
	feature *feature
	method  string
	// target is the command or property called; zero for calls that take no
	// metadata
	target identifier.FullyQualifiedIdentifier
	state  CallState
	start  time.Time
	logger *zap.Logger
}

func (s *Server) newCall(f *feature, method string, target identifier.FullyQualifiedIdentifier) *call {
	return &call{
		server:  s,
		feature: f,
		method:  method,
		target:  target,
		state:   StateReceived,
		start:   time.Now(),
		logger:  s.logger.With(zap.String("feature", f.id.String()), zap.String("method", method)),
	}
}

func (c *call) advance(next CallState) {
	for _, allowed := range transitions[c.state] {
		if allowed == next {
			c.state = next
			return
		}
	}
	c.logger.DPanic("invalid call state transition",
		zap.Stringer("from", c.state), zap.Stringer("to", next))
	c.state = next
}

// run takes the call through its lifecycle. handle runs in the Dispatching
// state with the metadata values of the call in its context. The returned
// error is a SiLA error ready to be sent to the client.
func (c *call) run(ctx context.Context, handle func(context.Context) error) error {
	c.advance(StateValidatingMetadata)
	ctx, err := c.server.readMetadata(ctx, c.feature, c.target)
	if err == nil {
		c.advance(StateDispatching)
		err = c.dispatch(ctx, handle)
	}
	return c.finish(err)
}

func (c *call) dispatch(ctx context.Context, handle func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("handler panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = silaerrors.NewUndefinedExecutionError(fmt.Sprintf("panic: %v", r))
		}
	}()
	return handle(ctx)
}

func (c *call) finish(err error) error {
	if err == nil {
		c.advance(StateSucceeded)
		c.server.metrics.ObserveCall(c.feature.id.String(), c.method, OutcomeOK, time.Since(c.start))
		c.logger.Debug("call succeeded", zap.Duration("duration", time.Since(c.start)))
		return nil
	}

	mapped := silaerrors.Map(err, c.feature)
	c.advance(StateFailed)
	outcome := outcomeOf(mapped)
	c.server.metrics.ObserveCall(c.feature.id.String(), c.method, outcome, time.Since(c.start))
	c.logger.Info("call failed", zap.String("kind", outcome), zap.Error(mapped))
	return mapped
}

func outcomeOf(err error) string {
	var se *silaerrors.SiLAError
	if errors.As(err, &se) {
		return se.Kind.String()
	}
	return OutcomeBinaryTransfer
}
