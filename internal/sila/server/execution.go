package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"

	silaerrors "github.com/silaforge/silac/internal/sila/errors"
	"github.com/silaforge/silac/internal/sila/identifier"
)

// ExecutionStatus is the state of an observable command execution. The
// values match ExecutionInfo.CommandStatus.
type ExecutionStatus int32

const (
	// StatusWaiting indicates the execution has not started yet
	StatusWaiting ExecutionStatus = iota
	// StatusRunning indicates the handler is running
	StatusRunning
	// StatusFinishedSuccessfully indicates the result is available
	StatusFinishedSuccessfully
	// StatusFinishedWithError indicates the handler failed
	StatusFinishedWithError
)

func (s ExecutionStatus) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusRunning:
		return "running"
	case StatusFinishedSuccessfully:
		return "finishedSuccessfully"
	case StatusFinishedWithError:
		return "finishedWithError"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// Finished reports whether s is a final status
func (s ExecutionStatus) Finished() bool {
	return s == StatusFinishedSuccessfully || s == StatusFinishedWithError
}

// intermediateBuffer is the number of intermediate responses a slow
// subscriber may lag behind before responses are dropped for it
const intermediateBuffer = 16

// Execution is one run of an observable command
type Execution struct {
	id      uuid.UUID
	command identifier.FullyQualifiedIdentifier

	// encode turns intermediate response values into their message; nil when
	// the command declares no intermediate responses
	encode func(Values) (proto.Message, error)

	mu          sync.Mutex
	status      ExecutionStatus
	progress    float64
	hasProgress bool
	remaining   time.Duration
	deadline    time.Time
	result      proto.Message
	err         error
	changed     chan struct{}
	subscribers map[chan proto.Message]struct{}
}

func newExecution(command identifier.FullyQualifiedIdentifier, lifetime time.Duration) *Execution {
	e := &Execution{
		id:          uuid.New(),
		command:     command,
		status:      StatusWaiting,
		changed:     make(chan struct{}),
		subscribers: map[chan proto.Message]struct{}{},
	}
	if lifetime > 0 {
		e.deadline = time.Now().Add(lifetime)
	}
	return e
}

// ID returns the command execution UUID
func (e *Execution) ID() uuid.UUID {
	return e.id
}

// Command returns the identifier of the executed command
func (e *Execution) Command() identifier.FullyQualifiedIdentifier {
	return e.command
}

// SetProgress reports the progress of the execution as a fraction in [0, 1]
func (e *Execution) SetProgress(progress float64) {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.progress = progress
	e.hasProgress = true
	e.notify()
}

// SetEstimatedRemainingTime reports how long the execution is expected to run
func (e *Execution) SetEstimatedRemainingTime(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.remaining = d
	e.notify()
}

// SendIntermediate publishes intermediate responses to every subscriber
func (e *Execution) SendIntermediate(values Values) error {
	if e.encode == nil {
		return fmt.Errorf("command %s has no intermediate responses", e.command)
	}
	msg, err := e.encode(values)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status.Finished() {
		return fmt.Errorf("execution %s has finished", e.id)
	}
	for ch := range e.subscribers {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// notify wakes every goroutine waiting for a change. Callers hold e.mu.
func (e *Execution) notify() {
	close(e.changed)
	e.changed = make(chan struct{})
}

// executionSnapshot is the observable state of an execution at one point
type executionSnapshot struct {
	status      ExecutionStatus
	progress    float64
	hasProgress bool
	remaining   time.Duration
	lifetime    time.Duration
}

// snapshot returns the current state and a channel closed on the next change
func (e *Execution) snapshot() (executionSnapshot, <-chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := executionSnapshot{
		status:      e.status,
		progress:    e.progress,
		hasProgress: e.hasProgress,
		remaining:   e.remaining,
	}
	if !e.deadline.IsZero() {
		snap.lifetime = time.Until(e.deadline)
		if snap.lifetime < 0 {
			snap.lifetime = 0
		}
	}
	return snap, e.changed
}

// subscribe returns a channel receiving intermediate responses sent from now
// on. The channel is closed when the execution finishes.
func (e *Execution) subscribe() (<-chan proto.Message, func()) {
	ch := make(chan proto.Message, intermediateBuffer)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status.Finished() {
		close(ch)
		return ch, func() {}
	}
	e.subscribers[ch] = struct{}{}
	return ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if _, ok := e.subscribers[ch]; ok {
			delete(e.subscribers, ch)
			close(ch)
		}
	}
}

func (e *Execution) start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = StatusRunning
	e.notify()
}

// finish records the outcome. err must already be a SiLA error.
func (e *Execution) finish(result proto.Message, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.result, e.err = result, err
	e.status = StatusFinishedSuccessfully
	if err != nil {
		e.status = StatusFinishedWithError
	} else {
		e.progress, e.hasProgress = 1, true
	}
	e.remaining = 0
	for ch := range e.subscribers {
		delete(e.subscribers, ch)
		close(ch)
	}
	e.notify()
}

// outcome returns the result of a finished execution
func (e *Execution) outcome() (proto.Message, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.status.Finished() {
		return nil, silaerrors.NewFrameworkError(silaerrors.CommandExecutionNotFinished,
			fmt.Sprintf("execution %s has not finished", e.id))
	}
	return e.result, e.err
}

// executionTable tracks the executions of all observable commands. Finished
// executions are removed once their lifetime has passed.
type executionTable struct {
	mu         sync.Mutex
	executions map[uuid.UUID]*Execution
	lifetime   time.Duration
}

func newExecutionTable(lifetime time.Duration) *executionTable {
	return &executionTable{executions: map[uuid.UUID]*Execution{}, lifetime: lifetime}
}

func (t *executionTable) create(command identifier.FullyQualifiedIdentifier) *Execution {
	e := newExecution(command, t.lifetime)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.executions[e.id] = e
	return e
}

// lookup finds an execution of command by its UUID string
func (t *executionTable) lookup(command identifier.FullyQualifiedIdentifier, id string) (*Execution, error) {
	invalid := silaerrors.NewFrameworkError(silaerrors.InvalidCommandExecutionUUID,
		fmt.Sprintf("no execution %q of %s", id, command))
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, invalid
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.executions[parsed]
	if !ok || !e.command.Equal(command) {
		return nil, invalid
	}
	return e, nil
}

// expire schedules the removal of a finished execution
func (t *executionTable) expire(e *Execution) {
	if e.deadline.IsZero() {
		return
	}
	time.AfterFunc(time.Until(e.deadline), func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.executions, e.id)
	})
}

func (t *executionTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.executions)
}
