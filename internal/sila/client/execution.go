package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/silaforge/silac/internal/compiler/ast"
	"github.com/silaforge/silac/internal/compiler/codegen"
	"github.com/silaforge/silac/internal/sila/framework"
	"github.com/silaforge/silac/internal/sila/server"
)

// ExecutionInfo is the state of an observable command execution as reported
// by the server
type ExecutionInfo struct {
	Status server.ExecutionStatus
	// Progress is between 0 and 1; valid only when HasProgress is set
	Progress    float64
	HasProgress bool
	// EstimatedRemainingTime is zero when the server sent no estimate
	EstimatedRemainingTime time.Duration
	// UpdatedLifetime is zero when the execution does not expire
	UpdatedLifetime time.Duration
}

// Execution is a running observable command
type Execution struct {
	client  *Client
	command *ast.Command
	// ID is the command execution UUID assigned by the server
	ID string
	// Lifetime is zero when the execution does not expire
	Lifetime time.Duration
}

// Start starts an observable command
func (c *Client) Start(ctx context.Context, command string, params Values) (*Execution, error) {
	cmd, err := c.command(command, true)
	if err != nil {
		return nil, err
	}
	in, err := c.encode(codegen.ParametersMessage(cmd.Identifier), cmd.Parameters, params)
	if err != nil {
		return nil, err
	}
	out, err := c.invoke(ctx, cmd.Identifier, in)
	if err != nil {
		return nil, err
	}
	uuidMsg := out.Get(fieldOf(out, "commandExecutionUUID")).Message()
	return &Execution{
		client:   c,
		command:  cmd,
		ID:       uuidMsg.Get(fieldOf(uuidMsg, "value")).String(),
		Lifetime: durationOf(out, "lifetimeOfExecution"),
	}, nil
}

// Info streams execution state changes to fn until the execution finishes
func (e *Execution) Info(ctx context.Context, fn func(ExecutionInfo) error) error {
	in, err := e.client.executionUUID(e.ID)
	if err != nil {
		return err
	}
	return e.client.stream(ctx, codegen.InfoMethod(e.command.Identifier), in, func(out *dynamicpb.Message) error {
		return fn(executionInfoOf(out))
	})
}

// Intermediate streams intermediate responses to fn until the execution
// finishes
func (e *Execution) Intermediate(ctx context.Context, fn func(Values) error) error {
	if len(e.command.IntermediateResponses) == 0 {
		return fmt.Errorf("command %s has no intermediate responses", e.command.Identifier)
	}
	in, err := e.client.executionUUID(e.ID)
	if err != nil {
		return err
	}
	return e.client.stream(ctx, codegen.IntermediateMethod(e.command.Identifier), in, func(out *dynamicpb.Message) error {
		values, err := e.client.converter.DecodeElements(e.command.IntermediateResponses, out)
		if err != nil {
			return err
		}
		return fn(values)
	})
}

// Result returns the responses of a finished execution
func (e *Execution) Result(ctx context.Context) (Values, error) {
	in, err := e.client.executionUUID(e.ID)
	if err != nil {
		return nil, err
	}
	out, err := e.client.invoke(ctx, codegen.ResultMethod(e.command.Identifier), in)
	if err != nil {
		return nil, err
	}
	return e.client.converter.DecodeElements(e.command.Responses, out)
}

// Wait follows the execution until it finishes and returns its result
func (e *Execution) Wait(ctx context.Context) (Values, error) {
	if err := e.Info(ctx, func(ExecutionInfo) error { return nil }); err != nil {
		return nil, err
	}
	return e.Result(ctx)
}

func executionInfoOf(msg protoreflect.Message) ExecutionInfo {
	info := ExecutionInfo{
		Status:                 server.ExecutionStatus(msg.Get(fieldOf(msg, "commandStatus")).Enum()),
		EstimatedRemainingTime: durationOf(msg, "estimatedRemainingTime"),
		UpdatedLifetime:        durationOf(msg, "updatedLifetimeOfExecution"),
	}
	if fd := fieldOf(msg, "progressInfo"); msg.Has(fd) {
		progress := msg.Get(fd).Message()
		info.Progress = progress.Get(fieldOf(progress, "value")).Float()
		info.HasProgress = true
	}
	return info
}

func fieldOf(msg protoreflect.Message, name string) protoreflect.FieldDescriptor {
	return msg.Descriptor().Fields().ByName(protoreflect.Name(name))
}

func durationOf(msg protoreflect.Message, field string) time.Duration {
	fd := fieldOf(msg, field)
	if !msg.Has(fd) {
		return 0
	}
	d := msg.Get(fd).Message()
	return time.Duration(d.Get(fieldOf(d, "seconds")).Int())*time.Second +
		time.Duration(d.Get(fieldOf(d, "nanos")).Int())
}

func (c *Client) executionUUID(id string) (*dynamicpb.Message, error) {
	msg, err := c.binding.NewMessage(framework.Package + ".CommandExecutionUUID")
	if err != nil {
		return nil, err
	}
	msg.Set(fieldOf(msg, "value"), protoreflect.ValueOfString(id))
	return msg, nil
}
