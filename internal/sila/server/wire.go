package server

import (
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/silaforge/silac/internal/compiler/protoc"
	"github.com/silaforge/silac/internal/sila/framework"
)

func frameworkMessage(b *protoc.Binding, name string) (*dynamicpb.Message, error) {
	return b.NewMessage(framework.Package + "." + name)
}

func fieldOf(msg protoreflect.Message, name string) protoreflect.FieldDescriptor {
	return msg.Descriptor().Fields().ByName(protoreflect.Name(name))
}

func setDuration(msg protoreflect.Message, field string, d time.Duration) {
	m := msg.Mutable(fieldOf(msg, field)).Message()
	m.Set(fieldOf(m, "seconds"), protoreflect.ValueOfInt64(int64(d/time.Second)))
	m.Set(fieldOf(m, "nanos"), protoreflect.ValueOfInt32(int32(d%time.Second)))
}

// executionID reads the value of a CommandExecutionUUID message
func executionID(msg protoreflect.Message) string {
	return msg.Get(fieldOf(msg, "value")).String()
}

func commandConfirmation(b *protoc.Binding, id uuid.UUID, lifetime time.Duration) (proto.Message, error) {
	msg, err := frameworkMessage(b, "CommandConfirmation")
	if err != nil {
		return nil, err
	}
	uuidMsg := msg.Mutable(fieldOf(msg, "commandExecutionUUID")).Message()
	uuidMsg.Set(fieldOf(uuidMsg, "value"), protoreflect.ValueOfString(id.String()))
	if lifetime > 0 {
		setDuration(msg, "lifetimeOfExecution", lifetime)
	}
	return msg, nil
}

func executionInfo(b *protoc.Binding, snap executionSnapshot) (proto.Message, error) {
	msg, err := frameworkMessage(b, "ExecutionInfo")
	if err != nil {
		return nil, err
	}
	msg.Set(fieldOf(msg, "commandStatus"), protoreflect.ValueOfEnum(protoreflect.EnumNumber(snap.status)))
	if snap.hasProgress {
		progress := msg.Mutable(fieldOf(msg, "progressInfo")).Message()
		progress.Set(fieldOf(progress, "value"), protoreflect.ValueOfFloat64(snap.progress))
	}
	if snap.remaining > 0 {
		setDuration(msg, "estimatedRemainingTime", snap.remaining)
	}
	if snap.lifetime > 0 {
		setDuration(msg, "updatedLifetimeOfExecution", snap.lifetime)
	}
	return msg, nil
}
