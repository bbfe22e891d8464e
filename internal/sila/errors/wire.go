package errors

import (
	"encoding/base64"
	stderrors "errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/silaforge/silac/internal/sila/framework"
)

// ErrMalformedPayload is returned when a wire payload is not a SiLA error message
var ErrMalformedPayload = stderrors.New("malformed SiLA error payload")

// CallKind selects the message types a status payload is decoded as
type CallKind int

const (
	// FeatureCall is a call to a feature command, property or metadata. It
	// carries a SiLAError, or a BinaryTransferError raised for a binary value.
	FeatureCall CallKind = iota
	// BinaryTransferCall is a call to the binary upload or download service.
	// It only carries BinaryTransferError.
	BinaryTransferCall
)

const (
	silaErrorMessage           = "SiLAError"
	binaryTransferErrorMessage = "BinaryTransferError"
	silaErrorOneof             = "error"
)

var variantFields = map[Kind]protoreflect.Name{
	KindValidation:         "validationError",
	KindDefinedExecution:   "definedExecutionError",
	KindUndefinedExecution: "undefinedExecutionError",
	KindFramework:          "frameworkError",
}

var marshalOptions = proto.MarshalOptions{Deterministic: true}

// Marshal encodes e as a sila2.org.silastandard.SiLAError protobuf message
func (e *SiLAError) Marshal() ([]byte, error) {
	msg, err := newMessage(silaErrorMessage)
	if err != nil {
		return nil, err
	}

	kind := e.Kind
	if _, ok := variantFields[kind]; !ok {
		kind = KindUndefinedExecution
	}
	variant := msg.Descriptor().Fields().ByName(variantFields[kind])
	inner := dynamicpb.NewMessage(variant.Message())

	switch kind {
	case KindValidation:
		setString(inner, "parameter", e.Parameter)
		setString(inner, "message", e.Message)
	case KindDefinedExecution:
		setString(inner, "errorIdentifier", e.ErrorIdentifier)
		setString(inner, "message", e.Message)
	case KindFramework:
		setEnum(inner, "errorType", protoreflect.EnumNumber(e.FrameworkType))
		setString(inner, "message", e.Message)
	default:
		setString(inner, "message", e.Message)
	}
	msg.Set(variant, protoreflect.ValueOfMessage(inner))

	return marshalOptions.Marshal(msg)
}

// Encode returns the base64 form of Marshal, as carried in a status message
func (e *SiLAError) Encode() (string, error) {
	return encode(e.Marshal())
}

// GRPCStatus converts e into the ABORTED status sent to SiLA clients
func (e *SiLAError) GRPCStatus() *status.Status {
	return abortedStatus(e.Encode())
}

// Marshal encodes e as a sila2.org.silastandard.BinaryTransferError message
func (e *BinaryTransferError) Marshal() ([]byte, error) {
	msg, err := newMessage(binaryTransferErrorMessage)
	if err != nil {
		return nil, err
	}
	setEnum(msg, "errorType", protoreflect.EnumNumber(e.Type))
	setString(msg, "message", e.Message)
	return marshalOptions.Marshal(msg)
}

// Encode returns the base64 form of Marshal
func (e *BinaryTransferError) Encode() (string, error) {
	return encode(e.Marshal())
}

// GRPCStatus converts e into the ABORTED status sent to SiLA clients
func (e *BinaryTransferError) GRPCStatus() *status.Status {
	return abortedStatus(e.Encode())
}

// UnmarshalSiLAError decodes a serialized SiLAError message
func UnmarshalSiLAError(b []byte) (*SiLAError, error) {
	msg, err := unmarshal(silaErrorMessage, b)
	if err != nil {
		return nil, err
	}
	return silaErrorFrom(msg)
}

func silaErrorFrom(msg *dynamicpb.Message) (*SiLAError, error) {
	variant := msg.WhichOneof(msg.Descriptor().Oneofs().ByName(silaErrorOneof))
	if variant == nil {
		return nil, fmt.Errorf("%w: no error variant set", ErrMalformedPayload)
	}
	inner := msg.Get(variant).Message()

	e := &SiLAError{Message: getString(inner, "message")}
	switch variant.Name() {
	case variantFields[KindValidation]:
		e.Kind = KindValidation
		e.Parameter = getString(inner, "parameter")
	case variantFields[KindDefinedExecution]:
		e.Kind = KindDefinedExecution
		e.ErrorIdentifier = getString(inner, "errorIdentifier")
	case variantFields[KindFramework]:
		e.Kind = KindFramework
		e.FrameworkType = FrameworkErrorType(inner.Get(inner.Descriptor().Fields().ByName("errorType")).Enum())
	default:
		e.Kind = KindUndefinedExecution
	}
	return e, nil
}

// UnmarshalBinaryTransferError decodes a serialized BinaryTransferError
// message. An empty payload is INVALID_BINARY_TRANSFER_UUID with no message.
func UnmarshalBinaryTransferError(b []byte) (*BinaryTransferError, error) {
	msg, err := unmarshal(binaryTransferErrorMessage, b)
	if err != nil {
		return nil, err
	}
	return binaryTransferErrorFrom(msg), nil
}

func binaryTransferErrorFrom(msg *dynamicpb.Message) *BinaryTransferError {
	return &BinaryTransferError{
		Type:    BinaryTransferErrorType(msg.Get(msg.Descriptor().Fields().ByName("errorType")).Enum()),
		Message: getString(msg, "message"),
	}
}

// Decode parses a base64 status message returned by a call of the given kind
// into a *SiLAError or *BinaryTransferError.
//
// A feature call payload is read as SiLAError first. It falls back to
// BinaryTransferError when the payload sets no SiLAError variant or carries
// fields SiLAError does not declare.
func Decode(message string, call CallKind) (decoded error, err error) {
	raw, err := base64.StdEncoding.DecodeString(message)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if call == BinaryTransferCall {
		return UnmarshalBinaryTransferError(raw)
	}

	if msg, err := unmarshal(silaErrorMessage, raw); err == nil && declaredOnly(msg) {
		if se, err := silaErrorFrom(msg); err == nil {
			return se, nil
		}
	}
	msg, err := unmarshal(binaryTransferErrorMessage, raw)
	if err != nil {
		return nil, err
	}
	if !declaredOnly(msg) {
		return nil, fmt.Errorf("%w: payload matches neither SiLAError nor BinaryTransferError", ErrMalformedPayload)
	}
	return binaryTransferErrorFrom(msg), nil
}

// FromStatus recovers the structured SiLA error carried by a gRPC error
// returned by a call of the given kind. Errors that do not carry a SiLA
// payload are returned unchanged.
func FromStatus(err error, call CallKind) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Aborted {
		return err
	}
	decoded, decodeErr := Decode(st.Message(), call)
	if decodeErr != nil {
		return err
	}
	return decoded
}

func newMessage(name string) (*dynamicpb.Message, error) {
	md, err := framework.Message(name)
	if err != nil {
		return nil, err
	}
	return dynamicpb.NewMessage(md), nil
}

func unmarshal(name string, b []byte) (*dynamicpb.Message, error) {
	msg, err := newMessage(name)
	if err != nil {
		return nil, err
	}
	if err := proto.Unmarshal(b, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return msg, nil
}

// declaredOnly reports whether m and every message set in it hold no unknown fields
func declaredOnly(m protoreflect.Message) bool {
	if len(m.GetUnknown()) > 0 {
		return false
	}
	clean := true
	m.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		if fd.Message() != nil && !fd.IsList() && !fd.IsMap() {
			clean = declaredOnly(v.Message())
		}
		return clean
	})
	return clean
}

func setString(m *dynamicpb.Message, name protoreflect.Name, s string) {
	m.Set(m.Descriptor().Fields().ByName(name), protoreflect.ValueOfString(s))
}

func setEnum(m *dynamicpb.Message, name protoreflect.Name, n protoreflect.EnumNumber) {
	m.Set(m.Descriptor().Fields().ByName(name), protoreflect.ValueOfEnum(n))
}

func getString(m protoreflect.Message, name protoreflect.Name) string {
	fd := m.Descriptor().Fields().ByName(name)
	if fd == nil {
		return ""
	}
	return m.Get(fd).String()
}

func encode(b []byte, err error) (string, error) {
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func abortedStatus(payload string, err error) *status.Status {
	if err != nil {
		return status.New(codes.Internal, fmt.Sprintf("failed to encode SiLA error: %v", err))
	}
	return status.New(codes.Aborted, payload)
}
