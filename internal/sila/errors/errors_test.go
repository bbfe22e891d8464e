package errors

import (
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/silaforge/silac/internal/sila/identifier"
)

type definedSet map[identifier.Key]bool

func (d definedSet) IsDefined(id identifier.FullyQualifiedIdentifier) bool {
	return d[id.Key()]
}

var (
	greeter     = identifier.MustParse("org.example/content/Greeter/v1")
	nameParam   = identifier.MustParse("org.example/content/Greeter/v1/Command/SayHello/Parameter/Name")
	unknownName = identifier.MustParse("org.example/content/Greeter/v1/DefinedExecutionError/UnknownName")
)

func TestSiLAError_WireRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		err  *SiLAError
	}{
		{"validation", NewValidationError(nameParam, "name must not be empty")},
		{"defined", NewDefinedExecutionError(unknownName, "nobody called Bob here")},
		{"undefined", NewUndefinedExecutionError("disk on fire")},
		{"undefined empty message", NewUndefinedExecutionError("")},
		{"framework zero type", NewFrameworkError(CommandExecutionNotAccepted, "busy")},
		{"framework zero type empty message", NewFrameworkError(CommandExecutionNotAccepted, "")},
		{"framework metadata", NewFrameworkError(InvalidMetadata, "missing lock")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := tt.err.Marshal()
			require.NoError(t, err)

			decoded, err := UnmarshalSiLAError(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.err.Kind, decoded.Kind)
			assert.Equal(t, tt.err.Message, decoded.Message)
			assert.Equal(t, tt.err.Parameter, decoded.Parameter)
			assert.Equal(t, tt.err.ErrorIdentifier, decoded.ErrorIdentifier)
			assert.Equal(t, tt.err.FrameworkType, decoded.FrameworkType)
		})
	}
}

func TestSiLAError_GRPCStatus(t *testing.T) {
	original := NewDefinedExecutionError(unknownName, "nobody called Bob here")

	st := original.GRPCStatus()
	assert.Equal(t, codes.Aborted, st.Code())

	raw, err := base64.StdEncoding.DecodeString(st.Message())
	require.NoError(t, err, "status message must be base64")
	want, err := original.Marshal()
	require.NoError(t, err)
	assert.Equal(t, want, raw)

	recovered := FromStatus(st.Err(), FeatureCall)
	var se *SiLAError
	require.True(t, stderrors.As(recovered, &se))
	assert.Equal(t, KindDefinedExecution, se.Kind)
	assert.Equal(t, unknownName.String(), se.ErrorIdentifier)
	assert.Equal(t, "nobody called Bob here", se.Message)
}

func TestBinaryTransferError_RoundTrip(t *testing.T) {
	for _, typ := range []BinaryTransferErrorType{InvalidBinaryTransferUUID, BinaryUploadFailed, BinaryDownloadFailed} {
		for _, call := range []CallKind{FeatureCall, BinaryTransferCall} {
			t.Run(fmt.Sprintf("%s/%d", typ, call), func(t *testing.T) {
				original := NewBinaryTransferError(typ, "chunk 3 missing")
				recovered := FromStatus(original.GRPCStatus().Err(), call)

				var bte *BinaryTransferError
				require.True(t, stderrors.As(recovered, &bte))
				assert.Equal(t, typ, bte.Type)
				assert.Equal(t, "chunk 3 missing", bte.Message)
			})
		}
	}
}

// Payloads as written by encoders that omit zero-valued fields
func TestDecode_StandardEncoding(t *testing.T) {
	str := func(b []byte, num protowire.Number, s string) []byte {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		return protowire.AppendString(b, s)
	}
	sub := func(num protowire.Number, inner []byte) []byte {
		b := protowire.AppendTag(nil, num, protowire.BytesType)
		return protowire.AppendBytes(b, inner)
	}
	enc := func(b []byte) string {
		return base64.StdEncoding.EncodeToString(b)
	}

	tests := []struct {
		name    string
		payload []byte
		call    CallKind
		want    error
	}{
		{
			name:    "binary transfer zero type in feature call",
			payload: str(nil, 2, "hi"),
			call:    FeatureCall,
			want:    &BinaryTransferError{Type: InvalidBinaryTransferUUID, Message: "hi"},
		},
		{
			name:    "binary transfer zero type in transfer call",
			payload: str(nil, 2, "hi"),
			call:    BinaryTransferCall,
			want:    &BinaryTransferError{Type: InvalidBinaryTransferUUID, Message: "hi"},
		},
		{
			name:    "binary transfer with no fields",
			payload: nil,
			call:    BinaryTransferCall,
			want:    &BinaryTransferError{Type: InvalidBinaryTransferUUID},
		},
		{
			name:    "binary transfer with no fields in feature call",
			payload: nil,
			call:    FeatureCall,
			want:    &BinaryTransferError{Type: InvalidBinaryTransferUUID},
		},
		{
			name: "binary transfer download failed",
			payload: str(protowire.AppendVarint(protowire.AppendTag(nil, 1, protowire.VarintType), 2),
				2, "gone"),
			call: FeatureCall,
			want: &BinaryTransferError{Type: BinaryDownloadFailed, Message: "gone"},
		},
		{
			name:    "defined execution error",
			payload: sub(2, str(str(nil, 1, unknownName.String()), 2, "hi")),
			call:    FeatureCall,
			want:    &SiLAError{Kind: KindDefinedExecution, ErrorIdentifier: unknownName.String(), Message: "hi"},
		},
		{
			name:    "framework error with zero type",
			payload: sub(4, str(nil, 2, "busy")),
			call:    FeatureCall,
			want:    &SiLAError{Kind: KindFramework, FrameworkType: CommandExecutionNotAccepted, Message: "busy"},
		},
		{
			name:    "undefined execution error without message",
			payload: sub(3, nil),
			call:    FeatureCall,
			want:    &SiLAError{Kind: KindUndefinedExecution},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(enc(tt.payload), tt.call)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromStatus_PassesThroughForeignErrors(t *testing.T) {
	plain := fmt.Errorf("connection refused")
	assert.Same(t, plain, FromStatus(plain, FeatureCall))

	unavailable := status.Error(codes.Unavailable, "down")
	assert.Equal(t, unavailable, FromStatus(unavailable, FeatureCall))

	notBase64 := status.Error(codes.Aborted, "%%% not base64")
	assert.Equal(t, notBase64, FromStatus(notBase64, FeatureCall))

	assert.Nil(t, FromStatus(nil, BinaryTransferCall))
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		call    CallKind
	}{
		{"truncated", []byte{0xff, 0xff}, FeatureCall},
		{"truncated transfer", []byte{0xff, 0xff}, BinaryTransferCall},
		{"invalid utf-8", []byte{0x12, 0x02, 0xc3, 0x28}, BinaryTransferCall},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(base64.StdEncoding.EncodeToString(tt.payload), tt.call)
			assert.ErrorIs(t, err, ErrMalformedPayload)
		})
	}

	_, err := UnmarshalSiLAError(nil)
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestMap(t *testing.T) {
	defined := definedSet{unknownName.Key(): true}
	undeclared := identifier.Must(greeter.DefinedExecutionError("NotDeclared"))

	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, Map(nil, defined))
	})

	t.Run("declared defined error is kept", func(t *testing.T) {
		err := Map(NewDefinedExecutionError(unknownName, "x"), defined)
		var se *SiLAError
		require.True(t, stderrors.As(err, &se))
		assert.Equal(t, KindDefinedExecution, se.Kind)
	})

	t.Run("wrapped defined error is found", func(t *testing.T) {
		err := Map(fmt.Errorf("lookup: %w", NewDefinedExecutionError(unknownName, "x")), defined)
		var se *SiLAError
		require.True(t, stderrors.As(err, &se))
		assert.Equal(t, KindDefinedExecution, se.Kind)
	})

	t.Run("undeclared defined error becomes undefined", func(t *testing.T) {
		err := Map(NewDefinedExecutionError(undeclared, "x"), defined)
		var se *SiLAError
		require.True(t, stderrors.As(err, &se))
		assert.Equal(t, KindUndefinedExecution, se.Kind)
		assert.Contains(t, se.Message, "NotDeclared")
	})

	t.Run("plain error becomes undefined", func(t *testing.T) {
		cause := fmt.Errorf("boom")
		err := Map(cause, defined)
		var se *SiLAError
		require.True(t, stderrors.As(err, &se))
		assert.Equal(t, KindUndefinedExecution, se.Kind)
		assert.Equal(t, "boom", se.Message)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("validation and framework errors pass", func(t *testing.T) {
		v := NewValidationError(nameParam, "bad")
		assert.Same(t, v, Map(v, defined))
		f := NewFrameworkError(InvalidMetadata, "missing")
		assert.Same(t, f, Map(f, nil))
	})

	t.Run("binary transfer errors pass", func(t *testing.T) {
		b := NewBinaryTransferError(BinaryDownloadFailed, "gone")
		assert.Same(t, b, Map(b, defined))
	})
}

func TestErrorStrings(t *testing.T) {
	assert.Contains(t, NewValidationError(nameParam, "empty").Error(), nameParam.String())
	assert.Contains(t, NewFrameworkError(NoMetadataAllowed, "x").Error(), "NO_METADATA_ALLOWED")
	assert.Contains(t, NewBinaryTransferError(BinaryUploadFailed, "x").Error(), "BINARY_UPLOAD_FAILED")
	assert.Equal(t, "undefined_execution", KindUndefinedExecution.String())
}
