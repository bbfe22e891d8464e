package codegen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silaforge/silac/internal/compiler/ast"
	"github.com/silaforge/silac/internal/compiler/fdl"
	"github.com/silaforge/silac/internal/testing/fixtures"
)

const greeterProto = `syntax = "proto3";

import "SiLAFramework.proto";

package sila2.org.silastandard.examples.greeter.v1;

// Greets whoever asks.
service Greeter {
  // Returns a greeting for the given name.
  rpc SayHello (SayHello_Parameters) returns (SayHello_Responses) {}
  // The year the server was started.
  rpc Get_StartYear (Get_StartYear_Parameters) returns (Get_StartYear_Responses) {}
}

message SayHello_Parameters {
  // The name to greet.
  sila2.org.silastandard.String Name = 1;
}

message SayHello_Responses {
  // The greeting.
  sila2.org.silastandard.String Greeting = 1;
}

message Get_StartYear_Parameters {}

message Get_StartYear_Responses {
  sila2.org.silastandard.Integer StartYear = 1;
}
`

func parse(t *testing.T, name string) *ast.Feature {
	t.Helper()
	doc, err := fdl.Parse(fixtures.Feature(name))
	require.NoError(t, err)
	return doc.Feature
}

func TestGenerateProto_Greeter(t *testing.T) {
	code, err := NewGenerator().GenerateProto(parse(t, fixtures.Greeter))
	require.NoError(t, err)
	assert.Equal(t, greeterProto, code)
}

func TestGenerateProto_Deterministic(t *testing.T) {
	f := parse(t, fixtures.TemperatureController)

	gen := NewGenerator()
	first, err := gen.GenerateProto(f)
	require.NoError(t, err)
	second, err := gen.GenerateProto(f)
	require.NoError(t, err)
	third, err := NewGenerator().GenerateProto(parse(t, fixtures.TemperatureController))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first, third)
}

func TestGenerateProto_TemperatureController(t *testing.T) {
	code, err := NewGenerator().GenerateProto(parse(t, fixtures.TemperatureController))
	require.NoError(t, err)

	expected := []string{
		"package sila2.com.example.lab.heating.temperaturecontroller.v2;",
		"rpc ControlTemperature (ControlTemperature_Parameters) returns (sila2.org.silastandard.CommandConfirmation) {}",
		"rpc ControlTemperature_Info (sila2.org.silastandard.CommandExecutionUUID) returns (stream sila2.org.silastandard.ExecutionInfo) {}",
		"rpc ControlTemperature_Intermediate (sila2.org.silastandard.CommandExecutionUUID) returns (stream ControlTemperature_IntermediateResponses) {}",
		"rpc ControlTemperature_Result (sila2.org.silastandard.CommandExecutionUUID) returns (ControlTemperature_Responses) {}",
		"rpc SetLabel (SetLabel_Parameters) returns (SetLabel_Responses) {}",
		"rpc Subscribe_CurrentTemperature (Subscribe_CurrentTemperature_Parameters) returns (stream Subscribe_CurrentTemperature_Responses) {}",
		"rpc Get_DeviceInfo (Get_DeviceInfo_Parameters) returns (Get_DeviceInfo_Responses) {}",
		"rpc Get_FCPAffectedByMetadata_AccessToken (Get_FCPAffectedByMetadata_AccessToken_Parameters) returns (Get_FCPAffectedByMetadata_AccessToken_Responses) {}",
		"message DataType_Temperature {\n  sila2.org.silastandard.Real Temperature = 1;\n}",
		"DataType_Temperature TargetTemperature = 1;",
		"DataType_Temperature CurrentTemperature = 1;",
		"repeated sila2.org.silastandard.String Tags = 2;",
		"message SetLabel_Responses {}",
		"message Get_DeviceInfo_Responses {\n  message DeviceInfo_Struct {",
		"DeviceInfo_Struct DeviceInfo = 1;",
		"message Reading_Struct {",
		"sila2.org.silastandard.Timestamp MeasuredAt = 2;",
		"message Metadata_AccessToken {\n  sila2.org.silastandard.String AccessToken = 1;\n}",
		"message Get_FCPAffectedByMetadata_AccessToken_Parameters {}",
		"repeated sila2.org.silastandard.String AffectedCalls = 1;",
	}
	for _, want := range expected {
		assert.Contains(t, code, want)
	}
}

func TestGenerateProto_EmptyService(t *testing.T) {
	f := &ast.Feature{Originator: "org.example", Category: "tests", Identifier: "Empty", FeatureVersion: "3.0"}

	code, err := NewGenerator().GenerateProto(f)
	require.NoError(t, err)
	assert.Contains(t, code, "package sila2.org.example.tests.empty.v3;")
	assert.Contains(t, code, "service Empty {}")
	assert.NotContains(t, code, "message")
}

func TestGenerateProto_ObservableWithoutIntermediates(t *testing.T) {
	f := &ast.Feature{
		Originator: "org.example", Category: "tests", Identifier: "Runner", FeatureVersion: "1.0",
		Commands: []*ast.Command{{Identifier: "Run", Observable: true}},
	}

	code, err := NewGenerator().GenerateProto(f)
	require.NoError(t, err)
	assert.Contains(t, code, "rpc Run_Info")
	assert.Contains(t, code, "rpc Run_Result")
	assert.NotContains(t, code, "Run_Intermediate")
	assert.Contains(t, code, "message Run_Parameters {}")
}

func TestGenerateProto_NestedStructures(t *testing.T) {
	inner := &ast.StructureType{Elements: []*ast.Element{
		{Identifier: "X", Type: &ast.BasicType{Kind: ast.BasicReal}},
	}}
	f := &ast.Feature{
		Originator: "org.example", Category: "tests", Identifier: "Shapes", FeatureVersion: "1.0",
		Commands: []*ast.Command{{
			Identifier: "Draw",
			Parameters: []*ast.Element{{
				Identifier: "Points",
				Type: &ast.ListType{Element: &ast.StructureType{Elements: []*ast.Element{
					{Identifier: "Position", Type: inner},
				}}},
			}},
		}},
	}

	code, err := NewGenerator().GenerateProto(f)
	require.NoError(t, err)
	assert.Contains(t, code, `message Draw_Parameters {
  message Points_Struct {
    message Position_Struct {
      sila2.org.silastandard.Real X = 1;
    }
    Position_Struct Position = 1;
  }
  repeated Points_Struct Points = 1;
}`)
}

func TestGenerateProto_Errors(t *testing.T) {
	_, err := NewGenerator().GenerateProto(nil)
	require.Error(t, err)

	f := &ast.Feature{
		Originator: "org.example", Category: "tests", Identifier: "Broken", FeatureVersion: "1.0",
		Commands: []*ast.Command{{Identifier: "Do", Parameters: []*ast.Element{{Identifier: "X", Loc: "/Feature/Command[1]/Parameter[1]"}}}},
	}
	_, err = NewGenerator().GenerateProto(f)
	var transformErr *TransformError
	require.ErrorAs(t, err, &transformErr)
	assert.Equal(t, "Broken", transformErr.Feature)
	assert.Contains(t, err.Error(), "failed to generate command Do")
	assert.Contains(t, err.Error(), "/Feature/Command[1]/Parameter[1]")
}

func TestNames(t *testing.T) {
	f := parse(t, fixtures.Greeter)
	assert.Equal(t, "sila2.org.silastandard.examples.greeter.v1", PackageName(f))
	assert.Equal(t, "sila2.org.silastandard.examples.greeter.v1.Greeter", ServiceName(f))
	assert.Equal(t, "Greeter.proto", FileName(f))
	assert.Equal(t, "Subscribe_X_Responses", ResponsesMessage(SubscribeMethod("X")))
	assert.Equal(t, "Get_FCPAffectedByMetadata_M_Parameters", ParametersMessage(AffectedByMetadataMethod("M")))
}
