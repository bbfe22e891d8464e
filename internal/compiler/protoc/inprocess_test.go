package protoc

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/silaforge/silac/internal/compiler/ast"
	"github.com/silaforge/silac/internal/compiler/codegen"
	"github.com/silaforge/silac/internal/compiler/fdl"
	"github.com/silaforge/silac/internal/sila/framework"
	"github.com/silaforge/silac/internal/testing/fixtures"
)

// featureIDL generates the IDL of f and writes it under its file name
func featureIDL(t *testing.T, f *ast.Feature) string {
	t.Helper()
	idl, err := codegen.NewGenerator().GenerateProto(f)
	require.NoError(t, err)
	return writeIDL(t, codegen.FileName(f), idl)
}

func parseFixture(t *testing.T, name string) *ast.Feature {
	t.Helper()
	doc, err := fdl.Parse(fixtures.Feature(name))
	require.NoError(t, err)
	return doc.Feature
}

func TestInProcess_TemperatureController(t *testing.T) {
	f := parseFixture(t, fixtures.TemperatureController)

	binding, err := NewInProcessCompiler(nil).LoadBinding(context.Background(), featureIDL(t, f))
	require.NoError(t, err)
	require.Len(t, binding.DescriptorSet().File, 2)
	assert.Equal(t, framework.FrameworkProto, binding.DescriptorSet().File[0].GetName(), "imports come first")

	svc, ok := binding.Service()
	require.True(t, ok)
	assert.Equal(t, codegen.ServiceName(f), string(svc.FullName()))

	methods := []struct {
		name      string
		input     string
		output    string
		streaming bool
	}{
		{"ControlTemperature", "ControlTemperature_Parameters", "sila2.org.silastandard.CommandConfirmation", false},
		{"ControlTemperature_Info", "sila2.org.silastandard.CommandExecutionUUID", "sila2.org.silastandard.ExecutionInfo", true},
		{"ControlTemperature_Intermediate", "sila2.org.silastandard.CommandExecutionUUID", "ControlTemperature_IntermediateResponses", true},
		{"ControlTemperature_Result", "sila2.org.silastandard.CommandExecutionUUID", "ControlTemperature_Responses", false},
		{"SetLabel", "SetLabel_Parameters", "SetLabel_Responses", false},
		{"Subscribe_CurrentTemperature", "Subscribe_CurrentTemperature_Parameters", "Subscribe_CurrentTemperature_Responses", true},
		{"Get_DeviceInfo", "Get_DeviceInfo_Parameters", "Get_DeviceInfo_Responses", false},
		{"Get_FCPAffectedByMetadata_AccessToken", "Get_FCPAffectedByMetadata_AccessToken_Parameters", "Get_FCPAffectedByMetadata_AccessToken_Responses", false},
	}
	require.Equal(t, len(methods), svc.Methods().Len())

	pkg := codegen.PackageName(f) + "."
	qualified := func(name string) string {
		if strings.HasPrefix(name, framework.Package+".") {
			return name
		}
		return pkg + name
	}
	for i, want := range methods {
		md := svc.Methods().Get(i)
		assert.Equal(t, want.name, string(md.Name()))
		assert.Equal(t, qualified(want.input), string(md.Input().FullName()), want.name)
		assert.Equal(t, qualified(want.output), string(md.Output().FullName()), want.name)
		assert.Equal(t, want.streaming, md.IsStreamingServer(), want.name)
	}

	info, err := binding.Message("Get_DeviceInfo_Responses")
	require.NoError(t, err)
	field := info.Fields().ByName("DeviceInfo")
	require.NotNil(t, field)
	assert.Equal(t, pkg+"Get_DeviceInfo_Responses.DeviceInfo_Struct", string(field.Message().FullName()))

	params, err := binding.Message("SetLabel_Parameters")
	require.NoError(t, err)
	tags := params.Fields().ByName("Tags")
	require.NotNil(t, tags)
	assert.True(t, tags.IsList())
	assert.Equal(t, protoreflect.FieldNumber(2), tags.Number())
}

func TestInProcess_NestedStructureInList(t *testing.T) {
	f := &ast.Feature{
		Originator: "org.example", Category: "tests", Identifier: "Shapes", FeatureVersion: "1.0",
		Commands: []*ast.Command{{
			Identifier: "Draw",
			Parameters: []*ast.Element{{
				Identifier: "Points",
				Type: &ast.ListType{Element: &ast.StructureType{Elements: []*ast.Element{
					{Identifier: "X", Type: &ast.BasicType{Kind: ast.BasicReal}},
				}}},
			}},
		}},
	}

	binding, err := NewInProcessCompiler(nil).LoadBinding(context.Background(), featureIDL(t, f))
	require.NoError(t, err)

	desc, err := binding.Files().FindDescriptorByName("sila2.org.example.tests.shapes.v1.Draw_Parameters")
	require.NoError(t, err)
	points := desc.(protoreflect.MessageDescriptor).Fields().ByName("Points")
	assert.True(t, points.IsList())
	assert.Equal(t, "sila2.org.example.tests.shapes.v1.Draw_Parameters.Points_Struct", string(points.Message().FullName()))
}

func TestInProcess_Errors(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		idl      string
		wantLine string
	}{
		{
			name:     "undefined type",
			file:     "Broken.proto",
			idl:      "syntax = \"proto3\";\npackage test.v1;\nmessage Broken {\n  Missing field = 1;\n}\n",
			wantLine: "Broken.proto:4:3:",
		},
		{
			name:     "syntax error",
			file:     "Garbled.proto",
			idl:      "syntax = \"proto3\";\npackage test.v1;\nmessage {\n",
			wantLine: "Garbled.proto:3:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewInProcessCompiler(nil).LoadBinding(context.Background(), writeIDL(t, tt.file, tt.idl))

			var compErr *CompilationError
			require.ErrorAs(t, err, &compErr)
			assert.Equal(t, tt.file, compErr.File)
			assert.Zero(t, compErr.ExitCode)
			require.NotEmpty(t, compErr.Lines)
			assert.Contains(t, compErr.Message(), tt.wantLine)
			assert.NotContains(t, compErr.Error(), "exit code")
		})
	}
}

func TestInProcess_IncludePaths(t *testing.T) {
	shared := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(shared, "Units.proto"),
		[]byte("syntax = \"proto3\";\npackage test.units.v1;\nmessage Kelvin { double value = 1; }\n"), 0644))

	idl := "syntax = \"proto3\";\nimport \"Units.proto\";\nimport \"SiLAFramework.proto\";\npackage test.v1;\n" +
		"message Reading {\n  test.units.v1.Kelvin temperature = 1;\n  sila2.org.silastandard.String label = 2;\n}\n"
	c := NewInProcessCompiler(&Options{IncludePaths: []string{shared}})

	binding, err := c.LoadBinding(context.Background(), writeIDL(t, "Reading.proto", idl))
	require.NoError(t, err)
	reading, err := binding.Message("Reading")
	require.NoError(t, err)
	assert.Equal(t, "test.units.v1.Kelvin", string(reading.Fields().ByName("temperature").Message().FullName()))
	assert.Len(t, binding.DescriptorSet().File, 3)
}

func TestInProcess_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := parseFixture(t, fixtures.Greeter)
	_, err := NewInProcessCompiler(nil).LoadBinding(ctx, featureIDL(t, f))
	require.ErrorIs(t, err, context.Canceled)
}

// normalized strips the parts of a descriptor set that differ between
// compilers without changing the schema
func normalized(set *descriptorpb.FileDescriptorSet) map[string]*descriptorpb.FileDescriptorProto {
	files := map[string]*descriptorpb.FileDescriptorProto{}
	for _, f := range set.File {
		f = proto.Clone(f).(*descriptorpb.FileDescriptorProto)
		f.SourceCodeInfo = nil
		var strip func(msgs []*descriptorpb.DescriptorProto)
		strip = func(msgs []*descriptorpb.DescriptorProto) {
			for _, m := range msgs {
				for _, fd := range m.Field {
					fd.JsonName = nil
				}
				strip(m.NestedType)
			}
		}
		strip(f.MessageType)
		files[f.GetName()] = f
	}
	return files
}

func TestInProcess_MatchesProtoc(t *testing.T) {
	protocPath := requireProtoc(t)
	external, _ := newCompiler(t, protocPath, nil)
	inProcess := NewInProcessCompiler(nil)

	for _, name := range []string{fixtures.Greeter, fixtures.TemperatureController} {
		t.Run(name, func(t *testing.T) {
			path := featureIDL(t, parseFixture(t, name))

			want, err := external.LoadBinding(context.Background(), path)
			require.NoError(t, err)
			got, err := inProcess.LoadBinding(context.Background(), path)
			require.NoError(t, err)

			wantFiles := normalized(want.DescriptorSet())
			gotFiles := normalized(got.DescriptorSet())
			require.Len(t, gotFiles, len(wantFiles))
			for fileName, w := range wantFiles {
				g, ok := gotFiles[fileName]
				require.True(t, ok, fileName)
				assert.True(t, proto.Equal(w, g), "%s differs:\nprotoc:     %v\nin process: %v", fileName, w, g)
			}
		})
	}
}
