package codegen

import (
	"github.com/silaforge/silac/internal/compiler/ast"
	"github.com/silaforge/silac/internal/sila/framework"
)

var (
	commandConfirmation  = framework.Package + ".CommandConfirmation"
	commandExecutionUUID = framework.Package + ".CommandExecutionUUID"
	executionInfo        = framework.Package + ".ExecutionInfo"
)

// rpc is one method of the generated service
type rpc struct {
	name    string
	request string
	reply   string
	stream  bool
	comment string
}

// Method name helpers shared with the runtime
func InfoMethod(command string) string         { return command + "_Info" }
func IntermediateMethod(command string) string { return command + "_Intermediate" }
func ResultMethod(command string) string       { return command + "_Result" }
func GetMethod(property string) string         { return "Get_" + property }
func SubscribeMethod(property string) string   { return "Subscribe_" + property }
func AffectedByMetadataMethod(metadata string) string {
	return "Get_FCPAffectedByMetadata_" + metadata
}

// Message name helpers shared with the runtime
func ParametersMessage(method string) string             { return method + "_Parameters" }
func ResponsesMessage(method string) string              { return method + "_Responses" }
func IntermediateResponsesMessage(command string) string { return command + "_IntermediateResponses" }
func MetadataMessage(metadata string) string             { return "Metadata_" + metadata }
func DataTypeMessage(dataType string) string             { return "DataType_" + dataType }

// commandRPCs maps a command to its methods
func commandRPCs(c *ast.Command) []rpc {
	if !c.Observable {
		return []rpc{{
			name:    c.Identifier,
			request: ParametersMessage(c.Identifier),
			reply:   ResponsesMessage(c.Identifier),
			comment: c.Description,
		}}
	}

	rpcs := []rpc{
		{name: c.Identifier, request: ParametersMessage(c.Identifier), reply: commandConfirmation, comment: c.Description},
		{name: InfoMethod(c.Identifier), request: commandExecutionUUID, reply: executionInfo, stream: true},
	}
	if len(c.IntermediateResponses) > 0 {
		rpcs = append(rpcs, rpc{
			name:    IntermediateMethod(c.Identifier),
			request: commandExecutionUUID,
			reply:   IntermediateResponsesMessage(c.Identifier),
			stream:  true,
		})
	}
	return append(rpcs, rpc{name: ResultMethod(c.Identifier), request: commandExecutionUUID, reply: ResponsesMessage(c.Identifier)})
}

// propertyRPC maps a property to its method
func propertyRPC(p *ast.Property) rpc {
	name := GetMethod(p.Identifier)
	if p.Observable {
		name = SubscribeMethod(p.Identifier)
	}
	return rpc{
		name:    name,
		request: ParametersMessage(name),
		reply:   ResponsesMessage(name),
		stream:  p.Observable,
		comment: p.Description,
	}
}

// metadataRPC maps a metadata to the method listing the calls it affects
func metadataRPC(m *ast.Metadata) rpc {
	name := AffectedByMetadataMethod(m.Identifier)
	return rpc{
		name:    name,
		request: ParametersMessage(name),
		reply:   ResponsesMessage(name),
		comment: m.Description,
	}
}

func (g *Generator) generateService(f *ast.Feature) {
	var rpcs []rpc
	for _, c := range f.Commands {
		rpcs = append(rpcs, commandRPCs(c)...)
	}
	for _, p := range f.Properties {
		rpcs = append(rpcs, propertyRPC(p))
	}
	for _, m := range f.Metadata {
		rpcs = append(rpcs, metadataRPC(m))
	}

	g.writeComment(f.Description)
	if len(rpcs) == 0 {
		g.writeLine("service %s {}", f.Identifier)
		return
	}

	g.writeLine("service %s {", f.Identifier)
	g.indent++
	for _, r := range rpcs {
		g.writeComment(r.comment)
		reply := r.reply
		if r.stream {
			reply = "stream " + reply
		}
		g.writeLine("rpc %s (%s) returns (%s) {}", r.name, r.request, reply)
	}
	g.indent--
	g.writeLine("}")
}
