package errors

import (
	"context"
	stderrors "errors"
	"io/fs"
	"regexp"
	"strconv"

	"github.com/silaforge/silac/internal/compiler/codegen"
	"github.com/silaforge/silac/internal/compiler/fdl"
	"github.com/silaforge/silac/internal/compiler/protoc"
)

// Feature definition diagnostics (FDL001-099)
const (
	// ErrXMLSyntax indicates the input is not well-formed XML
	ErrXMLSyntax ErrorCode = "FDL001"
	// ErrSchemaStructure indicates an element or attribute is missing, misplaced or unknown
	ErrSchemaStructure ErrorCode = "FDL002"
	// ErrInvalidValue indicates a value outside its lexical space
	ErrInvalidValue ErrorCode = "FDL003"
	// ErrDuplicateIdentifier indicates an identifier declared twice in one scope
	ErrDuplicateIdentifier ErrorCode = "FDL004"
	// ErrUndefinedReference indicates a data type or error reference that does not resolve
	ErrUndefinedReference ErrorCode = "FDL005"
	// ErrInvalidDataType indicates an invalid data type composition
	ErrInvalidDataType ErrorCode = "FDL006"
)

// Transformation diagnostics (IDL001-099)
const (
	// ErrTransform indicates the feature could not be expressed as IDL
	ErrTransform ErrorCode = "IDL001"
)

// Protoc diagnostics (PRC001-099)
const (
	// ErrProtocCompilation indicates protoc rejected the generated IDL
	ErrProtocCompilation ErrorCode = "PRC001"
	// ErrProtocNoOutput indicates protoc succeeded without a descriptor for the IDL
	ErrProtocNoOutput ErrorCode = "PRC002"
	// ErrProtocUnavailable indicates protoc could not be started
	ErrProtocUnavailable ErrorCode = "PRC003"
	// ErrProtocInterrupted indicates protoc was cancelled or timed out
	ErrProtocInterrupted ErrorCode = "PRC004"
)

// Other diagnostics
const (
	// ErrIO indicates a file could not be read or written
	ErrIO ErrorCode = "IO001"
	// ErrInternal indicates an error no other code covers
	ErrInternal ErrorCode = "SLC001"
)

var ruleCodes = map[fdl.Rule]struct {
	code     ErrorCode
	typ      string
	category ErrorCategory
}{
	fdl.RuleStructure: {ErrSchemaStructure, "schema_structure", CategorySchema},
	fdl.RuleValue:     {ErrInvalidValue, "invalid_value", CategorySchema},
	fdl.RuleDuplicate: {ErrDuplicateIdentifier, "duplicate_identifier", CategorySemantic},
	fdl.RuleReference: {ErrUndefinedReference, "undefined_reference", CategorySemantic},
	fdl.RuleType:      {ErrInvalidDataType, "invalid_data_type", CategorySemantic},
}

// protocLine matches "file:line:col: message" and "file:line: message"
var protocLine = regexp.MustCompile(`^([^:]+):(\d+)(?::(\d+))?:\s*(.*)$`)

// FromError converts an error returned by the compiler pipeline into
// diagnostics. A nil error yields nil.
func FromError(err error) ErrorList {
	if err == nil {
		return nil
	}

	var (
		list       ErrorList
		syntaxErr  *fdl.XMLSyntaxError
		schemaErr  *fdl.SchemaValidationError
		transform  *codegen.TransformError
		compileErr *protoc.CompilationError
		runErr     *protoc.RunError
		pathErr    *fs.PathError
	)

	switch {
	case stderrors.As(err, &schemaErr):
		for _, v := range schemaErr.Violations {
			list = append(list, fromViolation(v))
		}
	case stderrors.As(err, &syntaxErr):
		list = append(list, newError(ErrXMLSyntax, "xml_syntax", CategorySyntax, syntaxErr.Error(), Location{}).
			WithSuggestion("check that the file is well-formed XML with a single Feature root element"))
	case stderrors.As(err, &transform):
		list = append(list, newError(ErrTransform, "transform_failed", CategoryTransform, transform.Error(), Location{}))
	case stderrors.As(err, &compileErr):
		list = append(list, fromCompilation(compileErr)...)
	case stderrors.Is(err, protoc.ErrNoOutput):
		list = append(list, newError(ErrProtocNoOutput, "protoc_no_output", CategoryProtoc, err.Error(), Location{}))
	case stderrors.Is(err, context.DeadlineExceeded), stderrors.Is(err, context.Canceled):
		list = append(list, newError(ErrProtocInterrupted, "protoc_interrupted", CategoryProtoc, err.Error(), Location{}).
			WithSuggestion("raise compiler.timeout if the feature is large"))
	case stderrors.As(err, &runErr):
		list = append(list, newError(ErrProtocUnavailable, "protoc_unavailable", CategoryProtoc, err.Error(), Location{}).
			WithSuggestion("install protoc or set compiler.protoc to its path"))
	case stderrors.As(err, &pathErr):
		list = append(list, newError(ErrIO, "io", CategoryIO, err.Error(), Location{}).WithFile(pathErr.Path))
	default:
		list = append(list, newError(ErrInternal, "internal", CategoryInternal, err.Error(), Location{}))
	}
	return list
}

func fromViolation(v fdl.Violation) *CompilerError {
	rc, ok := ruleCodes[v.Rule]
	if !ok {
		rc = ruleCodes[fdl.RuleStructure]
	}
	return newError(rc.code, rc.typ, rc.category, v.Message, Location{Path: v.Path})
}

func fromCompilation(e *protoc.CompilationError) ErrorList {
	if len(e.Lines) == 0 {
		return ErrorList{newError(ErrProtocCompilation, "protoc_compilation", CategoryProtoc, e.Error(), Location{}).WithFile(e.File)}
	}

	list := make(ErrorList, 0, len(e.Lines))
	for _, line := range e.Lines {
		file, loc, msg := splitProtocLine(line)
		if file == "" {
			file = e.File
		}
		list = append(list, newError(ErrProtocCompilation, "protoc_compilation", CategoryProtoc, msg, loc).WithFile(file))
	}
	return list
}

func splitProtocLine(line string) (string, Location, string) {
	m := protocLine.FindStringSubmatch(line)
	if m == nil {
		return "", Location{}, line
	}
	lineNo, _ := strconv.Atoi(m[2])
	col, _ := strconv.Atoi(m[3])
	return m[1], Location{Line: lineNo, Column: col}, m[4]
}
