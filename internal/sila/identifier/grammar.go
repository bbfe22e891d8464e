package identifier

import (
	"regexp"
	"strings"
)

// Shared grammar fragments. Originator and category are lowercase dotted
// tokens, identifiers are UpperCamelCase, versions are "v" plus digits.
const (
	OriginatorPattern = `[a-z][a-z0-9]*(?:\.[a-z][a-z0-9]*)*`
	CategoryPattern   = OriginatorPattern
	IdentifierPattern = `[A-Z][a-zA-Z0-9]*`
	VersionPattern    = `v[0-9]+`
)

var (
	originatorRe = regexp.MustCompile(`^` + OriginatorPattern + `$`)
	identifierRe = regexp.MustCompile(`^` + IdentifierPattern + `$`)
	versionRe    = regexp.MustCompile(`^` + VersionPattern + `$`)
)

// shape describes the segments that follow the four feature segments. Each
// keyword is followed by one identifier segment.
type shape struct {
	kind     Kind
	keywords []string
}

var shapes = map[Kind]shape{
	KindFeature:                     {KindFeature, nil},
	KindCommand:                     {KindCommand, []string{"Command"}},
	KindCommandParameter:            {KindCommandParameter, []string{"Command", "Parameter"}},
	KindCommandResponse:             {KindCommandResponse, []string{"Command", "Response"}},
	KindIntermediateCommandResponse: {KindIntermediateCommandResponse, []string{"Command", "IntermediateResponse"}},
	KindDefinedExecutionError:       {KindDefinedExecutionError, []string{"DefinedExecutionError"}},
	KindProperty:                    {KindProperty, []string{"Property"}},
	KindDataType:                    {KindDataType, []string{"DataType"}},
	KindMetadata:                    {KindMetadata, []string{"Metadata"}},
}

func shapeOf(k Kind) shape {
	return shapes[k]
}

// patterns is the composed regular expression table, built once from the
// shared fragments
var patterns = func() map[Kind]*regexp.Regexp {
	feature := strings.Join([]string{OriginatorPattern, CategoryPattern, IdentifierPattern, VersionPattern}, "/")
	table := make(map[Kind]*regexp.Regexp, len(shapes))
	for k, sh := range shapes {
		var b strings.Builder
		b.WriteString("^")
		b.WriteString(feature)
		for _, kw := range sh.keywords {
			b.WriteString("/")
			b.WriteString(kw)
			b.WriteString("/")
			b.WriteString(IdentifierPattern)
		}
		b.WriteString("$")
		table[k] = regexp.MustCompile(b.String())
	}
	return table
}()

// Pattern returns the anchored regular expression for identifiers of kind k
func Pattern(k Kind) string {
	re, ok := patterns[k]
	if !ok {
		return ""
	}
	return re.String()
}

// MatchesPattern validates s against the composed regular expression for k
func MatchesPattern(k Kind, s string) bool {
	re, ok := patterns[k]
	return ok && re.MatchString(s)
}

// Matches reports whether s is a well-formed identifier of kind k. It splits s
// on "/" and checks each segment against the shape table, accepting exactly
// the same strings as MatchesPattern.
func Matches(k Kind, s string) bool {
	sh, ok := shapes[k]
	if !ok {
		return false
	}
	segs := strings.Split(s, "/")
	if len(segs) != 4+2*len(sh.keywords) {
		return false
	}
	if !IsOriginator(segs[0]) || !IsOriginator(segs[1]) || !IsIdentifier(segs[2]) || !versionRe.MatchString(segs[3]) {
		return false
	}
	for i, kw := range sh.keywords {
		if segs[4+2*i] != kw || !IsIdentifier(segs[5+2*i]) {
			return false
		}
	}
	return true
}

// IsIdentifier reports whether s is a valid SiLA identifier segment
func IsIdentifier(s string) bool {
	return identifierRe.MatchString(s)
}

// IsOriginator reports whether s is a valid originator or category segment
func IsOriginator(s string) bool {
	return originatorRe.MatchString(s)
}
