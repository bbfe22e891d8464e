package fdl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silaforge/silac/internal/testing/fixtures"
)

func TestXPath(t *testing.T) {
	doc, err := Parse(fixtures.Feature(fixtures.TemperatureController))
	require.NoError(t, err)

	tests := []struct {
		name string
		expr string
		want []string
	}{
		{"command identifiers", "/sila:Feature/sila:Command/sila:Identifier", []string{"ControlTemperature", "SetLabel"}},
		{"observable properties", "//sila:Property[sila:Observable='Yes']/sila:Identifier", []string{"CurrentTemperature"}},
		{"data type references", "//sila:DataTypeIdentifier", []string{"Temperature", "Reading", "Temperature", "Temperature", "Temperature"}},
		{"no match", "//sila:Metadata/sila:Observable", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes, err := doc.XPath(tt.expr)
			require.NoError(t, err)

			var got []string
			for _, n := range nodes {
				got = append(got, n.InnerText())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestXPath_MalformedExpression(t *testing.T) {
	doc, err := Parse(fixtures.Feature(fixtures.Greeter))
	require.NoError(t, err)

	_, err = doc.XPath("//sila:Command[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid XPath expression")
}

func TestXPathValue(t *testing.T) {
	doc, err := Parse(fixtures.Feature(fixtures.TemperatureController))
	require.NoError(t, err)

	count, err := XPathValue(doc.Tree, "count(//sila:DefinedExecutionError)")
	require.NoError(t, err)
	assert.Equal(t, float64(2), count)

	version, err := XPathValue(doc.Root, "string(@FeatureVersion)")
	require.NoError(t, err)
	assert.Equal(t, "2.1", version)
}
