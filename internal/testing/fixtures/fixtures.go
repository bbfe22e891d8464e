// Package fixtures provides feature definitions shared by tests
package fixtures

import (
	"embed"
	"path"
)

//go:embed features/*.sila.xml
var features embed.FS

const (
	// Greeter declares SayHello(Name) -> Greeting and the StartYear property
	Greeter = "Greeter-v1_0.sila.xml"
	// TemperatureController uses every data type form, an observable command
	// with intermediate responses, metadata and defined execution errors
	TemperatureController = "TemperatureController-v2_1.sila.xml"
)

// Feature returns the named feature definition
func Feature(name string) []byte {
	data, err := features.ReadFile(path.Join("features", name))
	if err != nil {
		panic(err)
	}
	return data
}
