// Package framework ships the SiLA 2 framework resources: the shared
// SiLAFramework.proto IDL imported by every generated feature IDL, and the
// feature definitions of the core features.
package framework

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	// FrameworkProto is the import path of the shared framework IDL
	FrameworkProto = "SiLAFramework.proto"
	// Package is the protobuf package of the shared framework IDL
	Package = "sila2.org.silastandard"
	// Namespace is the XML namespace of feature definitions
	Namespace = "http://www.sila-standard.org"
)

//go:embed proto/*.proto
var protoFS embed.FS

//go:embed features/*.sila.xml
var featureFS embed.FS

// Protos returns the shared IDL files, rooted at the include directory
func Protos() fs.FS {
	sub, err := fs.Sub(protoFS, "proto")
	if err != nil {
		panic(err)
	}
	return sub
}

// WriteProtos copies the shared IDL files into dir so it can be passed to an
// IDL compiler as an include path
func WriteProtos(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create include directory: %w", err)
	}
	return fs.WalkDir(Protos(), ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := fs.ReadFile(Protos(), path)
		if err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(dir, path), data, 0644)
	})
}

// SiLAServiceDefinition returns the feature definition of the SiLAService core feature
func SiLAServiceDefinition() []byte {
	data, err := featureFS.ReadFile("features/SiLAService-v1_0.sila.xml")
	if err != nil {
		panic(err)
	}
	return data
}
