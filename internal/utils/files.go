package utils

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FeatureFileSuffix is the file name suffix of SiLA 2 feature definitions
const FeatureFileSuffix = ".sila.xml"

// FindFeatureFiles recursively finds all feature definitions in the
// specified directory, sorted by path
func FindFeatureFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		if strings.HasSuffix(d.Name(), FeatureFileSuffix) {
			files = append(files, path)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// ExpandFeatureArgs replaces every directory in args with the feature
// definitions below it. Other arguments are kept as given, also when they
// do not exist, so that reading them reports the error per file.
func ExpandFeatureArgs(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil || !info.IsDir() {
			files = append(files, arg)
			continue
		}
		found, err := FindFeatureFiles(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to search %s: %w", arg, err)
		}
		if len(found) == 0 {
			return nil, fmt.Errorf("no %s files in %s", FeatureFileSuffix, arg)
		}
		files = append(files, found...)
	}
	return files, nil
}
