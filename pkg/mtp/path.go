package mtp

import (
	"errors"
	"strings"
)

// MaxPathDepth bounds the number of components in a device path.
const MaxPathDepth = 64

// Path parsing errors, carried in an ErrInvalidPath.
var (
	errDotComponent = errors.New("'.' and '..' are not supported")
	errNulInPath    = errors.New("path contains NUL")
	errTooDeep      = errors.New("path too deep")
	errEmptyName    = errors.New("empty name")
	errSlashInName  = errors.New("name contains '/'")
)

// splitPath splits a device path into its components. A leading or
// trailing slash is optional and empty components collapse, so "",
// "/" and "//" all yield no components: the storage root.
func splitPath(p string) ([]string, error) {
	if strings.ContainsRune(p, 0) {
		return nil, errNulInPath
	}
	var parts []string
	for _, c := range strings.Split(p, "/") {
		switch c {
		case "":
			continue
		case ".", "..":
			return nil, errDotComponent
		}
		parts = append(parts, c)
	}
	if len(parts) > MaxPathDepth {
		return nil, errTooDeep
	}
	return parts, nil
}

// checkName validates a single object name.
func checkName(name string) error {
	switch {
	case name == "":
		return errEmptyName
	case name == "." || name == "..":
		return errDotComponent
	case strings.ContainsRune(name, '/'):
		return errSlashInName
	case strings.ContainsRune(name, 0):
		return errNulInPath
	}
	return nil
}

// joinPath renders components as an absolute device path.
func joinPath(parts []string) string {
	return "/" + strings.Join(parts, "/")
}
