package manifest

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/chazu/tern/compiler"
)

// ToPackageName converts a dependency name to a package name.
// "my-lib" -> "my_lib", "Models" -> "models", "json.Parser" -> "json.parser"
func ToPackageName(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == '-' || r == ' ':
			b.WriteByte('_')
		case r == '.':
			b.WriteByte('.')
		case unicode.IsLetter(r) || r == '_':
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsDigit(r):
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidatePackageName checks that every segment of name is an identifier.
func ValidatePackageName(name string) error {
	if name == "" {
		return fmt.Errorf("empty package name")
	}
	for _, seg := range strings.Split(name, ".") {
		if seg == "" {
			return fmt.Errorf("package %q has an empty segment", name)
		}
		for i, r := range seg {
			if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
				continue
			}
			return fmt.Errorf("package %q: segment %q is not an identifier", name, seg)
		}
		if compiler.IsReservedWord(seg) {
			return fmt.Errorf("package %q: segment %q is a keyword", name, seg)
		}
	}
	return nil
}

// reservedPackages are roots owned by the host and the runtime library.
var reservedPackages = map[string]bool{
	"tern":                  true,
	compiler.RuntimePackage: true,
}

// IsReservedPackage reports whether name lies in a package tree owned by
// the host or the runtime library. Only the root segment is checked:
// "std" and "tern.lang" are reserved, "stdx" is not.
func IsReservedPackage(name string) bool {
	root := name
	if idx := strings.IndexByte(name, '.'); idx >= 0 {
		root = name[:idx]
	}
	return reservedPackages[root]
}
