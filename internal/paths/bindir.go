// Package paths expands binary directory templates.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// Placeholders understood in binary-directory templates.
const (
	TokenUser      = "@USER@"
	TokenCPTag     = "@CPTAG@"
	TokenHash      = "@IAL_HASH@"
	TokenCompiler  = "@COMPILER@"
	TokenPrecision = "@PRECISION@"
)

// cptags maps compiler and precision to the suffix used in build names.
var cptags = map[string]map[string]string{
	"intel": {"sp": "-sp", "dp": ""},
	"gnu":   {"sp": "-sp-gnu", "dp": "-gnu"},
}

// CPTag returns the build suffix for a compiler and precision. Precisions
// other than "sp" use the double-precision suffix. Unknown compilers map to "".
func CPTag(compiler, precision string) string {
	byPrecision, ok := cptags[compiler]
	if !ok {
		return ""
	}
	if precision == "sp" {
		return byPrecision["sp"]
	}
	return byPrecision["dp"]
}

// PrecisionCode maps a precision name to the real-kind label used in binary
// paths: "sp" is R32, everything else R64.
func PrecisionCode(precision string) string {
	if precision == "sp" || precision == "R32" {
		return "R32"
	}
	return "R64"
}

// BinTokens holds the values substituted into a bindir template.
type BinTokens struct {
	User      string
	CPTag     string
	Hash      string
	Compiler  string
	Precision string
}

// Expand substitutes every placeholder in template.
func (t BinTokens) Expand(template string) string {
	return strings.NewReplacer(
		TokenUser, t.User,
		TokenCPTag, t.CPTag,
		TokenHash, t.Hash,
		TokenCompiler, t.Compiler,
		TokenPrecision, t.Precision,
	).Replace(template)
}

// CurrentUser returns $USER, falling back to $LOGNAME.
func CurrentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return os.Getenv("LOGNAME")
}

// InstallDir turns a bindir into the directory an archive is unpacked in.
// Archives carry their own bin/ level, so a trailing bin element is dropped.
func InstallDir(bindir string) string {
	dir := filepath.Clean(bindir)
	if filepath.Base(dir) == "bin" {
		return filepath.Dir(dir)
	}
	return dir
}
