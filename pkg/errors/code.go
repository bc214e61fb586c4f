package errors

import (
	"fmt"
	"strings"
)

// Code identifies a failure as "<package>.<condition>", e.g. "copier.write_failed".
// Both halves are lowercase identifiers; codes compare with ==.
type Code struct {
	value string
}

// Shared codes for conditions that are not specific to one package
var (
	CommonInternal     = MustNewCode("common.internal")
	CommonNotFound     = MustNewCode("common.not_found")
	CommonValidation   = MustNewCode("common.validation")
	CommonTimeout      = MustNewCode("common.timeout")
	CommonCancelled    = MustNewCode("common.cancelled")
	CommonUnsupported  = MustNewCode("common.unsupported")
	CommonInvalidInput = MustNewCode("common.invalid_input")
)

// NewCode parses s, rejecting anything that is not a well formed code
func NewCode(s string) (Code, error) {
	if err := checkCode(s); err != nil {
		return Code{}, err
	}
	return Code{value: s}, nil
}

// MustNewCode is NewCode for package level vars; it panics on a bad code
func MustNewCode(s string) Code {
	code, err := NewCode(s)
	if err != nil {
		panic(err)
	}
	return code
}

// PackageCode joins pkg and name into a code
func PackageCode(pkg, name string) Code {
	return MustNewCode(pkg + "." + name)
}

func checkCode(s string) error {
	pkg, name, ok := strings.Cut(s, ".")
	if !ok {
		return fmt.Errorf("code %q has no package prefix", s)
	}
	if !isIdent(pkg) {
		return fmt.Errorf("code %q: package %q is not a lowercase identifier", s, pkg)
	}
	if !isIdent(name) {
		return fmt.Errorf("code %q: name %q is not a lowercase identifier", s, name)
	}
	// "err" also covers "error"
	if strings.Contains(s, "err") {
		return fmt.Errorf("code %q names the failure, drop the err/error wording", s)
	}
	return nil
}

// isIdent matches [a-z][a-z0-9_]*
func isIdent(s string) bool {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return false
	}
	for _, r := range s[1:] {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}

func (c Code) String() string {
	return c.value
}

// Package is the part before the dot, "" for the zero Code
func (c Code) Package() string {
	pkg, _, ok := strings.Cut(c.value, ".")
	if !ok {
		return ""
	}
	return pkg
}

// Name is the condition after the dot
func (c Code) Name() string {
	_, name, ok := strings.Cut(c.value, ".")
	if !ok {
		return c.value
	}
	return name
}

// IsValid reports whether c would have been accepted by NewCode
func (c Code) IsValid() bool {
	return checkCode(c.value) == nil
}
