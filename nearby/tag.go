package nearby

import (
	"fmt"
	"strings"
)

// ServiceTag is the discovery namespace every cooperating peer must use identically.
//
// At most 15 characters, of ASCII lowercase letters, digits and hyphens.
type ServiceTag string

// ParseServiceTag validates s as a ServiceTag.
func ParseServiceTag(s string) (ServiceTag, error) {
	t := ServiceTag(s)

	if err := t.Validate(); err != nil {
		return "", err
	}

	return t, nil
}

func MustParseServiceTag(s string) ServiceTag {
	t, err := ParseServiceTag(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t ServiceTag) Validate() error {
	s := string(t)

	switch {
	case s == "":
		return fmt.Errorf("%w: empty", ErrInvalidServiceTag)
	case len(s) > MaxServiceTagLen:
		return fmt.Errorf("%w: %q is longer than %d characters", ErrInvalidServiceTag, s, MaxServiceTagLen)
	case strings.HasPrefix(s, "-") || strings.HasSuffix(s, "-"):
		return fmt.Errorf("%w: %q starts or ends with a hyphen", ErrInvalidServiceTag, s)
	case strings.Contains(s, "--"):
		return fmt.Errorf("%w: %q contains consecutive hyphens", ErrInvalidServiceTag, s)
	}

	for _, c := range []byte(s) {
		if !(c >= 'a' && c <= 'z') && !(c >= '0' && c <= '9') && c != '-' {
			return fmt.Errorf("%w: %q contains %q", ErrInvalidServiceTag, s, c)
		}
	}

	return nil
}

func (t ServiceTag) String() string {
	return string(t)
}
