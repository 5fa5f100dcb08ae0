package moderation

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"
)

var (
	ErrInvalidTOML  = errors.New("invalid allowlist TOML")
	ErrInvalidRegex = errors.New("invalid allowlist pattern")
)

// Allowlist holds content patterns that are never redacted, such as a
// shared wifi password format a group agrees is fine to post.
type Allowlist struct {
	Regexes []*regexp.Regexp
}

// allows reports whether text is matched by any allowlist pattern.
func (a *Allowlist) allows(text string) bool {
	if a == nil {
		return false
	}
	for _, re := range a.Regexes {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// LoadAllowlist reads a TOML file of the form
//
//	[allowlist]
//	regexes = ["^password=sunny-beach-\\d+$"]
//
// A missing file yields an empty allowlist.
func LoadAllowlist(path string) (*Allowlist, error) {
	var file struct {
		Allowlist struct {
			Regexes []string
		}
	}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Allowlist{}, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTOML, path, err)
	}

	list := &Allowlist{Regexes: make([]*regexp.Regexp, 0, len(file.Allowlist.Regexes))}
	for _, pattern := range file.Allowlist.Regexes {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %q in %s: %v", ErrInvalidRegex, pattern, path, err)
		}
		list.Regexes = append(list.Regexes, re)
	}
	return list, nil
}
