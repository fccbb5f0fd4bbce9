package tub

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/storagegrid/gridnode/src/crypto/keys"
)

const furlScheme = "pb://"

// swissnumBytes random bytes encode to exactly 32 base32 characters.
const swissnumBytes = 20

var swissnumEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// FURL is the parsed form of an object reference.
type FURL struct {
	TubID string
	Hints []string
	Name  string
}

// ParseFURL parses a reference string of the form
// pb://<tubID>@<hint>[,<hint>...]/<name>.
func ParseFURL(s string) (*FURL, error) {
	s = strings.TrimSpace(s)

	if !strings.HasPrefix(s, furlScheme) {
		return nil, fmt.Errorf("furl %q: missing %s scheme", s, furlScheme)
	}
	rest := s[len(furlScheme):]

	slash := strings.Index(rest, "/")
	if slash < 0 {
		return nil, fmt.Errorf("furl %q: missing name", s)
	}
	location, name := rest[:slash], rest[slash+1:]
	if name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("furl %q: bad name", s)
	}

	at := strings.Index(location, "@")
	if at < 0 {
		return nil, fmt.Errorf("furl %q: missing location hints", s)
	}
	tubID, hintList := location[:at], location[at+1:]
	if !keys.IsTubID(tubID) {
		return nil, fmt.Errorf("furl %q: bad tub ID", s)
	}

	var hints []string
	for _, h := range strings.Split(hintList, ",") {
		if h != "" {
			hints = append(hints, h)
		}
	}
	if len(hints) == 0 {
		return nil, fmt.Errorf("furl %q: missing location hints", s)
	}

	return &FURL{
		TubID: tubID,
		Hints: hints,
		Name:  name,
	}, nil
}

// String returns the reference string. ParseFURL(f.String()) yields f.
func (f *FURL) String() string {
	return fmt.Sprintf("%s%s@%s/%s",
		furlScheme,
		f.TubID,
		strings.Join(f.Hints, ","),
		f.Name)
}

// NewSwissnum returns a fresh random object name.
func NewSwissnum() string {
	buf := make([]byte, swissnumBytes)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Errorf("failed to read random bytes: %v", err))
	}
	return strings.ToLower(swissnumEncoding.EncodeToString(buf))
}

func validName(name string) bool {
	return name != "" && !strings.ContainsAny(name, "/,@ \t\n")
}
