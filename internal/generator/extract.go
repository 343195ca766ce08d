package generator

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/tidwall/gjson"

	"gensite/internal/protocol"
)

// Extraction outcomes other than success. Each one sends the invoker to the
// fallback project.
var (
	ErrMalformed         = errors.New("response is not valid JSON")
	ErrNotObject         = errors.New("response JSON is not an object")
	ErrMissingEntryPoint = errors.New("response lacks an application or markup entry point")
)

// Base names (lower case) accepted as entry points.
var (
	appEntryPoints    = []string{"app.tsx", "app.jsx", "app.ts", "app.js", "main.tsx", "main.jsx", "script.js"}
	markupEntryPoints = []string{"index.html"}
)

const stylesheetName = "styles.css"

// FindObject returns the first balanced top-level {...} in text. Braces
// inside JSON strings do not count. If an opening brace never balances the
// scan resumes at the next one.
func FindObject(text string) (string, bool) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end, ok := matchBrace(text, start); ok {
			return text[start : end+1], true
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// matchBrace returns the index of the brace closing the one at start.
func matchBrace(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// Extract turns a raw model reply into a file set. The returned error wraps
// one of ErrMalformed, ErrNotObject or ErrMissingEntryPoint.
func Extract(raw string) (protocol.FileSet, error) {
	candidate, ok := FindObject(raw)
	if !ok {
		candidate = raw
	}
	candidate = strings.TrimSpace(candidate)

	if !gjson.Valid(candidate) {
		return protocol.FileSet{}, fmt.Errorf("%w (%d bytes)", ErrMalformed, len(candidate))
	}
	parsed := gjson.Parse(candidate)
	if !parsed.IsObject() {
		return protocol.FileSet{}, fmt.Errorf("%w: got %s", ErrNotObject, parsed.Type)
	}

	var files protocol.FileSet
	parsed.ForEach(func(key, value gjson.Result) bool {
		files.Set(protocol.FileFromJSON(key.String(), value))
		return true
	})

	if !hasBase(files, appEntryPoints) || !hasBase(files, markupEntryPoints) {
		return protocol.FileSet{}, fmt.Errorf("%w: have %v", ErrMissingEntryPoint, files.Names())
	}

	if !hasBase(files, []string{stylesheetName}) {
		files.Set(protocol.File{Name: stylesheetName, Language: "css"})
	}
	return files, nil
}

func hasBase(files protocol.FileSet, bases []string) bool {
	for _, name := range files.Names() {
		base := strings.ToLower(path.Base(name))
		for _, want := range bases {
			if base == want {
				return true
			}
		}
	}
	return false
}
