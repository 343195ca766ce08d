package generator

import (
	"path"
	"strings"

	"github.com/tidwall/gjson"

	"gensite/internal/protocol"
)

// MinimalManifest replaces any package.json that is not valid JSON.
const MinimalManifest = "{\n  \"name\": \"react-minimal\",\n  \"version\": \"1.0.0\",\n  \"main\": \"index.tsx\"\n}"

const placeholderContent = "undefined"

// FallbackFiles is the minimal React project used when the model reply
// cannot be turned into a usable file set.
func FallbackFiles() protocol.FileSet {
	return protocol.NewFileSet(
		protocol.File{
			Name:     "index.html",
			Content:  "<div id='root'></div>",
			Language: "html",
		},
		protocol.File{
			Name: "index.tsx",
			Content: "import React from 'react';\n" +
				"import { createRoot } from 'react-dom/client';\n" +
				"import App from './App';\n" +
				"import './styles.css';\n\n" +
				"createRoot(document.getElementById('root')).render(<App />);",
			Language: "typescript",
		},
		protocol.File{
			Name: "App.tsx",
			Content: "import React from 'react';\n" +
				"export default function App() {\n" +
				"  return <h1>Minimal React project generated automatically</h1>;\n" +
				"}",
			Language: "typescript",
		},
		protocol.File{
			Name:     "styles.css",
			Content:  "body { font-family: sans-serif; background: #f5f5f5; margin: 0; padding: 0; }",
			Language: "css",
		},
		protocol.File{
			Name:     "package.json",
			Content:  MinimalManifest,
			Language: "json",
		},
	)
}

// ErrorFiles is the single-file result returned when the model call fails.
func ErrorFiles(err error) protocol.FileSet {
	return protocol.NewFileSet(protocol.File{
		Name:     "App.tsx",
		Content:  "// Error generating code\n// " + err.Error(),
		Language: "typescript",
	})
}

// Eligible reports whether f may be streamed to clients.
func Eligible(f protocol.File) bool {
	content := strings.TrimSpace(f.Content)
	return content != "" && content != placeholderContent
}

// IsManifest reports whether name is a package.json.
func IsManifest(name string) bool {
	return strings.EqualFold(path.Base(name), "package.json")
}

// SanitizeManifest returns f with its content replaced by MinimalManifest
// when f is a package.json that does not parse. Other files are untouched.
func SanitizeManifest(f protocol.File) protocol.File {
	if IsManifest(f.Name) && !gjson.Valid(f.Content) {
		f.Content = MinimalManifest
	}
	return f
}

// SanitizeManifests applies SanitizeManifest to every file of a copy of fs.
func SanitizeManifests(fs protocol.FileSet) protocol.FileSet {
	out := fs.Clone()
	for _, f := range fs.Files() {
		out.Set(SanitizeManifest(f))
	}
	return out
}
