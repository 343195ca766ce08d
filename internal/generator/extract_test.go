package generator

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"gensite/internal/protocol"
)

const validReply = `{
  "index.html": {"content": "<div id=\"root\"></div>", "language": "html"},
  "App.tsx": {"content": "export default function App() { return <main>{'}'}</main>; }", "language": "typescript"},
  "package.json": {"content": "{\"name\": \"site\"}", "language": "json"}
}`

func TestFindObject(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		want  string
		found bool
	}{
		{"plain object", `{"a":1}`, `{"a":1}`, true},
		{"surrounded by prose", "Here you go:\n{\"a\":{\"b\":2}}\nEnjoy!", `{"a":{"b":2}}`, true},
		{"markdown fence", "```json\n{\"a\":1}\n```", `{"a":1}`, true},
		{"braces inside strings", `{"a":"}{","b":"\"}"}`, `{"a":"}{","b":"\"}"}`, true},
		{"first of two objects", `{"a":1} and {"b":2}`, `{"a":1}`, true},
		{"unbalanced then balanced", `oops { never closed {"a":1}`, `{"a":1}`, true},
		{"no braces", "sorry, I cannot help", "", false},
		{"only opening", "{{{", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FindObject(tt.text)
			if ok != tt.found {
				t.Fatalf("found = %v, want %v", ok, tt.found)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtract_Valid(t *testing.T) {
	files, err := Extract("Sure! Here is the project:\n" + validReply + "\nLet me know.")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	want := []string{"index.html", "App.tsx", "package.json", "styles.css"}
	if got := files.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	css, _ := files.Get("styles.css")
	if css.Content != "" || css.Language != "css" {
		t.Errorf("expected synthesized empty stylesheet, got %+v", css)
	}
}

func TestExtract_KeepsExistingStylesheet(t *testing.T) {
	raw := `{"App.tsx":{"content":"x"},"index.html":{"content":"y"},"styles.css":{"content":"body{}","language":"css"}}`
	files, err := Extract(raw)
	if err != nil {
		t.Fatal(err)
	}
	if files.Len() != 3 {
		t.Errorf("expected 3 files, got %v", files.Names())
	}
	css, _ := files.Get("styles.css")
	if css.Content != "body{}" {
		t.Errorf("stylesheet was overwritten: %q", css.Content)
	}
}

func TestExtract_EntryPointsCaseInsensitive(t *testing.T) {
	raw := `{"src/APP.TSX":{"content":"x"},"Index.HTML":{"content":"y"}}`
	if _, err := Extract(raw); err != nil {
		t.Fatalf("expected case-insensitive entry points to be accepted: %v", err)
	}
}

func TestExtract_Failures(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"no object at all", "I am unable to do that.", ErrMalformed},
		{"broken JSON", `{"App.tsx": {"content": "x",}}`, ErrMalformed},
		{"array reply", `[1, 2, 3]`, ErrNotObject},
		{"missing markup", `{"App.tsx":{"content":"x"}}`, ErrMissingEntryPoint},
		{"missing app", `{"index.html":{"content":"x"}}`, ErrMissingEntryPoint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract(tt.raw)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestEligible(t *testing.T) {
	tests := []struct {
		content string
		want    bool
	}{
		{"body {}", true},
		{"", false},
		{"   \n\t", false},
		{"undefined", false},
		{"  undefined \n", false},
		{"undefined;", true},
	}
	for _, tt := range tests {
		if got := Eligible(protocol.File{Name: "x", Content: tt.content}); got != tt.want {
			t.Errorf("Eligible(%q) = %v, want %v", tt.content, got, tt.want)
		}
	}
}

func TestSanitizeManifest(t *testing.T) {
	bad := protocol.File{Name: "package.json", Content: "{name: oops", Language: "json"}
	fixed := SanitizeManifest(bad)
	if fixed.Content != MinimalManifest {
		t.Fatalf("expected minimal manifest, got %q", fixed.Content)
	}
	if !gjson.Valid(fixed.Content) {
		t.Fatal("replacement manifest must parse")
	}
	if again := SanitizeManifest(fixed); again.Content != fixed.Content {
		t.Error("sanitizing twice changed the manifest")
	}

	good := protocol.File{Name: "package.json", Content: `{"name":"ok"}`}
	if SanitizeManifest(good).Content != good.Content {
		t.Error("valid manifest was replaced")
	}

	other := protocol.File{Name: "App.tsx", Content: "{not json"}
	if SanitizeManifest(other).Content != other.Content {
		t.Error("non-manifest file was modified")
	}
}

func TestSanitizeManifests_LeavesInputUntouched(t *testing.T) {
	fs := protocol.NewFileSet(
		protocol.File{Name: "web/package.json", Content: "nope"},
		protocol.File{Name: "App.tsx", Content: "x"},
	)
	out := SanitizeManifests(fs)

	orig, _ := fs.Get("web/package.json")
	if orig.Content != "nope" {
		t.Error("input set was mutated")
	}
	fixed, _ := out.Get("web/package.json")
	if fixed.Content != MinimalManifest {
		t.Errorf("nested manifest not sanitized: %q", fixed.Content)
	}
	if !reflect.DeepEqual(out.Names(), fs.Names()) {
		t.Errorf("order changed: %v", out.Names())
	}
}

func TestFallbackFiles_Complete(t *testing.T) {
	fs := FallbackFiles()
	for _, name := range []string{"index.html", "index.tsx", "App.tsx", "styles.css", "package.json"} {
		f, ok := fs.Get(name)
		if !ok {
			t.Errorf("fallback missing %s", name)
			continue
		}
		if !Eligible(f) {
			t.Errorf("fallback %s is not streamable", name)
		}
	}
	manifest, _ := fs.Get("package.json")
	if !gjson.Valid(manifest.Content) {
		t.Error("fallback manifest must parse")
	}
	if !strings.Contains(UserMessage(Request{Prompt: "x"}), "x") {
		t.Error("user message must carry the prompt")
	}
}
