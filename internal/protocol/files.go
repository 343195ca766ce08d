package protocol

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"
)

// File is one generated project file. Name is the key of the file in the
// JSON object form and is not serialized inside the value.
type File struct {
	Name     string `json:"-"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

// FileSet is an ordered set of files keyed by name. Its JSON form is an
// object mapping names to {content, language}; key order survives a round
// trip, which a Go map would not give us.
type FileSet struct {
	files []File
}

// NewFileSet builds a set from files; later duplicates replace earlier ones.
func NewFileSet(files ...File) FileSet {
	var fs FileSet
	for _, f := range files {
		fs.Set(f)
	}
	return fs
}

// Set adds f, or replaces the file with the same name keeping its position.
func (fs *FileSet) Set(f File) {
	for i := range fs.files {
		if fs.files[i].Name == f.Name {
			fs.files[i] = f
			return
		}
	}
	fs.files = append(fs.files, f)
}

// Get returns the file with the given name.
func (fs FileSet) Get(name string) (File, bool) {
	for _, f := range fs.files {
		if f.Name == name {
			return f, true
		}
	}
	return File{}, false
}

func (fs FileSet) Len() int {
	return len(fs.files)
}

// Files returns a copy of the files in order.
func (fs FileSet) Files() []File {
	out := make([]File, len(fs.files))
	copy(out, fs.files)
	return out
}

func (fs FileSet) Names() []string {
	names := make([]string, len(fs.files))
	for i, f := range fs.files {
		names[i] = f.Name
	}
	return names
}

// Clone returns a set that shares no storage with fs.
func (fs FileSet) Clone() FileSet {
	return FileSet{files: fs.Files()}
}

// MarshalJSON writes the set as a JSON object in insertion order.
func (fs FileSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fs.files {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(f)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping key order.
func (fs *FileSet) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return errors.New("file set: invalid JSON")
	}
	parsed := gjson.ParseBytes(data)
	if parsed.Type == gjson.Null {
		fs.files = nil
		return nil
	}
	if !parsed.IsObject() {
		return errors.New("file set: expected a JSON object")
	}
	fs.files = nil
	parsed.ForEach(func(key, value gjson.Result) bool {
		fs.Set(FileFromJSON(key.String(), value))
		return true
	})
	return nil
}

// FileFromJSON converts one entry of a file-set object. Entries that are not
// objects, or whose content is not a string, yield a file with empty content.
func FileFromJSON(name string, value gjson.Result) File {
	f := File{Name: name}
	if !value.IsObject() {
		return f
	}
	if content := value.Get("content"); content.Type == gjson.String {
		f.Content = content.String()
	}
	if lang := value.Get("language"); lang.Type == gjson.String {
		f.Language = lang.String()
	}
	return f
}
