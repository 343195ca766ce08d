package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestCountFiles_EmptyDir(t *testing.T) {
	dir := t.TempDir()
	count := CountFiles(dir)
	if count != 0 {
		t.Errorf("expected 0 files, got %d", count)
	}
}

func TestCountFiles_WithFiles(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		os.WriteFile(filepath.Join(dir, "file"+string(rune('a'+i))+".tsx"), []byte("test"), 0644)
	}

	count := CountFiles(dir)
	if count != 5 {
		t.Errorf("expected 5 files, got %d", count)
	}
}

func TestCountFiles_ExcludesNodeModules(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "App.tsx"), []byte("test"), 0644)

	nmDir := filepath.Join(dir, "node_modules")
	os.MkdirAll(nmDir, 0755)
	os.WriteFile(filepath.Join(nmDir, "package.json"), []byte("test"), 0644)

	count := CountFiles(dir)
	if count != 1 {
		t.Errorf("expected 1 file (node_modules excluded), got %d", count)
	}
}

func TestCountFiles_ExcludesHidden(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "App.tsx"), []byte("test"), 0644)
	os.WriteFile(filepath.Join(dir, ".env"), []byte("SECRET"), 0644)
	os.MkdirAll(filepath.Join(dir, ".git"), 0755)
	os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("ref"), 0644)
	os.MkdirAll(filepath.Join(dir, ".cache"), 0755)
	os.WriteFile(filepath.Join(dir, ".cache", "x"), []byte("x"), 0644)

	count := CountFiles(dir)
	if count != 1 {
		t.Errorf("expected 1 file (hidden entries excluded), got %d", count)
	}
}

func TestCountFiles_MissingDir(t *testing.T) {
	if got := CountFiles(filepath.Join(t.TempDir(), "missing")); got != 0 {
		t.Errorf("expected 0 for missing dir, got %d", got)
	}
}

func TestBuildFileTree_EmptyDir(t *testing.T) {
	dir := t.TempDir()
	tree := BuildFileTree(dir, DefaultTreeDepth)
	if len(tree) != 0 {
		t.Errorf("expected empty tree, got %d nodes", len(tree))
	}
}

func TestBuildFileTree_WithFiles(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "index.html"), []byte("<div></div>"), 0644)
	os.MkdirAll(filepath.Join(dir, "components"), 0755)
	os.WriteFile(filepath.Join(dir, "components", "Hero.tsx"), []byte("export {}"), 0644)

	tree := BuildFileTree(dir, DefaultTreeDepth)
	if len(tree) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(tree))
	}

	// Dirs come first.
	if !tree[0].IsDir || tree[0].Name != "components" {
		t.Errorf("expected first node to be 'components' dir, got %s (isDir=%v)", tree[0].Name, tree[0].IsDir)
	}
	if len(tree[0].Children) != 1 || tree[0].Children[0].Path != "components/Hero.tsx" {
		t.Errorf("unexpected children %+v", tree[0].Children)
	}

	if tree[1].IsDir || tree[1].Name != "index.html" || tree[1].Size != int64(len("<div></div>")) {
		t.Errorf("unexpected file node %+v", tree[1])
	}
}

func TestBuildFileTree_ExcludesGitAndNodeModules(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "App.tsx"), []byte("test"), 0644)
	os.MkdirAll(filepath.Join(dir, ".git", "objects"), 0755)
	os.MkdirAll(filepath.Join(dir, "node_modules", "pkg"), 0755)

	tree := BuildFileTree(dir, DefaultTreeDepth)
	if len(tree) != 1 {
		t.Errorf("expected 1 node, got %d", len(tree))
	}
}

func TestBuildFileTree_MaxDepth(t *testing.T) {
	dir := t.TempDir()
	deep := filepath.Join(dir, "a", "b", "c", "d")
	os.MkdirAll(deep, 0755)
	os.WriteFile(filepath.Join(deep, "deep.txt"), []byte("deep"), 0644)

	tree := BuildFileTree(dir, 3)
	if len(tree) != 1 {
		t.Fatalf("expected 1 top-level node, got %d", len(tree))
	}

	node := tree[0]
	if node.Name != "a" {
		t.Fatalf("expected 'a', got %s", node.Name)
	}
	if len(node.Children) != 1 || node.Children[0].Name != "b" {
		t.Fatalf("expected 'b' child")
	}
	b := node.Children[0]
	if len(b.Children) != 1 || b.Children[0].Name != "c" {
		t.Fatalf("expected 'c' child")
	}
	if c := b.Children[0]; len(c.Children) != 0 {
		t.Errorf("expected no children at depth 3, got %d", len(c.Children))
	}
}

func TestIsHidden(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{".git", true},
		{".env", true},
		{"App.tsx", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := isHidden(tt.name); got != tt.want {
			t.Errorf("isHidden(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestWatcher_ReportsChanges(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "index.html"), []byte("x"), 0644)

	var mu sync.Mutex
	var counts []int
	w := New(dir, func(n int) {
		mu.Lock()
		counts = append(counts, n)
		mu.Unlock()
	}, nil)
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Close()

	if got := w.Count(); got != 1 {
		t.Fatalf("expected initial count 1, got %d", got)
	}

	os.MkdirAll(filepath.Join(dir, "src"), 0755)
	os.WriteFile(filepath.Join(dir, "src", "App.tsx"), []byte("x"), 0644)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if w.Count() == 2 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if got := w.Count(); got != 2 {
		t.Fatalf("expected count 2 after write, got %d", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(counts) < 2 || counts[0] != 1 || counts[len(counts)-1] != 2 {
		t.Errorf("unexpected callback counts %v", counts)
	}
}

func TestWatcher_CloseIdempotent(t *testing.T) {
	w := New(t.TempDir(), nil, nil)
	if err := w.Close(); err != nil {
		t.Fatalf("Close before Start: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
