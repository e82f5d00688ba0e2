package rules

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestEngine(t *testing.T) *YAMLEngine {
	t.Helper()
	e, err := NewYAMLEngine("skyrimse", "", t.TempDir())
	require.NoError(t, err)
	return e
}

func TestNewYAMLEngine_RequiresGame(t *testing.T) {
	_, err := NewYAMLEngine("", "", "")
	require.Error(t, err)

	var ee *EngineError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "init", ee.Op)
}

func TestNewYAMLEngine_MissingGamePath(t *testing.T) {
	_, err := NewYAMLEngine("skyrimse", filepath.Join(t.TempDir(), "nope"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not accessible")
}

func TestYAMLFactory_NoTypedNil(t *testing.T) {
	e, err := YAMLFactory("", "", "")
	require.Error(t, err)
	assert.Nil(t, e)
}

func TestSort_WithoutRulesKeepsInputOrder(t *testing.T) {
	e := newTestEngine(t)

	got, err := e.Sort(context.Background(), []string{"c.esp", "a.esp", "b.esp"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c.esp", "a.esp", "b.esp"}, got)
}

func TestSort_AfterRules(t *testing.T) {
	dir := t.TempDir()
	master := filepath.Join(dir, "masterlist.yaml")
	writeFile(t, master, `
plugins:
  - name: A.esp
    after: [B.esp]
  - name: B.esp
    req: [C.esm]
`)
	e := newTestEngine(t)
	require.NoError(t, e.LoadLists(context.Background(), master, ""))

	got, err := e.Sort(context.Background(), []string{"A.esp", "B.esp", "C.esm"})
	require.NoError(t, err)
	assert.Equal(t, []string{"C.esm", "B.esp", "A.esp"}, got)
}

func TestSort_RuleNamesAreCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	master := filepath.Join(dir, "masterlist.yaml")
	writeFile(t, master, `
plugins:
  - name: a.ESP
    after: [b.esp]
`)
	e := newTestEngine(t)
	require.NoError(t, e.LoadLists(context.Background(), master, ""))

	got, err := e.Sort(context.Background(), []string{"A.esp", "B.esp"})
	require.NoError(t, err)
	assert.Equal(t, []string{"B.esp", "A.esp"}, got)
}

func TestSort_GlobalPriority(t *testing.T) {
	dir := t.TempDir()
	master := filepath.Join(dir, "masterlist.yaml")
	writeFile(t, master, `
plugins:
  - name: first.esp
    global_priority: 10
`)
	e := newTestEngine(t)
	require.NoError(t, e.LoadLists(context.Background(), master, ""))

	got, err := e.Sort(context.Background(), []string{"first.esp", "second.esp"})
	require.NoError(t, err)
	assert.Equal(t, []string{"second.esp", "first.esp"}, got)
}

func TestSort_UserlistOverridesMasterlist(t *testing.T) {
	dir := t.TempDir()
	master := filepath.Join(dir, "masterlist.yaml")
	user := filepath.Join(dir, "userlist.yaml")
	writeFile(t, master, "plugins:\n  - name: A.esp\n")
	writeFile(t, user, "plugins:\n  - name: A.esp\n    after: [B.esp]\n")

	e := newTestEngine(t)
	require.NoError(t, e.LoadLists(context.Background(), master, user))

	got, err := e.Sort(context.Background(), []string{"A.esp", "B.esp"})
	require.NoError(t, err)
	assert.Equal(t, []string{"B.esp", "A.esp"}, got)
}

func TestSort_CycleReported(t *testing.T) {
	dir := t.TempDir()
	user := filepath.Join(dir, "userlist.yaml")
	writeFile(t, user, `
plugins:
  - name: A.esp
    after: [B.esp]
  - name: B.esp
    after: [A.esp]
`)
	e := newTestEngine(t)
	require.NoError(t, e.LoadLists(context.Background(), filepath.Join(dir, "missing.yaml"), user))

	_, err := e.Sort(context.Background(), []string{"A.esp", "B.esp"})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), CyclicMarker), err.Error())
	assert.Contains(t, err.Error(), "A.esp")
	assert.Contains(t, err.Error(), "B.esp")
}

func TestSort_SelfLoopIsCycle(t *testing.T) {
	dir := t.TempDir()
	user := filepath.Join(dir, "userlist.yaml")
	writeFile(t, user, "plugins:\n  - name: A.esp\n    after: [A.esp]\n")

	e := newTestEngine(t)
	require.NoError(t, e.LoadLists(context.Background(), filepath.Join(dir, "missing.yaml"), user))

	_, err := e.Sort(context.Background(), []string{"A.esp"})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), CyclicMarker))
}

func TestSort_InvalidExtension(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Sort(context.Background(), []string{"readme.txt"})
	require.Error(t, err)
	assert.Equal(t, "readme.txt is not a valid plugin", err.Error())
}

func TestSort_MissingFromDataDir(t *testing.T) {
	gamePath := t.TempDir()
	writeFile(t, filepath.Join(gamePath, "Data", "present.esp"), "")

	e, err := NewYAMLEngine("skyrimse", gamePath, t.TempDir())
	require.NoError(t, err)

	_, err = e.Sort(context.Background(), []string{"present.esp", "gone.esp"})
	require.Error(t, err)
	assert.True(t, strings.HasSuffix(err.Error(), InvalidPluginMarker))
	assert.True(t, strings.HasPrefix(err.Error(), "gone.esp"))
}

func TestLoadLists_MissingUserlistFails(t *testing.T) {
	e := newTestEngine(t)
	dir := t.TempDir()

	err := e.LoadLists(context.Background(), filepath.Join(dir, "m.yaml"), filepath.Join(dir, "u.yaml"))
	require.Error(t, err)

	var ee *EngineError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "load", ee.Op)
}

func TestLoadLists_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	master := filepath.Join(dir, "masterlist.yaml")
	writeFile(t, master, "plugins: [unterminated")

	e := newTestEngine(t)
	err := e.LoadLists(context.Background(), master, "")
	require.Error(t, err)
}

func TestMetadata(t *testing.T) {
	dir := t.TempDir()
	master := filepath.Join(dir, "masterlist.yaml")
	writeFile(t, master, `
plugins:
  - name: A.esp
    tag: [Delev, -Relev]
    msg:
      - type: warn
        content: needs a patch
    dirty:
      - crc: "0x1234ABCD"
        util: SSEEdit
        itm: 3
    global_priority: 5
`)
	e := newTestEngine(t)
	require.NoError(t, e.LoadLists(context.Background(), master, ""))

	md := e.Metadata("a.esp")
	assert.Equal(t, []Tag{{Name: "Delev", Addition: true}, {Name: "Relev", Addition: false}}, md.Tags)
	require.Len(t, md.Messages, 1)
	assert.Equal(t, "warn", md.Messages[0].Type)
	require.Len(t, md.Dirtiness, 1)
	assert.Equal(t, 3, md.Dirtiness[0].ITMCount)
	assert.Empty(t, md.Cleanliness)
	assert.Equal(t, 5, md.GlobalPriority)

	assert.Equal(t, Metadata{}, e.Metadata("unknown.esp"))
}

func TestUpdateMasterlist_FromLocalPath(t *testing.T) {
	src := filepath.Join(t.TempDir(), "masterlist.yaml")
	writeFile(t, src, "plugins:\n  - name: A.esp\n")
	dst := filepath.Join(t.TempDir(), "masterlist.yaml")

	e := newTestEngine(t)

	updated, err := e.UpdateMasterlist(context.Background(), dst, src, "v0.10")
	require.NoError(t, err)
	assert.True(t, updated)

	updated, err = e.UpdateMasterlist(context.Background(), dst, "file://"+src, "v0.10")
	require.NoError(t, err)
	assert.False(t, updated, "unchanged content is not an update")
}

func TestUpdateMasterlist_FromDirectory(t *testing.T) {
	srcDir := t.TempDir()
	writeFile(t, filepath.Join(srcDir, "masterlist.yaml"), "plugins: []\n")
	dst := filepath.Join(t.TempDir(), "masterlist.yaml")

	e := newTestEngine(t)
	updated, err := e.UpdateMasterlist(context.Background(), dst, srcDir, "v0.10")
	require.NoError(t, err)
	assert.True(t, updated)
}

func TestUpdateMasterlist_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/masterlist.yaml" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("plugins:\n  - name: A.esp\n"))
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "masterlist.yaml")
	e := newTestEngine(t)

	updated, err := e.UpdateMasterlist(context.Background(), dst, srv.URL+"/masterlist.yaml", "v0.10")
	require.NoError(t, err)
	assert.True(t, updated)

	_, err = e.UpdateMasterlist(context.Background(), dst, srv.URL+"/missing", "v0.10")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestUpdateMasterlist_RejectsInvalidContent(t *testing.T) {
	src := filepath.Join(t.TempDir(), "masterlist.yaml")
	writeFile(t, src, "plugins:\n  - after: [x.esp]\n")
	dst := filepath.Join(t.TempDir(), "masterlist.yaml")

	e := newTestEngine(t)
	_, err := e.UpdateMasterlist(context.Background(), dst, src, "v0.10")
	require.Error(t, err)

	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr), "invalid content must not be written")
}

func TestUpdateMasterlist_UnsupportedScheme(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.UpdateMasterlist(context.Background(), filepath.Join(t.TempDir(), "m.yaml"), "ssh://host/repo", "v0.10")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported")
}

func TestEngineMessage(t *testing.T) {
	inner := NewInvalidPluginError("x.esp")
	wrapped := errors.Join(errors.New("context"), inner)

	assert.Equal(t, "x.esp is not a valid plugin", EngineMessage(wrapped))
	assert.Equal(t, "plain", EngineMessage(errors.New("plain")))
	assert.Equal(t, "", EngineMessage(nil))
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key("Skyrim.esm"), Key("  skyrim.ESM "))
	assert.NotEqual(t, Key("a.esp"), Key("b.esp"))
}
