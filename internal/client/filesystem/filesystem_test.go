package filesystem

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))
}

func TestLocalFS_FileExists(t *testing.T) {
	dir := t.TempDir()
	l := New()

	file := filepath.Join(dir, "a.txt")
	writeFile(t, file)

	assert.True(t, l.FileExists(file))
	assert.True(t, l.FileExists(dir))
	assert.False(t, l.FileExists(filepath.Join(dir, "missing.txt")))
}

func TestLocalFS_FileExists_DanglingSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dir := t.TempDir()
	link := filepath.Join(dir, "dangling")
	require.NoError(t, os.Symlink(filepath.Join(dir, "nowhere"), link))

	l := New()
	assert.True(t, l.FileExists(link), "the link itself exists even if its target does not")
	assert.False(t, l.DirExists(link))
}

func TestLocalFS_RemoveAndRmdir(t *testing.T) {
	dir := t.TempDir()
	l := New()

	sub := filepath.Join(dir, "sub")
	file := filepath.Join(sub, "f.txt")
	writeFile(t, file)

	err := l.Rmdir(sub)
	require.Error(t, err, "rmdir of non-empty directory must fail")

	err = l.Rmdir(file)
	require.ErrorIs(t, err, ErrNotDirectory)

	require.NoError(t, l.Remove(file))
	require.NoError(t, l.Rmdir(sub))
	assert.False(t, l.FileExists(sub))

	err = l.Remove(file)
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestLocalFS_Mkpath(t *testing.T) {
	root := t.TempDir()
	l := New()

	require.NoError(t, l.Mkpath(root, "a/b/c"))
	assert.True(t, l.DirExists(filepath.Join(root, "a")))
	assert.True(t, l.DirExists(filepath.Join(root, "a", "b")))
	assert.True(t, l.DirExists(filepath.Join(root, "a", "b", "c")))

	// idempotent
	require.NoError(t, l.Mkpath(root, "a/b/c"))

	writeFile(t, filepath.Join(root, "file"))
	assert.Error(t, l.Mkpath(root, "file/sub"))
}

func TestLocalFS_Rename_CaseOnly(t *testing.T) {
	root := t.TempDir()
	l := New()

	src := filepath.Join(root, "Report.txt")
	dst := filepath.Join(root, "report.txt")
	writeFile(t, src)

	require.NoError(t, l.Rename(src, dst))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "report.txt", entries[0].Name())
}

func TestLocalFS_Stat(t *testing.T) {
	root := t.TempDir()
	l := New()
	file := filepath.Join(root, "f.txt")
	writeFile(t, file)

	info, err := l.Stat(file)
	require.NoError(t, err)
	assert.Equal(t, int64(len("content")), info.Size)
	assert.False(t, info.IsDir)
	assert.False(t, info.ModTime.IsZero())
	if runtime.GOOS != "windows" {
		assert.NotZero(t, info.Inode)
	}

	info, err = l.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir)
}

func TestLocalFS_ReadDir_IncludesHiddenAndSkipsSymlinkedDirs(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".hidden"))
	require.NoError(t, os.Mkdir(filepath.Join(root, "dir"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(root, "dir"), filepath.Join(root, "link")))

	entries, err := New().ReadDir(root)
	require.NoError(t, err)

	kinds := map[string]bool{}
	for _, e := range entries {
		kinds[e.Name()] = e.IsDir()
	}
	assert.Equal(t, map[string]bool{".hidden": false, "dir": true, "link": false}, kinds)
}

func TestLocalFileNameClash(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "Photos"), 0o755))
	writeFile(t, filepath.Join(root, "docs", "Notes.txt"))

	preserving := New(WithCasePreserving(true))
	sensitive := New(WithCasePreserving(false))

	cases := []struct {
		name      string
		fs        *LocalFS
		rel       string
		wantClash bool
		wantName  string
	}{
		{"different case clashes", preserving, "photos", true, "Photos"},
		{"exact name does not clash", preserving, "Photos", false, ""},
		{"nested different case", preserving, "docs/notes.txt", true, "Notes.txt"},
		{"unrelated name", preserving, "videos", false, ""},
		{"missing parent", preserving, "nope/photos", false, ""},
		{"case sensitive fs never clashes", sensitive, "photos", false, ""},
		{"empty relative", preserving, "", false, ""},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			name, clash := c.fs.LocalFileNameClash(root, c.rel)
			assert.Equal(t, c.wantClash, clash)
			assert.Equal(t, c.wantName, name)
		})
	}
}

func TestLocalFileNameClash_TwoCasings(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		t.Skip("needs a case-sensitive filesystem to create both names")
	}
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"))
	writeFile(t, filepath.Join(root, "A.txt"))

	name, clash := New(WithCasePreserving(true)).LocalFileNameClash(root, "a.txt")
	assert.True(t, clash)
	assert.Equal(t, "A.txt", name)
}

func TestFoldName_Unicode(t *testing.T) {
	// composed "\u00c9" vs decomposed "e" + combining acute
	assert.Equal(t, foldName("CAF\u00c9"), foldName("cafe\u0301"))
	assert.NotEqual(t, foldName("cafe"), foldName("caf\u00e9"))
}

func TestErrorString(t *testing.T) {
	_, err := os.Stat(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	msg := ErrorString(err)
	assert.NotContains(t, msg, "missing", "path decoration must be stripped")
	assert.NotEmpty(t, msg)

	err = os.Rename(filepath.Join(t.TempDir(), "a"), filepath.Join(t.TempDir(), "b"))
	require.Error(t, err)
	assert.NotContains(t, ErrorString(err), "rename")

	assert.Equal(t, "", ErrorString(nil))
	assert.Equal(t, "plain", ErrorString(errors.New("plain")))
}

func TestToNativeSeparators(t *testing.T) {
	assert.Equal(t, filepath.Join("a", "b", "c.txt"), ToNativeSeparators("a/b/c.txt"))
}
