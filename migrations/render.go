package migrations

import (
	"bytes"
	"io"
	"io/fs"
	"strings"
)

// tableFS serves the embedded migration files with the {{table}} and
// {{index}} placeholders replaced by quoted identifiers.
type tableFS struct {
	base     fs.FS
	replacer *strings.Replacer
}

func newTableFS(base fs.FS, table, index string) tableFS {
	return tableFS{base: base, replacer: strings.NewReplacer("{{table}}", table, "{{index}}", index)}
}

func (t tableFS) ReadDir(name string) ([]fs.DirEntry, error) {
	return fs.ReadDir(t.base, name)
}

func (t tableFS) Open(name string) (fs.File, error) {
	f, err := t.base.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if info.IsDir() {
		return f, nil
	}
	defer func() { _ = f.Close() }()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, &fs.PathError{Op: "read", Path: name, Err: err}
	}
	body := []byte(t.replacer.Replace(string(raw)))
	return &renderedFile{Reader: bytes.NewReader(body), info: renderedInfo{FileInfo: info, size: int64(len(body))}}, nil
}

type renderedFile struct {
	*bytes.Reader
	info renderedInfo
}

func (f *renderedFile) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *renderedFile) Close() error               { return nil }

type renderedInfo struct {
	fs.FileInfo
	size int64
}

func (i renderedInfo) Size() int64 { return i.size }
