package node

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

const maxConfigFileBytes = 1 << 20

// readOperatorFile reads a small regular file named by an operator-supplied
// path. The name is opened relative to its directory so it cannot traverse.
func readOperatorFile(path string) ([]byte, error) {
	dir, name := filepath.Dir(path), filepath.Base(path)
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return nil, fmt.Errorf("invalid file name: %q", name)
	}
	fsys := os.DirFS(dir)
	st, err := fs.Stat(fsys, name)
	if err != nil {
		return nil, err
	}
	if !st.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}
	if st.Size() > maxConfigFileBytes {
		return nil, fmt.Errorf("%s exceeds %d bytes", path, maxConfigFileBytes)
	}
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxConfigFileBytes))
}
