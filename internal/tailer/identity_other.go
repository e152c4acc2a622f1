//go:build !unix

package tailer

import "os"

// fileIdentity has no inode to offer here; rotation is only detected through truncation.
func fileIdentity(f *os.File) (Identity, int64, error) {
	fi, err := f.Stat()
	if err != nil {
		return Identity{}, 0, err
	}
	return Identity{}, fi.Size(), nil
}
