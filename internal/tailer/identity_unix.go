//go:build unix

package tailer

import (
	"os"

	"golang.org/x/sys/unix"
)

// fileIdentity returns the device/inode pair and size of an open file
func fileIdentity(f *os.File) (Identity, int64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		return Identity{}, 0, err
	}
	return Identity{Dev: uint64(st.Dev), Inode: uint64(st.Ino)}, st.Size, nil
}
