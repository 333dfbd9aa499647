package bpf

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func checkBPFFS(dir string) error {
	var st unix.Statfs_t

	if err := unix.Statfs(dir, &st); err != nil {
		return fmt.Errorf("failed to stat pin directory %s: %w", dir, err)
	}

	if uint32(st.Type) != unix.BPF_FS_MAGIC {
		return fmt.Errorf("%w: %s (mount one with: mount -t bpf bpf %s)", ErrNotBPFFS, dir, dir)
	}

	return nil
}
