//go:build !linux

package bpf

import "fmt"

func checkBPFFS(dir string) error {
	return fmt.Errorf("%w: %s", ErrNotBPFFS, dir)
}
