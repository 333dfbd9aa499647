//go:build !linux

package bpf

import (
	"errors"
	"fmt"
	"net"

	"github.com/cilium/ebpf"
)

type tcHook struct {
	qdisc any
}

func linkIndex(iface string) (int, error) {
	i, err := net.InterfaceByName(iface)
	if err != nil {
		return 0, fmt.Errorf("failed to find interface %s: %w", iface, err)
	}

	return i.Index, nil
}

func attachTC(*ebpf.Program, string, uint16) (*tcHook, error) {
	return nil, errors.New("tc egress hooks require linux")
}

func (h *tcHook) detach() error { return nil }
