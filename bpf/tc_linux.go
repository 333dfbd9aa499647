package bpf

import (
	"errors"
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/vishvananda/netlink"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// tcHook is a direct-action bpf filter on a clsact egress parent.
type tcHook struct {
	iface  string
	filter *netlink.BpfFilter
	// qdisc is nil when the clsact qdisc existed before attach and is left in place
	qdisc *netlink.GenericQdisc
}

func linkIndex(iface string) (int, error) {
	l, err := netlink.LinkByName(iface)
	if err != nil {
		return 0, fmt.Errorf("failed to find interface %s: %w", iface, err)
	}

	return l.Attrs().Index, nil
}

func attachTC(prog *ebpf.Program, iface string, priority uint16) (*tcHook, error) {
	idx, err := linkIndex(iface)
	if err != nil {
		return nil, err
	}

	h := &tcHook{iface: iface}

	qdisc := &netlink.GenericQdisc{
		QdiscAttrs: netlink.QdiscAttrs{
			LinkIndex: idx,
			Handle:    netlink.MakeHandle(0xffff, 0),
			Parent:    netlink.HANDLE_CLSACT,
		},
		QdiscType: "clsact",
	}

	switch err := netlink.QdiscAdd(qdisc); {
	case err == nil:
		h.qdisc = qdisc
	case errors.Is(err, unix.EEXIST):
	default:
		return nil, fmt.Errorf("cannot add clsact qdisc: %w", err)
	}

	h.filter = &netlink.BpfFilter{
		FilterAttrs: netlink.FilterAttrs{
			LinkIndex: idx,
			Parent:    netlink.HANDLE_MIN_EGRESS,
			Handle:    netlink.MakeHandle(0, 1),
			Protocol:  unix.ETH_P_ALL,
			Priority:  priority,
		},
		Fd:           prog.FD(),
		Name:         ProgEgress,
		DirectAction: true,
	}

	// FilterAdd is exclusive: an occupied priority/handle fails with EEXIST
	if err := netlink.FilterAdd(h.filter); err != nil {
		if h.qdisc != nil {
			_ = netlink.QdiscDel(h.qdisc)
		}

		return nil, fmt.Errorf("cannot attach bpf filter at priority %d: %w", priority, err)
	}

	return h, nil
}

func (h *tcHook) detach() error {
	var errs error

	if err := netlink.FilterDel(h.filter); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("FilterDel(%s:%s): %w", h.iface, h.filter.Name, err))
	}

	if h.qdisc != nil {
		if err := netlink.QdiscDel(h.qdisc); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("QdiscDel(%s:clsact): %w", h.iface, err))
		}
	}

	return errs
}
