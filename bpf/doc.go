// Package bpf is the kernel side of xdpfilter: it loads the compiled xdpfilter.o
// image, attaches xdp_filter to an interface's receive path and tc_egress to a
// transmit path, and exposes the kernel maps as store tables.
//
// The deny tables are pinned under a bpffs directory by Publish so that the block
// command, running as a separate process, can open them with OpenDenyTables. The
// rate trackers are never pinned.
//
// This package is intended as an interface to kernelspace, without containing
// specific business logic; the Go rendition of the classifiers lives in package
// classifier.
package bpf

//go:generate clang -O2 -g -Wall -target bpf -c xdpfilter.c -o xdpfilter.o
