// Copyright (C) 2026 The Ghostwire Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package programs holds the kernel-side XDP ingress and TC egress object
// and the Go bindings bpf2go generates for it.
package programs

//go:generate go run github.com/cilium/ebpf/cmd/bpf2go@latest --no-strip --target=bpfel Ghostwire c/ghostwire.c -- -O2 -target bpf -I.
