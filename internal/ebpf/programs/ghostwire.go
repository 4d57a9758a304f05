// Copyright (C) 2026 The Ghostwire Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package programs

import (
	"fmt"
	"net"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"golang.org/x/sys/unix"

	"github.com/packetware/ghostwire/internal/errors"
	"github.com/packetware/ghostwire/internal/logging"
)

// Program manages the loaded ghostwire XDP/TC collection: the kernel-side
// ingress verdict and egress classifier plus their shared maps.
type Program struct {
	collection *ebpf.Collection
	ingress    link.Link
	egress     link.Link
	logger     *logging.Logger
}

// bumpMemlockRlimit removes the locked-memory limit for older kernels that
// account eBPF map memory against RLIMIT_MEMLOCK rather than the memcg
// eBPF accounting newer kernels use.
func bumpMemlockRlimit() error {
	return unix.Setrlimit(unix.RLIMIT_MEMLOCK, &unix.Rlimit{Cur: unix.RLIM_INFINITY, Max: unix.RLIM_INFINITY})
}

// Load reads the embedded collection spec and instantiates it. It does not
// attach anything yet; call Attach once a Program is loaded.
func Load(logger *logging.Logger) (*Program, error) {
	if logger == nil {
		logger = logging.Default()
	}

	if err := bumpMemlockRlimit(); err != nil {
		logger.Warn("failed to raise memlock rlimit", "error", err)
	}

	// LoadGhostwire is produced by `go generate ./...` against
	// c/ghostwire.c via bpf2go; it returns the *ebpf.CollectionSpec for
	// the ghostwire_ingress/ghostwire_egress programs and their maps.
	spec, err := LoadGhostwire()
	if err != nil {
		return nil, fmt.Errorf("load ghostwire collection spec: %w", err)
	}

	collection, err := ebpf.NewCollection(spec)
	if err != nil {
		return nil, fmt.Errorf("instantiate ghostwire collection: %w", err)
	}

	return &Program{collection: collection, logger: logger}, nil
}

// Attach attaches the ingress XDP program and the egress TCX classifier to
// iface. XDP attach tries native offload first and falls back to
// SKB/generic mode when the driver doesn't support it.
func (p *Program) Attach(iface string) error {
	ifaceObj, err := net.InterfaceByName(iface)
	if err != nil {
		return fmt.Errorf("find interface %s: %w", iface, err)
	}

	ingressProg := p.collection.Programs["ghostwire_ingress"]
	if ingressProg == nil {
		return errors.New(errors.KindDatapath, "ghostwire_ingress program not found in collection")
	}
	ingressLink, err := attachXDPWithFallback(ingressProg, ifaceObj.Index)
	if err != nil {
		return errors.Wrap(err, errors.KindDatapath, "attach XDP ingress")
	}
	p.ingress = ingressLink
	p.logger.Info("attached XDP ingress", "interface", iface)

	egressProg := p.collection.Programs["ghostwire_egress"]
	if egressProg == nil {
		ingressLink.Close()
		return errors.New(errors.KindDatapath, "ghostwire_egress program not found in collection")
	}
	egressLink, err := link.AttachTCX(link.TCXOptions{
		Program:   egressProg,
		Interface: ifaceObj.Index,
		Attach:    ebpf.AttachTCXEgress,
	})
	if err != nil {
		ingressLink.Close()
		return errors.Wrap(err, errors.KindDatapath, "attach TC egress")
	}
	p.egress = egressLink
	p.logger.Info("attached TC egress", "interface", iface)

	return nil
}

// attachXDPWithFallback tries a native XDP attach first, then SKB/generic
// mode if the driver doesn't support native offload.
func attachXDPWithFallback(prog *ebpf.Program, ifindex int) (link.Link, error) {
	lnk, err := link.AttachXDP(link.XDPOptions{Program: prog, Interface: ifindex})
	if err == nil {
		return lnk, nil
	}
	return link.AttachXDP(link.XDPOptions{
		Program:   prog,
		Interface: ifindex,
		Flags:     link.XDPGenericMode,
	})
}

// Map returns a loaded map by its C-source name (RULES, HOLEPUNCHED,
// RATELIMITING, RULE_EVALUATED, RULE_PASSED, XDP_ACTION_ANALYTICS,
// TC_ACTION_ANALYTICS), or nil if the collection hasn't loaded it.
func (p *Program) Map(name string) *ebpf.Map {
	return p.collection.Maps[name]
}

// Close detaches both links and releases the collection.
func (p *Program) Close() error {
	var firstErr error
	if p.egress != nil {
		if err := p.egress.Close(); err != nil {
			firstErr = err
		}
	}
	if p.ingress != nil {
		if err := p.ingress.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if p.collection != nil {
		p.collection.Close()
	}
	return firstErr
}
