package itn

import (
	"fmt"
	"net/netip"
	"strings"
)

// SourceValidator checks the sender address against the gateway's published
// ranges. With no ranges it is permissive and marks every pass as unchecked.
type SourceValidator struct {
	prefixes []netip.Prefix
}

// NewSourceValidator accepts CIDR ranges or single addresses.
func NewSourceValidator(networks []string) (*SourceValidator, error) {
	v := &SourceValidator{}
	for _, n := range networks {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if prefix, err := netip.ParsePrefix(n); err == nil {
			v.prefixes = append(v.prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(n)
		if err != nil {
			return nil, fmt.Errorf("invalid network %q: %w", n, err)
		}
		addr = addr.Unmap()
		v.prefixes = append(v.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return v, nil
}

func (v *SourceValidator) Permissive() bool {
	return len(v.prefixes) == 0
}

func (v *SourceValidator) Validate(remoteAddr string) CheckResult {
	addr, err := ParseRemoteAddr(remoteAddr)
	if v.Permissive() {
		res := passed(CheckSource, "no ranges configured")
		res.Unchecked = true
		return res
	}
	if err != nil {
		return rejected(CheckSource, err.Error())
	}

	for _, prefix := range v.prefixes {
		if prefix.Contains(addr) {
			return passed(CheckSource, addr.String())
		}
	}
	return rejected(CheckSource, addr.String()+" outside allowed ranges")
}

// ParseRemoteAddr accepts "ip", "ip:port" and "[ipv6]:port".
func ParseRemoteAddr(remoteAddr string) (netip.Addr, error) {
	remoteAddr = strings.TrimSpace(remoteAddr)
	if ap, err := netip.ParseAddrPort(remoteAddr); err == nil {
		return ap.Addr().Unmap(), nil
	}
	addr, err := netip.ParseAddr(strings.Trim(remoteAddr, "[]"))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("unparseable source address %q", remoteAddr)
	}
	return addr.Unmap(), nil
}
