// Package lcmurl parses the LCM provider URL:
// scheme://host[:port][?opt=val&opt=val]. It is grounded on
// original_source/lcm/url_util.c's split_host_and_port/read_port/read_host,
// generalized from that C implementation's two schemes (udp, udpm) to the
// four this repository's ProviderFacade recognizes.
package lcmurl

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"lcm-go/lcmerr"
)

// Scheme identifies which transport a parsed URL selects.
type Scheme int

const (
	// NotSpecified is returned when the URL has no "scheme://" prefix.
	NotSpecified Scheme = iota
	// UDPM selects the UDP multicast transport (the default).
	UDPM
	// UDP is reserved for unicast; parsed but behavior is implementation-defined.
	UDP
	// MEMQ selects the in-process queue transport.
	MEMQ
	// FILE selects read-only replay from an event log.
	FILE
)

func (s Scheme) String() string {
	switch s {
	case UDPM:
		return "udpm"
	case UDP:
		return "udp"
	case MEMQ:
		return "memq"
	case FILE:
		return "file"
	default:
		return "not_specified"
	}
}

const schemeSeparator = "://"

var schemesByName = map[string]Scheme{
	"udpm": UDPM,
	"udp":  UDP,
	"memq": MEMQ,
	"file": FILE,
}

// Parsed is the result of parsing an LCM provider URL.
type Parsed struct {
	Scheme Scheme
	Host   string
	Port   int // -1 if absent
	Opts   url.Values
}

// Parse splits raw into scheme, host, port, and options. An absent
// "scheme://" prefix leaves Scheme == NotSpecified and raw is parsed as
// host[:port][?options]. The host must be non-empty for every scheme,
// including memq and file.
func Parse(raw string) (*Parsed, error) {
	scheme := NotSpecified
	rest := raw

	if idx := strings.Index(raw, schemeSeparator); idx >= 0 {
		name := raw[:idx]
		sc, ok := schemesByName[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("lcmurl: unknown scheme %q: %w", name, lcmerr.ErrInvalidArgument)
		}
		scheme = sc
		rest = raw[idx+len(schemeSeparator):]
	}

	hostPort, query, _ := strings.Cut(rest, "?")

	host, port, err := splitHostAndPort(hostPort)
	if err != nil {
		return nil, err
	}

	opts, err := url.ParseQuery(query)
	if err != nil {
		return nil, fmt.Errorf("lcmurl: invalid options %q: %w", query, lcmerr.ErrInvalidArgument)
	}

	return &Parsed{Scheme: scheme, Host: host, Port: port, Opts: opts}, nil
}

// splitHostAndPort mirrors url_util.c's split_host_and_port: the host is
// everything before the first colon (and must be non-empty), the port is
// everything after it and must be a decimal integer that consumes the
// entire remainder, or -1 if there is no colon at all.
func splitHostAndPort(hostAndPort string) (string, int, error) {
	colon := strings.IndexByte(hostAndPort, ':')
	if colon < 0 {
		if hostAndPort == "" {
			return "", 0, fmt.Errorf("lcmurl: empty host: %w", lcmerr.ErrInvalidArgument)
		}
		return hostAndPort, -1, nil
	}

	host := hostAndPort[:colon]
	if host == "" {
		return "", 0, fmt.Errorf("lcmurl: empty host: %w", lcmerr.ErrInvalidArgument)
	}

	portStr := hostAndPort[colon+1:]
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("lcmurl: invalid port %q: %w", portStr, lcmerr.ErrInvalidArgument)
	}
	return host, port, nil
}
