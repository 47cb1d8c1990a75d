package validator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/marmos91/dittobroker/pkg/broker"
)

var ErrClientTooOld = errors.New("client version below minimum")

// ClientVersion rejects clients or protocols older than a minimum. An empty
// minimum disables that check.
type ClientVersion struct {
	minClient   []int
	minProtocol []int
	rawClient   string
	rawProtocol string
}

// NewClientVersion parses the minimum versions.
func NewClientVersion(minClient, minProtocol string) (*ClientVersion, error) {
	v := &ClientVersion{rawClient: minClient, rawProtocol: minProtocol}
	var err error
	if minClient != "" {
		if v.minClient, err = parseVersion(minClient); err != nil {
			return nil, fmt.Errorf("min client version: %w", err)
		}
	}
	if minProtocol != "" {
		if v.minProtocol, err = parseVersion(minProtocol); err != nil {
			return nil, fmt.Errorf("min protocol version: %w", err)
		}
	}
	return v, nil
}

func (v *ClientVersion) Name() string { return NameClientVersion }

func (v *ClientVersion) Validate(_ context.Context, req *broker.ConnectionRequest) error {
	if err := atLeast("client", req.ClientVersion, v.minClient, v.rawClient); err != nil {
		return err
	}
	return atLeast("protocol", req.ProtocolVersion, v.minProtocol, v.rawProtocol)
}

func atLeast(what, got string, min []int, raw string) error {
	if min == nil {
		return nil
	}
	have, err := parseVersion(got)
	if err != nil {
		return fmt.Errorf("%w: %s version %q unparseable", ErrClientTooOld, what, got)
	}
	if compareVersions(have, min) < 0 {
		return fmt.Errorf("%w: %s version %s < %s", ErrClientTooOld, what, got, raw)
	}
	return nil
}

// parseVersion reads "v1.2.3", "1.2" or "1.2.3-rc1" as numeric components.
// Pre-release and build suffixes are ignored.
func parseVersion(s string) ([]int, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	if i := strings.IndexAny(s, "-+"); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return nil, fmt.Errorf("empty version")
	}
	parts := strings.Split(s, ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid version component %q", p)
		}
		out[i] = n
	}
	return out, nil
}

// compareVersions treats missing trailing components as zero.
func compareVersions(a, b []int) int {
	for i := 0; i < max(len(a), len(b)); i++ {
		var x, y int
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}
