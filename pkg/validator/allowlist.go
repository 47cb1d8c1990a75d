package validator

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/marmos91/dittobroker/internal/logger"
	"github.com/marmos91/dittobroker/pkg/broker"
)

var ErrAddressNotAllowed = errors.New("remote address not allowed")

// Allowlist admits requests whose remote address falls in one of its
// prefixes. Prefixes come from configuration and, optionally, from a file
// with one CIDR or address per line that is reloaded when it changes.
type Allowlist struct {
	static []netip.Prefix
	path   string

	mu       sync.RWMutex
	fromFile []netip.Prefix

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewAllowlist parses cidrs and loads path if set. Call Watch to follow
// changes to the file and Close to stop.
func NewAllowlist(cidrs []string, path string) (*Allowlist, error) {
	static, err := parsePrefixes(cidrs)
	if err != nil {
		return nil, err
	}
	a := &Allowlist{static: static, path: path}
	if path != "" {
		if err := a.reload(); err != nil {
			return nil, err
		}
	}
	if len(a.static) == 0 && path == "" {
		return nil, fmt.Errorf("allowlist: no cidrs and no file configured")
	}
	return a, nil
}

func (a *Allowlist) Name() string { return NameAllowlist }

func (a *Allowlist) Validate(_ context.Context, req *broker.ConnectionRequest) error {
	addr, err := remoteAddr(req.RemoteAddr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAddressNotAllowed, err)
	}
	if a.Allows(addr) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrAddressNotAllowed, addr)
}

// Allows reports whether addr is covered by any prefix.
func (a *Allowlist) Allows(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range a.static {
		if p.Contains(addr) {
			return true
		}
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, p := range a.fromFile {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Watch starts following the allowlist file. It watches the parent
// directory so files replaced by rename are picked up.
func (a *Allowlist) Watch() error {
	if a.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("allowlist: create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(a.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("allowlist: watch %s: %w", a.path, err)
	}

	a.watcher = w
	a.stopCh = make(chan struct{})
	a.done = make(chan struct{})
	go a.watchLoop()

	logger.Info("Allowlist hot-reload started", "path", a.path)
	return nil
}

func (a *Allowlist) watchLoop() {
	defer close(a.done)
	target := filepath.Clean(a.path)

	for {
		select {
		case <-a.stopCh:
			return
		case ev, ok := <-a.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if err := a.reload(); err != nil {
				// Keep the previous list.
				logger.Error("Allowlist reload failed", "path", a.path, logger.Err(err))
				continue
			}
			logger.Info("Allowlist reloaded", "path", a.path, logger.Count(a.fileLen()))
		case err, ok := <-a.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("Allowlist watcher error", logger.Err(err))
		}
	}
}

// Close stops watching. Safe to call on an allowlist that never watched.
func (a *Allowlist) Close() error {
	var err error
	a.once.Do(func() {
		if a.watcher == nil {
			return
		}
		close(a.stopCh)
		err = a.watcher.Close()
		<-a.done
	})
	return err
}

func (a *Allowlist) fileLen() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.fromFile)
}

func (a *Allowlist) reload() error {
	data, err := os.ReadFile(a.path)
	if err != nil {
		return fmt.Errorf("allowlist: read %s: %w", a.path, err)
	}

	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}

	prefixes, err := parsePrefixes(lines)
	if err != nil {
		return fmt.Errorf("allowlist: %s: %w", a.path, err)
	}

	a.mu.Lock()
	a.fromFile = prefixes
	a.mu.Unlock()
	return nil
}

// parsePrefixes accepts CIDRs and bare addresses.
func parsePrefixes(entries []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("invalid cidr %q: %w", e, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q: %w", e, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// remoteAddr accepts "host:port" or a bare address.
func remoteAddr(s string) (netip.Addr, error) {
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("invalid remote address %q", s)
	}
	return addr, nil
}
