package console

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/roach88/lifeline/internal/canon"
	"github.com/roach88/lifeline/internal/record"
)

// MapsBaseURL is the map search endpoint links point at.
const MapsBaseURL = "https://maps.google.com/"

// MapsURL links to loc with six-decimal coordinates. A nil location has no
// link.
func MapsURL(loc *record.Location) string {
	if loc == nil {
		return ""
	}
	return MapsBaseURL + "?q=" + sixDecimals(loc.Lat) + "," + sixDecimals(loc.Lng)
}

func sixDecimals(f canon.Fixed) string {
	n := int64(f)
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	return fmt.Sprintf("%s%d.%06d", sign, n/canon.FixedScale, n%canon.FixedScale)
}

// TelURL is a dial link for phone, keeping digits and a leading plus.
func TelURL(phone string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "tel:" + b.String()
}

// Launcher hands a link to something that can open it.
type Launcher interface {
	Open(ctx context.Context, link string) error
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context, link string) error

func (f LauncherFunc) Open(ctx context.Context, link string) error { return f(ctx, link) }

// OSLauncher opens links with the platform opener.
type OSLauncher struct {
	// Command overrides the opener; the link is appended as the last
	// argument.
	Command []string
}

// DefaultOpener returns the opener command for goos.
func DefaultOpener(goos string) []string {
	switch goos {
	case "darwin":
		return []string{"open"}
	case "windows":
		return []string{"rundll32", "url.dll,FileProtocolHandler"}
	default:
		return []string{"xdg-open"}
	}
}

// Open runs the opener for http, https and tel links.
func (l OSLauncher) Open(ctx context.Context, link string) error {
	u, err := url.Parse(link)
	if err != nil {
		return fmt.Errorf("open %q: %w", link, err)
	}
	switch u.Scheme {
	case "http", "https", "tel":
	default:
		return fmt.Errorf("open %q: unsupported scheme %s", link, strconv.Quote(u.Scheme))
	}
	argv := l.Command
	if len(argv) == 0 {
		argv = DefaultOpener(runtime.GOOS)
	}
	args := append(append([]string{}, argv[1:]...), link)
	if out, err := exec.CommandContext(ctx, argv[0], args...).CombinedOutput(); err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("open %s: %w: %s", link, err, msg)
		}
		return fmt.Errorf("open %s: %w", link, err)
	}
	return nil
}
