// Package status polls a public Minecraft server status API and reduces its
// answer to a small snapshot.
package status

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Supported status providers
const (
	ProviderMinetools = "minetools"
	ProviderMcsrvstat = "mcsrvstat"
)

var providerURLs = map[string]string{
	ProviderMinetools: "https://api.minetools.eu/ping/",
	ProviderMcsrvstat: "https://api.mcsrvstat.us/3/",
}

var formatCodes = regexp.MustCompile(`(?i)§[0-9a-fk-or]`)

// Players is the server's player count
type Players struct {
	Online int
	Max    int
}

// Snapshot is one status observation
type Snapshot struct {
	Online    bool
	Players   Players
	Message   string
	Address   string
	FetchedAt time.Time
}

// Fresh reports whether the snapshot is online and at most maxAge old
func (s Snapshot) Fresh(now time.Time, maxAge time.Duration) bool {
	return s.Online && !s.FetchedAt.IsZero() && now.Sub(s.FetchedAt) <= maxAge
}

// KnownProvider reports whether provider is supported
func KnownProvider(provider string) bool {
	_, ok := providerURLs[provider]
	return ok
}

// URL is the status endpoint of provider for address
func URL(provider, address string) string {
	base, ok := providerURLs[provider]
	if !ok {
		base = providerURLs[ProviderMinetools]
	}
	return base + address
}

// StripFormatting removes § color and style codes
func StripFormatting(s string) string {
	return formatCodes.ReplaceAllString(s, "")
}

// Normalize turns a provider response body into a snapshot. Anything
// unexpected reads as offline.
func Normalize(provider string, body []byte) Snapshot {
	if !gjson.ValidBytes(body) {
		return Snapshot{}
	}
	doc := gjson.ParseBytes(body)

	switch provider {
	case ProviderMcsrvstat:
		return normalizeMcsrvstat(doc)
	default:
		return normalizeMinetools(doc)
	}
}

// normalizeMinetools reads api.minetools.eu. The server puts the real
// player count at the end of its version line, which is preferred over the
// structured count.
func normalizeMinetools(doc gjson.Result) Snapshot {
	if doc.Get("error").Exists() || !doc.Get("players").IsObject() {
		return Snapshot{}
	}

	s := Snapshot{
		Online: true,
		Players: Players{
			Online: int(doc.Get("players.online").Int()),
			Max:    int(doc.Get("players.max").Int()),
		},
	}
	desc := doc.Get("description")
	if desc.IsObject() {
		desc = desc.Get("text")
	}
	s.Message = StripFormatting(desc.String())
	if name := doc.Get("version.name").String(); name != "" {
		if n, ok := trailingCount(StripFormatting(name)); ok {
			s.Players.Online = n
		}
	}
	return s
}

// trailingCount reads the digits of the last space separated word
func trailingCount(s string) (int, bool) {
	fields := strings.Split(s, " ")
	last := fields[len(fields)-1]
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, last)
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

func normalizeMcsrvstat(doc gjson.Result) Snapshot {
	if !doc.Get("online").Bool() {
		return Snapshot{}
	}
	lines := doc.Get("motd.clean").Array()
	motd := make([]string, 0, len(lines))
	for _, l := range lines {
		motd = append(motd, strings.TrimSpace(l.String()))
	}
	return Snapshot{
		Online: true,
		Players: Players{
			Online: int(doc.Get("players.online").Int()),
			Max:    int(doc.Get("players.max").Int()),
		},
		Message: strings.Join(motd, "\n"),
	}
}
