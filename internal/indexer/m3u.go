package indexer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/grafana/regexp"

	"github.com/snapetech/xc-timeshift/internal/catalog"
	"github.com/snapetech/xc-timeshift/internal/safeurl"
)

const maxLineSize = 1 << 20 // 1 MiB per line

// attrRE matches key="value" (or single-quoted) pairs on an #EXTINF line.
var attrRE = regexp.MustCompile(`([A-Za-z0-9_.-]+)=(?:"([^"]*)"|'([^']*)')`)

// M3U lists a plain playlist account's streams. The playlist comes from
// M3UURL, or the provider's get.php when only XC-style credentials are set.
func (ix *Indexer) M3U(ctx context.Context, acct catalog.Account) ([]catalog.Stream, error) {
	src := strings.TrimSpace(acct.M3UURL)
	if src == "" && acct.ServerURL != "" {
		src = strings.TrimSuffix(acct.ServerURL, "/") + "/get.php?username=" + url.QueryEscape(acct.Username) +
			"&password=" + url.QueryEscape(acct.Password) + "&type=m3u_plus&output=ts"
	}
	if !safeurl.IsHTTPOrHTTPS(src) {
		return nil, fmt.Errorf("account %q: no http(s) playlist url", acct.Name)
	}
	resp, err := ix.open(ctx, src, acct.UA())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return ParseM3U(io.LimitReader(resp.Body, maxBody))
}

// ParseM3U reads an extended M3U playlist. Every EXTINF attribute lands in
// the stream's Properties, so catch-up hints (catchup, catchup-days,
// catchup-type, catchup-source, timeshift) reach capability detection as-is.
func ParseM3U(r io.Reader) ([]catalog.Stream, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(nil, maxLineSize)
	var out []catalog.Stream
	var extinf string
	var group string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "#EXTINF:"):
			extinf, group = line, ""
			continue
		case strings.HasPrefix(line, "#EXTGRP:"):
			group = strings.TrimSpace(strings.TrimPrefix(line, "#EXTGRP:"))
			continue
		case strings.HasPrefix(line, "#"):
			continue
		}
		if extinf != "" && safeurl.IsHTTPOrHTTPS(line) {
			out = append(out, streamFromEXTINF(extinf, line, group))
		}
		extinf, group = "", ""
	}
	return out, sc.Err()
}

func streamFromEXTINF(extinf, streamURL, group string) catalog.Stream {
	attrs, name := parseEXTINF(extinf)
	if g := attrs["group-title"]; g != "" {
		group = g
	}
	if name == "" {
		name = attrs["tvg-name"]
	}
	props := make(map[string]any, len(attrs))
	for k, v := range attrs {
		props[k] = v
	}
	return catalog.Stream{
		Name:       name,
		URL:        streamURL,
		TVGID:      attrs["tvg-id"],
		Logo:       attrs["tvg-logo"],
		Group:      group,
		Properties: props,
	}
}

// parseEXTINF returns the attributes and the display name. The name follows
// the first comma after the last attribute, so commas inside quoted values
// (catchup-source templates often have them) are not mistaken for it.
func parseEXTINF(line string) (map[string]string, string) {
	line = strings.TrimPrefix(line, "#EXTINF:")
	attrs := map[string]string{}
	tail := 0
	for _, m := range attrRE.FindAllStringSubmatchIndex(line, -1) {
		key := strings.ToLower(line[m[2]:m[3]])
		switch {
		case m[4] >= 0:
			attrs[key] = strings.TrimSpace(line[m[4]:m[5]])
		case m[6] >= 0:
			attrs[key] = strings.TrimSpace(line[m[6]:m[7]])
		}
		tail = m[1]
	}
	var name string
	if i := strings.IndexByte(line[tail:], ','); i >= 0 {
		name = strings.TrimSpace(line[tail+i+1:])
	}
	return attrs, name
}
