package indexer

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/snapetech/xc-timeshift/internal/catalog"
)

var xmltvTimeLayouts = []string{
	"20060102150405 -0700",
	"20060102150405",
	"200601021504 -0700",
	"200601021504",
}

type xmltvText struct {
	Lang  string `xml:"lang,attr"`
	Value string `xml:",chardata"`
}

type xmltvProgramme struct {
	Start   string      `xml:"start,attr"`
	Stop    string      `xml:"stop,attr"`
	Channel string      `xml:"channel,attr"`
	Titles  []xmltvText `xml:"title"`
	Descs   []xmltvText `xml:"desc"`
}

// Guide pulls an XC account's xmltv.php and keeps programmes for the EPG
// channel ids in wanted.
func (ix *Indexer) Guide(ctx context.Context, acct catalog.Account, wanted map[string]bool) ([]catalog.Programme, error) {
	src := strings.TrimSuffix(strings.TrimSpace(acct.ServerURL), "/") + "/xmltv.php?username=" +
		url.QueryEscape(acct.Username) + "&password=" + url.QueryEscape(acct.Password)
	resp, err := ix.open(ctx, src, acct.UA())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return ParseXMLTV(io.LimitReader(resp.Body, maxBody), wanted, ix.Language)
}

// ParseXMLTV streams programme nodes out of an XMLTV document. A nil wanted
// keeps every channel. Titles and descriptions prefer lang when the
// provider ships several. Programmes with unparseable times are dropped.
func ParseXMLTV(r io.Reader, wanted map[string]bool, lang string) ([]catalog.Programme, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel
	var out []catalog.Programme
	var sawRoot bool
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return out, fmt.Errorf("xmltv: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "tv":
			sawRoot = true
		case "programme":
			var node xmltvProgramme
			if err := dec.DecodeElement(&node, &se); err != nil {
				return out, fmt.Errorf("xmltv: %w", err)
			}
			id := strings.TrimSpace(node.Channel)
			if id == "" || (wanted != nil && !wanted[id]) {
				continue
			}
			start, okStart := parseXMLTVTime(node.Start)
			stop, okStop := parseXMLTVTime(node.Stop)
			if !okStart || !okStop || !stop.After(start) {
				continue
			}
			out = append(out, catalog.Programme{
				EPGChannelID: id,
				Title:        pickText(node.Titles, lang),
				Description:  pickText(node.Descs, lang),
				Start:        start,
				Stop:         stop,
			})
		default:
			if sawRoot {
				_ = dec.Skip()
			}
		}
	}
	if !sawRoot {
		return nil, errors.New("xmltv root <tv> not found")
	}
	return out, nil
}

func parseXMLTVTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range xmltvTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func pickText(vals []xmltvText, lang string) string {
	if len(vals) == 0 {
		return ""
	}
	if lang != "" {
		for _, v := range vals {
			if strings.EqualFold(v.Lang, lang) {
				return strings.TrimSpace(v.Value)
			}
		}
	}
	return strings.TrimSpace(vals[0].Value)
}
