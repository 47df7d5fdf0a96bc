package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/snapetech/xc-timeshift/internal/catalog"
	"github.com/snapetech/xc-timeshift/internal/httpclient"
	"github.com/snapetech/xc-timeshift/internal/safeurl"
)

// maxBody caps any single player_api, M3U or XMLTV response.
const maxBody = 256 << 20

// ErrAuth is returned when the provider answers player_api with auth=0.
var ErrAuth = errors.New("indexer: provider rejected credentials")

// xcPropertyKeys are the get_live_streams fields kept on catalog.Stream
// Properties. Catch-up detection and provider id resolution read them later.
var xcPropertyKeys = []string{
	"stream_id",
	"tv_archive",
	"tv_archive_duration",
	"epg_channel_id",
	"category_id",
	"custom_sid",
	"direct_source",
}

type serverInfo struct {
	URL       string `json:"url"`
	Port      any    `json:"port"`
	HTTPSPort any    `json:"https_port"`
}

// Xtream lists an XC account's live streams via player_api.php. Stream URLs
// point at the provider's /live/ endpoint on the host its server_info reports.
func (ix *Indexer) Xtream(ctx context.Context, acct catalog.Account) ([]catalog.Stream, error) {
	baseURL := strings.TrimSuffix(strings.TrimSpace(acct.ServerURL), "/")
	if !safeurl.IsHTTPOrHTTPS(baseURL) {
		return nil, fmt.Errorf("account %q: server url must be http(s)", acct.Name)
	}
	// Escape credentials so special characters cannot inject query params.
	api := baseURL + "/player_api.php?username=" + url.QueryEscape(acct.Username) + "&password=" + url.QueryEscape(acct.Password)

	body, err := ix.get(ctx, api, acct.UA())
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	var auth struct {
		UserInfo *struct {
			Auth     any    `json:"auth"`
			Username string `json:"username"`
			Password string `json:"password"`
		} `json:"user_info"`
		ServerInfo *serverInfo `json:"server_info"`
	}
	if err := json.Unmarshal(body, &auth); err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	apiUser, apiPass := acct.Username, acct.Password
	if ui := auth.UserInfo; ui != nil {
		if s := scalarString(ui.Auth); s == "0" || s == "false" {
			return nil, ErrAuth
		}
		if ui.Username != "" {
			apiUser = ui.Username
		}
		if ui.Password != "" {
			apiPass = ui.Password
		}
	}
	streamBase := resolveStreamBaseURL(baseURL, auth.ServerInfo)
	api = baseURL + "/player_api.php?username=" + url.QueryEscape(apiUser) + "&password=" + url.QueryEscape(apiPass)

	groups, err := ix.liveCategories(ctx, api, acct.UA())
	if err != nil {
		// Categories only name groups; a provider without them still indexes.
		ix.logf("indexer: account=%q live categories err=%v", acct.Name, err)
	}

	body, err = ix.get(ctx, api+"&action=get_live_streams", acct.UA())
	if err != nil {
		return nil, fmt.Errorf("live streams: %w", err)
	}
	var raw []map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("live streams: %w", err)
	}
	out := make([]catalog.Stream, 0, len(raw))
	for _, item := range raw {
		sid := scalarString(item["stream_id"])
		if sid == "" {
			continue
		}
		name := strings.TrimSpace(scalarString(item["name"]))
		if name == "" {
			name = "Channel " + sid
		}
		props := make(map[string]any, len(xcPropertyKeys))
		for _, k := range xcPropertyKeys {
			if v, ok := item[k]; ok && v != nil {
				props[k] = v
			}
		}
		out = append(out, catalog.Stream{
			Name:       name,
			URL:        fmt.Sprintf("%s/live/%s/%s/%s.ts", streamBase, url.PathEscape(apiUser), url.PathEscape(apiPass), url.PathEscape(sid)),
			TVGID:      strings.TrimSpace(scalarString(item["epg_channel_id"])),
			Logo:       scalarString(item["stream_icon"]),
			Group:      groups[scalarString(item["category_id"])],
			Properties: props,
		})
	}
	return out, nil
}

func (ix *Indexer) liveCategories(ctx context.Context, api, ua string) (map[string]string, error) {
	body, err := ix.get(ctx, api+"&action=get_live_categories", ua)
	if err != nil {
		return nil, err
	}
	var cats []struct {
		ID   any    `json:"category_id"`
		Name string `json:"category_name"`
	}
	if err := json.Unmarshal(body, &cats); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(cats))
	for _, c := range cats {
		if id := scalarString(c.ID); id != "" {
			out[id] = strings.TrimSpace(c.Name)
		}
	}
	return out, nil
}

// resolveStreamBaseURL returns the playback base: server_info's host when the
// provider reports one, else the API base.
func resolveStreamBaseURL(apiBaseURL string, si *serverInfo) string {
	if si == nil || strings.TrimSpace(si.URL) == "" {
		return apiBaseURL
	}
	port := scalarString(si.Port)
	if port == "" {
		return apiBaseURL
	}
	host := strings.TrimSuffix(strings.TrimSpace(si.URL), "/")
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	scheme := "http"
	if hp := scalarString(si.HTTPSPort); hp != "" && hp == port {
		scheme = "https"
	}
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		return scheme + "://" + host
	}
	return scheme + "://" + host + ":" + port
}

// get fetches rawURL with the indexer's retry policy. Errors carry the
// redacted URL only.
func (ix *Indexer) get(ctx context.Context, rawURL, ua string) ([]byte, error) {
	resp, err := ix.open(ctx, rawURL, ua)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", safeurl.RedactURL(rawURL), err)
	}
	return body, nil
}

// open is get without reading the body; callers close resp.Body.
func (ix *Indexer) open(ctx context.Context, rawURL, ua string) (*http.Response, error) {
	newReq := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", ua)
		return req, nil
	}
	resp, err := httpclient.DoWithRetry(ctx, ix.client(), newReq, ix.Retry)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return nil, fmt.Errorf("get %s: %w", safeurl.RedactURL(rawURL), err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("get %s: %w", safeurl.RedactURL(rawURL), errStatusCode(resp.StatusCode))
	}
	return resp, nil
}

type errStatusCode int

func (e errStatusCode) Error() string { return "HTTP " + strconv.Itoa(int(e)) }

// scalarString renders a JSON scalar (string or number) as text.
func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	return ""
}
