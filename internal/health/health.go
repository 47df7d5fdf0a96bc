package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/snapetech/xc-timeshift/internal/catalog"
	"github.com/snapetech/xc-timeshift/internal/safeurl"
)

// CheckProvider confirms an account's provider answers. XC accounts must
// accept their credentials on player_api.php; playlist accounts must serve
// their M3U. Errors never include the credentials.
func CheckProvider(ctx context.Context, client *http.Client, acct catalog.Account) error {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	target := strings.TrimSpace(acct.M3UURL)
	if acct.Type == catalog.AccountXC {
		base := strings.TrimSuffix(strings.TrimSpace(acct.ServerURL), "/")
		target = base + "/player_api.php?username=" + url.QueryEscape(acct.Username) + "&password=" + url.QueryEscape(acct.Password)
	}
	if !safeurl.IsHTTPOrHTTPS(target) {
		return fmt.Errorf("account %q: no provider URL configured", acct.Name)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("account %q: bad provider URL", acct.Name)
	}
	req.Header.Set("User-Agent", acct.UA())
	resp, err := client.Do(req)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return fmt.Errorf("account %q: provider unreachable: %w", acct.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("account %q: provider returned HTTP %d", acct.Name, resp.StatusCode)
	}
	if acct.Type != catalog.AccountXC {
		// Some providers stream the whole playlist; the status is enough.
		return nil
	}
	var auth struct {
		UserInfo struct {
			Auth   any    `json:"auth"`
			Status string `json:"status"`
		} `json:"user_info"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&auth); err != nil {
		return fmt.Errorf("account %q: player_api: %w", acct.Name, err)
	}
	switch v := auth.UserInfo.Auth.(type) {
	case float64:
		if v == 1 {
			return nil
		}
	case string:
		if v == "1" {
			return nil
		}
	}
	return fmt.Errorf("account %q: provider rejected credentials (status %q)", acct.Name, auth.UserInfo.Status)
}

// CheckEndpoints hits /healthz and /metrics at baseURL and returns the first
// error or nil. /healthz must report status "ok".
func CheckEndpoints(ctx context.Context, baseURL string) error {
	baseURL = strings.TrimSuffix(baseURL, "/")
	client := &http.Client{Timeout: 5 * time.Second}
	for _, path := range []string{"/healthz", "/metrics"} {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: HTTP %d", path, resp.StatusCode)
		}
		if path != "/healthz" {
			continue
		}
		var st struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(body, &st); err != nil || st.Status != "ok" {
			return fmt.Errorf("%s: status %q", path, st.Status)
		}
	}
	return nil
}
