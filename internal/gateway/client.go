package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"tweetwatch/internal/metrics"
	"tweetwatch/internal/model"
)

// Gateway is the remote contract consumed by the reconciliation engine.
// The bearer token is passed per call so that token rotation takes effect
// on the next cycle without rebuilding the client.
type Gateway interface {
	LookupAccountByHandle(ctx context.Context, handle, token string) (model.RemoteAccount, error)
	LookupAccountByID(ctx context.Context, remoteID int64, token string) (model.RemoteAccount, error)
	FetchMentionsSince(ctx context.Context, remoteID, sinceID int64, token string) ([]model.RawMention, error)
	FetchLikers(ctx context.Context, tweetLink, token string) (map[string]struct{}, error)
	FetchRetweeters(ctx context.Context, tweetLink, token string) (map[string]struct{}, error)
	// ProbeTokenStatus returns nil with an error when the status is
	// indeterminate (e.g. transport failure).
	ProbeTokenStatus(ctx context.Context, token string) (*model.TokenStatus, error)
}

// HTTPClient is a bearer-token client for the X API v2.
type HTTPClient struct {
	baseURL     string
	probeURL    string
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	baseBackoff time.Duration
}

// NewHTTPClient builds a client whose per-request deadline is timeout
// (15s when zero).
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL:     "https://api.twitter.com/2",
		probeURL:    "https://api.twitter.com/1.1",
		httpClient:  &http.Client{Timeout: timeout},
		limiter:     newDefaultLimiter(),
		maxAttempts: getEnvInt("X_API_MAX_ATTEMPTS", 5),
		baseBackoff: time.Duration(getEnvInt("X_API_BASE_BACKOFF_MS", 500)) * time.Millisecond,
	}
}

func (c *HTTPClient) LookupAccountByHandle(ctx context.Context, handle, token string) (model.RemoteAccount, error) {
	var out model.RemoteAccount
	if handle == "" {
		return out, errors.New("empty handle")
	}
	u := fmt.Sprintf("%s/users/by/username/%s?user.fields=profile_image_url,description", c.baseURL, url.PathEscape(handle))
	var raw struct {
		Data accountPayload `json:"data"`
	}
	if err := c.getJSON(ctx, "users/by/username", u, token, &raw); err != nil {
		return out, err
	}
	if raw.Data.ID == "" {
		return out, ErrNotFound
	}
	return raw.Data.toModel(), nil
}

func (c *HTTPClient) LookupAccountByID(ctx context.Context, remoteID int64, token string) (model.RemoteAccount, error) {
	var out model.RemoteAccount
	u := fmt.Sprintf("%s/users/%d?user.fields=profile_image_url,description", c.baseURL, remoteID)
	var raw struct {
		Data accountPayload `json:"data"`
	}
	if err := c.getJSON(ctx, "users/by/id", u, token, &raw); err != nil {
		return out, err
	}
	if raw.Data.ID == "" {
		return out, ErrNotFound
	}
	return raw.Data.toModel(), nil
}

// FetchMentionsSince returns mentions newer than sinceID in the API's native
// newest-first order, with author handles resolved from the user expansion.
func (c *HTTPClient) FetchMentionsSince(ctx context.Context, remoteID, sinceID int64, token string) ([]model.RawMention, error) {
	u := fmt.Sprintf("%s/users/%d/mentions?tweet.fields=conversation_id&expansions=author_id,entities.mentions.username&max_results=100",
		c.baseURL, remoteID)
	if sinceID > 0 {
		u += "&since_id=" + strconv.FormatInt(sinceID, 10)
	}
	var raw struct {
		Data []struct {
			ID             string `json:"id"`
			ConversationID string `json:"conversation_id"`
			Text           string `json:"text"`
			AuthorID       string `json:"author_id"`
		} `json:"data"`
		Includes struct {
			Users []struct {
				ID       string `json:"id"`
				Username string `json:"username"`
			} `json:"users"`
		} `json:"includes"`
	}
	if err := c.getJSON(ctx, "users/mentions", u, token, &raw); err != nil {
		return nil, err
	}
	handles := make(map[int64]string, len(raw.Includes.Users))
	for _, u := range raw.Includes.Users {
		handles[parseID(u.ID)] = u.Username
	}
	out := make([]model.RawMention, 0, len(raw.Data))
	for _, d := range raw.Data {
		authorID := parseID(d.AuthorID)
		out = append(out, model.RawMention{
			TweetID:      parseID(d.ID),
			ParentID:     parseID(d.ConversationID),
			Text:         d.Text,
			AuthorID:     authorID,
			AuthorHandle: handles[authorID],
		})
	}
	return out, nil
}

func (c *HTTPClient) FetchLikers(ctx context.Context, tweetLink, token string) (map[string]struct{}, error) {
	return c.fetchReactors(ctx, "tweets/liking_users", tweetLink, "liking_users", token)
}

func (c *HTTPClient) FetchRetweeters(ctx context.Context, tweetLink, token string) (map[string]struct{}, error) {
	return c.fetchReactors(ctx, "tweets/retweeted_by", tweetLink, "retweeted_by", token)
}

func (c *HTTPClient) fetchReactors(ctx context.Context, endpoint, tweetLink, path, token string) (map[string]struct{}, error) {
	tweetID := model.ExtractTweetID(tweetLink)
	if tweetID == 0 {
		return nil, fmt.Errorf("no tweet id in link %q", tweetLink)
	}
	u := fmt.Sprintf("%s/tweets/%d/%s?max_results=100", c.baseURL, tweetID, path)
	var raw struct {
		Data []struct {
			Username string `json:"username"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, endpoint, u, token, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(raw.Data))
	for _, d := range raw.Data {
		if d.Username != "" {
			out[d.Username] = struct{}{}
		}
	}
	return out, nil
}

// ProbeTokenStatus checks the token against the rate-limit status resource.
// 401/403 means the token is unusable; other failures are indeterminate.
func (c *HTTPClient) ProbeTokenStatus(ctx context.Context, token string) (*model.TokenStatus, error) {
	if token == "" {
		return &model.TokenStatus{Valid: false}, nil
	}
	u := c.probeURL + "/application/rate_limit_status.json?resources=users"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	auth(req, token)
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.doWithRetry(ctx, "rate_limit_status", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &model.TokenStatus{Valid: false}, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var raw struct {
			Resources struct {
				Users map[string]struct {
					Remaining int64 `json:"remaining"`
					Reset     int64 `json:"reset"`
				} `json:"users"`
			} `json:"resources"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			return nil, err
		}
		status := &model.TokenStatus{Valid: true}
		if r, ok := raw.Resources.Users["/users/by/username/:username"]; ok {
			status.Remaining = r.Remaining
			status.ResetAt = time.Unix(r.Reset, 0).UTC()
		}
		return status, nil
	default:
		return nil, &ConnectionError{Endpoint: "rate_limit_status", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
}

func (c *HTTPClient) getJSON(ctx context.Context, endpoint, rawURL, token string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	auth(req, token)
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	resp, err := c.doWithRetry(ctx, endpoint, req)
	if err != nil {
		return &ConnectionError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode >= 400:
		return &ConnectionError{Endpoint: endpoint, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

func auth(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
}

// doWithRetry retries 429 and 5xx responses with exponential backoff,
// honoring Retry-After. A 429 that survives all attempts is surfaced to the
// caller for classification.
func (c *HTTPClient) doWithRetry(ctx context.Context, endpoint string, req *http.Request) (*http.Response, error) {
	backoff := c.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		resp, err := c.httpClient.Do(req.Clone(ctx))
		if err == nil {
			if (resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599)) && attempt < c.maxAttempts {
				ra := resp.Header.Get("Retry-After")
				_ = resp.Body.Close()
				metrics.IncAPIRetry(endpoint)
				wait := backoff
				if ra != "" {
					if secs, err := strconv.Atoi(ra); err == nil {
						wait = time.Duration(secs) * time.Second
					} else if t, err := http.ParseTime(ra); err == nil {
						if d := time.Until(t); d > 0 {
							wait = d
						}
					}
				}
				// jitter +/-20%
				jitter := time.Duration(float64(wait) * 0.2)
				if jitter > 0 {
					wait = wait - jitter + time.Duration(time.Now().UnixNano()%int64(2*jitter))
				}
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				backoff *= 2
				continue
			}
			return resp, nil
		}
		lastErr = err
		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("request failed after %d attempts: %v", c.maxAttempts, lastErr)
}

type accountPayload struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Username        string `json:"username"`
	Description     string `json:"description"`
	ProfileImageURL string `json:"profile_image_url"`
}

func (p accountPayload) toModel() model.RemoteAccount {
	return model.RemoteAccount{
		ID:          parseID(p.ID),
		Username:    p.Username,
		Name:        p.Name,
		Description: p.Description,
		AvatarURL:   p.ProfileImageURL,
	}
}

func parseID(s string) int64 {
	id, _ := strconv.ParseInt(s, 10, 64)
	return id
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil && i > 0 {
		return i
	}
	return def
}
