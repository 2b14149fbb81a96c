// Package chat implements the client for the remote chat platform's paginated
// JSON API: channel history, thread replies, and channel listing. All failures
// are classified into the RateLimited/Transient/Fatal taxonomy so callers can
// make retry decisions without inspecting transport details.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/brightkite/channelpull/internal/metrics"
	"github.com/brightkite/channelpull/internal/pull"
)

const (
	methodHistory  = "conversations.history"
	methodReplies  = "conversations.replies"
	methodChannels = "conversations.list"

	// Reply and channel pages use a fixed size; only history honors the
	// caller's batch size.
	listPageLimit = 200

	// Upper bound on reply pages per thread so a misbehaving remote cannot
	// trap the loop.
	maxThreadPages = 50
)

// Config controls client behavior.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Client talks to the remote platform. It implements pull.PageFetcher,
// pull.ThreadExpander and pull.ChannelLister.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New builds a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		cfg:    cfg,
		http:   httpClient,
		logger: logger,
	}
}

// apiEnvelope is the platform's common response wrapper.
type apiEnvelope struct {
	OK               bool             `json:"ok"`
	Error            string           `json:"error,omitempty"`
	Messages         []pull.Message   `json:"messages,omitempty"`
	HasMore          bool             `json:"has_more,omitempty"`
	Channels         []channelPayload `json:"channels,omitempty"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

type channelPayload struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsMember   bool   `json:"is_member"`
	IsArchived bool   `json:"is_archived"`
}

// FetchPage retrieves one page of channel history. The remote returns newest
// first; the page is normalized to ascending timestamp order before return.
func (c *Client) FetchPage(ctx context.Context, req pull.PageRequest) (pull.Page, error) {
	q := url.Values{}
	q.Set("channel", req.ChannelID)
	q.Set("limit", strconv.Itoa(req.Limit))
	if req.Cursor != "" {
		q.Set("cursor", req.Cursor)
	}
	if req.Oldest != nil {
		q.Set("oldest", pull.FormatTS(*req.Oldest))
	}
	if req.Latest != nil {
		q.Set("latest", pull.FormatTS(*req.Latest))
	}

	env, err := c.call(ctx, methodHistory, q)
	if err != nil {
		return pull.Page{}, err
	}

	msgs := append([]pull.Message(nil), env.Messages...)
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Time().Before(msgs[j].Time())
	})

	return pull.Page{
		Messages:   msgs,
		NextCursor: env.ResponseMetadata.NextCursor,
		HasMore:    env.HasMore,
	}, nil
}

// ExpandThread fetches every reply under a thread root, oldest first. The
// remote includes the root as the first element of the first page; it is
// dropped because the root was already persisted by the history loop.
func (c *Client) ExpandThread(ctx context.Context, channelID, threadTS string) ([]pull.Message, error) {
	var replies []pull.Message
	cursor := ""
	for page := 0; ; page++ {
		if page >= maxThreadPages {
			return nil, &APIError{
				Kind: KindTransient,
				Code: "thread_pagination_overflow",
				Err:  fmt.Errorf("thread %s exceeded %d reply pages", threadTS, maxThreadPages),
			}
		}

		q := url.Values{}
		q.Set("channel", channelID)
		q.Set("ts", threadTS)
		q.Set("limit", strconv.Itoa(listPageLimit))
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		env, err := c.call(ctx, methodReplies, q)
		if err != nil {
			return nil, err
		}
		for _, m := range env.Messages {
			if m.TS == threadTS {
				continue
			}
			replies = append(replies, m)
		}
		if !env.HasMore || env.ResponseMetadata.NextCursor == "" {
			break
		}
		cursor = env.ResponseMetadata.NextCursor
	}
	return replies, nil
}

// ListChannels returns the channels the service account is a member of.
func (c *Client) ListChannels(ctx context.Context) ([]pull.Channel, error) {
	all, err := c.ListAllChannels(ctx)
	if err != nil {
		return nil, err
	}
	members := make([]pull.Channel, 0, len(all))
	for _, ch := range all {
		if ch.IsMember {
			members = append(members, ch)
		}
	}
	return members, nil
}

// ListAllChannels returns every visible channel with its membership flag.
func (c *Client) ListAllChannels(ctx context.Context) ([]pull.Channel, error) {
	var out []pull.Channel
	cursor := ""
	for {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(listPageLimit))
		q.Set("exclude_archived", "true")
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		env, err := c.call(ctx, methodChannels, q)
		if err != nil {
			return nil, err
		}
		for _, ch := range env.Channels {
			out = append(out, pull.Channel{
				ID:         ch.ID,
				Name:       ch.Name,
				IsMember:   ch.IsMember,
				IsArchived: ch.IsArchived,
			})
		}
		cursor = env.ResponseMetadata.NextCursor
		if !env.HasMore || cursor == "" {
			break
		}
	}
	return out, nil
}

// call issues one GET against the platform and decodes the envelope,
// translating every failure mode into an *APIError.
func (c *Client) call(ctx context.Context, method string, q url.Values) (*apiEnvelope, error) {
	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + method + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		metrics.ObserveRemoteCall(method, string(KindTransient), time.Since(start))
		return nil, &APIError{Kind: KindTransient, Code: "network_error", Err: err}
	}
	defer resp.Body.Close()

	apiErr := c.classifyStatus(resp)
	if apiErr != nil {
		metrics.ObserveRemoteCall(method, string(apiErr.Kind), time.Since(start))
		c.logger.Debug("platform call rejected",
			zap.String("method", method),
			zap.Int("status", resp.StatusCode),
			zap.String("kind", string(apiErr.Kind)),
		)
		return nil, apiErr
	}

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		metrics.ObserveRemoteCall(method, string(KindTransient), time.Since(start))
		return nil, &APIError{Kind: KindTransient, Code: "malformed_response", Err: err}
	}
	if !env.OK {
		kind := classifyCode(env.Error)
		metrics.ObserveRemoteCall(method, string(kind), time.Since(start))
		return nil, &APIError{Kind: kind, StatusCode: resp.StatusCode, Code: env.Error}
	}

	metrics.ObserveRemoteCall(method, "ok", time.Since(start))
	return &env, nil
}

// classifyStatus maps the HTTP status onto the taxonomy; nil means proceed to
// decode the body.
func (c *Client) classifyStatus(resp *http.Response) *APIError {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &APIError{
			Kind:       KindRateLimited,
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= 500:
		return &APIError{Kind: KindTransient, StatusCode: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		return &APIError{Kind: KindFatal, StatusCode: resp.StatusCode}
	default:
		return nil
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
