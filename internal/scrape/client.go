package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gramtrack/gramtrack/internal/models"
)

const (
	igAppID        = "936619743392459"
	igProfileURL   = "https://i.instagram.com/api/v1/users/web_profile_info/?username=%s"
	igMediaURL     = "https://www.instagram.com/p/%s/?__a=1&__d=dis"
	igUserFeedURL  = "https://i.instagram.com/api/v1/feed/user/%s/username/?count=50&max_id=%s"
	twProfileURL   = "https://syndication.twitter.com/srv/timeline-profile/screen-name/%s"
	twTweetURL     = "https://cdn.syndication.twimg.com/tweet-result?id=%s&lang=en"
	twRepliesURL   = "https://cdn.syndication.twimg.com/tweet-result?id=%s&lang=en&with_replies=true"
	userAgent      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	maxBodyBytes   = 4 << 20
	requestTimeout = 30 * time.Second
)

// Client scrapes the public JSON endpoints of the supported platforms.
// Each call draws a credential from the pool, classifies failures, and
// reports the outcome back so rotation can happen.
type Client struct {
	pool   *CookiePool
	client *http.Client
	policy RetryPolicy
	logger *slog.Logger
}

// NewClient constructs a scraper backed by plain HTTP.
func NewClient(pool *CookiePool, logger *slog.Logger) *Client {
	return &Client{
		pool:   pool,
		client: &http.Client{Timeout: requestTimeout},
		policy: DefaultRetryPolicy(),
		logger: logger,
	}
}

// FetchProfile implements Scraper.
func (c *Client) FetchProfile(ctx context.Context, platform models.Platform, username string) (*models.ProfileData, error) {
	switch platform {
	case models.PlatformInstagram:
		return c.fetchInstagramProfile(ctx, username)
	case models.PlatformTwitter:
		return c.fetchTwitterProfile(ctx, username)
	default:
		return nil, Errorf(KindFatal, "unsupported platform %q", platform)
	}
}

// FetchMedia implements Scraper.
func (c *Client) FetchMedia(ctx context.Context, platform models.Platform, shortcode string) (*models.MediaData, error) {
	switch platform {
	case models.PlatformInstagram:
		return c.fetchInstagramMedia(ctx, shortcode)
	case models.PlatformTwitter:
		return c.fetchTweet(ctx, shortcode)
	default:
		return nil, Errorf(KindFatal, "unsupported platform %q", platform)
	}
}

// ListMediaShortcodes implements Scraper. The profile page embeds only a
// truncated media list, so enumeration walks the paginated feed endpoint.
func (c *Client) ListMediaShortcodes(ctx context.Context, platform models.Platform, username string) ([]string, error) {
	if platform != models.PlatformInstagram {
		return nil, Errorf(KindNotFound, "media enumeration is not available for %q", platform)
	}

	var shortcodes []string
	maxID := ""
	for page := 0; page < 40; page++ {
		body, err := c.get(ctx, fmt.Sprintf(igUserFeedURL, url.PathEscape(username), url.QueryEscape(maxID)))
		if err != nil {
			return nil, err
		}

		var feed struct {
			Items []struct {
				Code string `json:"code"`
			} `json:"items"`
			MoreAvailable bool   `json:"more_available"`
			NextMaxID     string `json:"next_max_id"`
		}
		if err := json.Unmarshal(body, &feed); err != nil {
			return nil, Errorf(KindParse, "decode user feed: %v", err)
		}

		for _, item := range feed.Items {
			if item.Code != "" {
				shortcodes = append(shortcodes, item.Code)
			}
		}
		if !feed.MoreAvailable || feed.NextMaxID == "" {
			break
		}
		maxID = feed.NextMaxID
	}
	return shortcodes, nil
}

// FetchReplies implements Scraper.
func (c *Client) FetchReplies(ctx context.Context, platform models.Platform, tweetID string) ([]models.ReplyData, error) {
	if platform != models.PlatformTwitter {
		return nil, Errorf(KindNotFound, "replies are not available for %q", platform)
	}

	body, err := c.get(ctx, fmt.Sprintf(twRepliesURL, url.QueryEscape(tweetID)))
	if err != nil {
		return nil, err
	}

	var payload struct {
		Conversation struct {
			Tweets []struct {
				IDStr string `json:"id_str"`
				Text  string `json:"text"`
				User  struct {
					ScreenName string `json:"screen_name"`
				} `json:"user"`
				FavoriteCount int64  `json:"favorite_count"`
				CreatedAt     string `json:"created_at"`
			} `json:"tweets"`
		} `json:"conversation"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, Errorf(KindParse, "decode replies: %v", err)
	}

	replies := make([]models.ReplyData, 0, len(payload.Conversation.Tweets))
	for _, t := range payload.Conversation.Tweets {
		if t.IDStr == "" || t.IDStr == tweetID {
			continue
		}
		reply := models.ReplyData{
			TweetID:      tweetID,
			ReplyTweetID: t.IDStr,
			Author:       t.User.ScreenName,
			Text:         t.Text,
			LikeCount:    t.FavoriteCount,
		}
		if ts, err := time.Parse(time.RubyDate, t.CreatedAt); err == nil {
			reply.RepliedAt = &ts
		}
		replies = append(replies, reply)
	}
	return replies, nil
}

func (c *Client) fetchInstagramProfile(ctx context.Context, username string) (*models.ProfileData, error) {
	body, err := c.get(ctx, fmt.Sprintf(igProfileURL, url.QueryEscape(username)))
	if err != nil {
		return nil, err
	}

	var payload struct {
		Data struct {
			User struct {
				ID             string `json:"id"`
				FullName       string `json:"full_name"`
				Biography      string `json:"biography"`
				ExternalURL    string `json:"external_url"`
				ProfilePicURL  string `json:"profile_pic_url_hd"`
				EdgeFollowedBy struct {
					Count int64 `json:"count"`
				} `json:"edge_followed_by"`
				EdgeFollow struct {
					Count int64 `json:"count"`
				} `json:"edge_follow"`
				EdgeTimeline struct {
					Count int64 `json:"count"`
					Edges []struct {
						Node igMediaNode `json:"node"`
					} `json:"edges"`
				} `json:"edge_owner_to_timeline_media"`
				EdgeFelix struct {
					Count int64 `json:"count"`
				} `json:"edge_felix_video_timeline"`
			} `json:"user"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, Errorf(KindParse, "decode profile: %v", err)
	}

	user := payload.Data.User
	if user.ID == "" {
		return nil, Errorf(KindParse, "profile payload missing user id for %q", username)
	}

	data := &models.ProfileData{
		Username:     username,
		ExternalID:   user.ID,
		DisplayName:  user.FullName,
		Biography:    user.Biography,
		AvatarURL:    user.ProfilePicURL,
		ExternalLink: user.ExternalURL,
		Followers:    user.EdgeFollowedBy.Count,
		Following:    user.EdgeFollow.Count,
		MediaCount:   user.EdgeTimeline.Count,
		ReelCount:    user.EdgeFelix.Count,
		Raw:          body,
	}
	for _, e := range user.EdgeTimeline.Edges {
		data.Media = append(data.Media, e.Node.toMediaData())
	}
	return data, nil
}

type igMediaNode struct {
	Shortcode string `json:"shortcode"`
	IsVideo   bool   `json:"is_video"`
	VideoURL  string `json:"video_url"`
	VideoView int64  `json:"video_view_count"`
	EdgeLiked struct {
		Count int64 `json:"count"`
	} `json:"edge_liked_by"`
	EdgeComment struct {
		Count int64 `json:"count"`
	} `json:"edge_media_to_comment"`
	EdgeCaption struct {
		Edges []struct {
			Node struct {
				Text string `json:"text"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"edge_media_to_caption"`
	Duration         float64 `json:"video_duration"`
	TakenAtTimestamp int64   `json:"taken_at_timestamp"`
}

func (n igMediaNode) toMediaData() models.MediaData {
	m := models.MediaData{
		Shortcode:    n.Shortcode,
		ViewCount:    n.VideoView,
		LikeCount:    n.EdgeLiked.Count,
		CommentCount: n.EdgeComment.Count,
		IsVideo:      n.IsVideo,
		VideoURL:     n.VideoURL,
		DurationSecs: n.Duration,
	}
	if len(n.EdgeCaption.Edges) > 0 {
		m.Caption = n.EdgeCaption.Edges[0].Node.Text
	}
	if n.TakenAtTimestamp > 0 {
		ts := time.Unix(n.TakenAtTimestamp, 0).UTC()
		m.TakenAt = &ts
	}
	return m
}

func (c *Client) fetchInstagramMedia(ctx context.Context, shortcode string) (*models.MediaData, error) {
	body, err := c.get(ctx, fmt.Sprintf(igMediaURL, url.PathEscape(shortcode)))
	if err != nil {
		return nil, err
	}

	var payload struct {
		Items []struct {
			Code      string `json:"code"`
			TakenAt   int64  `json:"taken_at"`
			MediaType int    `json:"media_type"`
			PlayCount int64  `json:"play_count"`
			ViewCount int64  `json:"view_count"`
			LikeCount int64  `json:"like_count"`
			Comments  int64  `json:"comment_count"`
			Caption   struct {
				Text string `json:"text"`
			} `json:"caption"`
			VideoDuration float64 `json:"video_duration"`
			VideoVersions []struct {
				URL string `json:"url"`
			} `json:"video_versions"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, Errorf(KindParse, "decode media: %v", err)
	}
	if len(payload.Items) == 0 {
		return nil, Errorf(KindParse, "media payload for %q has no items", shortcode)
	}

	item := payload.Items[0]
	views := item.PlayCount
	if views == 0 {
		views = item.ViewCount
	}
	m := &models.MediaData{
		Shortcode:    shortcode,
		Caption:      item.Caption.Text,
		ViewCount:    views,
		LikeCount:    item.LikeCount,
		CommentCount: item.Comments,
		IsVideo:      item.MediaType == 2,
		DurationSecs: item.VideoDuration,
	}
	if len(item.VideoVersions) > 0 {
		m.VideoURL = item.VideoVersions[0].URL
	}
	if item.TakenAt > 0 {
		ts := time.Unix(item.TakenAt, 0).UTC()
		m.TakenAt = &ts
	}
	return m, nil
}

func (c *Client) fetchTwitterProfile(ctx context.Context, username string) (*models.ProfileData, error) {
	body, err := c.get(ctx, fmt.Sprintf(twProfileURL, url.PathEscape(username)))
	if err != nil {
		return nil, err
	}

	var payload struct {
		Timeline struct {
			Entries []struct {
				Content struct {
					Tweet struct {
						IDStr         string `json:"id_str"`
						Text          string `json:"full_text"`
						FavoriteCount int64  `json:"favorite_count"`
						ReplyCount    int64  `json:"reply_count"`
						ViewCount     int64  `json:"view_count"`
						CreatedAt     string `json:"created_at"`
					} `json:"tweet"`
				} `json:"content"`
			} `json:"entries"`
		} `json:"timeline"`
		Contextualize struct {
			User struct {
				IDStr          string `json:"id_str"`
				Name           string `json:"name"`
				Description    string `json:"description"`
				ProfileImage   string `json:"profile_image_url_https"`
				FollowersCount int64  `json:"followers_count"`
				FriendsCount   int64  `json:"friends_count"`
				StatusesCount  int64  `json:"statuses_count"`
				URL            string `json:"url"`
			} `json:"user"`
		} `json:"contextualize"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, Errorf(KindParse, "decode timeline: %v", err)
	}

	user := payload.Contextualize.User
	if user.IDStr == "" {
		return nil, Errorf(KindParse, "timeline payload missing user for %q", username)
	}

	data := &models.ProfileData{
		Username:     username,
		ExternalID:   user.IDStr,
		DisplayName:  user.Name,
		Biography:    user.Description,
		AvatarURL:    user.ProfileImage,
		ExternalLink: user.URL,
		Followers:    user.FollowersCount,
		Following:    user.FriendsCount,
		MediaCount:   user.StatusesCount,
		Raw:          body,
	}
	for _, e := range payload.Timeline.Entries {
		t := e.Content.Tweet
		if t.IDStr == "" {
			continue
		}
		m := models.MediaData{
			Shortcode:    t.IDStr,
			Caption:      t.Text,
			ViewCount:    t.ViewCount,
			LikeCount:    t.FavoriteCount,
			ReplyCount:   t.ReplyCount,
			CommentCount: t.ReplyCount,
		}
		if ts, err := time.Parse(time.RubyDate, t.CreatedAt); err == nil {
			tt := ts.UTC()
			m.TakenAt = &tt
		}
		data.Media = append(data.Media, m)
	}
	data.ReelCount = int64(len(data.Media))
	return data, nil
}

func (c *Client) fetchTweet(ctx context.Context, tweetID string) (*models.MediaData, error) {
	body, err := c.get(ctx, fmt.Sprintf(twTweetURL, url.QueryEscape(tweetID)))
	if err != nil {
		return nil, err
	}

	var payload struct {
		IDStr         string `json:"id_str"`
		Text          string `json:"text"`
		FavoriteCount int64  `json:"favorite_count"`
		ReplyCount    int64  `json:"conversation_count"`
		ViewCount     int64  `json:"view_count"`
		CreatedAt     string `json:"created_at"`
		Video         struct {
			DurationMs int64 `json:"durationMs"`
			Variants   []struct {
				Src string `json:"src"`
			} `json:"variants"`
		} `json:"video"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, Errorf(KindParse, "decode tweet: %v", err)
	}
	if payload.IDStr == "" {
		return nil, Errorf(KindParse, "tweet payload missing id for %q", tweetID)
	}

	m := &models.MediaData{
		Shortcode:    payload.IDStr,
		Caption:      payload.Text,
		ViewCount:    payload.ViewCount,
		LikeCount:    payload.FavoriteCount,
		ReplyCount:   payload.ReplyCount,
		CommentCount: payload.ReplyCount,
		IsVideo:      len(payload.Video.Variants) > 0,
		DurationSecs: float64(payload.Video.DurationMs) / 1000,
	}
	if len(payload.Video.Variants) > 0 {
		m.VideoURL = payload.Video.Variants[0].Src
	}
	if ts, err := time.Parse(time.RFC3339, payload.CreatedAt); err == nil {
		tt := ts.UTC()
		m.TakenAt = &tt
	}
	return m, nil
}

// get performs an authenticated GET with intra-call retry for transient
// failures and reports the outcome to the cookie pool. An auth failure
// rotates to the next live credential and retries; the error surfaces only
// once every live credential has been tried.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	tried := make(map[string]bool)

	for {
		if cookie, ok := c.pool.Current(); ok {
			tried[cookie] = true
		}

		var body []byte
		err := Retry(ctx, c.policy, func() error {
			var err error
			body, err = c.doOnce(ctx, rawURL)
			return err
		})
		if err == nil {
			c.pool.MarkSuccess()
			return body, nil
		}

		switch KindOf(err) {
		case KindRateLimited:
			wait := c.pool.MarkFailure("rate_limit")
			retryAfter := RetryAfterOf(err)
			if retryAfter < wait {
				retryAfter = wait
			}
			return nil, RateLimitedError(err, retryAfter)
		case KindAuthFailed:
			c.pool.MarkFailure("auth_failed")
			if next, ok := c.pool.Current(); ok && !tried[next] {
				c.logger.Warn("auth failed, retrying with rotated credential")
				continue
			}
			return nil, err
		default:
			return nil, err
		}
	}
}

func (c *Client) doOnce(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, NewError(KindFatal, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-IG-App-ID", igAppID)
	if cookie, ok := c.pool.Current(); ok {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, Errorf(KindTransient, "request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, Errorf(KindTransient, "read body: %v", err)
	}

	if err := classifyResponse(resp, body); err != nil {
		return nil, err
	}
	return body, nil
}

// classifyResponse maps an HTTP response onto the error taxonomy. A 401
// carrying a rate-limit marker, or any body asking us to "wait a few
// minutes", counts as a rate limit rather than an auth failure.
func classifyResponse(resp *http.Response, body []byte) error {
	status := resp.StatusCode
	switch {
	case status >= 200 && status < 300:
		if bytes.Contains(bytes.ToLower(body), []byte("wait a few minutes")) {
			return RateLimitedError(fmt.Errorf("upstream throttle message"), parseRetryAfter(resp))
		}
		return nil
	case status == http.StatusTooManyRequests:
		return RateLimitedError(fmt.Errorf("status %d", status), parseRetryAfter(resp))
	case status == http.StatusUnauthorized:
		lower := bytes.ToLower(body)
		if bytes.Contains(lower, []byte("rate limit")) || bytes.Contains(lower, []byte("wait a few minutes")) {
			return RateLimitedError(fmt.Errorf("status %d with rate-limit marker", status), parseRetryAfter(resp))
		}
		return Errorf(KindAuthFailed, "status %d", status)
	case status == http.StatusForbidden:
		return Errorf(KindAuthFailed, "status %d", status)
	case status == http.StatusNotFound:
		return Errorf(KindNotFound, "status %d", status)
	case status >= 500:
		return Errorf(KindTransient, "status %d", status)
	default:
		return Errorf(KindParse, "unexpected status %d: %s", status, truncate(string(body), 200))
	}
}

func parseRetryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
