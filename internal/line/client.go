package line

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/line/line-bot-sdk-go/v7/linebot"
)

// ErrContentTooLarge is returned when message content exceeds the client's limit.
var ErrContentTooLarge = errors.New("message content too large")

// Messenger is what the webhook processor needs from the platform.
type Messenger interface {
	Reply(ctx context.Context, replyToken, text string) error
	Push(ctx context.Context, to, text string) error
	DisplayName(ctx context.Context, userID string) (string, error)
	Content(ctx context.Context, messageID string) (*Content, error)
}

type Content struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

type Client struct {
	bot     *linebot.Client
	timeout time.Duration
}

// NewClient builds the platform client. Content downloads above maxContent
// bytes fail with ErrContentTooLarge; zero disables the limit.
func NewClient(channelSecret, accessToken string, timeout time.Duration, maxContent int64,
	options ...linebot.ClientOption) (*Client, error) {
	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: &contentLimit{base: http.DefaultTransport, max: maxContent},
	}
	options = append([]linebot.ClientOption{linebot.WithHTTPClient(httpClient)}, options...)

	bot, err := linebot.New(channelSecret, accessToken, options...)
	if err != nil {
		return nil, fmt.Errorf("create line client: %w", err)
	}
	return &Client{bot: bot, timeout: timeout}, nil
}

func (c *Client) Reply(ctx context.Context, replyToken, text string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.bot.ReplyMessage(replyToken, linebot.NewTextMessage(text)).WithContext(ctx).Do(); err != nil {
		return fmt.Errorf("reply message: %w", err)
	}
	return nil
}

func (c *Client) Push(ctx context.Context, to, text string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.bot.PushMessage(to, linebot.NewTextMessage(text)).WithContext(ctx).Do(); err != nil {
		return fmt.Errorf("push message: %w", err)
	}
	return nil
}

func (c *Client) DisplayName(ctx context.Context, userID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	profile, err := c.bot.GetProfile(userID).WithContext(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get profile: %w", err)
	}
	return profile.DisplayName, nil
}

// Content downloads message content. The SDK buffers the whole body itself,
// so the size limit is enforced by the transport while it streams.
func (c *Client) Content(ctx context.Context, messageID string) (*Content, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.bot.GetMessageContent(messageID).WithContext(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get message content: %w", err)
	}
	defer res.Content.Close()

	data, err := io.ReadAll(res.Content)
	if err != nil {
		return nil, fmt.Errorf("read message content: %w", err)
	}
	return &Content{
		Body:        io.NopCloser(bytes.NewReader(data)),
		ContentType: res.ContentType,
		Size:        int64(len(data)),
	}, nil
}

// contentLimit caps the bodies of message content responses.
type contentLimit struct {
	base http.RoundTripper
	max  int64
}

func (t *contentLimit) RoundTrip(req *http.Request) (*http.Response, error) {
	res, err := t.base.RoundTrip(req)
	if err != nil || t.max <= 0 || !strings.HasSuffix(req.URL.Path, "/content") {
		return res, err
	}
	if res.ContentLength > t.max {
		res.Body.Close()
		return nil, ErrContentTooLarge
	}
	res.Body = &limitedBody{body: res.Body, remaining: t.max}
	return res, nil
}

type limitedBody struct {
	body      io.ReadCloser
	remaining int64
}

func (b *limitedBody) Read(p []byte) (int, error) {
	if int64(len(p)) > b.remaining+1 {
		p = p[:b.remaining+1]
	}
	n, err := b.body.Read(p)
	b.remaining -= int64(n)
	if b.remaining < 0 {
		return n, ErrContentTooLarge
	}
	return n, err
}

func (b *limitedBody) Close() error {
	return b.body.Close()
}
