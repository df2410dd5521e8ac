// Package notify delivers mirroring notifications to chat.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slack-go/slack"
	"golang.org/x/time/rate"

	"fswatcher/internal/mirror"
)

const (
	colorSuccess    = "#3498db"
	colorError      = "#ff0000"
	timestampLayout = "06-01-02 15:04:05"

	defaultMaxRetries = 2
)

// ErrNoChannel means a notification had no channel to go to.
var ErrNoChannel = errors.New("no slack channel configured")

// SlackOptions configures a SlackNotifier.
type SlackOptions struct {
	Token   string
	Channel string
	// ErrorChannel receives error alerts when set.
	ErrorChannel string
	// RatePerSecond bounds outgoing messages. Zero means unlimited.
	RatePerSecond float64
	// MaxRetries is how many times a rate-limited post is retried.
	MaxRetries int
	// APIURL overrides the Slack API endpoint.
	APIURL string
	Clock  mirror.Clock
	Logger mirror.Logger
}

// SlackNotifier posts notifications with chat.postMessage.
type SlackNotifier struct {
	client       *slack.Client
	channel      string
	errorChannel string
	limiter      *rate.Limiter
	maxRetries   int
	clock        mirror.Clock
	logger       mirror.Logger
}

var _ mirror.Notifier = (*SlackNotifier)(nil)

func NewSlackNotifier(opts SlackOptions) *SlackNotifier {
	var clientOpts []slack.Option
	if opts.APIURL != "" {
		clientOpts = append(clientOpts, slack.OptionAPIURL(opts.APIURL))
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.Clock == nil {
		opts.Clock = mirror.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = mirror.NewNopLogger()
	}
	return &SlackNotifier{
		client:       slack.New(opts.Token, clientOpts...),
		channel:      opts.Channel,
		errorChannel: opts.ErrorChannel,
		limiter:      rate.NewLimiter(limit, 1),
		maxRetries:   opts.MaxRetries,
		clock:        opts.Clock,
		logger:       opts.Logger,
	}
}

// Notify posts n, retrying while Slack rate-limits the request.
func (s *SlackNotifier) Notify(ctx context.Context, n mirror.Notification) error {
	channel := s.route(n)
	if channel == "" {
		return ErrNoChannel
	}

	text := fmt.Sprintf("%s - %s", s.clock.Now().Format(timestampLayout), n.Message)
	opts := []slack.MsgOption{
		slack.MsgOptionText(text, false),
		slack.MsgOptionAttachments(attachment(text, n.Alert)),
	}
	if n.ThreadID != "" {
		opts = append(opts, slack.MsgOptionTS(n.ThreadID))
	}

	for attempt := 0; ; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		_, _, err := s.client.PostMessageContext(ctx, channel, opts...)
		if err == nil {
			s.logger.Debug("sent slack notification", "channel", channel)
			return nil
		}

		var rateErr *slack.RateLimitedError
		if !errors.As(err, &rateErr) || attempt >= s.maxRetries {
			return fmt.Errorf("posting to slack channel %s: %w", channel, err)
		}
		s.logger.Warn("slack rate limited, retrying", "channel", channel, "retry_after", rateErr.RetryAfter)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rateErr.RetryAfter):
		}
	}
}

func (s *SlackNotifier) route(n mirror.Notification) string {
	switch {
	case n.Channel != "":
		return n.Channel
	case n.Alert == mirror.AlertError && s.errorChannel != "":
		return s.errorChannel
	default:
		return s.channel
	}
}

func attachment(text string, alert mirror.AlertType) slack.Attachment {
	color := colorSuccess
	if alert == mirror.AlertError {
		color = colorError
	}
	section := slack.NewSectionBlock(slack.NewTextBlockObject(slack.PlainTextType, text, false, false), nil, nil)
	return slack.Attachment{
		Color:  color,
		Blocks: slack.Blocks{BlockSet: []slack.Block{section}},
	}
}
