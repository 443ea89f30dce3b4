// Package mattermost is the chat-channel delivery platform. A polling
// loop watches the bot's channels for mentions, relays them through the
// message service, streams progress into a placeholder post, and
// replaces it with the final response split into readable posts.
package mattermost

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bnema/deskbridge/internal/application"
	"github.com/bnema/deskbridge/internal/domain"
	"github.com/bnema/deskbridge/internal/logger"
	"github.com/bnema/deskbridge/internal/ports"
)

const (
	sourceName          = "mattermost"
	defaultPollInterval = 2 * time.Second
	streamPlaceholder   = "_thinking..._"
	// Streaming edits are throttled so a chatty response does not
	// hammer the posts API.
	streamEditInterval = 2 * time.Second
	processedCap       = 4096
)

type Config struct {
	// BotUserID pins the bot identity; when empty the authenticated
	// user is looked up instead.
	BotUserID       string
	TeamID          string
	PollInterval    time.Duration
	MentionPatterns []string
}

type Platform struct {
	client   *Client
	messages *application.MessageService
	clock    ports.Clock
	cfg      Config

	me       User
	patterns []string

	mu        sync.Mutex
	lastSeen  map[string]time.Time
	processed map[string]struct{}
	order     []string

	userNames sync.Map // user id -> username
}

var _ ports.Platform = (*Platform)(nil)

func New(client *Client, messages *application.MessageService, clock ports.Clock, cfg Config) *Platform {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	return &Platform{
		client:    client,
		messages:  messages,
		clock:     clock,
		cfg:       cfg,
		lastSeen:  make(map[string]time.Time),
		processed: make(map[string]struct{}),
	}
}

func (p *Platform) Name() string { return sourceName }

// Run polls the bot's channels until the context ends.
func (p *Platform) Run(ctx context.Context) error {
	me, err := p.identify(ctx)
	if err != nil {
		return fmt.Errorf("identify bot user: %w", err)
	}
	p.me = me

	p.patterns = p.cfg.MentionPatterns
	if len(p.patterns) == 0 {
		p.patterns = []string{"@" + me.Username}
	}

	logger.Info("mattermost platform running as @%s", me.Username)

	start := p.clock.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.clock.After(p.cfg.PollInterval):
		}

		if err := p.pollOnce(ctx, start); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("mattermost poll: %v", err)
		}
	}
}

func (p *Platform) identify(ctx context.Context) (User, error) {
	if p.cfg.BotUserID != "" {
		return p.client.GetUser(ctx, p.cfg.BotUserID)
	}
	return p.client.Me(ctx)
}

func (p *Platform) pollOnce(ctx context.Context, start time.Time) error {
	channels, err := p.client.ChannelsForUser(ctx, p.me.ID, p.cfg.TeamID)
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}

	for _, channel := range channels {
		since := p.sinceFor(channel.ID, start)
		posts, err := p.client.PostsSince(ctx, channel.ID, since)
		if err != nil {
			logger.Warn("poll channel %s: %v", channel.Name, err)
			continue
		}

		for _, post := range posts {
			p.advance(channel.ID, time.UnixMilli(post.CreateAt))
			if !p.shouldRelay(channel, post) {
				continue
			}
			p.handlePost(ctx, channel, post)
		}
	}

	return nil
}

func (p *Platform) shouldRelay(channel Channel, post Post) bool {
	if post.UserID == p.me.ID || post.Message == "" {
		return false
	}
	if p.markProcessed(post.ID) {
		return false
	}
	// Direct messages always address the bot; channels need a mention.
	if channel.Type == "D" {
		return true
	}

	lower := strings.ToLower(post.Message)
	for _, pattern := range p.patterns {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return true
		}
	}

	return false
}

func (p *Platform) handlePost(ctx context.Context, channel Channel, post Post) {
	username := p.username(ctx, post.UserID)

	in := application.InboundMessage{
		Text:        post.Message,
		UserID:      post.UserID,
		Username:    username,
		ChannelID:   channel.ID,
		ChannelName: channelLabel(channel),
		Source:      sourceName,
	}

	stream := &streamPost{platform: p, channelID: channel.ID, rootID: post.RootID}

	result, err := p.messages.HandleIncoming(ctx, in, stream.update)
	if err != nil {
		stream.fail(ctx, fmt.Sprintf("could not relay your message: %v", err))
		return
	}

	stream.finish(ctx, result)
}

// streamPost owns the placeholder post for one in-flight response.
type streamPost struct {
	platform  *Platform
	channelID string
	rootID    string

	mu       sync.Mutex
	postID   string
	lastEdit time.Time
}

func (s *streamPost) update(update domain.StreamUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.postID == "" {
		post, err := s.platform.client.CreatePost(ctx, s.channelID, streamPlaceholder, s.rootID)
		if err != nil {
			logger.Warn("create streaming post: %v", err)
			return
		}
		s.postID = post.ID
		s.lastEdit = s.platform.clock.Now()
		return
	}

	now := s.platform.clock.Now()
	if now.Sub(s.lastEdit) < streamEditInterval || update.Content == "" {
		return
	}

	preview := update.Content
	if len(preview) > maxPostLength {
		preview = preview[:maxPostLength]
	}
	if _, err := s.platform.client.UpdatePost(ctx, s.postID, preview); err != nil {
		logger.Warn("update streaming post: %v", err)
		return
	}
	s.lastEdit = now
}

// finish replaces the placeholder with the final response, one post per
// paragraph group.
func (s *streamPost) finish(ctx context.Context, result domain.FinalResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.postID != "" {
		if err := s.platform.client.DeletePost(ctx, s.postID); err != nil {
			logger.Warn("delete streaming post: %v", err)
		}
		s.postID = ""
	}

	content := result.Content
	if !result.Success {
		note := result.Message
		if note == "" {
			note = "response did not complete"
		}
		if content != "" {
			content += "\n\n_" + note + "_"
		} else {
			content = "_" + note + "_"
		}
	}

	for _, message := range SplitParagraphs(content) {
		if _, err := s.platform.client.CreatePost(ctx, s.channelID, message, s.rootID); err != nil {
			logger.Warn("post response chunk: %v", err)
			return
		}
	}
}

func (s *streamPost) fail(ctx context.Context, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.postID != "" {
		if _, err := s.platform.client.UpdatePost(ctx, s.postID, "_"+message+"_"); err == nil {
			return
		}
		_ = s.platform.client.DeletePost(ctx, s.postID)
		s.postID = ""
	}
	if _, err := s.platform.client.CreatePost(ctx, s.channelID, "_"+message+"_", s.rootID); err != nil {
		logger.Warn("post failure notice: %v", err)
	}
}

func (p *Platform) sinceFor(channelID string, fallback time.Time) time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	if seen, ok := p.lastSeen[channelID]; ok {
		return seen
	}

	return fallback
}

func (p *Platform) advance(channelID string, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if at.After(p.lastSeen[channelID]) {
		p.lastSeen[channelID] = at
	}
}

// markProcessed reports whether the post was already handled, recording
// it otherwise. The set is bounded; the oldest entries age out.
func (p *Platform) markProcessed(postID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.processed[postID]; ok {
		return true
	}

	p.processed[postID] = struct{}{}
	p.order = append(p.order, postID)
	for len(p.order) > processedCap {
		delete(p.processed, p.order[0])
		p.order = p.order[1:]
	}

	return false
}

func (p *Platform) username(ctx context.Context, userID string) string {
	if cached, ok := p.userNames.Load(userID); ok {
		return cached.(string)
	}

	user, err := p.client.GetUser(ctx, userID)
	if err != nil {
		logger.Warn("resolve user %s: %v", userID, err)
		return userID
	}

	p.userNames.Store(userID, user.Username)
	return user.Username
}

func channelLabel(channel Channel) string {
	if channel.Type == "D" {
		return "direct"
	}
	if channel.Name != "" {
		return channel.Name
	}

	return channel.DisplayName
}
