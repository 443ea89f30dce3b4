package application

import (
	"context"
	"fmt"

	"github.com/bnema/deskbridge/internal/domain"
	"github.com/bnema/deskbridge/internal/logger"
	"github.com/bnema/deskbridge/internal/ports"
)

// InboundMessage is one request arriving from a delivery platform.
type InboundMessage struct {
	Text        string
	UserID      string
	Username    string
	ChannelID   string
	ChannelName string
	Source      string
}

func (m InboundMessage) sourceKey() string {
	return m.Source + ":" + m.ChannelID
}

// MessageService is the platform-agnostic inbound flow: clean the message,
// resolve its conversation context, frame it, inject it, and stream the
// response back through the caller's sink.
type MessageService struct {
	bridge          *BridgeService
	contexts        *ContextRegistry
	clock           ports.Clock
	mentionPatterns []string
}

func NewMessageService(bridge *BridgeService, contexts *ContextRegistry, clock ports.Clock, mentionPatterns []string) *MessageService {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &MessageService{
		bridge:          bridge,
		contexts:        contexts,
		clock:           clock,
		mentionPatterns: mentionPatterns,
	}
}

// HandleIncoming processes one inbound message end to end and blocks until
// the response reaches a terminal state. Stream updates go to sink as they
// are detected; the terminal outcome is also returned.
func (s *MessageService) HandleIncoming(ctx context.Context, in InboundMessage, sink StreamSink) (domain.FinalResult, error) {
	text, newThread := domain.CleanMention(in.Text, s.mentionPatterns)
	if text == "" {
		return domain.FinalResult{}, domain.ErrEmptyMessage
	}

	var contextID domain.ContextID
	if newThread {
		logger.Info("new thread requested for %s", in.sourceKey())
	} else if conversation, ok := s.contexts.FindBySource(in.sourceKey()); ok {
		contextID = conversation.ID
	}

	framed := domain.FrameMessage(text, in.Username, in.ChannelName, s.clock.Now())
	injected, err := s.bridge.InjectAndTrack(ctx, framed, InjectOptions{
		Source:    in.sourceKey(),
		ContextID: contextID,
		Metadata: map[string]string{
			"user":    in.Username,
			"channel": in.ChannelName,
			"source":  in.Source,
		},
	})
	if err != nil {
		return domain.FinalResult{}, fmt.Errorf("handle message from %s: %w", in.sourceKey(), err)
	}

	return s.bridge.StreamResponse(ctx, injected.Anchor.ID, sink, MonitorOptions{})
}
