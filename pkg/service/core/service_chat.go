package core

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/navikt/datatalk/pkg/errs"
	"github.com/navikt/datatalk/pkg/service"
)

type ChatMode string

const (
	// ChatModeRich asks through the endpoint that explains its answer.
	ChatModeRich  ChatMode = "rich"
	ChatModePlain ChatMode = "plain"
)

func ParseChatMode(s string) (ChatMode, error) {
	switch m := ChatMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ChatModeRich, nil
	case ChatModeRich, ChatModePlain:
		return m, nil
	}

	return "", fmt.Errorf("unknown chat mode: %q", s)
}

const DefaultGreeting = "Hello! Ask me any question about your data."

// ChatSession is an append only conversation with the question answering
// backend. Only one question can be pending at a time.
type ChatSession struct {
	api  service.QnAAPI
	mode ChatMode
	log  zerolog.Logger

	mu         sync.Mutex
	messages   []service.ChatMessage
	busy       bool
	generation uint64
}

// Send appends the question and then the answer to the log. Failures of the
// request become error flagged assistant messages; an error is only returned
// when the question was not sent or its answer was discarded.
func (s *ChatSession) Send(ctx context.Context, question string, model service.ModelSelector) (*service.ChatMessage, error) {
	const op errs.Op = "ChatSession.Send"

	if strings.TrimSpace(question) == "" {
		return nil, errs.E(errs.Validation, op, errs.Parameter("question"), "question is empty")
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, errs.E(errs.Busy, op, "waiting for the answer to the previous question")
	}

	s.busy = true
	gen := s.generation
	s.messages = append(s.messages, service.ChatMessage{
		ID:   uuid.NewString(),
		Role: service.RoleUser,
		Text: question,
	})
	s.mu.Unlock()

	req := service.QuestionRequest{
		Question:      question,
		ModelProvider: model.Provider,
		ModelName:     model.Name,
	}

	msg := s.ask(ctx, req)
	msg.ID = uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		s.log.Debug().Msg("dropping answer for a detached chat session")
		return nil, errs.E(errs.Precondition, op, "chat session was detached")
	}

	s.busy = false
	s.messages = append(s.messages, msg)

	return &msg, nil
}

func (s *ChatSession) ask(ctx context.Context, req service.QuestionRequest) service.ChatMessage {
	if s.mode == ChatModePlain {
		answer, err := s.api.Ask(ctx, req)
		if err != nil {
			return s.failed(err)
		}

		return plainMessage(answer)
	}

	answer, err := s.api.AskRich(ctx, req)
	if err != nil {
		return s.failed(err)
	}

	return richMessage(answer)
}

func (s *ChatSession) failed(err error) service.ChatMessage {
	s.log.Info().Str("message", errs.Msg(err)).Strs("stack", errs.OpStack(err)).Msg("question failed")

	return service.ChatMessage{
		Role:  service.RoleAssistant,
		Text:  "Error: " + errs.Msg(err),
		Error: true,
	}
}

func richMessage(a *service.RichAnswer) service.ChatMessage {
	msg := service.ChatMessage{
		Role: service.RoleAssistant,
		Text: a.Summary,
		Details: &service.DetailBundle{
			BusinessExplanation: a.BusinessExplanation,
			EntityExplanation:   a.EntityExplanation,
			GeneratedQuery:      a.SQLQuery,
			TableLayout:         a.TableLayout,
			Rows:                a.Data,
		},
	}

	if a.Error != nil && *a.Error != "" {
		msg.Error = true
		if msg.Text == "" {
			msg.Text = *a.Error
		}
	}

	return msg
}

func plainMessage(a *service.PlainAnswer) service.ChatMessage {
	msg := service.ChatMessage{
		Role: service.RoleAssistant,
	}

	if a.Answer != nil {
		msg.Text = *a.Answer
	}

	if a.SQLQuery != nil && *a.SQLQuery != "" {
		msg.Details = &service.DetailBundle{GeneratedQuery: *a.SQLQuery}
	}

	if a.Error != nil && *a.Error != "" {
		msg.Error = true
		if msg.Text == "" {
			msg.Text = *a.Error
		}
	}

	return msg
}

// Messages returns a copy of the log in send order.
func (s *ChatSession) Messages() []service.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]service.ChatMessage, len(s.messages))
	copy(out, s.messages)

	return out
}

func (s *ChatSession) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.busy
}

// Detach makes the session forget a pending question: its answer will not be
// appended, and a new question can be sent right away.
func (s *ChatSession) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.busy = false
}

func NewChatSession(api service.QnAAPI, mode ChatMode, greeting string, log zerolog.Logger) *ChatSession {
	if mode == "" {
		mode = ChatModeRich
	}

	if greeting == "" {
		greeting = DefaultGreeting
	}

	return &ChatSession{
		api:  api,
		mode: mode,
		log:  log,
		messages: []service.ChatMessage{
			{
				ID:   uuid.NewString(),
				Role: service.RoleAssistant,
				Text: greeting,
			},
		},
	}
}
