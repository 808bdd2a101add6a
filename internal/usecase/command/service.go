// Package command answers spoken commands in short in-memory chats.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"voicekey/internal/domain"
)

const systemPrompt = `You are a voice assistant. The user speaks to you through a push-to-talk shortcut and reads your answer in a small floating panel.
Answer directly and briefly. Use plain text; short lists are fine, headings and tables are not.
If a request is ambiguous, give the most likely answer instead of asking a question.`

// titleLen bounds chat titles derived from the first command.
const titleLen = 48

// Service implements domain.CommandService. Chats live in memory for the
// lifetime of the process.
type Service struct {
	mu      sync.Mutex
	chats   map[string]*domain.Chat
	current string

	settings domain.SettingsStore
	llm      domain.ChatCompleter
	bus      domain.EventBus
	logger   *slog.Logger
}

var _ domain.CommandService = (*Service)(nil)

// NewService creates an empty command Service.
func NewService(settings domain.SettingsStore, llm domain.ChatCompleter, bus domain.EventBus, logger *slog.Logger) *Service {
	return &Service{
		chats:    make(map[string]*domain.Chat),
		settings: settings,
		llm:      llm,
		bus:      bus,
		logger:   logger,
	}
}

// ProcessUserCommand answers text as a fresh exchange. A new chat is opened
// unless the current one is still empty.
func (s *Service) ProcessUserCommand(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	if c := s.chats[s.current]; c == nil || len(c.Messages) > 0 {
		s.createLocked()
	}
	id := s.current
	s.mu.Unlock()
	return s.ask(ctx, id, text)
}

// ProcessFollowUpCommand continues the current chat, or opens one if there
// is none.
func (s *Service) ProcessFollowUpCommand(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	if s.chats[s.current] == nil {
		s.createLocked()
	}
	id := s.current
	s.mu.Unlock()
	return s.ask(ctx, id, text)
}

func (s *Service) ask(ctx context.Context, chatID, text string) (string, error) {
	const op = "command.ask"

	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.NewDomainError(op, domain.ErrInvalidInput, "empty command")
	}

	st, err := s.settings.Load(ctx)
	if err != nil {
		return "", domain.WrapOp(op, err)
	}
	cfg, err := st.ActiveProviderConfig()
	if err != nil {
		return "", err
	}
	if err := cfg.CheckCredentials(); err != nil {
		return "", err
	}

	s.mu.Lock()
	chat := s.chats[chatID]
	if chat == nil {
		s.mu.Unlock()
		return "", domain.NewDomainError(op, domain.ErrNotFound, "chat "+chatID)
	}
	history := append([]domain.Message(nil), chat.Messages...)
	s.mu.Unlock()

	msgs := make([]domain.Message, 0, len(history)+2)
	msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: systemPrompt})
	msgs = append(msgs, history...)
	msgs = append(msgs, domain.Message{Role: domain.RoleUser, Content: text})

	answer, err := s.llm.Complete(ctx, cfg, domain.ChatRequest{
		Model:    cfg.Model,
		Messages: msgs,
		Stream:   cfg.Streaming,
		Extra:    cfg.Extra,
	})
	if err != nil {
		return "", err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" || answer == domain.NoContent {
		return "", domain.NewDomainError(op, domain.ErrProviderError, "empty response")
	}

	s.mu.Lock()
	// The chat may have been deleted while the request was in flight.
	if chat := s.chats[chatID]; chat != nil {
		if chat.Title == "" {
			chat.Title = title(text)
		}
		chat.Messages = append(chat.Messages,
			domain.Message{Role: domain.RoleUser, Content: text},
			domain.Message{Role: domain.RoleAssistant, Content: answer},
		)
		chat.UpdatedAt = time.Now()
	}
	s.mu.Unlock()

	s.logger.Debug("command answered", "chat_id", chatID, "model", cfg.Model, "answer_len", len(answer))
	s.publishChanged(ctx, chatID)
	return answer, nil
}

// CreateNewChat opens an empty chat and makes it current.
func (s *Service) CreateNewChat() string {
	s.mu.Lock()
	id := s.createLocked()
	s.mu.Unlock()
	s.publishChanged(context.Background(), id)
	return id
}

func (s *Service) createLocked() string {
	now := time.Now()
	id := generateULID(now)
	s.chats[id] = &domain.Chat{ID: id, CreatedAt: now, UpdatedAt: now}
	s.current = id
	return id
}

// SwitchToChat makes id the current chat.
func (s *Service) SwitchToChat(id string) error {
	s.mu.Lock()
	if _, ok := s.chats[id]; !ok {
		s.mu.Unlock()
		return domain.NewDomainError("Service.SwitchToChat", domain.ErrNotFound, fmt.Sprintf("chat %q", id))
	}
	s.current = id
	s.mu.Unlock()
	s.publishChanged(context.Background(), id)
	return nil
}

// DeleteCurrentChat removes the current chat. The most recently updated
// remaining chat becomes current.
func (s *Service) DeleteCurrentChat() error {
	s.mu.Lock()
	if _, ok := s.chats[s.current]; !ok {
		s.mu.Unlock()
		return domain.NewDomainError("Service.DeleteCurrentChat", domain.ErrNotFound, "no current chat")
	}
	delete(s.chats, s.current)
	s.current = ""
	if list := s.sortedLocked(); len(list) > 0 {
		s.current = list[0].ID
	}
	next := s.current
	s.mu.Unlock()
	s.publishChanged(context.Background(), next)
	return nil
}

// CurrentChatID returns the current chat, or "" when there is none.
func (s *Service) CurrentChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Chats returns copies of all chats, most recently updated first.
func (s *Service) Chats() []domain.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.sortedLocked()
	out := make([]domain.Chat, len(list))
	for i, c := range list {
		out[i] = *c
		out[i].Messages = append([]domain.Message(nil), c.Messages...)
	}
	return out
}

func (s *Service) sortedLocked() []*domain.Chat {
	list := make([]*domain.Chat, 0, len(s.chats))
	for _, c := range s.chats {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].UpdatedAt.Equal(list[j].UpdatedAt) {
			return list[i].ID > list[j].ID
		}
		return list[i].UpdatedAt.After(list[j].UpdatedAt)
	})
	return list
}

func (s *Service) publishChanged(ctx context.Context, id string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, domain.NewEvent(domain.EventChatChanged, map[string]string{"chat_id": id}))
}

func title(text string) string {
	r := []rune(text)
	if len(r) <= titleLen {
		return text
	}
	return strings.TrimSpace(string(r[:titleLen])) + "…"
}

func generateULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
