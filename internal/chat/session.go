package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/bz888/champs/internal/logger"
	"github.com/bz888/champs/internal/models"
)

const (
	Greeting = "Hi! I'm the Chatbot Champs assistant. How can I help you today?"
	Apology  = "I'm sorry, but I encountered an error. Please try again later."
)

var ErrBusy = errors.New("a reply is still streaming")

// TurnState tracks the exchange that is currently, or was last, in flight.
type TurnState int

const (
	Idle TurnState = iota
	AwaitingResponse
	Streaming
	Completed
	Failed
)

func (s TurnState) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingResponse:
		return "awaiting response"
	case Streaming:
		return "streaming"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Streamer delivers the reply to a conversation fragment by fragment.
// *api.Client implements it.
type Streamer interface {
	Stream(ctx context.Context, turns []models.ChatTurn, fn func(string) error) error
}

// Session drives one conversation against the relay. Only one exchange can
// be in flight at a time.
type Session struct {
	streamer Streamer
	conv     *Conversation
	onChange func()
	log      *logger.Logger

	mu    sync.Mutex
	state TurnState
}

// NewSession starts a conversation seeded with the greeting. onChange, if
// set, is called after every mutation, from whichever goroutine made it.
func NewSession(streamer Streamer, onChange func()) *Session {
	return &Session{
		streamer: streamer,
		conv:     NewConversation(greetingTurn()),
		onChange: onChange,
		log:      logger.NewLogger("Chat"),
	}
}

func greetingTurn() models.ChatTurn {
	return models.ChatTurn{Role: models.RoleAssistant, Content: Greeting}
}

func (s *Session) Turns() []models.ChatTurn {
	return s.conv.Turns()
}

func (s *Session) State() TurnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Busy reports whether a reply is still being awaited or streamed.
func (s *Session) Busy() bool {
	return isBusy(s.State())
}

func isBusy(state TurnState) bool {
	return state == AwaitingResponse || state == Streaming
}

// Reset returns the conversation to the greeting. It fails with ErrBusy
// while an exchange is in flight.
func (s *Session) Reset() error {
	s.mu.Lock()
	if isBusy(s.state) {
		s.mu.Unlock()
		return ErrBusy
	}
	s.state = Idle
	s.conv.Reset(greetingTurn())
	s.mu.Unlock()

	s.notify()
	return nil
}

// Send appends the user's message and an empty assistant placeholder, then
// streams the reply into the placeholder. Blank input is ignored. On failure
// the apology replaces an empty placeholder or follows the partial reply,
// and the error is returned.
func (s *Session) Send(ctx context.Context, text string) error {
	text = FormatUserText(text)
	if text == "" {
		return nil
	}

	s.mu.Lock()
	if isBusy(s.state) {
		s.mu.Unlock()
		return ErrBusy
	}
	s.state = AwaitingResponse
	userTurn := models.ChatTurn{Role: models.RoleUser, Content: text}
	request := append(s.conv.Turns(), userTurn)
	placeholder := s.conv.Append(userTurn, models.ChatTurn{Role: models.RoleAssistant}) + 1
	s.mu.Unlock()
	s.notify()

	err := s.streamer.Stream(ctx, request, func(fragment string) error {
		if fragment == "" {
			return nil
		}
		s.setState(Streaming)
		s.conv.AppendContent(placeholder, fragment)
		s.notify()
		return nil
	})
	if err != nil {
		s.log.Error("Chat request failed: ", err)
		apology := models.ChatTurn{Role: models.RoleAssistant, Content: Apology}
		if s.conv.Content(placeholder) == "" {
			s.conv.Set(placeholder, apology)
		} else {
			s.conv.Append(apology)
		}
		s.setState(Failed)
		s.notify()
		return err
	}

	s.setState(Completed)
	s.notify()
	return nil
}

func (s *Session) setState(state TurnState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}

// FormatUserText is the light reformatting applied to user input: Windows and
// old Mac line endings become "\n" and surrounding whitespace is trimmed.
func FormatUserText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimSpace(text)
}
