package chat

import (
	"sync"

	"github.com/bz888/champs/internal/models"
)

// Conversation is the ordered, in-memory list of turns shown to the user.
// It is safe for concurrent use: the stream reader appends while the view reads.
type Conversation struct {
	mu    sync.RWMutex
	turns []models.ChatTurn
}

func NewConversation(seed ...models.ChatTurn) *Conversation {
	c := &Conversation{}
	c.turns = append(c.turns, seed...)
	return c
}

// Turns returns a snapshot copy.
func (c *Conversation) Turns() []models.ChatTurn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.ChatTurn, len(c.turns))
	copy(out, c.turns)
	return out
}

func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}

// Append adds turns at the end and returns the index of the first one.
func (c *Conversation) Append(turns ...models.ChatTurn) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	index := len(c.turns)
	c.turns = append(c.turns, turns...)
	return index
}

// AppendContent concatenates text onto the content of turn i.
func (c *Conversation) AppendContent(i int, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns[i].Content += text
}

func (c *Conversation) Content(i int) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.turns[i].Content
}

func (c *Conversation) Set(i int, turn models.ChatTurn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns[i] = turn
}

// Reset drops every turn and starts over from seed.
func (c *Conversation) Reset(seed ...models.ChatTurn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append([]models.ChatTurn(nil), seed...)
}
