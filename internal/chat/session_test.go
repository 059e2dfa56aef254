package chat

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bz888/champs/internal/api"
	"github.com/bz888/champs/internal/config"
	"github.com/bz888/champs/internal/models"
)

type MockStreamer struct {
	mock.Mock
}

func (m *MockStreamer) Stream(ctx context.Context, turns []models.ChatTurn, fn func(string) error) error {
	args := m.Called(ctx, turns, fn)
	return args.Error(0)
}

// replies makes a mock Run func that feeds fragments to the callback.
func replies(fragments ...string) func(mock.Arguments) {
	return func(args mock.Arguments) {
		fn := args.Get(2).(func(string) error)
		for _, fragment := range fragments {
			if err := fn(fragment); err != nil {
				return
			}
		}
	}
}

func greeting() models.ChatTurn {
	return models.ChatTurn{Role: models.RoleAssistant, Content: Greeting}
}

func TestNewSessionSeedsGreeting(t *testing.T) {
	s := NewSession(new(MockStreamer), nil)
	assert.Equal(t, []models.ChatTurn{greeting()}, s.Turns())
	assert.Equal(t, Idle, s.State())
}

func TestSendIgnoresBlankInput(t *testing.T) {
	streamer := new(MockStreamer)
	var changes atomic.Int32
	s := NewSession(streamer, func() { changes.Add(1) })

	for _, text := range []string{"", "   ", "\r\n\t"} {
		require.NoError(t, s.Send(context.Background(), text))
	}

	assert.Equal(t, []models.ChatTurn{greeting()}, s.Turns())
	assert.Equal(t, Idle, s.State())
	assert.Zero(t, changes.Load())
	streamer.AssertNotCalled(t, "Stream", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendStreamsReplyIntoPlaceholder(t *testing.T) {
	streamer := new(MockStreamer)
	wantRequest := []models.ChatTurn{
		greeting(),
		{Role: models.RoleUser, Content: "Hello"},
	}
	streamer.On("Stream", mock.Anything, wantRequest, mock.Anything).
		Run(replies("Hi", "", " there", "!")).
		Return(nil)

	var (
		mu        sync.Mutex
		snapshots [][]models.ChatTurn
	)
	var s *Session
	s = NewSession(streamer, func() {
		mu.Lock()
		defer mu.Unlock()
		snapshots = append(snapshots, s.Turns())
	})

	require.NoError(t, s.Send(context.Background(), "  Hello \r\n"))

	assert.Equal(t, []models.ChatTurn{
		greeting(),
		{Role: models.RoleUser, Content: "Hello"},
		{Role: models.RoleAssistant, Content: "Hi there!"},
	}, s.Turns())
	assert.Equal(t, Completed, s.State())
	streamer.AssertExpectations(t)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, snapshots)
	// The placeholder is visible before any fragment and only ever grows.
	first := snapshots[0]
	require.Len(t, first, 3)
	assert.Equal(t, "", first[2].Content)
	previous := ""
	for _, snapshot := range snapshots {
		content := snapshot[2].Content
		assert.True(t, len(content) >= len(previous) && content[:len(previous)] == previous)
		previous = content
	}
}

func TestSendReplacesEmptyPlaceholderWithApology(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client, err := api.New(url, config.TransportHTTP)
	require.NoError(t, err)
	s := NewSession(client, nil)

	err = s.Send(context.Background(), "Hello")
	assert.Error(t, err)

	assert.Equal(t, []models.ChatTurn{
		greeting(),
		{Role: models.RoleUser, Content: "Hello"},
		{Role: models.RoleAssistant, Content: Apology},
	}, s.Turns())
	assert.Equal(t, Failed, s.State())
}

func TestSendKeepsPartialReplyAndAppendsApology(t *testing.T) {
	streamer := new(MockStreamer)
	streamer.On("Stream", mock.Anything, mock.Anything, mock.Anything).
		Run(replies("Half an ans")).
		Return(errors.New("unexpected EOF"))

	s := NewSession(streamer, nil)
	assert.Error(t, s.Send(context.Background(), "Hello"))

	assert.Equal(t, []models.ChatTurn{
		greeting(),
		{Role: models.RoleUser, Content: "Hello"},
		{Role: models.RoleAssistant, Content: "Half an ans"},
		{Role: models.RoleAssistant, Content: Apology},
	}, s.Turns())
	assert.Equal(t, Failed, s.State())
}

func TestSendWhileBusy(t *testing.T) {
	release := make(chan struct{})
	streamer := new(MockStreamer)
	streamer.On("Stream", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			fn := args.Get(2).(func(string) error)
			fn("working")
			<-release
		}).
		Return(nil).Once()

	s := NewSession(streamer, nil)

	done := make(chan error, 1)
	go func() { done <- s.Send(context.Background(), "first") }()

	require.Eventually(t, func() bool { return s.State() == Streaming }, 5*time.Second, 5*time.Millisecond)
	assert.True(t, s.Busy())

	assert.ErrorIs(t, s.Send(context.Background(), "second"), ErrBusy)
	assert.ErrorIs(t, s.Reset(), ErrBusy)
	assert.Len(t, s.Turns(), 3)

	close(release)
	require.NoError(t, <-done)

	turns := s.Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, models.ChatTurn{Role: models.RoleUser, Content: "first"}, turns[1])
	assert.Equal(t, models.ChatTurn{Role: models.RoleAssistant, Content: "working"}, turns[2])
	assert.False(t, s.Busy())
	streamer.AssertNumberOfCalls(t, "Stream", 1)
}

func TestSendSecondExchangeIncludesHistory(t *testing.T) {
	streamer := new(MockStreamer)
	streamer.On("Stream", mock.Anything, mock.MatchedBy(func(turns []models.ChatTurn) bool {
		return len(turns) == 2
	}), mock.Anything).Run(replies("one")).Return(nil).Once()
	streamer.On("Stream", mock.Anything, []models.ChatTurn{
		greeting(),
		{Role: models.RoleUser, Content: "a"},
		{Role: models.RoleAssistant, Content: "one"},
		{Role: models.RoleUser, Content: "b"},
	}, mock.Anything).Run(replies("two")).Return(nil).Once()

	s := NewSession(streamer, nil)
	require.NoError(t, s.Send(context.Background(), "a"))
	require.NoError(t, s.Send(context.Background(), "b"))

	assert.Len(t, s.Turns(), 5)
	streamer.AssertExpectations(t)
}

func TestReset(t *testing.T) {
	streamer := new(MockStreamer)
	streamer.On("Stream", mock.Anything, mock.Anything, mock.Anything).Run(replies("ok")).Return(nil)

	s := NewSession(streamer, nil)
	require.NoError(t, s.Send(context.Background(), "hi"))
	require.NoError(t, s.Reset())

	assert.Equal(t, []models.ChatTurn{greeting()}, s.Turns())
	assert.Equal(t, Idle, s.State())
}

func TestFormatUserText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hello", "hello"},
		{"  padded\t", "padded"},
		{"line one\r\nline two", "line one\nline two"},
		{"old\rmac", "old\nmac"},
		{"\r\n", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatUserText(tt.in))
	}
}

func TestTurnStateString(t *testing.T) {
	assert.Equal(t, "awaiting response", AwaitingResponse.String())
	assert.Equal(t, "unknown", TurnState(42).String())
}
