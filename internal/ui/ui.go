package ui

import (
	"context"
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/bz888/champs/internal/auth"
	"github.com/bz888/champs/internal/chat"
	"github.com/bz888/champs/internal/logger"
)

const (
	pageLogin = "login"
	pageChat  = "chat"
)

// UI is the terminal chat client: a sign-in gate in front of the
// conversation view, the question box and an optional debug console.
type UI struct {
	app          *tview.Application
	pages        *tview.Pages
	mainFlex     *tview.Flex
	textView     *tview.TextView
	textArea     *tview.TextArea
	sendButton   *tview.Button
	statusBar    *tview.TextView
	debugConsole *tview.TextView
	loginModal   *tview.Modal

	session *chat.Session
	auth    auth.Provider
	log     *logger.Logger

	// queue schedules f on the UI goroutine without waiting for it. It is
	// safe to call from the UI goroutine itself. Swapped out in tests.
	queue func(f func())

	ctx          context.Context
	user         *auth.User
	notice       string
	debugVisible bool
	signingIn    bool
}

func New(streamer chat.Streamer, provider auth.Provider, dev bool) *UI {
	u := &UI{
		app:          tview.NewApplication(),
		auth:         provider,
		log:          logger.NewLogger("views"),
		ctx:          context.Background(),
		debugVisible: dev,
	}
	u.queue = func(f func()) { go u.app.QueueUpdateDraw(f) }
	u.session = chat.NewSession(streamer, func() { u.queue(u.render) })

	u.app.EnablePaste(true)
	u.app.EnableMouse(true)

	u.debugConsole = u.initDebugConsole()
	u.textView = u.initChatViewer()
	u.textArea = u.initChatInput()
	u.sendButton = tview.NewButton("Send").SetSelectedFunc(u.submit)
	u.statusBar = tview.NewTextView().SetDynamicColors(true)
	u.loginModal = u.initLoginModal()

	inputRow := tview.NewFlex().
		AddItem(u.textArea, 0, 1, true).
		AddItem(u.sendButton, 8, 0, false)
	subFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(u.textView, 0, 1, false).
		AddItem(inputRow, 8, 2, true).
		AddItem(u.statusBar, 1, 0, false)
	u.mainFlex = tview.NewFlex().
		AddItem(subFlex, 0, 2, true)
	if u.debugVisible {
		u.mainFlex.AddItem(u.debugConsole, 0, 1, false)
	}

	u.pages = tview.NewPages().
		AddPage(pageChat, u.mainFlex, true, false).
		AddPage(pageLogin, u.loginModal, true, true)

	u.setInputCapture()
	u.render()
	return u
}

// DebugConsole is the view the logger writes to in dev mode.
func (u *UI) DebugConsole() *tview.TextView {
	return u.debugConsole
}

func (u *UI) Session() *chat.Session {
	return u.session
}

// Run blocks until the user quits or ctx is cancelled.
func (u *UI) Run(ctx context.Context) error {
	u.ctx = ctx
	stop := context.AfterFunc(ctx, u.app.Stop)
	defer stop()

	if err := u.app.SetRoot(u.pages, true).SetFocus(u.loginModal).Run(); err != nil {
		return fmt.Errorf("run terminal ui: %w", err)
	}
	return nil
}

func (u *UI) initChatViewer() *tview.TextView {
	textView := tview.NewTextView().
		SetDynamicColors(true).
		SetRegions(true).
		SetWordWrap(true)

	textView.SetTitle("Conversation").SetBorder(true)
	textView.SetScrollable(true)
	textView.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEnter {
			u.app.SetFocus(u.textArea)
		}
		return event
	})
	return textView
}

func (u *UI) initChatInput() *tview.TextArea {
	textArea := tview.NewTextArea().
		SetPlaceholder("Type a message, Enter to send, Alt+Enter for a new line. /help lists commands.")
	textArea.SetTitle("Question").SetBorder(true)
	return textArea
}

func (u *UI) initDebugConsole() *tview.TextView {
	console := tview.NewTextView().
		SetChangedFunc(func() {
			u.app.Draw()
		}).
		SetDynamicColors(true).
		SetRegions(true).
		SetWordWrap(true)

	console.SetTitle("Debugger").SetBorder(true)
	console.ScrollToEnd()
	return console
}

// render redraws the conversation from the session and keeps the newest
// turn in view. It must run on the UI goroutine.
func (u *UI) render() {
	text := RenderConversation(u.session.Turns(), u.session.State())
	if u.notice != "" {
		text += u.notice
	}
	u.textView.SetText(text)
	u.textView.ScrollToEnd()

	busy := u.session.Busy()
	u.textArea.SetDisabled(busy)
	u.sendButton.SetDisabled(busy)
	u.statusBar.SetText(statusLine(u.user, u.session.State()))
}

func statusLine(user *auth.User, state chat.TurnState) string {
	who := "not signed in"
	if user != nil {
		who = "signed in as " + tview.Escape(user.DisplayName())
	}
	line := fmt.Sprintf(" [::d]%s  ·  /help for commands", who)
	if state == chat.AwaitingResponse || state == chat.Streaming {
		line += "  ·  " + state.String() + "…"
	}
	return line + "[::-]"
}
