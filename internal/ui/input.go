package ui

import (
	"errors"
	"strings"

	"github.com/gdamore/tcell/v2"

	"github.com/bz888/champs/internal/chat"
)

type command struct {
	name    string
	aliases []string
	help    string
	run     func(u *UI)
}

var commands []command

func init() {
	commands = []command{
		{name: "/help", help: "Display this help message", run: (*UI).listHelp},
		{name: "/bye", aliases: []string{"/quit", "/exit"}, help: "Exit the application", run: (*UI).quitApp},
		{name: "/debug", help: "Toggle the debug console", run: (*UI).toggleDebugConsole},
		{name: "/signout", help: "Sign out and clear the conversation", run: (*UI).signOut},
	}
}

func lookupCommand(input string) (command, bool) {
	input = strings.ToLower(strings.TrimSpace(input))
	for _, c := range commands {
		if c.name == input {
			return c, true
		}
		for _, alias := range c.aliases {
			if alias == input {
				return c, true
			}
		}
	}
	return command{}, false
}

func (u *UI) setInputCapture() {
	u.textArea.SetInputCapture(u.captureInput)
}

// captureInput sends on a bare Enter; Enter with a modifier falls through
// to the text area, which inserts a newline.
func (u *UI) captureInput(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyESC:
		if u.textView.GetText(false) != "" {
			u.app.SetFocus(u.textView)
		}
	case tcell.KeyEnter:
		if event.Modifiers() != tcell.ModNone {
			return event
		}
		u.submit()
		return nil
	}
	return event
}

// submit runs a command or hands the question to the session. It runs on
// the UI goroutine; the exchange itself streams on its own goroutine.
func (u *UI) submit() {
	content := u.textArea.GetText()
	if strings.TrimSpace(content) == "" {
		return
	}

	if c, ok := lookupCommand(content); ok {
		u.textArea.SetText("", true)
		c.run(u)
		return
	}

	if u.session.Busy() {
		return
	}
	u.textArea.SetText("", true)
	u.notice = ""
	u.textArea.SetDisabled(true)
	u.sendButton.SetDisabled(true)

	ctx := u.ctx
	go func() {
		err := u.session.Send(ctx, content)
		if err != nil && !errors.Is(err, chat.ErrBusy) {
			u.log.Warn("Send failed: ", err)
		}
		u.queue(func() {
			u.render()
			u.app.SetFocus(u.textArea)
		})
	}()
}

func (u *UI) listHelp() {
	u.notice = helpText()
	u.render()
}

func (u *UI) toggleDebugConsole() {
	if u.debugVisible {
		u.mainFlex.RemoveItem(u.debugConsole)
		u.notice = "[yellow::]Debug console disabled[-]\n\n"
	} else {
		u.mainFlex.AddItem(u.debugConsole, 0, 1, false)
		u.notice = "[yellow::]Debug console enabled[-]\n\n"
	}
	u.debugVisible = !u.debugVisible
	u.render()
}

func (u *UI) quitApp() {
	u.log.Info("Exiting by command.")
	u.app.Stop()
}
