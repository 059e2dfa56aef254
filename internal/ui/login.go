package ui

import (
	"context"
	"errors"

	"github.com/rivo/tview"

	"github.com/bz888/champs/internal/auth"
	"github.com/bz888/champs/internal/chat"
)

const (
	buttonSignIn = "Sign in"
	buttonQuit   = "Quit"
)

func (u *UI) initLoginModal() *tview.Modal {
	modal := tview.NewModal().
		AddButtons([]string{buttonSignIn, buttonQuit}).
		SetDoneFunc(func(_ int, label string) {
			switch label {
			case buttonSignIn:
				u.signIn()
			case buttonQuit:
				u.app.Stop()
			}
		})
	modal.SetText(loginText(u.auth, ""))
	return modal
}

func loginText(provider auth.Provider, problem string) string {
	text := "Welcome to Chatbot Champs.\n\nSign in to start chatting."
	if provider.Name() == "google" {
		text = "Welcome to Chatbot Champs.\n\nSign in with Google to start chatting. A browser window will open."
	}
	if problem != "" {
		text += "\n\n" + problem
	}
	return text
}

// signIn runs the provider's flow off the UI goroutine and opens the chat
// once a user comes back.
func (u *UI) signIn() {
	if u.signingIn {
		return
	}
	u.signingIn = true
	u.loginModal.SetText(loginText(u.auth, "Waiting for sign-in to finish…"))

	ctx := u.ctx
	go func() {
		user, err := u.auth.SignIn(ctx)
		u.queue(func() {
			u.signingIn = false
			u.finishSignIn(user, err)
		})
	}()
}

func (u *UI) finishSignIn(user *auth.User, err error) {
	if err != nil {
		u.log.Warn("Sign-in failed: ", err)
		problem := "Sign-in failed. Please try again."
		if errors.Is(err, context.Canceled) {
			problem = ""
		}
		u.loginModal.SetText(loginText(u.auth, problem))
		return
	}

	u.user = user
	u.log.Info("Signed in as ", user.DisplayName())
	u.pages.SwitchToPage(pageChat)
	u.app.SetFocus(u.textArea)
	u.render()
}

// signOut drops the user, clears the conversation and returns to the gate.
// It is refused while a reply is streaming.
func (u *UI) signOut() {
	if err := u.session.Reset(); err != nil {
		if errors.Is(err, chat.ErrBusy) {
			u.notice = "[yellow::]Wait for the reply to finish before signing out.[-]\n\n"
			u.render()
		}
		return
	}

	ctx := u.ctx
	provider := u.auth
	go func() {
		if err := provider.SignOut(ctx); err != nil {
			u.log.Warn("Sign-out: ", err)
		}
	}()

	u.user = nil
	u.notice = ""
	u.loginModal.SetText(loginText(u.auth, "Signed out."))
	u.pages.SwitchToPage(pageLogin)
	u.app.SetFocus(u.loginModal)
	u.render()
}
