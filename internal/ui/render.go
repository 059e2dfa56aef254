package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"

	"github.com/bz888/champs/internal/chat"
	"github.com/bz888/champs/internal/models"
)

// RenderConversation formats turns for the conversation view. Content is
// escaped so model output cannot inject colour tags. An empty trailing
// assistant turn shows a typing marker while a reply is awaited.
func RenderConversation(turns []models.ChatTurn, state chat.TurnState) string {
	var b strings.Builder
	for i, turn := range turns {
		switch turn.Role {
		case models.RoleUser:
			b.WriteString("[red::]You:[-]\n")
		case models.RoleAssistant:
			b.WriteString("[green::]Bot:[-]\n")
		default:
			continue
		}

		content := turn.Content
		if content == "" && i == len(turns)-1 && state == chat.AwaitingResponse {
			content = "…"
		}
		fmt.Fprintf(&b, "%s\n\n", tview.Escape(content))
	}
	return b.String()
}

func helpText() string {
	var b strings.Builder
	b.WriteString("[yellow::]Commands:[-]\n")
	for _, c := range commands {
		fmt.Fprintf(&b, "- %s: %s\n", c.name, c.help)
	}
	b.WriteString("\n")
	return b.String()
}
