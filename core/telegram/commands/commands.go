package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command represents a slash command with its handler, description, and metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	Hidden      bool
	Aliases     []string
}
