package ui

import (
	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/chatmigrate/internal/models"
)

var _ list.Item = subjectItem{}

// subjectItem is one bulk migration offered in the choose view.
type subjectItem struct {
	operation   models.RunOperation
	title       string
	description string
}

func (i subjectItem) FilterValue() string { return i.title }
func (i subjectItem) Title() string       { return i.title }
func (i subjectItem) Description() string { return i.description }

func subjectItems() []list.Item {
	return []list.Item{
		subjectItem{
			operation:   models.OperationUsers,
			title:       "Users",
			description: "Upsert users with their metadata and block lists, in concurrent chunks",
		},
		subjectItem{
			operation:   models.OperationChannels,
			title:       "Channels",
			description: "Upsert private channels one by one, migrating missing members first",
		},
	}
}
