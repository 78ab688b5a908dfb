// Package gateway defines the boundary to the conversation platform. The
// scheduler core talks only to the ConversationGateway interface; the
// HTTP client in this package is the production implementation and the
// mock is for tests.
package gateway

import "context"

// Member is a conversation participant.
type Member struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"` // "agent", "contact", "system"
}

// Tag is a labeled marker on a conversation.
type Tag struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Conversation is the slice of platform state the scheduler needs.
type Conversation struct {
	ID          string   `json:"id"`
	WorkspaceID string   `json:"workspace_id"`
	TeamID      string   `json:"team_id"`
	Members     []Member `json:"members"`
	Tags        []Tag    `json:"tags"`
}

// Activity is a message to post into a conversation.
type Activity struct {
	ConversationID string `json:"conversation_id"`
	From           Member `json:"from"`
	Text           string `json:"text"`
}

// EndOpts qualifies an end-conversation event.
type EndOpts struct {
	CloseType string `json:"close_type"`
}

// CategorizationOpts describes a categorization record to create.
type CategorizationOpts struct {
	ObjectiveID string   `json:"objective_id"`
	OutcomeID   string   `json:"outcome_id"`
	TeamID      string   `json:"team_id"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// ConversationGateway is the external collaborator interface consumed by
// the stage dispatcher. Every call is a network boundary and may fail.
type ConversationGateway interface {
	GetConversation(ctx context.Context, conversationID string) (*Conversation, error)
	DispatchMessage(ctx context.Context, conv *Conversation, act Activity) error
	AddMember(ctx context.Context, conversationID string, m Member) error
	AddTags(ctx context.Context, conversationID string, tags []Tag) error
	DispatchEndConversation(ctx context.Context, conversationID string, from Member, opts EndOpts) error
	CreateCategorization(ctx context.Context, workspaceID, conversationID, actorID string, opts CategorizationOpts) error
	MarkAutomationEngaged(ctx context.Context, conversationID string) error
}
