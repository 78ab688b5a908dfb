package gateway

import (
	"context"
	"fmt"
	"sync"
)

// MockGateway implements ConversationGateway for testing. It records every
// call in order and lets tests inject per-method failures and canned
// conversations.
type MockGateway struct {
	mu            sync.Mutex
	calls         []string
	messages      []Activity
	conversations map[string]*Conversation

	// Per-method injected failures; nil means success.
	FailGetConversation     error
	// FailConversations fails GetConversation for specific IDs only.
	FailConversations map[string]error
	FailDispatchMessage     error
	FailAddMember           error
	FailAddTags             error
	FailEndConversation     error
	FailCreateCategorization error
	FailMarkEngaged         error
}

// NewMockGateway creates a MockGateway with no canned conversations.
func NewMockGateway() *MockGateway {
	return &MockGateway{conversations: make(map[string]*Conversation)}
}

// SetConversation pre-populates a conversation for GetConversation.
func (m *MockGateway) SetConversation(conv *Conversation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[conv.ID] = conv
}

// GetConversation returns the canned conversation, or a minimal one when
// none was set.
func (m *MockGateway) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	m.record("GetConversation:" + conversationID)
	if m.FailGetConversation != nil {
		return nil, m.FailGetConversation
	}
	if err, ok := m.FailConversations[conversationID]; ok {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if conv, ok := m.conversations[conversationID]; ok {
		return conv, nil
	}
	return &Conversation{ID: conversationID}, nil
}

// DispatchMessage records the activity.
func (m *MockGateway) DispatchMessage(ctx context.Context, conv *Conversation, act Activity) error {
	m.record("DispatchMessage:" + conv.ID)
	if m.FailDispatchMessage != nil {
		return m.FailDispatchMessage
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, act)
	return nil
}

// AddMember records the member addition.
func (m *MockGateway) AddMember(ctx context.Context, conversationID string, member Member) error {
	m.record("AddMember:" + conversationID + ":" + member.ID)
	if m.FailAddMember != nil {
		return m.FailAddMember
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if conv, ok := m.conversations[conversationID]; ok {
		conv.Members = append(conv.Members, member)
	}
	return nil
}

// AddTags records the tag addition.
func (m *MockGateway) AddTags(ctx context.Context, conversationID string, tags []Tag) error {
	names := ""
	for _, t := range tags {
		names += ":" + t.Name
	}
	m.record("AddTags:" + conversationID + names)
	return m.FailAddTags
}

// DispatchEndConversation records the close event.
func (m *MockGateway) DispatchEndConversation(ctx context.Context, conversationID string, from Member, opts EndOpts) error {
	m.record(fmt.Sprintf("DispatchEndConversation:%s:%s", conversationID, opts.CloseType))
	return m.FailEndConversation
}

// CreateCategorization records the categorization.
func (m *MockGateway) CreateCategorization(ctx context.Context, workspaceID, conversationID, actorID string, opts CategorizationOpts) error {
	m.record(fmt.Sprintf("CreateCategorization:%s:%s:%s", conversationID, opts.ObjectiveID, opts.OutcomeID))
	return m.FailCreateCategorization
}

// MarkAutomationEngaged records the marker toggle.
func (m *MockGateway) MarkAutomationEngaged(ctx context.Context, conversationID string) error {
	m.record("MarkAutomationEngaged:" + conversationID)
	return m.FailMarkEngaged
}

func (m *MockGateway) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

// --- Test helpers ---

// Calls returns a copy of all recorded calls in order.
func (m *MockGateway) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// Messages returns a copy of all dispatched activities in order.
func (m *MockGateway) Messages() []Activity {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Activity, len(m.messages))
	copy(out, m.messages)
	return out
}

// CalledCount returns how many recorded calls start with prefix.
func (m *MockGateway) CalledCount(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}
