// Package chat defines the atomic unit of an agent conversation: a role tag
// plus text content.
//
// Role is a closed set. Every switch over Role in this module handles all of
// RoleSystem, RoleUser, RoleAssistant and RoleTool; adding a role means
// extending Roles and fixing every switch that reports it as unknown.
package chat

import (
	"fmt"
	"strings"
)

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Roles lists every valid role in conversation order of first appearance.
var Roles = []Role{RoleSystem, RoleUser, RoleAssistant, RoleTool}

type Role string

func (r Role) String() string {
	return string(r)
}

// Valid reports whether r is one of the closed set of roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Label returns the capitalized display name of the role.
func (r Role) Label() string {
	switch r {
	case RoleSystem:
		return "System"
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	case RoleTool:
		return "Tool"
	}
	return fmt.Sprintf("Role(%q)", string(r))
}

// Icon returns a terminal-friendly glyph for the role.
func (r Role) Icon() string {
	switch r {
	case RoleSystem:
		return "⌨"
	case RoleUser:
		return "👤"
	case RoleAssistant:
		return "🤖"
	case RoleTool:
		return "🔧"
	}
	return "?"
}

// ParseRole parses a role name, case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("chat: unknown role %q", s)
	}
	return r, nil
}

// Message is one conversation turn. Messages are values; the conversation log
// hands out copies so a Message held by a caller never changes under it.
type Message struct {
	Role    Role   `json:"role" msgpack:"role"`
	Content string `json:"content" msgpack:"content"`
}

// System, User, Assistant and Tool are shorthand constructors.
func System(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message      { return Message{Role: RoleUser, Content: content} }
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }
func Tool(content string) Message      { return Message{Role: RoleTool, Content: content} }

func (m Message) String() string {
	return fmt.Sprintf("%s: %s", m.Role, m.Content)
}

// Inspect renders messages as a plain-text transcript, one section per
// message, for debug output and logs.
func Inspect(msgs []Message) string {
	var sb strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "### %s %s\n", msg.Role.Icon(), msg.Role.Label())
		sb.WriteString(strings.TrimRight(msg.Content, "\n"))
		sb.WriteString("\n")
	}
	return sb.String()
}
