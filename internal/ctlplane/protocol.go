// Copyright (C) 2026 The Ghostwire Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ctlplane

import "github.com/packetware/ghostwire/internal/ebpf/rules"

// ReqType is the kind of request a client sends over the management
// socket. Exactly one request is handled per connection.
type ReqType string

const (
	ReqStatus  ReqType = "STATUS"
	ReqRules   ReqType = "RULES"
	ReqEnable  ReqType = "ENABLE"
	ReqDisable ReqType = "DISABLE"
)

// ClientMessage is the request envelope sent by the CLI over the Unix
// socket. Interface is populated for ENABLE, and for RULES so the server
// can enable the firewall first if it is disabled; Rules is populated for
// RULES. Rules is always encoded, as null when absent, so an empty rule
// list reaches the server as an empty list rather than as a missing one.
//
// Rules already carries the engine's encoded form (the same shape the
// rule table matches against), not the YAML CIDR/protocol-name format a
// rule file is authored in — the CLI does that conversion (via
// internal/rulefile) before ever touching the socket, so the server never
// has to parse a rule file itself.
type ClientMessage struct {
	ReqType   ReqType      `json:"req_type"`
	Interface *string      `json:"interface,omitempty"`
	Rules     []rules.Rule `json:"rules"`
}

// ServerMessage is the response envelope. Message carries either a status
// summary, a success confirmation, or the error text, depending on
// RequestSuccess.
type ServerMessage struct {
	RequestSuccess bool   `json:"request_success"`
	Message        string `json:"message"`
}
