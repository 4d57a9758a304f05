// Copyright (C) 2026 The Ghostwire Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"encoding/json"
	"fmt"
	"net"

	"github.com/packetware/ghostwire/internal/ctlplane"
)

// sendMessage connects to the management socket, sends msg, and returns the
// server's message on success or an error carrying the server's error text
// on failure.
func sendMessage(socketPath string, msg ctlplane.ClientMessage) (string, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return "", fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	if _, err := conn.Write(data); err != nil {
		return "", fmt.Errorf("write request: %w", err)
	}

	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var resp ctlplane.ServerMessage
	if err := json.Unmarshal(buf[:n], &resp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if !resp.RequestSuccess {
		return "", fmt.Errorf("the server responded with an error: %s", resp.Message)
	}
	return resp.Message, nil
}
