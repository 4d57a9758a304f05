// Copyright (C) 2026 The Ghostwire Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package testutil

import (
	"os"
	"testing"
)

// RequireVM skips the test if the GHOSTWIRE_VM_TEST environment variable is not set.
// This ensures that tests requiring real kernel capabilities (XDP/TC attach,
// raw sockets) are only run in an environment that actually has them.
func RequireVM(t *testing.T) {
	t.Helper()
	if os.Getenv("GHOSTWIRE_VM_TEST") == "" {
		t.Skip("Skipping test: requires GHOSTWIRE_VM_TEST environment")
	}
}
