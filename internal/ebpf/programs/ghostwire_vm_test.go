// Copyright (C) 2026 The Ghostwire Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package programs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/packetware/ghostwire/internal/testutil"
)

// TestLoadAttachAndCloseOnLoopback attaches the real XDP ingress and TC
// egress programs to the loopback interface and tears them back down. It
// needs actual kernel eBPF capabilities (CAP_BPF/CAP_NET_ADMIN, a kernel
// new enough for TCX) that aren't available in an ordinary build sandbox,
// so it only runs inside the VM test environment.
func TestLoadAttachAndCloseOnLoopback(t *testing.T) {
	testutil.RequireVM(t)

	prog, err := Load(nil)
	require.NoError(t, err)
	defer prog.Close()

	require.NoError(t, prog.Attach("lo"))

	for _, name := range []string{
		"RULES", "HOLEPUNCHED", "RATELIMITING",
		"RULE_EVALUATED", "RULE_PASSED",
		"XDP_ACTION_ANALYTICS", "TC_ACTION_ANALYTICS",
	} {
		require.NotNilf(t, prog.Map(name), "map %s missing from loaded collection", name)
	}
}
