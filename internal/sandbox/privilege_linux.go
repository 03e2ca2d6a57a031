//go:build linux

package sandbox

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DropPrivileges switches the current process to uid/gid once at service
// start, before any request is served. It must never be called per-child:
// isolation for each execution comes from the cgroup/namespace/rlimit layers
// above, not from re-dropping privileges per invocation.
func DropPrivileges(uid, gid int) error {
	if unix.Getuid() != 0 {
		return nil
	}
	if err := unix.Setgid(gid); err != nil {
		return fmt.Errorf("setgid(%d): %w", gid, err)
	}
	if err := unix.Setuid(uid); err != nil {
		return fmt.Errorf("setuid(%d): %w", uid, err)
	}
	return nil
}
