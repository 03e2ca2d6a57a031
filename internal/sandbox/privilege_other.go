//go:build !linux

package sandbox

// DropPrivileges is a no-op on platforms without POSIX uid/gid semantics
// wired up here; production deploys run under LinuxExecutor.
func DropPrivileges(uid, gid int) error {
	return nil
}
