package preflight

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies the filesystem holding path has at least minBytes
// available to unprivileged users.
func CheckFreeSpace(name, path string, minBytes uint64) Result {
	var fs unix.Statfs_t
	if err := unix.Statfs(path, &fs); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := fs.Bavail * uint64(fs.Bsize)
	detail := fmt.Sprintf("%s (%s free)", path, humanize.IBytes(free))
	if free < minBytes {
		return Result{Name: name, Detail: fmt.Sprintf("%s; need %s", detail, humanize.IBytes(minBytes))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckBindAvailable verifies the API address can be bound.
func CheckBindAvailable(ctx context.Context, name, bind string) Result {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", bind)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", bind, err)}
	}
	_ = listener.Close()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (available)", bind)}
}
