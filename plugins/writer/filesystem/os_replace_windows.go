//go:build windows

package filesystem

import (
	"syscall"
	"unsafe"
)

const (
	moveFileReplaceExisting = 0x1
	moveFileWriteThrough    = 0x8
)

var procMoveFileExW = syscall.NewLazyDLL("kernel32.dll").NewProc("MoveFileExW")

// osReplace: os.Rename 在 Windows 上无法覆盖已打开的目标，改用 MoveFileExW。
func osReplace(tmpPath, dest string) error {
	from, err := syscall.UTF16PtrFromString(tmpPath)
	if err != nil {
		return err
	}
	to, err := syscall.UTF16PtrFromString(dest)
	if err != nil {
		return err
	}
	ok, _, e := procMoveFileExW.Call(
		uintptr(unsafe.Pointer(from)),
		uintptr(unsafe.Pointer(to)),
		uintptr(moveFileReplaceExisting|moveFileWriteThrough),
	)
	if ok != 0 {
		return nil
	}
	if errno, isErrno := e.(syscall.Errno); isErrno && errno != 0 {
		return errno
	}
	return syscall.EINVAL
}

func syncDir(string) error { return nil }
