//go:build windows

package procbackend

import (
	"context"
	"syscall"
	"unsafe"

	"github.com/hostbridge/sysbridge/internal/apperr"
)

var (
	user32                      = syscall.NewLazyDLL("user32.dll")
	procEnumWindows             = user32.NewProc("EnumWindows")
	procGetWindowThreadPID      = user32.NewProc("GetWindowThreadProcessId")
	procSetForegroundWindow     = user32.NewProc("SetForegroundWindow")
)

// Focus brings pid's main window to the foreground via the Win32
// EnumWindows + GetWindowThreadProcessId + SetForegroundWindow chain.
func (b *Backend) Focus(_ context.Context, pid uint32) error {
	var target uintptr
	cb := syscall.NewCallback(func(hwnd uintptr, _ uintptr) uintptr {
		var owner uint32
		procGetWindowThreadPID.Call(hwnd, uintptr(unsafe.Pointer(&owner)))
		if owner == pid {
			target = hwnd
			return 0 // stop enumeration
		}
		return 1 // continue
	})
	procEnumWindows.Call(cb, 0)

	if target == 0 {
		return apperr.New(apperr.NotFound, "no window found for process")
	}
	ok, _, _ := procSetForegroundWindow.Call(target)
	if ok == 0 {
		return apperr.New(apperr.Internal, "failed to focus window")
	}
	return nil
}
