package utils

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// IOCtl は値を引数に取る IOCTL を発行する
func IOCtl(f *os.File, cmd, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), cmd, arg)
	if errno != 0 {
		return errno
	}
	return nil
}

// IOCtlPtr はポインタを引数に取る IOCTL を発行する。カーネルが書き戻す構造体に使う
func IOCtlPtr(f *os.File, cmd uintptr, ptr unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), cmd, uintptr(ptr))
	if errno != 0 {
		return errno
	}
	return nil
}

// TestBit はカーネルのビットマップから bit が立っているかを返す
func TestBit(bits []byte, bit int) bool {
	idx := bit / 8
	if idx >= len(bits) {
		return false
	}
	return bits[idx]&(1<<(bit%8)) != 0
}
