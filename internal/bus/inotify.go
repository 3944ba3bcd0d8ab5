// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// watchForDeletion watches directory via inotify for the removal of
// filename — by unlink or by rename — and returns a channel that
// closes the moment it happens, plus a cleanup function that must be
// called exactly once regardless of whether the channel fired.
//
// Used in place of a stat-poll loop so the handoff protocol's ≈2s
// detection bound holds with margin rather than depending on a poll
// interval chosen to fit under it.
func watchForDeletion(directory, filename string) (<-chan struct{}, func(), error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, nil, fmt.Errorf("inotify_init1: %w", err)
	}

	_, err = unix.InotifyAddWatch(fd, directory, unix.IN_DELETE|unix.IN_MOVED_FROM)
	if err != nil {
		unix.Close(fd)
		return nil, nil, fmt.Errorf("inotify_add_watch on %s: %w", directory, err)
	}

	gone := make(chan struct{})
	stop := make(chan struct{})

	go inotifyDeletionLoop(fd, filename, gone, stop)

	cleanedUp := false
	cleanup := func() {
		if cleanedUp {
			return
		}
		cleanedUp = true
		close(stop)
	}

	return gone, cleanup, nil
}

// inotifyDeletionLoop polls the inotify fd for an event naming
// targetFilename. Closes gone on a match, closes the fd on any exit
// path (match, stop signal, or read error).
func inotifyDeletionLoop(fd int, targetFilename string, gone chan struct{}, stop <-chan struct{}) {
	defer unix.Close(fd)

	buffer := make([]byte, 4096)
	for {
		select {
		case <-stop:
			return
		default:
		}

		// poll(2) with a 100ms timeout keeps this goroutine responsive
		// to the stop signal without a tight CPU loop.
		pollDescriptors := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		count, err := unix.Poll(pollDescriptors, 100)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return
		}
		if count == 0 {
			continue
		}

		bytesRead, err := unix.Read(fd, buffer)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			return
		}

		if inotifyEventsContainFilename(buffer[:bytesRead], targetFilename) {
			close(gone)
			return
		}
	}
}

// inotifyEventsContainFilename scans a buffer of raw inotify events for
// one whose name matches the target filename. See inotify(7) for the
// struct inotify_event layout this decodes by hand (wd, mask, cookie,
// len, then the null-padded name).
func inotifyEventsContainFilename(buffer []byte, targetFilename string) bool {
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buffer) {
		nameLength := int(binary.NativeEndian.Uint32(buffer[offset+12 : offset+16]))
		eventSize := unix.SizeofInotifyEvent + nameLength
		if offset+eventSize > len(buffer) {
			break
		}

		if nameLength > 0 {
			nameBytes := buffer[offset+unix.SizeofInotifyEvent : offset+eventSize]
			if nullTerminatedString(nameBytes) == targetFilename {
				return true
			}
		}

		offset += eventSize
	}
	return false
}

func nullTerminatedString(data []byte) string {
	for i, b := range data {
		if b == 0 {
			return string(data[:i])
		}
	}
	return string(data)
}
