//go:build linux

/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package tun

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// event is our duplicated reference to a client-created eventfd. Duplicating
// keeps the notification path alive even if the client closes its own
// descriptor mid-session.
type event struct {
	fd int
}

func dupEvent(fd int) (*event, error) {
	if fd < 0 {
		return nil, ErrInvalidParameter
	}
	nfd, err := unix.Dup(fd)
	if err != nil {
		return nil, fmt.Errorf("tun: dup eventfd %d: %w", fd, err)
	}
	unix.CloseOnExec(nfd)
	return &event{fd: nfd}, nil
}

// signal increments the eventfd counter, waking any waiter.
func (e *event) signal() {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(e.fd, buf[:]); err != nil {
		internalLogger.warnf("event signal fd:%d error:%v", e.fd, err)
	}
}

// wait blocks until the event is signaled, then consumes the signal.
func (e *event) wait() error {
	fds := []unix.PollFd{{Fd: int32(e.fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("tun: event wait fd:%d: %w", e.fd, err)
		}
		if n > 0 && e.drain() {
			return nil
		}
	}
}

// clear consumes a pending signal without blocking.
func (e *event) clear() {
	fds := []unix.PollFd{{Fd: int32(e.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, 0)
	if err != nil || n == 0 {
		return
	}
	e.drain()
}

func (e *event) drain() bool {
	var buf [8]byte
	for {
		_, err := unix.Read(e.fd, buf[:])
		switch err {
		case nil:
			return true
		case unix.EINTR:
			continue
		default:
			// EAGAIN: someone else consumed the signal between poll and read.
			return false
		}
	}
}

func (e *event) close() {
	if err := unix.Close(e.fd); err != nil {
		internalLogger.warnf("event close fd:%d error:%v", e.fd, err)
	}
}
