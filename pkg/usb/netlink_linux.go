/*
 * Copyright 2025 Carver Automation Corporation.
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

//go:build linux

package usb

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// kernelUeventGroup is the netlink multicast group carrying raw kernel
// uevents (group 2 carries udev-processed events instead).
const kernelUeventGroup = 1

const ueventBufferSize = 64 * 1024

// Watch opens a NETLINK_KOBJECT_UEVENT socket and delivers add/remove
// notifications for usb_device nodes until ctx is cancelled. The
// returned channel is closed when the pump exits.
func (s *SysfsSource) Watch(ctx context.Context) (<-chan Notification, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, fmt.Errorf("failed to open uevent socket: %w", err)
	}

	addr := &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: kernelUeventGroup,
	}

	if err := unix.Bind(fd, addr); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("failed to bind uevent socket: %w", err)
	}

	// Pipe used to wake the poll loop on cancellation.
	closePipe := make([]int, 2)
	if err := unix.Pipe(closePipe); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("failed to create close pipe: %w", err)
	}

	notifications := make(chan Notification, 16)

	go func() {
		<-ctx.Done()
		_ = unix.Close(closePipe[1])
	}()

	go s.eventPump(ctx, fd, closePipe[0], notifications)

	return notifications, nil
}

func (s *SysfsSource) eventPump(ctx context.Context, fd, closeFd int, out chan<- Notification) {
	defer func() {
		_ = unix.Close(fd)
		_ = unix.Close(closeFd)
		close(out)
	}()

	buf := make([]byte, ueventBufferSize)

	fds := []unix.PollFd{
		{Fd: int32(closeFd), Events: unix.POLLHUP},
		{Fd: int32(fd), Events: unix.POLLIN},
	}

	for {
		fds[0].Revents = 0
		fds[1].Revents = 0

		_, err := unix.Poll(fds, -1)
		if err != nil {
			if errno, ok := err.(syscall.Errno); ok && errno == syscall.EINTR {
				continue
			}

			s.logger.Error().Err(err).Msg("uevent poll failed")

			return
		}

		if fds[0].Revents != 0 {
			return
		}

		if fds[1].Revents == 0 {
			continue
		}

		n, _, err := unix.Recvfrom(fd, buf, 0)
		if err != nil {
			if errno, ok := err.(syscall.Errno); ok && (errno == syscall.EAGAIN || errno == syscall.EINTR) {
				continue
			}

			s.logger.Error().Err(err).Msg("uevent read failed")

			return
		}

		notification, ok := s.parseUeventMessage(buf[:n])
		if !ok {
			continue
		}

		select {
		case out <- notification:
		case <-ctx.Done():
			return
		}
	}
}

// parseUeventMessage decodes one kernel uevent datagram. The payload is
// "action@devpath" followed by NUL-separated KEY=VALUE pairs.
func (s *SysfsSource) parseUeventMessage(data []byte) (Notification, bool) {
	fields := strings.Split(string(data), "\x00")
	if len(fields) == 0 {
		return Notification{}, false
	}

	action, devPath, ok := strings.Cut(fields[0], "@")
	if !ok {
		return Notification{}, false
	}

	props := make(map[string]string, len(fields))

	for _, field := range fields[1:] {
		if key, value, ok := strings.Cut(field, "="); ok {
			props[key] = value
		}
	}

	if props["SUBSYSTEM"] != "usb" || props["DEVTYPE"] != "usb_device" {
		return Notification{}, false
	}

	switch action {
	case "add":
		raw, err := s.readDevice("/sys" + devPath)
		if err != nil {
			s.logger.Debug().Err(err).Str("dev_path", devPath).Msg("Added device vanished before read")
			return Notification{}, false
		}

		return Notification{
			Action:   ActionAdd,
			PortPath: filepath.Base(raw.SysPath),
			Device:   raw,
		}, true

	case "remove":
		portPath := PortPathFromSysPath(devPath)
		if portPath == "" {
			return Notification{}, false
		}

		return Notification{
			Action:   ActionRemove,
			PortPath: portPath,
		}, true
	}

	return Notification{}, false
}
