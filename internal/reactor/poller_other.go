//go:build !linux

package reactor

import "errors"

func newEpollPoller() (Poller, error) {
	return nil, errors.New("epoll is only available on linux")
}
