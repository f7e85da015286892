/*
Copyright 2025, 2026 the gather authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package fed

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"syscall"

	"github.com/gatherfed/gather/cfg"
)

// Client sends outgoing HTTP requests.
type Client interface {
	Do(r *http.Request) (*http.Response, error)
}

// ErrUnroutableAddress is returned when a request target resolves to an
// address inside a private, loopback, link-local or multicast range.
var ErrUnroutableAddress = errors.New("unroutable address")

func checkAddress(address string) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return err
	}

	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() || addr.IsMulticast() || addr.IsUnspecified() {
		return fmt.Errorf("%w: %s", ErrUnroutableAddress, addr)
	}

	return nil
}

// NewClient returns a [http.Client] that refuses to connect to private,
// loopback, link-local and multicast addresses. The check runs after name
// resolution and before the socket connects, therefore it also covers
// redirects. This client is the only egress point of the federation engine.
func NewClient(config *cfg.Config) *http.Client {
	dialer := net.Dialer{
		Timeout: config.RequestTimeout,
		Control: func(network, address string, c syscall.RawConn) error {
			return checkAddress(address)
		},
	}

	return &http.Client{
		Timeout: config.RequestTimeout,
		Transport: &http.Transport{
			DialContext:     dialer.DialContext,
			MaxIdleConns:    config.ResolverMaxIdleConns,
			IdleConnTimeout: config.ResolverIdleConnTimeout,
		},
	}
}
