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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckAddress_Unroutable(t *testing.T) {
	assert := assert.New(t)

	for _, address := range []string{
		"127.0.0.1:443",
		"10.0.0.1:443",
		"172.16.0.1:443",
		"192.168.1.1:443",
		"169.254.169.254:80",
		"0.0.0.0:443",
		"224.0.0.1:443",
		"[::1]:443",
		"[::]:443",
		"[fe80::1]:443",
		"[fc00::1]:443",
		"[ff02::1]:443",
		"[::ffff:127.0.0.1]:443",
		"[::ffff:10.0.0.1]:443",
	} {
		assert.ErrorIs(checkAddress(address), ErrUnroutableAddress, address)
	}
}

func TestCheckAddress_Routable(t *testing.T) {
	assert := assert.New(t)

	for _, address := range []string{
		"203.0.113.1:443",
		"198.51.100.7:80",
		"[2001:db8::1]:443",
	} {
		assert.NoError(checkAddress(address), address)
	}
}

func TestCheckAddress_Invalid(t *testing.T) {
	assert := assert.New(t)

	// the dialer control hook only ever sees IP literals
	assert.Error(checkAddress("203.0.113.1"))
	assert.Error(checkAddress("example.com:443"))
	assert.Error(checkAddress(""))
}
