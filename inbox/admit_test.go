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

package inbox

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAdmit_Once(t *testing.T) {
	assert := assert.New(t)

	q := newTestQueue(t)

	admitted, err := Admit(context.Background(), q.DB, "https://ip6-allnodes/create/1", time.Hour)
	assert.NoError(err)
	assert.True(admitted)

	// replayed delivery of the same activity
	admitted, err = Admit(context.Background(), q.DB, "https://ip6-allnodes/create/1", time.Hour)
	assert.NoError(err)
	assert.False(admitted)

	admitted, err = Admit(context.Background(), q.DB, "https://ip6-allnodes/create/2", time.Hour)
	assert.NoError(err)
	assert.True(admitted)
}

func TestAdmit_Concurrent(t *testing.T) {
	assert := assert.New(t)

	q := newTestQueue(t)

	// simultaneous deliveries of the same activity through different inboxes
	const deliveries = 16

	var admitted atomic.Int32
	errs := make(chan error, deliveries)

	var wg sync.WaitGroup
	for range deliveries {
		wg.Add(1)
		go func() {
			defer wg.Done()

			ok, err := Admit(context.Background(), q.DB, "https://ip6-allnodes/create/1", time.Hour)
			if err != nil {
				errs <- err
				return
			}
			if ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(err)
	}
	assert.Equal(int32(1), admitted.Load())
}

func TestAdmit_Expires(t *testing.T) {
	assert := assert.New(t)

	q := newTestQueue(t)

	admitted, err := Admit(context.Background(), q.DB, "https://ip6-allnodes/create/1", time.Hour)
	assert.NoError(err)
	assert.True(admitted)

	var expires int64
	assert.NoError(q.DB.QueryRow(`select expires from processed where id = 'https://ip6-allnodes/create/1'`).Scan(&expires))
	assert.Greater(expires, time.Now().Unix())
	assert.LessOrEqual(expires, time.Now().Add(time.Hour).Unix())
}
