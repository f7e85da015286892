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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlockList_BlockedDomain(t *testing.T) {
	assert := assert.New(t)

	blockList := BlockList{}
	blockList.domains = map[string]struct{}{
		"0.0.0.0.com": {},
	}

	assert.True(blockList.Contains("0.0.0.0.com"))
	assert.False(blockList.Contains("127.0.0.1.com"))
}

func TestBlockList_BlockedSubdomain(t *testing.T) {
	assert := assert.New(t)

	blockList := BlockList{}
	blockList.domains = map[string]struct{}{
		"0.0.0.0.com": {},
	}

	assert.True(blockList.Contains("social.0.0.0.0.com"))
	assert.True(blockList.Contains("deep.social.0.0.0.0.com"))
}

func TestBlockList_SiblingSubdomain(t *testing.T) {
	assert := assert.New(t)

	blockList := BlockList{}
	blockList.domains = map[string]struct{}{
		"social.0.0.0.0.com": {},
	}

	assert.True(blockList.Contains("social.0.0.0.0.com"))
	assert.False(blockList.Contains("blog.0.0.0.0.com"))
	assert.False(blockList.Contains("0.0.0.0.com"))
}

func TestBlockList_CaseInsensitive(t *testing.T) {
	assert := assert.New(t)

	blockList := BlockList{}
	blockList.domains = map[string]struct{}{
		"0.0.0.0.com": {},
	}

	assert.True(blockList.Contains("0.0.0.0.COM"))
}

func TestBlockList_LoadFile(t *testing.T) {
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "blocklist.csv")
	assert.NoError(os.WriteFile(path, []byte("#domain,#severity\n0.0.0.0.com,suspend\nBad.Example,silence\n"), 0o600))

	blockList, err := NewBlockList(path)
	assert.NoError(err)
	defer blockList.Close()

	assert.True(blockList.Contains("0.0.0.0.com"))
	assert.True(blockList.Contains("bad.example"))
	assert.False(blockList.Contains("#domain"))
	assert.False(blockList.Contains("good.example"))
}

func TestBlockList_LoadFileWithoutHeader(t *testing.T) {
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "blocklist.csv")
	assert.NoError(os.WriteFile(path, []byte("0.0.0.0.com\n"), 0o600))

	blockList, err := NewBlockList(path)
	assert.NoError(err)
	defer blockList.Close()

	assert.True(blockList.Contains("0.0.0.0.com"))
}
