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

package user

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

// encrypted keys are stored as $scrypt$salt$nonce$box, base64-encoded
const encPrefix = "$scrypt$"

var ErrWrongKeySecret = errors.New("wrong key secret")

func deriveKey(secret string, salt []byte) (*[32]byte, error) {
	raw, err := scrypt.Key([]byte(secret), salt, 1<<15, 8, 1, 32)
	if err != nil {
		return nil, err
	}

	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

// EncryptKey encrypts a private key PEM for storage.
// The PEM is stored as-is if secret is empty.
func EncryptKey(secret string, pemBytes []byte) (string, error) {
	if secret == "" {
		return string(pemBytes), nil
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key, err := deriveKey(secret, salt)
	if err != nil {
		return "", err
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}

	box := secretbox.Seal(nil, pemBytes, &nonce, key)

	return encPrefix +
		base64.StdEncoding.EncodeToString(salt) + "$" +
		base64.StdEncoding.EncodeToString(nonce[:]) + "$" +
		base64.StdEncoding.EncodeToString(box), nil
}

// DecryptKey recovers a private key PEM stored by [EncryptKey].
func DecryptKey(secret, stored string) ([]byte, error) {
	if !strings.HasPrefix(stored, encPrefix) {
		return []byte(stored), nil
	}

	fields := strings.Split(stored[len(encPrefix):], "$")
	if len(fields) != 3 {
		return nil, fmt.Errorf("malformed encrypted key: %d fields", len(fields))
	}

	salt, err := base64.StdEncoding.DecodeString(fields[0])
	if err != nil {
		return nil, err
	}

	rawNonce, err := base64.StdEncoding.DecodeString(fields[1])
	if err != nil {
		return nil, err
	}
	if len(rawNonce) != 24 {
		return nil, fmt.Errorf("invalid nonce size: %d", len(rawNonce))
	}

	box, err := base64.StdEncoding.DecodeString(fields[2])
	if err != nil {
		return nil, err
	}

	key, err := deriveKey(secret, salt)
	if err != nil {
		return nil, err
	}

	var nonce [24]byte
	copy(nonce[:], rawNonce)

	pemBytes, ok := secretbox.Open(nil, box, &nonce, key)
	if !ok {
		return nil, ErrWrongKeySecret
	}

	return pemBytes, nil
}
