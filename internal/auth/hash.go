// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package auth

import (
	"encoding/json"

	"github.com/juju/errors"
	"golang.org/x/crypto/scrypt"
)

// Params are the key derivation parameters handed out with a salt.
type Params struct {
	N      int `json:"N"`
	R      int `json:"r"`
	P      int `json:"p"`
	KeyLen int `json:"keyLen"`
}

// Validate checks the parameters are usable for scrypt.
func (p Params) Validate() error {
	if p.N <= 1 || p.N&(p.N-1) != 0 {
		return errors.NotValidf("N %d", p.N)
	}
	if p.R <= 0 {
		return errors.NotValidf("r %d", p.R)
	}
	if p.P <= 0 {
		return errors.NotValidf("p %d", p.P)
	}
	if p.KeyLen <= 0 {
		return errors.NotValidf("keyLen %d", p.KeyLen)
	}
	return nil
}

// Hasher computes the keyed hash of a password. The algorithm is fixed
// by the identity provider.
type Hasher interface {
	Hash(password string, salt []byte, params Params) ([]byte, error)
}

// ScryptHasher is the Hasher used by the identity provider.
type ScryptHasher struct{}

// Hash is part of the Hasher interface.
func (ScryptHasher) Hash(password string, salt []byte, params Params) ([]byte, error) {
	if err := params.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	key, err := scrypt.Key([]byte(password), salt, params.N, params.R, params.P, params.KeyLen)
	return key, errors.Trace(err)
}

// NormalizeSalt converts salt values, which the identity provider sends
// as signed bytes, into the unsigned bytes they represent.
func NormalizeSalt(salt []int) []byte {
	result := make([]byte, len(salt))
	for i, v := range salt {
		result[i] = byte(((v % 256) + 256) % 256)
	}
	return result
}

// SaltEntry is one parameter set returned by the salt endpoint.
type SaltEntry struct {
	Salt   []int           `json:"salt"`
	Params json.RawMessage `json:"params"`
}

// hashedPassword is the document submitted, JSON encoded, for each
// parameter set.
type hashedPassword struct {
	Key      []int           `json:"key"`
	Salt     []int           `json:"salt"`
	Params   json.RawMessage `json:"params"`
	IsHashed bool            `json:"isHashed"`
}

// hashEntry hashes the password for a single salt entry and returns the
// encoded document.
func hashEntry(hasher Hasher, password string, entry SaltEntry) (string, error) {
	var params Params
	if err := json.Unmarshal(entry.Params, &params); err != nil {
		return "", errors.NewNotValid(err, "decoding hash params")
	}
	key, err := hasher.Hash(password, NormalizeSalt(entry.Salt), params)
	if err != nil {
		return "", errors.Annotate(err, "hashing password")
	}
	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	salt := entry.Salt
	if salt == nil {
		salt = []int{}
	}
	data, err := json.Marshal(hashedPassword{
		Key:      ints,
		Salt:     salt,
		Params:   entry.Params,
		IsHashed: true,
	})
	if err != nil {
		return "", errors.Trace(err)
	}
	return string(data), nil
}
