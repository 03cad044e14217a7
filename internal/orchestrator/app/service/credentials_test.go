package service

import (
	"testing"

	"github.com/schemafleet/schemafleet/internal/orchestrator/domain/model"
	"github.com/schemafleet/schemafleet/internal/platform/logger"
	"github.com/stretchr/testify/assert"
)

func TestResolvePasswordPrefersDecrypted(t *testing.T) {
	decryptor := &fakeDecryptor{plaintexts: map[string]string{"encrypted:abc": "decrypted-pw"}}
	r := NewCredentialResolver(decryptor, "default-pw", logger.NewNop())

	rec := model.ConnectionRecord{
		Name:              "acme",
		EncryptedPassword: "encrypted:abc",
		Password:          "plaintext-pw",
	}

	assert.Equal(t, "decrypted-pw", r.ResolvePassword(rec))
}

func TestResolvePasswordFallsBackOnDecryptFailure(t *testing.T) {
	decryptor := &fakeDecryptor{}
	r := NewCredentialResolver(decryptor, "default-pw", logger.NewNop())

	rec := model.ConnectionRecord{
		Name:              "acme",
		EncryptedPassword: "encrypted:broken",
		Password:          "plaintext-pw",
	}

	assert.Equal(t, "plaintext-pw", r.ResolvePassword(rec))
}

func TestResolvePasswordUsesPlaintextColumn(t *testing.T) {
	r := NewCredentialResolver(nil, "default-pw", logger.NewNop())

	rec := model.ConnectionRecord{Name: "acme", Password: "plaintext-pw"}

	assert.Equal(t, "plaintext-pw", r.ResolvePassword(rec))
}

func TestResolvePasswordDefaultsWhenNothingStored(t *testing.T) {
	r := NewCredentialResolver(nil, "default-pw", logger.NewNop())

	rec := model.ConnectionRecord{Name: "acme"}

	assert.Equal(t, "default-pw", r.ResolvePassword(rec))
}

func TestResolvePasswordDecryptFailureThenDefault(t *testing.T) {
	decryptor := &fakeDecryptor{}
	r := NewCredentialResolver(decryptor, "default-pw", logger.NewNop())

	rec := model.ConnectionRecord{Name: "acme", EncryptedPassword: "encrypted:broken"}

	assert.Equal(t, "default-pw", r.ResolvePassword(rec))
}
