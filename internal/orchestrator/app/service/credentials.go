// Package service implements the migration orchestration logic: plan
// building, dependency resolution, execution, batch tracking and
// rollback coordination.
package service

import (
	"os"

	"github.com/schemafleet/schemafleet/internal/orchestrator/domain/model"
	"github.com/schemafleet/schemafleet/internal/platform/logger"
)

// PasswordDecryptor decrypts stored connection passwords
type PasswordDecryptor interface {
	Decrypt(value string) (string, error)
}

// CredentialResolver resolves a usable plaintext password for a
// connection record. A malformed credential never fails a run; the
// resolver degrades to the plaintext column, then the default password,
// and lets the connectivity pre-check fail fast instead.
type CredentialResolver struct {
	decryptor       PasswordDecryptor
	defaultPassword string
	log             logger.Logger
}

// NewCredentialResolver creates a credential resolver
func NewCredentialResolver(decryptor PasswordDecryptor, defaultPassword string, log logger.Logger) *CredentialResolver {
	if defaultPassword == "" {
		defaultPassword = os.Getenv("TARGET_DB_PASSWORD")
	}
	return &CredentialResolver{
		decryptor:       decryptor,
		defaultPassword: defaultPassword,
		log:             log,
	}
}

// ResolvePassword returns the first usable password: decrypted
// ciphertext, the plaintext column, or the process-wide default.
func (r *CredentialResolver) ResolvePassword(rec model.ConnectionRecord) string {
	if rec.EncryptedPassword != "" && r.decryptor != nil {
		plaintext, err := r.decryptor.Decrypt(rec.EncryptedPassword)
		if err == nil {
			return plaintext
		}
		r.log.Warn("failed to decrypt connection password, falling back",
			"connection", rec.Name, "error", err)
	}

	if rec.Password != "" {
		return rec.Password
	}

	return r.defaultPassword
}
