// Package credentials provides secure, multi-tenant OAuth credential storage
// for mail provider accounts (C1 of the ingestion core). Access/refresh
// tokens are encrypted at rest with a key sourced from KeyProvider and never
// held in the process as a global: every caller holds its own *Store.
//
// Encryption Key Storage:
// The encryption key is stored securely using the system keyring:
// - macOS: Keychain
// - Windows: Credential Manager
// - Linux: Secret Service (libsecret)
//
// For CI/testing environments, set MAILGRAPH_ENCRYPTION_KEY to a
// 64-character hex string (32 bytes).
package credentials

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	mgerrors "github.com/otherjamesbrown/mailgraph/pkg/errors"
	"github.com/otherjamesbrown/mailgraph/pkg/logging"
)

// Provider identifies a mail provider a credential was issued by.
type Provider string

const (
	ProviderGmail   Provider = "gmail"
	ProviderOutlook Provider = "outlook"
	ProviderIMAP    Provider = "imap"
)

// refreshSkew is how far ahead of expiry an access token is proactively
// refreshed, so a caller never races a token that expires mid-request.
const refreshSkew = 2 * time.Minute

// Common errors.
var (
	ErrNoCredentials      = errors.New("no credentials stored")
	ErrInvalidCredentials = errors.New("invalid credentials format")
	ErrEncryptionFailed   = errors.New("encryption failed")
	ErrRevoked            = errors.New("credential revoked by provider")
)

// Credential holds one user's OAuth grant for one mail provider.
type Credential struct {
	UserID       string
	Provider     Provider
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scopes       []string
	Revoked      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// IMAPHost and IMAPUsername identify the mailbox an IMAP credential's
	// AccessToken (an app password, not a bearer token) authenticates
	// against. Unused for gmail/outlook, whose OAuth token alone is
	// sufficient to construct an adapter.
	IMAPHost     string
	IMAPUsername string
}

// Store manages encrypted OAuth credential storage backed by Postgres.
// One Store instance is constructed per process/test and injected into
// callers — it is never reached through a package-level global.
type Store struct {
	db            *pgxpool.Pool
	encryptionKey []byte
	keyProvider   KeyProvider
	oauthConfigs  map[Provider]*oauth2.Config
	logger        logging.Logger
	refreshGroup  singleflight.Group
}

// NewStore creates a Store using the default key provider priority
// (keyring, then passphrase, then MAILGRAPH_ENCRYPTION_KEY env var).
func NewStore(db *pgxpool.Pool, oauthConfigs map[Provider]*oauth2.Config, logger logging.Logger) (*Store, error) {
	keyProvider, err := GetDefaultKeyProvider()
	if err != nil {
		return nil, fmt.Errorf("initializing key provider: %w", err)
	}
	return NewStoreWithKeyProvider(db, keyProvider, oauthConfigs, logger)
}

// NewStoreWithKeyProvider creates a Store with an explicit key provider,
// primarily for tests.
func NewStoreWithKeyProvider(db *pgxpool.Pool, keyProvider KeyProvider, oauthConfigs map[Provider]*oauth2.Config, logger logging.Logger) (*Store, error) {
	key, err := keyProvider.GetKey()
	if err != nil {
		return nil, fmt.Errorf("getting encryption key: %w", err)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Store{
		db:            db,
		encryptionKey: key,
		keyProvider:   keyProvider,
		oauthConfigs:  oauthConfigs,
		logger:        logger.With(logging.F("component", "credentials")),
	}, nil
}

// Upsert stores or replaces the credential for (userID, provider).
func (s *Store) Upsert(ctx context.Context, cred *Credential) error {
	encAccess, err := s.encrypt(cred.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypting access token: %w", err)
	}
	encRefresh, err := s.encrypt(cred.RefreshToken)
	if err != nil {
		return fmt.Errorf("encrypting refresh token: %w", err)
	}

	const q = `
INSERT INTO credentials (user_id, provider, access_token, refresh_token, expires_at, scopes, revoked, imap_host, imap_username, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, false, $7, $8, now())
ON CONFLICT (user_id, provider) DO UPDATE SET
	access_token = EXCLUDED.access_token,
	refresh_token = EXCLUDED.refresh_token,
	expires_at = EXCLUDED.expires_at,
	scopes = EXCLUDED.scopes,
	revoked = false,
	imap_host = EXCLUDED.imap_host,
	imap_username = EXCLUDED.imap_username,
	updated_at = now()`

	_, err = s.db.Exec(ctx, q, cred.UserID, string(cred.Provider), encAccess, encRefresh, cred.ExpiresAt, cred.Scopes, nullableString(cred.IMAPHost), nullableString(cred.IMAPUsername))
	if err != nil {
		return fmt.Errorf("storing credential: %w", err)
	}
	return nil
}

// Get loads and decrypts the stored credential for (userID, provider).
func (s *Store) Get(ctx context.Context, userID string, provider Provider) (*Credential, error) {
	const q = `
SELECT user_id, provider, access_token, refresh_token, expires_at, scopes, revoked, imap_host, imap_username, created_at, updated_at
FROM credentials WHERE user_id = $1 AND provider = $2`

	row := s.db.QueryRow(ctx, q, userID, string(provider))

	var cred Credential
	var providerStr string
	var encAccess, encRefresh string
	var imapHost, imapUsername *string
	if err := row.Scan(&cred.UserID, &providerStr, &encAccess, &encRefresh, &cred.ExpiresAt, &cred.Scopes, &cred.Revoked, &imapHost, &imapUsername, &cred.CreatedAt, &cred.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoCredentials
		}
		return nil, fmt.Errorf("loading credential: %w", err)
	}
	cred.Provider = Provider(providerStr)
	if imapHost != nil {
		cred.IMAPHost = *imapHost
	}
	if imapUsername != nil {
		cred.IMAPUsername = *imapUsername
	}

	accessToken, err := s.decrypt(encAccess)
	if err != nil {
		return nil, fmt.Errorf("decrypting access token: %w", err)
	}
	refreshToken, err := s.decrypt(encRefresh)
	if err != nil {
		return nil, fmt.Errorf("decrypting refresh token: %w", err)
	}
	cred.AccessToken = accessToken
	cred.RefreshToken = refreshToken

	return &cred, nil
}

// MarkRevoked flags the stored credential as revoked so future
// GetAccessToken calls fail fast with kCredentialRevoked instead of
// repeatedly hitting the provider's token endpoint.
func (s *Store) MarkRevoked(ctx context.Context, userID string, provider Provider) error {
	const q = `UPDATE credentials SET revoked = true, updated_at = now() WHERE user_id = $1 AND provider = $2`
	_, err := s.db.Exec(ctx, q, userID, string(provider))
	return err
}

// GetAccessToken returns a valid access token for (userID, provider),
// refreshing it first if it is within refreshSkew of expiry. Concurrent
// callers for the same (userID, provider) share a single in-flight refresh
// via singleflight so a burst of sync workers never races the provider's
// token endpoint or corrupts the stored refresh token with a stale write.
func (s *Store) GetAccessToken(ctx context.Context, userID string, provider Provider) (string, error) {
	cred, err := s.Get(ctx, userID, provider)
	if err != nil {
		return "", err
	}
	if cred.Revoked {
		return "", mgerrors.ClassifyError(ErrRevoked, "credentials.GetAccessToken")
	}
	if time.Until(cred.ExpiresAt) > refreshSkew {
		return cred.AccessToken, nil
	}

	key := userID + ":" + string(provider)
	v, err, _ := s.refreshGroup.Do(key, func() (interface{}, error) {
		return s.refresh(ctx, cred)
	})
	if err != nil {
		return "", err
	}
	return v.(*Credential).AccessToken, nil
}

// refresh exchanges the stored refresh token for a new access token and
// persists the result. It must only be called from inside refreshGroup.Do.
func (s *Store) refresh(ctx context.Context, cred *Credential) (*Credential, error) {
	cfg, ok := s.oauthConfigs[cred.Provider]
	if !ok {
		return nil, fmt.Errorf("no oauth2 config registered for provider %q", cred.Provider)
	}

	ts := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken})
	tok, err := ts.Token()
	if err != nil {
		lower := strings.ToLower(err.Error())
		if strings.Contains(lower, "invalid_grant") || strings.Contains(lower, "revoked") {
			_ = s.MarkRevoked(ctx, cred.UserID, cred.Provider)
			return nil, mgerrors.ClassifyError(fmt.Errorf("invalid_grant: %w", err), "credentials.refresh")
		}
		return nil, mgerrors.ClassifyError(err, "credentials.refresh")
	}

	cred.AccessToken = tok.AccessToken
	cred.ExpiresAt = tok.Expiry
	if tok.RefreshToken != "" {
		cred.RefreshToken = tok.RefreshToken
	}

	if err := s.Upsert(ctx, cred); err != nil {
		s.logger.Warn("failed to persist refreshed token", logging.F("user_id", cred.UserID), logging.Err(err))
	}

	return cred, nil
}

// encrypt encrypts a string using AES-GCM.
func (s *Store) encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("%w: creating cipher: %v", ErrEncryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: creating GCM: %v", ErrEncryptionFailed, err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: generating nonce: %v", ErrEncryptionFailed, err)
	}
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts an AES-GCM encrypted string.
func (s *Store) decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: decoding base64: %v", ErrEncryptionFailed, err)
	}
	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("%w: creating cipher: %v", ErrEncryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: creating GCM: %v", ErrEncryptionFailed, err)
	}
	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrEncryptionFailed)
	}
	nonce, ciphertextBytes := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertextBytes, nil)
	if err != nil {
		return "", fmt.Errorf("%w: decryption failed: %v", ErrEncryptionFailed, err)
	}
	return string(plaintext), nil
}

// MaskToken returns a masked token with first/last few characters visible,
// suitable for logs and CLI status output.
func MaskToken(token string) string {
	if len(token) <= 20 {
		return strings.Repeat("*", len(token))
	}
	return token[:8] + "..." + token[len(token)-8:]
}

// nullableString converts an empty string to a nil parameter so optional
// text columns store SQL NULL instead of "".
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
