package secrets

import "os"

// EnvironmentStore implements Store using environment variables.
// It is read-only: Store and Delete are rejected so the chain falls
// through to a writable backend.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (s *EnvironmentStore) Store(creds *Credentials) error {
	return ErrInvalid
}

// Retrieve reads credentials from FEISHU_APP_ID / FEISHU_APP_SECRET
func (s *EnvironmentStore) Retrieve() (*Credentials, error) {
	appID := os.Getenv("FEISHU_APP_ID")
	appSecret := os.Getenv("FEISHU_APP_SECRET")

	if appID == "" || appSecret == "" {
		return nil, ErrNotFound
	}

	return &Credentials{AppID: appID, AppSecret: appSecret}, nil
}

// Delete is not supported for environment variables
func (s *EnvironmentStore) Delete() error {
	return ErrNotFound
}
