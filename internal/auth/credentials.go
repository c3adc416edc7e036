package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
	"google.golang.org/api/gmail/v1"
)

var (
	// ErrNotConnected is returned when a user has no mailbox credentials
	ErrNotConnected = errors.New("email account not connected")
	// ErrInvalidState is returned for unknown, reused or expired OAuth state tokens
	ErrInvalidState = errors.New("invalid oauth state")
)

// StateTTL bounds how long a consent redirect may take
const StateTTL = 10 * time.Minute

type pendingState struct {
	userID  string
	expires time.Time
}

// CredentialStore holds per-user mailbox credentials. Credentials are created
// when a user connects and dropped on disconnect or account deletion.
type CredentialStore struct {
	config *oauth2.Config

	mu      sync.Mutex
	sources map[string]oauth2.TokenSource
	states  map[string]pendingState
	now     func() time.Time
}

// NewGmailOAuthConfig returns an OAuth client config for read-only Gmail access
func NewGmailOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{gmail.GmailReadonlyScope},
		Endpoint:     google.Endpoint,
	}
}

// OutlookScopes grant read access to the user's mail and a refresh token
var OutlookScopes = []string{"https://graph.microsoft.com/Mail.Read", "offline_access"}

// NewOutlookOAuthConfig returns an OAuth client config for reading Outlook
// mail through Microsoft Graph. An empty tenant selects "common".
func NewOutlookOAuthConfig(clientID, clientSecret, redirectURL, tenant string) *oauth2.Config {
	if tenant == "" {
		tenant = "common"
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       OutlookScopes,
		Endpoint:     microsoft.AzureADEndpoint(tenant),
	}
}

// NewCredentialStore creates an empty store for the given OAuth client
func NewCredentialStore(cfg *oauth2.Config) *CredentialStore {
	return &CredentialStore{
		config:  cfg,
		sources: make(map[string]oauth2.TokenSource),
		states:  make(map[string]pendingState),
		now:     time.Now,
	}
}

// AuthURL starts the consent flow for userID and returns the provider URL
func (s *CredentialStore) AuthURL(userID string) string {
	state := uuid.NewString()

	s.mu.Lock()
	now := s.now()
	for k, p := range s.states {
		if now.After(p.expires) {
			delete(s.states, k)
		}
	}
	s.states[state] = pendingState{userID: userID, expires: now.Add(StateTTL)}
	s.mu.Unlock()

	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Connect completes the consent flow. It exchanges code for a token and
// stores it for the user the state was issued to.
func (s *CredentialStore) Connect(ctx context.Context, state, code string) (string, error) {
	s.mu.Lock()
	pending, ok := s.states[state]
	delete(s.states, state)
	s.mu.Unlock()

	if !ok || s.now().After(pending.expires) {
		return "", ErrInvalidState
	}

	tok, err := s.config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("unable to retrieve token: %w", err)
	}

	s.Put(pending.userID, tok)
	return pending.userID, nil
}

// Put stores a token for userID, replacing any previous one
func (s *CredentialStore) Put(userID string, tok *oauth2.Token) {
	// Refreshes must outlive the request that connected the account.
	ts := oauth2.ReuseTokenSource(tok, s.config.TokenSource(context.Background(), tok))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[userID] = ts
}

// Connected reports whether userID has stored credentials
func (s *CredentialStore) Connected(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sources[userID]
	return ok
}

// Disconnect drops the credentials of userID
func (s *CredentialStore) Disconnect(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sources, userID)
}

// HTTPClient returns a client authorized as userID
func (s *CredentialStore) HTTPClient(ctx context.Context, userID string) (*http.Client, error) {
	s.mu.Lock()
	ts, ok := s.sources[userID]
	s.mu.Unlock()

	if !ok {
		return nil, ErrNotConnected
	}
	return oauth2.NewClient(ctx, ts), nil
}
