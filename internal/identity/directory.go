// Package identity registers and authenticates users.
package identity

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/vadiminshakov/valutatrade/internal/domain"
	"github.com/vadiminshakov/valutatrade/internal/storage/atomicfile"
)

const minPasswordLength = 4

// User is a registered account.
type User struct {
	ID           string    `json:"user_id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	RegisteredAt time.Time `json:"registration_date"`
}

// Directory stores users in a JSON file.
type Directory struct {
	mu     sync.RWMutex
	path   string
	users  map[string]User // by id
	logger *zap.Logger
	now    func() time.Time
}

// Open loads the directory at path; a missing file is an empty directory.
func Open(path string, logger *zap.Logger) (*Directory, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Directory{
		path:   path,
		users:  make(map[string]User),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}

	payload, err := atomicfile.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read users")
	}
	if len(payload) == 0 {
		return d, nil
	}

	var users []User
	if err := json.Unmarshal(payload, &users); err != nil {
		return nil, errors.Wrap(err, "decode users")
	}
	for _, u := range users {
		d.users[u.ID] = u
	}

	return d, nil
}

// Register creates a user. Empty usernames, short passwords and taken
// usernames are rejected with domain.ErrInvalidInput.
func (d *Directory) Register(username, password string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return User{}, errors.Wrap(domain.ErrInvalidInput, "username must not be empty")
	}
	if len(password) < minPasswordLength {
		return User{}, errors.Wrapf(domain.ErrInvalidInput, "password must be at least %d characters", minPasswordLength)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.byUsername(username); ok {
		return User{}, errors.Wrapf(domain.ErrInvalidInput, "username '%s' is already taken", username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, errors.Wrap(err, "hash password")
	}

	user := User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: string(hash),
		RegisteredAt: d.now(),
	}
	d.users[user.ID] = user

	if err := d.persist(); err != nil {
		delete(d.users, user.ID)
		return User{}, err
	}

	d.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("username", username))

	return user, nil
}

// Login checks credentials. Unknown users and wrong passwords are
// indistinguishable to the caller.
func (d *Directory) Login(username, password string) (User, error) {
	d.mu.RLock()
	user, ok := d.byUsername(strings.TrimSpace(username))
	d.mu.RUnlock()

	if !ok {
		return User{}, errors.Wrap(domain.ErrInvalidInput, "invalid username or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, errors.Wrap(domain.ErrInvalidInput, "invalid username or password")
	}

	return user, nil
}

// Exists reports whether userID is registered.
func (d *Directory) Exists(userID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.users[userID]
	return ok
}

// Get returns the user with userID.
func (d *Directory) Get(userID string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[userID]
	if !ok {
		return User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (d *Directory) byUsername(username string) (User, bool) {
	for _, u := range d.users {
		if strings.EqualFold(u.Username, username) {
			return u, true
		}
	}
	return User{}, false
}

func (d *Directory) persist() error {
	users := make([]User, 0, len(d.users))
	for _, u := range d.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].RegisteredAt.Before(users[j].RegisteredAt) })

	payload, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode users")
	}
	if err := atomicfile.WriteFile(d.path, payload, 0o600); err != nil {
		return errors.Wrap(err, "persist users")
	}
	return nil
}
