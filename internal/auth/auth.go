// Package auth provides the user directory: registration, credential checks
// and persistence to users.dat.
package auth

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"unicode/utf16"
)

// UsersFile is the file name of the directory inside the data dir.
const UsersFile = "users.dat"

// Errors
var (
	ErrUserExists      = errors.New("user already exists")
	ErrInvalidUsername = errors.New("invalid username")
)

// HashPassword returns the stored hash of a password: the 32-bit polynomial
// string hash (h = 31*h + c over UTF-16 code units) in lower-case hex.
// This keeps users.dat files written by earlier releases readable.
// It is not a password-strength hash.
func HashPassword(password string) string {
	var h uint32
	for _, c := range utf16.Encode([]rune(password)) {
		h = 31*h + uint32(c)
	}
	return strconv.FormatUint(uint64(h), 16)
}

// Directory maps usernames to password hashes and persists every
// registration synchronously.
type Directory struct {
	path   string
	logger *slog.Logger

	mu    sync.RWMutex
	users map[string]string
}

// Open loads the directory from path, creating parent directories as needed.
// A missing file yields an empty directory. Malformed lines are skipped.
func Open(path string, logger *slog.Logger) (*Directory, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	d := &Directory{
		path:   path,
		logger: logger,
		users:  make(map[string]string),
	}
	if err := d.load(); err != nil {
		return nil, err
	}

	logger.Info("user directory loaded",
		"path", path,
		"users", len(d.users),
	)
	return d, nil
}

func (d *Directory) load() error {
	f, err := os.Open(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open users file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		name, hash, ok := strings.Cut(scanner.Text(), ":")
		if !ok || name == "" {
			d.logger.Warn("skipping malformed users line", "line", lineNo)
			continue
		}
		d.users[name] = hash
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read users file: %w", err)
	}
	return nil
}

// Register adds a user. The first registration of a name wins; later ones
// get ErrUserExists. If the file cannot be written the user is not added.
func (d *Directory) Register(username, password string) error {
	if username == "" || strings.ContainsAny(username, ":\r\n") {
		return ErrInvalidUsername
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.users[username]; exists {
		return ErrUserExists
	}

	d.users[username] = HashPassword(password)
	if err := d.persistLocked(); err != nil {
		delete(d.users, username)
		d.logger.Error("failed to persist users", "error", err)
		return fmt.Errorf("persist users: %w", err)
	}

	d.logger.Info("user registered", "username", username)
	return nil
}

// Authenticate reports whether username exists and password matches.
func (d *Directory) Authenticate(username, password string) bool {
	d.mu.RLock()
	hash, ok := d.users[username]
	d.mu.RUnlock()

	return ok && hash == HashPassword(password)
}

// Len returns the number of registered users.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users)
}

// persistLocked rewrites the file via a temp file and rename, sorted by name.
// Must be called with the write lock held.
func (d *Directory) persistLocked() error {
	tmp, err := os.CreateTemp(filepath.Dir(d.path), "users_*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	names := make([]string, 0, len(d.users))
	for name := range d.users {
		names = append(names, name)
	}
	slices.Sort(names)

	w := bufio.NewWriter(tmp)
	for _, name := range names {
		fmt.Fprintf(w, "%s:%s\n", name, d.users[name])
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), d.path)
}
