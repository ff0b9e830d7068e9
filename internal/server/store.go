package server

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound means no synthesized reply exists under the requested id.
var ErrNotFound = errors.New("audio not found")

var audioIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// AudioStore keeps synthesized replies on disk under uuid names so the
// playback element can fetch them by id.
type AudioStore struct {
	dir string
}

func NewAudioStore(dir string) (*AudioStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &AudioStore{dir: dir}, nil
}

// Put writes one mp3 payload and returns its id.
func (s *AudioStore) Put(data []byte) (string, error) {
	id := uuid.NewString()
	if err := os.WriteFile(filepath.Join(s.dir, id+".mp3"), data, 0o644); err != nil {
		return "", err
	}
	return id, nil
}

// Path resolves an id (a trailing ".mp3" is accepted) to the stored file.
// The id is validated before touching the filesystem so a crafted request
// cannot escape the store directory.
func (s *AudioStore) Path(id string) (string, error) {
	id = strings.TrimSuffix(id, ".mp3")
	if !audioIDPattern.MatchString(id) {
		return "", ErrNotFound
	}
	p := filepath.Join(s.dir, id+".mp3")
	if _, err := os.Stat(p); err != nil {
		return "", ErrNotFound
	}
	return p, nil
}
