package audio

import (
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// FilePlayer schedules playback by fetching the synthesized reply into a
// local directory, where the host audio player (or the demo UI) picks it
// up. The fetch runs detached so Process never blocks on it.
type FilePlayer struct {
	dir    string
	client *http.Client
}

func NewFilePlayer(dir string) *FilePlayer {
	return &FilePlayer{dir: dir, client: &http.Client{}}
}

func (p *FilePlayer) Play(url string) error {
	go p.fetch(url)
	return nil
}

func (p *FilePlayer) fetch(url string) {
	resp, err := p.client.Get(url)
	if err != nil {
		log.Warn().Err(err).Str("module", "audio.player").Str("url", url).Msg("reply fetch failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn().Int("status", resp.StatusCode).Str("module", "audio.player").Str("url", url).Msg("reply fetch rejected")
		return
	}

	dst := filepath.Join(p.dir, filepath.Base(url))
	f, err := os.Create(dst)
	if err != nil {
		log.Warn().Err(err).Str("module", "audio.player").Msg("cannot create reply file")
		return
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		log.Warn().Err(err).Str("module", "audio.player").Msg("reply write failed")
		return
	}
	log.Info().Str("module", "audio.player").Str("file", dst).Msg("synthesized reply ready")
}
