// ABOUTME: Media payloads and ffmpeg transcoding to 16 kHz mono PCM WAV
// ABOUTME: Temp files live in a per-call directory removed by the returned cleanup
package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/harper/interview-assistant/internal/models"
)

// Kind is the type of an inbound media attachment
type Kind string

const (
	KindVoice     Kind = "voice"
	KindVideoNote Kind = "video_note"
	KindAudio     Kind = "audio"
	KindVideo     Kind = "video"
)

// Valid reports whether k is a known kind
func (k Kind) Valid() bool {
	switch k {
	case KindVoice, KindVideoNote, KindAudio, KindVideo:
		return true
	}
	return false
}

// Media is raw attachment bytes
type Media struct {
	Kind     Kind
	Data     []byte
	MimeType string
}

// Extension guesses a file extension for the payload
func (m Media) Extension() string {
	switch {
	case strings.Contains(m.MimeType, "ogg"):
		return ".ogg"
	case strings.Contains(m.MimeType, "mpeg"):
		return ".mp3"
	case strings.Contains(m.MimeType, "mp4"):
		return ".mp4"
	case strings.Contains(m.MimeType, "wav"):
		return ".wav"
	}
	switch m.Kind {
	case KindVoice:
		return ".ogg"
	case KindVideoNote, KindVideo:
		return ".mp4"
	}
	return ".bin"
}

// Transcoder shells out to ffmpeg
type Transcoder struct {
	FFmpegPath string
}

// NewTranscoder locates ffmpeg on PATH
func NewTranscoder() (*Transcoder, error) {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found on PATH: %w", err)
	}
	return &Transcoder{FFmpegPath: path}, nil
}

// ToWAV writes m to a temp directory and converts it to 16 kHz mono WAV.
// The caller must call cleanup once the WAV file is no longer needed.
func (t *Transcoder) ToWAV(ctx context.Context, m Media) (wavPath string, cleanup func(), err error) {
	if len(m.Data) == 0 {
		return "", nil, fmt.Errorf("%w: empty media payload", models.ErrMediaProcessing)
	}

	dir, err := os.MkdirTemp("", "interview-media-*")
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", models.ErrMediaProcessing, err)
	}
	cleanup = func() { _ = os.RemoveAll(dir) }

	inPath := filepath.Join(dir, "input"+m.Extension())
	if err := os.WriteFile(inPath, m.Data, 0600); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("%w: %v", models.ErrMediaProcessing, err)
	}

	wavPath = filepath.Join(dir, "audio.wav")
	// #nosec G204 -- arguments are fixed apart from our own temp paths
	cmd := exec.CommandContext(ctx, t.FFmpegPath,
		"-y", "-i", inPath,
		"-vn", "-ac", "1", "-ar", "16000", "-acodec", "pcm_s16le",
		wavPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		cleanup()
		if ctx.Err() != nil {
			return "", nil, ctx.Err()
		}
		return "", nil, fmt.Errorf("%w: ffmpeg: %v: %s", models.ErrMediaProcessing, err, lastLine(stderr.String()))
	}
	return wavPath, cleanup, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
