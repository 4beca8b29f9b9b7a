package google

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	speech "google.golang.org/api/speech/v1"

	"speechdesk/internal/audio"
	"speechdesk/internal/domain"
)

// Config controls the Cloud Speech-to-Text client.
type Config struct {
	APIKey   string
	Endpoint string
	Model    string
	// HTTPClient replaces the default authenticated transport.
	HTTPClient *http.Client
}

// Backend implements ports.Backend with the Speech-to-Text v1 recognize call.
type Backend struct {
	cfg    Config
	logger *log.Logger

	mu  sync.Mutex
	svc *speech.Service
}

func NewBackend(cfg Config, logger *log.Logger) *Backend {
	if logger == nil {
		logger = log.Default()
	}
	return &Backend{cfg: cfg, logger: logger}
}

func (b *Backend) Transcribe(ctx context.Context, clip domain.AudioClip, language domain.Language) (string, error) {
	code := language.OnlineCode()
	if code == "" {
		return "", fmt.Errorf("%w: no online code for language %q", domain.ErrUnexpectedBackend, language)
	}

	pcm, format, err := audio.ReadPCM16(clip.Path)
	if err != nil {
		if errors.Is(err, domain.ErrFormatMismatch) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", domain.ErrUnexpectedBackend, err)
	}
	if len(pcm) == 0 {
		return "", fmt.Errorf("%w: clip %s is empty", domain.ErrUnintelligibleAudio, clip.Path)
	}

	svc, err := b.service(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: create speech client: %v", domain.ErrUnexpectedBackend, err)
	}

	req := &speech.RecognizeRequest{
		Config: &speech.RecognitionConfig{
			Encoding:          "LINEAR16",
			SampleRateHertz:   int64(format.SampleRate),
			AudioChannelCount: int64(format.Channels),
			LanguageCode:      code,
			Model:             b.cfg.Model,
		},
		Audio: &speech.RecognitionAudio{Content: base64.StdEncoding.EncodeToString(pcm)},
	}

	b.logger.Debug("sending recognize request", "language", code, "bytes", len(pcm), "rate", format.SampleRate)
	resp, err := svc.Speech.Recognize(req).Context(ctx).Do()
	if err != nil {
		return "", classifyError(err)
	}

	text := joinResults(resp)
	if text == "" {
		return "", domain.ErrUnintelligibleAudio
	}
	return text, nil
}

// service builds the client on first use and reuses it afterwards. A failed
// build is retried on the next call.
func (b *Backend) service(ctx context.Context) (*speech.Service, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.svc != nil {
		return b.svc, nil
	}
	svc, err := speech.NewService(context.WithoutCancel(ctx), b.clientOptions()...)
	if err != nil {
		return nil, err
	}
	b.svc = svc
	return svc, nil
}

func (b *Backend) clientOptions() []option.ClientOption {
	var opts []option.ClientOption
	if b.cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(b.cfg.HTTPClient))
	} else if key := strings.TrimSpace(b.cfg.APIKey); key != "" {
		opts = append(opts, option.WithAPIKey(key))
	}
	if endpoint := strings.TrimSpace(b.cfg.Endpoint); endpoint != "" {
		if !strings.HasSuffix(endpoint, "/") {
			endpoint += "/"
		}
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	return opts
}

func joinResults(resp *speech.RecognizeResponse) string {
	if resp == nil {
		return ""
	}
	var parts []string
	for _, result := range resp.Results {
		if result == nil || len(result.Alternatives) == 0 || result.Alternatives[0] == nil {
			continue
		}
		if text := strings.TrimSpace(result.Alternatives[0].Transcript); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

func classifyError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %d %s", domain.ErrServiceUnavailable, apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("%w: %d %s", domain.ErrUnexpectedBackend, apiErr.Code, apiErr.Message)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrUnexpectedBackend, err)
}
