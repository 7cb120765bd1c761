package voice

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/lukasbauer/voicetransfer/internal/workspace"
)

const (
	// DefaultGateway is the public IPFS gateway used when none is configured.
	DefaultGateway = "ipfs.io"

	downloadedName = "voice.webm"
	transcodedName = "voice.wav"
)

// cidPattern keeps the identifier a single path segment. Whether it names
// real content is left to the gateway.
var cidPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,256}$`)

func validCID(cid string) bool {
	return cidPattern.MatchString(cid) && cid != "." && cid != ".."
}

// CIDResolver downloads a sample from an IPFS gateway and transcodes it.
type CIDResolver struct {
	gateway    string
	httpClient *http.Client
	transcoder Transcoder
	maxBytes   int64
}

// CIDConfig holds configuration for the CID resolver.
type CIDConfig struct {
	Gateway    string // host[:port] or full base URL
	HTTPClient *http.Client
	Transcoder Transcoder
	MaxBytes   int64
}

// NewCIDResolver creates a CIDResolver.
func NewCIDResolver(cfg CIDConfig) *CIDResolver {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	transcoder := cfg.Transcoder
	if transcoder == nil {
		transcoder = NewFFmpegTranscoder("", 0)
	}
	return &CIDResolver{
		gateway:    gatewayBase(cfg.Gateway),
		httpClient: httpClient,
		transcoder: transcoder,
		maxBytes:   cfg.MaxBytes,
	}
}

// gatewayBase turns "ipfs.io" into "http://ipfs.io" and strips a trailing slash.
func gatewayBase(gw string) string {
	if gw == "" {
		gw = DefaultGateway
	}
	if !strings.HasPrefix(gw, "http://") && !strings.HasPrefix(gw, "https://") {
		gw = "http://" + gw
	}
	return strings.TrimRight(gw, "/")
}

// URL returns the gateway retrieval URL for cid.
func (r *CIDResolver) URL(cid string) string {
	return fmt.Sprintf("%s/ipfs/%s", r.gateway, url.PathEscape(cid))
}

func (r *CIDResolver) Mode() Mode { return ModeCID }

func (r *CIDResolver) Resolve(ctx context.Context, ws *workspace.Workspace, src Source) (*Sample, error) {
	cid := strings.TrimSpace(src.CID)
	if cid == "" {
		return nil, &InputError{Message: "No cid provided"}
	}
	if !validCID(cid) {
		return nil, &InputError{Message: "Invalid cid"}
	}

	inputPath := ws.Path(downloadedName)
	n, err := r.download(ctx, r.URL(cid), inputPath)
	if err != nil {
		return nil, err
	}

	outputPath := ws.Path(transcodedName)
	if err := r.transcoder.Transcode(ctx, inputPath, outputPath); err != nil {
		return nil, err
	}

	return &Sample{Path: outputPath, OriginalFormat: "webm", TranscodedFormat: "wav", DownloadedBytes: n}, nil
}

func (r *CIDResolver) download(ctx context.Context, rawURL, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, &FetchError{URL: rawURL, Err: err}
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return 0, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	f, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("create download file: %w", err)
	}
	defer f.Close()

	body := io.Reader(resp.Body)
	if r.maxBytes > 0 {
		body = io.LimitReader(resp.Body, r.maxBytes+1)
	}
	n, err := io.Copy(f, body)
	if err != nil {
		return 0, &FetchError{URL: rawURL, Err: err}
	}
	if r.maxBytes > 0 && n > r.maxBytes {
		return 0, &FetchError{URL: rawURL, Err: fmt.Errorf("sample exceeds %d bytes", r.maxBytes)}
	}
	return n, f.Close()
}
