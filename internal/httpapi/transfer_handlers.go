package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/lukasbauer/voicetransfer/internal/transfer"
	"github.com/lukasbauer/voicetransfer/internal/voice"
)

// maxMemoryBytes is how much of a multipart body is held in memory before
// file parts spill to disk.
const maxMemoryBytes = 32 << 20

// handleVoiceTransfer accepts a multipart form with text and either
// voice_file or cid, and answers with the synthesized MP3 as an attachment.
func (r *Router) handleVoiceTransfer(w http.ResponseWriter, req *http.Request) {
	if r.cfg.MaxRequestBytes > 0 {
		req.Body = http.MaxBytesReader(w, req.Body, r.cfg.MaxRequestBytes)
	}
	if err := req.ParseMultipartForm(maxMemoryBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Request too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid multipart form"})
		return
	}

	audio, closeUpload := uploadSource(req)
	defer closeUpload()

	tr := transfer.Request{
		Text:  req.FormValue("text"),
		Audio: audio,
	}

	started := false
	err := r.transfers.Run(req.Context(), tr, func(res *transfer.Result) error {
		f, err := os.Open(res.Path)
		if err != nil {
			return err
		}
		defer f.Close()

		w.Header().Set("Content-Type", res.ContentType)
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": res.Filename}))
		w.Header().Set("Content-Length", strconv.FormatInt(res.Size, 10))
		w.Header().Set("X-Request-ID", res.RequestID)
		w.WriteHeader(http.StatusOK)
		started = true

		_, err = io.Copy(w, f)
		return err
	})
	if err == nil {
		return
	}

	te := transfer.AsError(err)
	if started {
		// Headers are gone; the client sees a truncated body.
		r.logger.Printf("transfer[%s]: response aborted: %v", te.RequestID, te.Err)
		return
	}
	r.writeTransferError(w, req, te)
}

// uploadSource collects the audio fields of a parsed form. A voice_file part
// sent without a filename is parsed as a plain value by net/http, so it is
// turned back into an Upload with an empty name.
func uploadSource(req *http.Request) (voice.Source, func()) {
	src := voice.Source{CID: strings.TrimSpace(req.FormValue("cid"))}

	file, header, err := req.FormFile("voice_file")
	if err == nil {
		src.Upload = &voice.Upload{Filename: header.Filename, Body: file}
		return src, func() { _ = file.Close() }
	}

	if req.MultipartForm != nil {
		if vals, ok := req.MultipartForm.Value["voice_file"]; ok && len(vals) > 0 {
			src.Upload = &voice.Upload{Body: strings.NewReader(vals[0])}
		}
	}
	return src, func() {}
}

// statusForKind maps a failure kind onto the HTTP status of its response.
func statusForKind(k transfer.Kind) int {
	switch k {
	case transfer.KindMissingInput, transfer.KindUpstreamFetchFailed, transfer.KindTranscodeFailed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (r *Router) writeTransferError(w http.ResponseWriter, req *http.Request, te *transfer.Error) {
	status := statusForKind(te.Kind)
	if status >= http.StatusInternalServerError {
		r.reportFailure(req, te)
	}
	w.Header().Set("X-Request-ID", te.RequestID)
	writeJSON(w, status, map[string]string{"error": te.Message})
}

// reportFailure sends server-side failures to Sentry and Discord.
func (r *Router) reportFailure(req *http.Request, te *transfer.Error) {
	cause := error(te)
	if te.Err != nil {
		cause = te.Err
	}
	captureError(req, cause, fmt.Sprintf("voice transfer %s failed at %s", te.Kind, te.Stage))

	switch te.Kind {
	case transfer.KindSynthesisFailed, transfer.KindConfiguration:
		r.discord.NotifySynthesisFailed(req.Context(), te.RequestID, cause)
	default:
		r.discord.NotifyInternalError(req.Context(), te.RequestID, cause)
	}
	if sub := authSubject(req.Context()); sub != "" {
		r.logger.Printf("transfer[%s]: failed for subject %s", te.RequestID, sub)
	}
}
