package httpapi

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lukasbauer/voicetransfer/internal/transfer"
	"github.com/lukasbauer/voicetransfer/internal/voice"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const streamWriteWait = 10 * time.Second

// streamRequest is the single message a client sends after connecting.
// VoiceFile is base64 in JSON.
type streamRequest struct {
	CID       string `json:"cid"`
	VoiceFile []byte `json:"voice_file"`
	Filename  string `json:"filename"`
	Text      string `json:"text"`
}

// streamMessage is the final text frame of a stream.
type streamMessage struct {
	Type     string `json:"type"`
	Filename string `json:"filename,omitempty"`
	Bytes    int64  `json:"bytes,omitempty"`
	Error    string `json:"error,omitempty"`
}

// audioFrameWriter forwards each write as one binary frame.
type audioFrameWriter struct {
	conn *websocket.Conn
}

func (a *audioFrameWriter) Write(p []byte) (int, error) {
	_ = a.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err := a.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// handleVoiceTransferStream runs one transfer over a websocket, sending audio
// frames as the synthesis backend produces them.
func (r *Router) handleVoiceTransferStream(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Printf("stream: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	if r.cfg.MaxRequestBytes > 0 {
		// base64 inflates the sample by a third
		conn.SetReadLimit(r.cfg.MaxRequestBytes*4/3 + 4096)
	}

	var sreq streamRequest
	if err := conn.ReadJSON(&sreq); err != nil {
		r.logger.Printf("stream: invalid request: %v", err)
		r.closeStream(conn, streamMessage{Type: "error", Error: "Invalid request"})
		return
	}

	audio := voice.Source{CID: strings.TrimSpace(sreq.CID)}
	if sreq.VoiceFile != nil {
		audio.Upload = &voice.Upload{Filename: sreq.Filename, Body: bytes.NewReader(sreq.VoiceFile)}
	}

	var done streamMessage
	err = r.transfers.Run(req.Context(), transfer.Request{
		Text:   sreq.Text,
		Audio:  audio,
		Stream: &audioFrameWriter{conn: conn},
	}, func(res *transfer.Result) error {
		done = streamMessage{Type: "done", Filename: res.Filename, Bytes: res.Size}
		return nil
	})
	if err != nil {
		te := transfer.AsError(err)
		if statusForKind(te.Kind) >= http.StatusInternalServerError {
			r.reportFailure(req, te)
		}
		r.closeStream(conn, streamMessage{Type: "error", Error: te.Message})
		return
	}
	r.closeStream(conn, done)
}

func (r *Router) closeStream(conn *websocket.Conn, msg streamMessage) {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err := conn.WriteJSON(msg); err != nil {
		r.logger.Printf("stream: failed to send %s message: %v", msg.Type, err)
		return
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
