package events

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const maxBodyLogSize = 1024

// DebugLogger logs sink requests and responses in verbose mode.
// A nil *DebugLogger is valid and logs nothing.
type DebugLogger struct {
	log *zap.Logger
}

func NewDebugLogger(l *zap.Logger) *DebugLogger {
	if l == nil {
		return nil
	}
	return &DebugLogger{log: l}
}

func (d *DebugLogger) LogRequest(req *http.Request, records int) {
	if d == nil {
		return
	}
	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.Int("records", records),
	}
	if req.GetBody != nil {
		if rc, err := req.GetBody(); err == nil {
			body, _ := io.ReadAll(rc)
			rc.Close()
			fields = append(fields, zap.String("body", truncateBody(redactKey(body))))
		}
	}
	d.log.Debug("sink request", fields...)
}

func (d *DebugLogger) LogResponse(resp *http.Response, body []byte, duration time.Duration) {
	if d == nil {
		return
	}
	d.log.Debug("sink response",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", duration.Round(time.Millisecond)),
		zap.String("body", truncateBody(body)),
	)
}

func (d *DebugLogger) LogError(attempt int, err error, duration time.Duration) {
	if d == nil {
		return
	}
	d.log.Debug("sink error",
		zap.Int("attempt", attempt),
		zap.Duration("duration", duration.Round(time.Millisecond)),
		zap.Error(err),
	)
}

func truncateBody(body []byte) string {
	if len(body) <= maxBodyLogSize {
		return string(body)
	}
	return string(body[:maxBodyLogSize]) + fmt.Sprintf("... (truncated, %d bytes total)", len(body))
}

// redactKey masks the api_key value in a JSON body without decoding it.
func redactKey(body []byte) []byte {
	const key = `"api_key":"`
	i := bytes.Index(body, []byte(key))
	if i < 0 {
		return body
	}
	start := i + len(key)
	end := bytes.IndexByte(body[start:], '"')
	if end < 0 {
		return body
	}
	out := make([]byte, 0, len(body))
	out = append(out, body[:start]...)
	out = append(out, "[REDACTED]"...)
	out = append(out, body[start+end:]...)
	return out
}
