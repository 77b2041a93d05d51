// Package ipc carries activation requests between ququ processes over a
// per-user named pipe. When a second instance starts, it forwards its intent
// (bring the window to front, open the settings page) to the running instance
// and exits.
package ipc

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"os/user"
	"regexp"
	"strings"

	"github.com/kristol07/ququ/internal/userutil"
)

var pipeNamePattern = regexp.MustCompile(`(?i)^\\\\\.\\pipe\\ququ-[a-z0-9._-]{1,128}$`)

const defaultPipePrefix = `\\.\pipe\ququ-`

// ErrUnsupported is returned on platforms without named pipe support.
var ErrUnsupported = errors.New("activation pipe is currently supported only on Windows")

// Request actions understood by the running instance.
const (
	// ActionActivate brings the main window to the foreground.
	ActionActivate = "activate"
	// ActionOpenSettings activates the window and navigates to settings.
	ActionOpenSettings = "open-settings"
)

// Request is a single activation request from a secondary process.
type Request struct {
	Action string `json:"action"`
	// Args carries optional action parameters, e.g. the settings section to
	// open. May be empty.
	Args map[string]string `json:"args,omitempty"`
}

// Response reports whether the running instance handled the request.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// RequestHandler handles an activation request and returns a response.
type RequestHandler interface {
	Handle(req Request) Response
}

func sanitizeUsername(value string) string {
	return userutil.SanitizeUsername(value)
}

// DefaultPipeName returns the pipe path to use. If the QUQU_PIPE environment
// variable is set and passes pattern validation, its value is used; otherwise
// a per-user default is constructed from the current username.
func DefaultPipeName() string {
	if v, ok := trustedPipeNameFromEnv(); ok {
		return v
	}

	username := strings.TrimSpace(os.Getenv("USERNAME"))
	if username == "" {
		if current, err := user.Current(); err == nil {
			username = current.Username
		}
	}
	return defaultPipePrefix + sanitizeUsername(username)
}

func trustedPipeNameFromEnv() (string, bool) {
	value := strings.TrimSpace(os.Getenv("QUQU_PIPE"))
	if value == "" {
		return "", false
	}
	if !pipeNamePattern.MatchString(value) {
		slog.Warn("[ipc] QUQU_PIPE rejected: value does not match allowed pattern", "value", value)
		return "", false
	}
	return value, true
}

func encodeRequest(req Request) ([]byte, error) {
	return json.Marshal(req)
}

func decodeRequest(raw []byte) (Request, error) {
	var req Request
	err := json.Unmarshal(raw, &req)
	if err != nil {
		return Request{}, err
	}
	if req.Args == nil {
		req.Args = map[string]string{}
	}
	return req, nil
}

func encodeResponse(resp Response) ([]byte, error) {
	return json.Marshal(resp)
}

func decodeResponse(raw []byte) (Response, error) {
	var resp Response
	err := json.Unmarshal(raw, &resp)
	if err != nil {
		return Response{}, err
	}
	return resp, nil
}
