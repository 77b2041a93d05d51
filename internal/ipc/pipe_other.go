//go:build !windows

package ipc

// PipeServer is a no-op on non-Windows platforms; a second instance simply
// starts a second window there.
type PipeServer struct {
	pipeName string
}

// NewPipeServer constructs a no-op PipeServer.
func NewPipeServer(pipeName string, _ RequestHandler) *PipeServer {
	if pipeName == "" {
		pipeName = DefaultPipeName()
	}
	return &PipeServer{pipeName: pipeName}
}

// PipeName returns the configured pipe name.
func (s *PipeServer) PipeName() string { return s.pipeName }

// Start reports that named pipes are unavailable on this platform.
func (s *PipeServer) Start() error { return ErrUnsupported }

// Stop is a no-op.
func (s *PipeServer) Stop() error { return nil }

// Send reports that named pipes are unavailable on this platform.
func Send(string, Request) (Response, error) {
	return Response{}, ErrUnsupported
}

// IsConnectionError always reports false on non-Windows platforms.
func IsConnectionError(error) bool { return false }
