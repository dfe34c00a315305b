package discovery

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/hashicorp/mdns"
)

// Server wraps an mDNS responder advertising this server on the LAN so
// clients can find it without a configured hostname.
type Server struct {
	server *mdns.Server
}

// Start begins advertising the API on the local network via mDNS. The
// service is registered as "_lms._tcp" with TXT records for path and version.
func Start(port int, serverName string) (*Server, error) {
	if serverName == "" {
		h, err := os.Hostname()
		if err != nil {
			h = "lms-server"
		}
		serverName = h
	}

	service, err := mdns.NewMDNSService(
		serverName,
		"_lms._tcp",
		"",
		"",
		port,
		nil,
		[]string{"path=/", "version=0.1.0"},
	)
	if err != nil {
		return nil, fmt.Errorf("mdns service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("mdns server: %w", err)
	}

	slog.Info("mdns advertising", "name", serverName, "service", "_lms._tcp", "port", port)
	return &Server{server: server}, nil
}

// Shutdown stops the mDNS responder.
func (s *Server) Shutdown() {
	if s.server != nil {
		s.server.Shutdown()
		slog.Info("mdns stopped")
	}
}
