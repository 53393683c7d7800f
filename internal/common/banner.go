package common

import (
	"fmt"
	"io"

	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner followed by the endpoints a
// server instance talks to
func PrintBanner(w io.Writer, config *Config, version string) {
	banner.Print("EduSeek", version)

	fmt.Fprintf(w, "  API      http://%s:%d\n", config.Server.Host, config.Server.Port)
	fmt.Fprintf(w, "  LMS      %s\n", config.LMS.HomeURL())
	fmt.Fprintf(w, "  Backend  %s\n", config.Ingest.BackendURL)
	fmt.Fprintln(w)
}
