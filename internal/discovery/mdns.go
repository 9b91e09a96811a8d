// Package discovery advertises the sync server on the local network over
// mDNS so LAN clients can find it without configuration.
package discovery

import (
	"fmt"
	"os"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
)

const service = "_paper._tcp"

// Advertise registers the service under _paper._tcp. The returned stop func
// withdraws the record.
func Advertise(port int, log *zap.Logger) (stop func(), err error) {
	host, _ := os.Hostname()
	server, err := zeroconf.Register(
		fmt.Sprintf("Paper-%s", host),
		service,
		"local.",
		port,
		[]string{"txtv=0"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("discovery: register mDNS: %w", err)
	}
	log.Info("mDNS service registered", zap.String("service", service), zap.Int("port", port))
	return server.Shutdown, nil
}
