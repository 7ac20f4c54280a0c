package gateway

import (
	"context"
	"fmt"

	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"memoryd/util"
)

// ListenNgrok opens a public ngrok TCP endpoint.  Players connect to
// the returned tunnel's URL with any line-oriented TCP client.
func ListenNgrok(ctx context.Context, authToken string, logger *util.Logger) (ngrok.Tunnel, error) {
	if authToken == "" {
		return nil, fmt.Errorf("ngrok: no auth token (use --ngrok-auth or NGROK_AUTHTOKEN)")
	}
	tun, err := ngrok.Listen(ctx, ngrokConfig.TCPEndpoint(), ngrok.WithAuthtoken(authToken))
	if err != nil {
		return nil, fmt.Errorf("ngrok: %w", err)
	}
	if logger != nil {
		logger.Info("ngrok tunnel established: %s", tun.URL())
	}
	return tun, nil
}
