package cmd

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"

	"github.com/tanq16/octoftp/internal/downloader"
	"github.com/tanq16/octoftp/internal/ftpconn"
	"github.com/tanq16/octoftp/internal/utils"
)

// connOptions turns the transport settings of c into connection options.
func connOptions(c utils.Config) ([]ftpconn.Option, error) {
	opts := []ftpconn.Option{ftpconn.WithDialer(&net.Dialer{KeepAlive: c.KeepAlive})}
	if c.SocketBuffer > 0 {
		opts = append(opts, ftpconn.WithSocketBuffers(c.SocketBuffer))
	}
	if c.DisableEPSV {
		opts = append(opts, ftpconn.WithDisableEPSV())
	}
	if c.CAFile != "" {
		pem, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in CA file %s", c.CAFile)
		}
		opts = append(opts, ftpconn.WithTLSConfig(&tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}))
	}
	return opts, nil
}

func engineOptions(c utils.Config) ([]downloader.Option, error) {
	opts, err := connOptions(c)
	if err != nil {
		return nil, err
	}
	return []downloader.Option{downloader.WithConnOptions(opts...)}, nil
}

func newEngine() *downloader.Engine {
	opts := append([]downloader.Option{}, engineOpts...)
	opts = append(opts, downloader.WithMaxSpeed(cfg.MaxSpeed))
	return downloader.NewEngine(cfg.Server, opts...)
}
