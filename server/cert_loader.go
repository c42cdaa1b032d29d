package server

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
)

// CertLoader serves the TLS certificate and reloads it when the files change.
// A failed reload keeps the previous certificate.
type CertLoader struct {
	certFile string
	keyFile  string
	logger   *slog.Logger

	mu   sync.RWMutex
	cert *tls.Certificate
}

// NewCertLoader creates a new CertLoader and loads the certificate.
func NewCertLoader(certFile, keyFile string, logger *slog.Logger) (*CertLoader, error) {
	loader := &CertLoader{
		certFile: certFile,
		keyFile:  keyFile,
		logger:   logger,
	}
	if err := loader.Reload(); err != nil {
		return nil, err
	}
	return loader, nil
}

// GetCertificate is a callback for tls.Config.GetCertificate.
func (l *CertLoader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cert, nil
}

// Reload reads the key pair from disk.
func (l *CertLoader) Reload() error {
	cert, err := tls.LoadX509KeyPair(l.certFile, l.keyFile)
	if err != nil {
		return fmt.Errorf("failed to load key pair: %w", err)
	}

	l.mu.Lock()
	l.cert = &cert
	l.mu.Unlock()
	l.logger.Info("loaded tls certificate", "cert", l.certFile, "key", l.keyFile)
	return nil
}

// Watch reloads the certificate whenever either file changes.
func (l *CertLoader) Watch(w *Watcher) error {
	reload := func() {
		if err := l.Reload(); err != nil {
			l.logger.Error("failed to reload certificate", "error", err)
		}
	}
	if err := w.Watch(l.certFile, reload); err != nil {
		return err
	}
	return w.Watch(l.keyFile, reload)
}
