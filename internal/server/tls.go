// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"codeberg.org/oliverandrich/go-accounts/internal/config"
	"golang.org/x/crypto/acme/autocert"
)

// TLSMode represents the resolved TLS mode.
type TLSMode string

const (
	TLSModeOff    TLSMode = "off"
	TLSModeACME   TLSMode = "acme"
	TLSModeManual TLSMode = "manual"
)

// ErrNoCertificate is returned when TLS is required but neither certificate files nor ACME are usable.
var ErrNoCertificate = errors.New("TLS is required for this host: set cert-file and key-file, configure tls-email for ACME, or use tls-mode off")

// TLSResult contains the resolved TLS configuration.
type TLSResult struct {
	TLSConfig   *tls.Config
	HTTPHandler http.Handler // ACME challenges and redirect on :80
	Mode        TLSMode
}

// portCheck reports whether a port can be bound. Replaced in tests.
var portCheck = isPortAvailable

// SetupTLS configures TLS based on the configuration.
func SetupTLS(cfg *config.Config) (*TLSResult, error) {
	mode, err := resolveTLSMode(cfg)
	if err != nil {
		return nil, err
	}

	switch mode {
	case TLSModeACME:
		if err := validateACME(cfg); err != nil {
			return nil, err
		}
		slog.Info("TLS mode: acme", "host", cfg.Server.Host, "email", cfg.TLS.Email)
		return setupACME(cfg)
	case TLSModeManual:
		slog.Info("TLS mode: manual", "cert", cfg.TLS.CertFile, "key", cfg.TLS.KeyFile)
		return setupManual(cfg)
	default:
		slog.Info("TLS mode: off")
		return &TLSResult{Mode: TLSModeOff}, nil
	}
}

// resolveTLSMode picks the mode for cfg. Auto prefers certificate files over ACME.
func resolveTLSMode(cfg *config.Config) (TLSMode, error) {
	switch strings.ToLower(cfg.TLS.Mode) {
	case "off":
		return TLSModeOff, nil
	case "acme":
		return TLSModeACME, nil
	case "manual":
		return TLSModeManual, nil
	case "auto", "":
	default:
		return "", fmt.Errorf("unknown TLS mode: %s", cfg.TLS.Mode)
	}

	if config.IsLocalhost(cfg.Server.Host) {
		return TLSModeOff, nil
	}
	if cfg.TLS.CertFile != "" && cfg.TLS.KeyFile != "" {
		return TLSModeManual, nil
	}
	if canUseACME(cfg) {
		return TLSModeACME, nil
	}
	return "", ErrNoCertificate
}

func validateACME(cfg *config.Config) error {
	if cfg.Server.Port != 443 {
		slog.Warn("ACME mode uses port 443, configured port will be ignored",
			"configured_port", cfg.Server.Port,
		)
	}
	if cfg.TLS.Email == "" {
		return fmt.Errorf("ACME mode requires TLS_EMAIL to be set")
	}
	for _, port := range []int{80, 443} {
		if !portCheck(port) {
			return fmt.Errorf("ACME mode requires port %d (port in use)", port)
		}
	}
	return nil
}

// canUseACME reports whether Let's Encrypt can issue a certificate for the host.
func canUseACME(cfg *config.Config) bool {
	host := cfg.Server.Host
	if config.IsLocalhost(host) || net.ParseIP(host) != nil {
		return false
	}
	if cfg.TLS.Email == "" {
		slog.Debug("ACME disabled: no email configured")
		return false
	}
	return portCheck(80) && portCheck(443)
}

func isPortAvailable(port int) bool {
	lc := &net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), "tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

func setupACME(cfg *config.Config) (*TLSResult, error) {
	certDir := filepath.Join(cfg.TLS.CertDir, "acme")
	if err := os.MkdirAll(certDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create ACME cert directory: %w", err)
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		Email:      cfg.TLS.Email,
		Cache:      autocert.DirCache(certDir),
		HostPolicy: autocert.HostWhitelist(cfg.Server.Host),
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	return &TLSResult{
		Mode:        TLSModeACME,
		TLSConfig:   tlsConfig,
		HTTPHandler: manager.HTTPHandler(nil),
	}, nil
}

func setupManual(cfg *config.Config) (*TLSResult, error) {
	if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
		return nil, fmt.Errorf("manual TLS mode requires both cert-file and key-file")
	}

	cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}
	if len(cert.Certificate) > 0 {
		slog.Info("certificate loaded", "sha256", fingerprint(cert.Certificate[0]))
	}

	return &TLSResult{
		Mode: TLSModeManual,
		TLSConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		},
	}, nil
}

// fingerprint formats the SHA-256 of a DER certificate as colon separated hex.
func fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}
