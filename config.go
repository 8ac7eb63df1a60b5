// Copyright (c) 2025-2026 complex (complex@ft.hn)
// See LICENSE for licensing information

package zectransfer

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"gopkg.in/ini.v1"
)

// Default zcashd RPC ports. Regtest shares the testnet port.
const (
	MainnetRPCPort = "8232"
	TestnetRPCPort = "18232"

	defaultRPCHost = "localhost"
	configFileName = "zcash.conf"
	cookieFileName = ".cookie"
)

// Environment variables that override zcash.conf credentials.
const (
	EnvRPCUser     = "ZCASH_RPCUSER"
	EnvRPCPassword = "ZCASH_RPCPASSWORD"
	EnvRPCHost     = "ZCASH_RPCHOST"
)

// Config is how to reach a zcashd node's JSON-RPC server.
type Config struct {
	// Path is the zcash.conf the settings came from.
	Path string
	// Host is host:port of the RPC server.
	Host    string
	User    string
	Pass    string
	Testnet bool
	Regtest bool
}

// DefaultConfigPath returns zcashd's standard zcash.conf location for this
// platform, ~/.zcash/zcash.conf on Unix.
func DefaultConfigPath() string {
	// btcutil capitalizes the directory on macOS and Windows, which matches
	// zcashd's own layout.
	return filepath.Join(btcutil.AppDataDir("zcash", false), configFileName)
}

// LoadConfig reads zcash.conf at path, or DefaultConfigPath when path is
// empty. getenv supplies environment overrides and may be nil.
//
// Credentials come from the environment first, then zcash.conf, then the
// node's .cookie file beside the config.
func LoadConfig(path string, getenv func(string) string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	if getenv == nil {
		getenv = func(string) string { return "" }
	}

	opts, err := readOptions(path)
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", path, err)
	}

	cfg := &Config{
		Path:    path,
		User:    opts["rpcuser"],
		Pass:    opts["rpcpassword"],
		Testnet: isSet(opts["testnet"]),
		Regtest: isSet(opts["regtest"]),
	}

	host, err := rpcHost(opts, cfg.Testnet || cfg.Regtest)
	if err != nil {
		return nil, err
	}
	cfg.Host = host

	if v := getenv(EnvRPCHost); v != "" {
		cfg.Host = v
	}
	if v := getenv(EnvRPCUser); v != "" {
		cfg.User = v
	}
	if v := getenv(EnvRPCPassword); v != "" {
		cfg.Pass = v
	}

	if cfg.User == "" && cfg.Pass == "" {
		user, pass, err := readCookie(cookiePath(path, cfg))
		if err != nil {
			return nil, fmt.Errorf("no rpcuser/rpcpassword in %s and no cookie: %w", path, err)
		}
		cfg.User, cfg.Pass = user, pass
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("no rpcuser set in %s", path)
	}

	return cfg, nil
}

// readOptions flattens every section of an INI file into one map. zcash.conf
// normally has no sections, but [main] and [test] blocks are tolerated.
func readOptions(path string) (map[string]string, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	opts := make(map[string]string)
	for _, section := range f.Sections() {
		for _, key := range section.Keys() {
			opts[key.Name()] = key.String()
		}
	}
	return opts, nil
}

func isSet(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}

// rpcHost resolves host:port the way zcash-cli does: rpcport overrides the
// network default, a port inside rpcbind overrides rpcport, and rpcconnect
// overrides the host.
func rpcHost(opts map[string]string, testnet bool) (string, error) {
	host := defaultRPCHost
	port := MainnetRPCPort
	if testnet {
		port = TestnetRPCPort
	}

	if p := opts["rpcport"]; p != "" {
		if _, err := strconv.ParseUint(p, 10, 16); err != nil {
			return "", fmt.Errorf("invalid rpcport %q: %w", p, err)
		}
		port = p
	}

	if bind := opts["rpcbind"]; bind != "" {
		h, p, err := net.SplitHostPort(bind)
		if err != nil {
			// No port, e.g. "127.0.0.1".
			host = bind
		} else {
			if h != "" {
				host = h
			}
			if p != "" {
				port = p
			}
		}
	}

	if c := opts["rpcconnect"]; c != "" {
		host = c
	}

	return net.JoinHostPort(host, port), nil
}

// cookiePath is where zcashd writes its auth cookie: the data directory,
// with a network subdirectory for testnet and regtest.
func cookiePath(confPath string, cfg *Config) string {
	dir := filepath.Dir(confPath)
	switch {
	case cfg.Regtest:
		dir = filepath.Join(dir, "regtest")
	case cfg.Testnet:
		dir = filepath.Join(dir, "testnet3")
	}
	return filepath.Join(dir, cookieFileName)
}

func readCookie(path string) (user, pass string, err error) {
	// G304: the cookie path is derived from the user's own config location
	b, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return "", "", err //nolint:wrapcheck
	}
	user, pass, ok := strings.Cut(string(bytes.TrimSpace(b)), ":")
	if !ok || user == "" {
		return "", "", errors.New("malformed cookie file " + path)
	}
	return user, pass, nil
}
