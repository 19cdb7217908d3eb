package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/google/uuid"
)

// Default configuration values (production)
const (
	DefaultDomain   = "warpchat.qzz.io"
	DefaultSTUN     = "stun:stun.l.google.com:19302"
	DefaultTURN     = "turn:warpchat.qzz.io" // Optional, empty by default
	DefaultTURNUser = "warpchat"
	DefaultTURNPass = "warpchat-secret"

	DefaultNegotiationTimeout = 30 * time.Second
	DefaultReapInterval       = 3 * time.Second
)

// Config holds application configuration
type Config struct {
	// Domain is the rendezvous server domain
	Domain string

	// WebSocketURL is constructed from domain
	WebSocketURL string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	// Identity announced to the rendezvous server
	PeerID   string
	Username string

	NegotiationTimeout time.Duration
	ReapInterval       time.Duration

	// LogFile receives logs while the TUI owns the terminal
	LogFile string
}

// Options for loading config with CLI flag overrides
type Options struct {
	Domain     string
	Insecure   bool
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
	Username   string
	PeerID     string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	domain := pick(opts.Domain, "DOMAIN", DefaultDomain)
	stunServer := pick(opts.STUNServer, "STUN_SERVER", DefaultSTUN)
	turnServer := pick(opts.TURNServer, "TURN_SERVER", DefaultTURN)
	turnUser := pick(opts.TURNUser, "TURN_USERNAME", DefaultTURNUser)
	turnPass := pick(opts.TURNPass, "TURN_PASSWORD", DefaultTURNPass)

	peerID := pick(opts.PeerID, "WARPCHAT_PEER_ID", "")
	if peerID == "" {
		peerID = uuid.NewString()
	}
	username := pick(opts.Username, "WARPCHAT_USERNAME", "")
	if username == "" {
		username = petname.Generate(2, "-")
	}
	username = strings.TrimSpace(username)

	negotiationTimeout, err := duration("WARPCHAT_NEGOTIATION_TIMEOUT", DefaultNegotiationTimeout)
	if err != nil {
		return nil, err
	}
	reapInterval, err := duration("WARPCHAT_REAP_INTERVAL", DefaultReapInterval)
	if err != nil {
		return nil, err
	}

	// Construct WebSocket URL
	scheme := "wss"
	if opts.Insecure {
		scheme = "ws"
	}
	wsURL := fmt.Sprintf("%s://%s/ws", scheme, domain)

	return &Config{
		Domain:             domain,
		WebSocketURL:       wsURL,
		STUNServer:         stunServer,
		TURNServer:         turnServer,
		TURNUser:           turnUser,
		TURNPass:           turnPass,
		ForceRelay:         opts.ForceRelay,
		PeerID:             peerID,
		Username:           username,
		NegotiationTimeout: negotiationTimeout,
		ReapInterval:       reapInterval,
		LogFile:            os.Getenv("WARPCHAT_LOG_FILE"),
	}, nil
}

// pick resolves one setting: flag, then environment, then default.
func pick(flag, env, def string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return def
}

func duration(env string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(env)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", env, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("parse %s: negative duration %s", env, v)
	}
	return d, nil
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(c.TURNServer, "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}
