package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/duythong28/connect-career-fe-sub001/internal/proto"
	"github.com/duythong28/connect-career-fe-sub001/internal/util"
)

type Config struct {
	Identity  Identity  `json:"identity"`
	Profile   Profile   `json:"profile"`
	Channel   Channel   `json:"channel"`
	Assistant Assistant `json:"assistant"`
	Call      Call      `json:"call"`
	Viewer    Viewer    `json:"viewer"`
}

type Identity struct {
	KeyFile string `json:"key_file"`
}

type Profile struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// Channel selects and configures the message transport. Backend is "pubsub"
// for the libp2p mesh or "amqp" for a RabbitMQ broker.
type Channel struct {
	Backend     string `json:"backend"`
	TopicPrefix string `json:"topic_prefix"`

	// pubsub backend
	ListenPort int    `json:"listen_port"`
	MdnsTag    string `json:"mdns_tag"`

	// amqp backend
	AmqpURL      string `json:"amqp_url"`
	AmqpExchange string `json:"amqp_exchange"`
	AmqpQueue    string `json:"amqp_queue"`
	AmqpRetries  int    `json:"amqp_retries"`
}

type Assistant struct {
	BaseURL string `json:"base_url"`
}

type Call struct {
	Enabled     bool     `json:"enabled"`
	STUNServers []string `json:"stun_servers"`
}

type Viewer struct {
	HTTPAddr string `json:"http_addr"`
	Debug    bool   `json:"debug"`
}

func Default() Config {
	return Config{
		Identity: Identity{
			KeyFile: "data/identity.key",
		},
		Profile: Profile{
			Name: "anonymous",
		},
		Channel: Channel{
			Backend:      "pubsub",
			TopicPrefix:  proto.ChannelTopicPrefix,
			ListenPort:   0,
			MdnsTag:      proto.MdnsTag,
			AmqpExchange: "cc.messages",
			AmqpRetries:  5,
		},
		Assistant: Assistant{
			BaseURL: "http://localhost:8090/api/assistant",
		},
		Call: Call{
			Enabled:     true,
			STUNServers: []string{"stun:stun.l.google.com:19302"},
		},
		Viewer: Viewer{
			HTTPAddr: "127.0.0.1:8090",
			Debug:    false,
		},
	}
}

func (c *Config) Validate() error {
	// Identity
	if strings.TrimSpace(c.Identity.KeyFile) == "" {
		return errors.New("identity.key_file is required")
	}

	// Channel
	switch c.Channel.Backend {
	case "pubsub":
		if c.Channel.ListenPort < 0 || c.Channel.ListenPort > 65535 {
			return errors.New("channel.listen_port must be 0..65535")
		}
		if strings.TrimSpace(c.Channel.MdnsTag) == "" {
			return errors.New("channel.mdns_tag is required")
		}
	case "amqp":
		if strings.TrimSpace(c.Channel.AmqpURL) == "" {
			return errors.New("channel.amqp_url is required for the amqp backend")
		}
		if !strings.HasPrefix(c.Channel.AmqpURL, "amqp://") && !strings.HasPrefix(c.Channel.AmqpURL, "amqps://") {
			return errors.New("channel.amqp_url must start with amqp:// or amqps://")
		}
		if strings.TrimSpace(c.Channel.AmqpExchange) == "" {
			return errors.New("channel.amqp_exchange is required for the amqp backend")
		}
		if c.Channel.AmqpRetries < 0 {
			return errors.New("channel.amqp_retries must be >= 0")
		}
	default:
		return fmt.Errorf("channel.backend must be pubsub or amqp, got %q", c.Channel.Backend)
	}
	if strings.TrimSpace(c.Channel.TopicPrefix) == "" {
		return errors.New("channel.topic_prefix is required")
	}

	// Assistant
	if raw := strings.TrimSpace(c.Assistant.BaseURL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.New("assistant.base_url must be a valid http(s) url")
		}
	}

	// Call
	if c.Call.Enabled {
		for _, s := range c.Call.STUNServers {
			if !strings.HasPrefix(s, "stun:") && !strings.HasPrefix(s, "turn:") && !strings.HasPrefix(s, "turns:") {
				return fmt.Errorf("call.stun_servers entry %q must use a stun/turn scheme", s)
			}
		}
	}

	return nil
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	// Strip UTF-8 BOM if present (common when editing JSON on Windows).
	b = stripBOM(b)

	// Start from defaults so missing JSON fields remain initialized.
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadPartial reads a config file without validation. Useful for reading
// individual fields when full validation may fail.
func LoadPartial(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	b = stripBOM(b)

	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// stripBOM removes a UTF-8 byte order mark if present.
func stripBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return b[3:]
	}
	return b
}

func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	return util.WriteJSONFile(path, cfg)
}

// Ensure loads config if it exists; otherwise creates a default config file.
// Returns (cfg, createdNew, err).
func Ensure(path string) (Config, bool, error) {
	if _, err := os.Stat(path); err == nil {
		cfg, err := Load(path)
		return cfg, false, err
	} else if !os.IsNotExist(err) {
		return Config{}, false, err
	}

	cfg := Default()
	if err := Save(path, cfg); err != nil {
		return Config{}, false, fmt.Errorf("create default config: %w", err)
	}
	return cfg, true, nil
}
