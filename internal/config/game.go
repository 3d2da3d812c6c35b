package config

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"
)

// Command channel names
const (
	ChannelStdin = "stdin"
	ChannelRcon  = "rcon"
)

// RedactedSecret replaces secrets in API responses. Patches carrying it back
// leave the stored secret unchanged.
const RedactedSecret = "********"

var heapPattern = regexp.MustCompile(`^\d+[KkMmGg]?$`)

// GameConfig describes the wrapped game server process.
type GameConfig struct {
	Path           string            `yaml:"path" json:"path"`
	Jar            string            `yaml:"jar" json:"jar"`
	Java           string            `yaml:"java" json:"java"`
	MinRAM         string            `yaml:"min_ram" json:"min_ram"`
	MaxRAM         string            `yaml:"max_ram" json:"max_ram"`
	ExtraArgs      []string          `yaml:"extra_args" json:"extra_args"`
	ServerIP       string            `yaml:"server_ip" json:"server_ip"`
	RconPort       int               `yaml:"rcon_port" json:"rcon_port"`
	RconPassword   string            `yaml:"rcon_password" json:"rcon_password,omitempty"`
	RconTimeout    string            `yaml:"rcon_timeout" json:"rcon_timeout"`
	QueryPort      int               `yaml:"query_port" json:"query_port"`
	QueryTimeout   string            `yaml:"query_timeout" json:"query_timeout"`
	Properties     map[string]string `yaml:"properties" json:"properties"`
	CommandChannel string            `yaml:"command_channel" json:"command_channel"`
	AcceptEULA     bool              `yaml:"accept_eula" json:"accept_eula"`
	PollInterval   string            `yaml:"poll_interval" json:"poll_interval"`
	StartupTimeout string            `yaml:"startup_timeout" json:"startup_timeout"`
	StopTimeout    string            `yaml:"stop_timeout" json:"stop_timeout"`
	ReadyPattern   string            `yaml:"ready_pattern" json:"ready_pattern"`
	LatestLog      string            `yaml:"latest_log" json:"latest_log"`
}

// DefaultGame returns the stock settings for a vanilla server in the working
// directory.
func DefaultGame() GameConfig {
	return GameConfig{
		Path:           ".",
		Jar:            "server.jar",
		Java:           "java",
		MinRAM:         "1024M",
		MaxRAM:         "1024M",
		ServerIP:       "127.0.0.1",
		RconPort:       25575,
		RconPassword:   "admin",
		RconTimeout:    "5s",
		QueryPort:      25565,
		QueryTimeout:   "3s",
		Properties:     map[string]string{},
		CommandChannel: ChannelStdin,
		AcceptEULA:     true,
		PollInterval:   "1s",
		StartupTimeout: "10m",
		StopTimeout:    "2m",
		LatestLog:      "logs/latest.log",
	}
}

// Validate checks the game section
func (g *GameConfig) Validate() error {
	if strings.TrimSpace(g.Jar) == "" {
		return fmt.Errorf("jar is required")
	}
	if strings.TrimSpace(g.Java) == "" {
		return fmt.Errorf("java is required")
	}
	if !heapPattern.MatchString(g.MinRAM) {
		return fmt.Errorf("min_ram %q is not a heap size", g.MinRAM)
	}
	if !heapPattern.MatchString(g.MaxRAM) {
		return fmt.Errorf("max_ram %q is not a heap size", g.MaxRAM)
	}
	if g.RconPort < 1 || g.RconPort > 65535 {
		return fmt.Errorf("rcon_port must be between 1 and 65535")
	}
	if g.QueryPort < 1 || g.QueryPort > 65535 {
		return fmt.Errorf("query_port must be between 1 and 65535")
	}
	if !validChannel(g.CommandChannel) {
		return fmt.Errorf("command_channel must be %q or %q", ChannelStdin, ChannelRcon)
	}
	for name, value := range map[string]string{
		"rcon_timeout":    g.RconTimeout,
		"query_timeout":   g.QueryTimeout,
		"poll_interval":   g.PollInterval,
		"startup_timeout": g.StartupTimeout,
		"stop_timeout":    g.StopTimeout,
	} {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return fmt.Errorf("%s %q is not a positive duration", name, value)
		}
	}
	if g.ReadyPattern != "" {
		if _, err := regexp.Compile(g.ReadyPattern); err != nil {
			return fmt.Errorf("ready_pattern: %w", err)
		}
	}
	for key := range g.Properties {
		if strings.TrimSpace(key) == "" || strings.ContainsAny(key, "=\n") {
			return fmt.Errorf("invalid properties key %q", key)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (g GameConfig) Clone() GameConfig {
	g.ExtraArgs = append([]string(nil), g.ExtraArgs...)
	g.Properties = cloneMap(g.Properties)
	return g
}

// Redacted returns a copy safe to hand to API clients.
func (g GameConfig) Redacted() GameConfig {
	out := g.Clone()
	if out.RconPassword != "" {
		out.RconPassword = RedactedSecret
	}
	return out
}

// Duration parses a duration field, falling back to def when unset or invalid.
func Duration(value string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GamePatch is a partial update of GameConfig. Nil fields are left unchanged.
type GamePatch struct {
	Path           *string            `json:"path"`
	Jar            *string            `json:"jar"`
	Java           *string            `json:"java"`
	MinRAM         *string            `json:"min_ram"`
	MaxRAM         *string            `json:"max_ram"`
	ExtraArgs      *[]string          `json:"extra_args"`
	ServerIP       *string            `json:"server_ip"`
	RconPort       *int               `json:"rcon_port"`
	RconPassword   *string            `json:"rcon_password"`
	RconTimeout    *string            `json:"rcon_timeout"`
	QueryPort      *int               `json:"query_port"`
	QueryTimeout   *string            `json:"query_timeout"`
	Properties     *map[string]string `json:"properties"`
	CommandChannel *string            `json:"command_channel"`
	AcceptEULA     *bool              `json:"accept_eula"`
	PollInterval   *string            `json:"poll_interval"`
	StartupTimeout *string            `json:"startup_timeout"`
	StopTimeout    *string            `json:"stop_timeout"`
	ReadyPattern   *string            `json:"ready_pattern"`
	LatestLog      *string            `json:"latest_log"`
}

// Apply returns g with the patch applied.
func (p GamePatch) Apply(g GameConfig) GameConfig {
	out := g.Clone()
	setString(&out.Path, p.Path)
	setString(&out.Jar, p.Jar)
	setString(&out.Java, p.Java)
	setString(&out.MinRAM, p.MinRAM)
	setString(&out.MaxRAM, p.MaxRAM)
	setString(&out.ServerIP, p.ServerIP)
	setString(&out.RconTimeout, p.RconTimeout)
	setString(&out.QueryTimeout, p.QueryTimeout)
	setString(&out.CommandChannel, p.CommandChannel)
	setString(&out.PollInterval, p.PollInterval)
	setString(&out.StartupTimeout, p.StartupTimeout)
	setString(&out.StopTimeout, p.StopTimeout)
	setString(&out.ReadyPattern, p.ReadyPattern)
	setString(&out.LatestLog, p.LatestLog)
	if p.ExtraArgs != nil {
		out.ExtraArgs = append([]string(nil), (*p.ExtraArgs)...)
	}
	if p.RconPassword != nil && *p.RconPassword != RedactedSecret {
		out.RconPassword = *p.RconPassword
	}
	if p.RconPort != nil {
		out.RconPort = *p.RconPort
	}
	if p.QueryPort != nil {
		out.QueryPort = *p.QueryPort
	}
	if p.Properties != nil {
		out.Properties = cloneMap(*p.Properties)
	}
	if p.AcceptEULA != nil {
		out.AcceptEULA = *p.AcceptEULA
	}
	return out
}

// Fields returns the JSON names of the fields the patch sets
func (p GamePatch) Fields() []string {
	var fields []string
	v := reflect.ValueOf(p)
	for i := 0; i < v.NumField(); i++ {
		if v.Field(i).IsNil() {
			continue
		}
		name, _, _ := strings.Cut(v.Type().Field(i).Tag.Get("json"), ",")
		fields = append(fields, name)
	}
	return fields
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func validChannel(name string) bool {
	return name == ChannelStdin || name == ChannelRcon
}
