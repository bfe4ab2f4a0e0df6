package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Launcher configures the fleet launcher service.
type Launcher struct {
	Server struct {
		Port     string
		LogLevel string
	}
	Runtime struct {
		// Kind is "docker" or "local".
		Kind       string
		Image      string
		DockerHost string
		Network    string
		HostIP     string
		BotCmd     string
		PortMin    int
		PortMax    int
	}
	// Bot holds values forwarded to every instance.
	Bot struct {
		WebDriverURL   string
		OutputDir      string
		NotifierSecret string
		LogLevel       string
	}
}

// Bot configures one bot instance.
type Bot struct {
	Port         string
	BotID        string
	MeetingURL   string
	NotifierURLs []string
	BotName      string
	WebDriverURL string
	Headless     bool
	OutputDir    string
	LogLevel     string

	LobbyWait   time.Duration
	AdmitWait   time.Duration
	CaptionPoll time.Duration
	StablePolls int

	NotifierRetries   int
	NotifierBaseDelay time.Duration
	NotifierSecret    string
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func LoadLauncher() Launcher {
	v := newViper()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("runtime.kind", "docker")
	v.SetDefault("runtime.image", "captionbot:latest")
	v.SetDefault("runtime.bot_cmd", "./bin/bot")
	v.SetDefault("runtime.port_min", 4101)
	v.SetDefault("runtime.port_max", 4199)
	v.SetDefault("bot.webdriver_url", "http://localhost:4444")
	v.SetDefault("bot.output_dir", "./output")

	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.log_level", "LOG_LEVEL")
	v.BindEnv("runtime.kind", "RUNTIME")
	v.BindEnv("runtime.image", "BOT_IMAGE")
	v.BindEnv("runtime.docker_host", "DOCKER_HOST")
	v.BindEnv("runtime.network", "BOT_NETWORK")
	v.BindEnv("runtime.host_ip", "BOT_HOST_IP")
	v.BindEnv("runtime.bot_cmd", "BOT_CMD")
	v.BindEnv("runtime.port_min", "BOT_PORT_MIN")
	v.BindEnv("runtime.port_max", "BOT_PORT_MAX")
	v.BindEnv("bot.webdriver_url", "WEBDRIVER_URL")
	v.BindEnv("bot.output_dir", "OUTPUT_DIR")
	v.BindEnv("bot.notifier_secret", "NOTIFIER_SECRET")
	v.BindEnv("bot.log_level", "BOT_LOG_LEVEL")

	var c Launcher
	c.Server.Port = toString(v.Get("server.port"))
	c.Server.LogLevel = v.GetString("server.log_level")
	c.Runtime.Kind = strings.ToLower(v.GetString("runtime.kind"))
	c.Runtime.Image = v.GetString("runtime.image")
	c.Runtime.DockerHost = v.GetString("runtime.docker_host")
	c.Runtime.Network = v.GetString("runtime.network")
	c.Runtime.HostIP = v.GetString("runtime.host_ip")
	c.Runtime.BotCmd = v.GetString("runtime.bot_cmd")
	c.Runtime.PortMin = v.GetInt("runtime.port_min")
	c.Runtime.PortMax = v.GetInt("runtime.port_max")
	c.Bot.WebDriverURL = v.GetString("bot.webdriver_url")
	c.Bot.OutputDir = v.GetString("bot.output_dir")
	c.Bot.NotifierSecret = v.GetString("bot.notifier_secret")
	c.Bot.LogLevel = v.GetString("bot.log_level")

	log.Printf("config loaded: port=%s runtime=%s ports=%d-%d", c.Server.Port, c.Runtime.Kind, c.Runtime.PortMin, c.Runtime.PortMax)
	return c
}

// BotEnv returns the variables the launcher forwards to every instance.
func (c Launcher) BotEnv() map[string]string {
	env := map[string]string{}
	set := func(k, v string) {
		if v != "" {
			env[k] = v
		}
	}
	set("WEBDRIVER_URL", c.Bot.WebDriverURL)
	set("OUTPUT_DIR", c.Bot.OutputDir)
	set("NOTIFIER_SECRET", c.Bot.NotifierSecret)
	set("LOG_LEVEL", c.Bot.LogLevel)
	return env
}

func LoadBot() Bot {
	v := newViper()

	v.SetDefault("port", 3000)
	v.SetDefault("bot_name", "Caption Bot")
	v.SetDefault("webdriver_url", "http://localhost:4444")
	v.SetDefault("headless", true)
	v.SetDefault("output_dir", "./output")
	v.SetDefault("log_level", "info")
	v.SetDefault("lobby_wait_seconds", 10)
	v.SetDefault("admit_wait_seconds", 300)
	v.SetDefault("caption_poll_ms", 500)
	v.SetDefault("caption_stable_polls", 3)
	v.SetDefault("notifier_retries", 3)
	v.SetDefault("notifier_base_delay_ms", 200)

	for _, key := range []string{
		"port", "bot_id", "meeting_url", "notifier_urls", "bot_name", "webdriver_url",
		"headless", "output_dir", "log_level", "lobby_wait_seconds", "admit_wait_seconds",
		"caption_poll_ms", "caption_stable_polls", "notifier_retries",
		"notifier_base_delay_ms", "notifier_secret",
	} {
		v.BindEnv(key, strings.ToUpper(key))
	}

	var c Bot
	c.Port = toString(v.Get("port"))
	c.BotID = strings.TrimSpace(v.GetString("bot_id"))
	c.MeetingURL = strings.TrimSpace(v.GetString("meeting_url"))
	c.NotifierURLs = splitList(v.GetString("notifier_urls"))
	c.BotName = v.GetString("bot_name")
	c.WebDriverURL = v.GetString("webdriver_url")
	c.Headless = v.GetBool("headless")
	c.OutputDir = v.GetString("output_dir")
	c.LogLevel = v.GetString("log_level")
	c.LobbyWait = time.Duration(v.GetInt("lobby_wait_seconds")) * time.Second
	c.AdmitWait = time.Duration(v.GetInt("admit_wait_seconds")) * time.Second
	c.CaptionPoll = time.Duration(v.GetInt("caption_poll_ms")) * time.Millisecond
	c.StablePolls = v.GetInt("caption_stable_polls")
	c.NotifierRetries = v.GetInt("notifier_retries")
	c.NotifierBaseDelay = time.Duration(v.GetInt("notifier_base_delay_ms")) * time.Millisecond
	c.NotifierSecret = v.GetString("notifier_secret")
	return c
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func toString(v any) string { return fmt.Sprint(v) }
