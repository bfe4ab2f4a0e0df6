package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadLauncherDefaults(t *testing.T) {
	os.Unsetenv("PORT")
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("RUNTIME")
	os.Unsetenv("BOT_PORT_MIN")
	os.Unsetenv("BOT_PORT_MAX")

	c := LoadLauncher()

	if c.Server.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", c.Server.Port)
	}
	if c.Server.LogLevel != "info" {
		t.Fatalf("expected default log level info, got %q", c.Server.LogLevel)
	}
	if c.Runtime.Kind != "docker" {
		t.Fatalf("expected docker runtime, got %q", c.Runtime.Kind)
	}
	if c.Runtime.PortMin != 4101 || c.Runtime.PortMax != 4199 {
		t.Fatalf("unexpected port range %d-%d", c.Runtime.PortMin, c.Runtime.PortMax)
	}
}

func TestLoadBotFromEnv(t *testing.T) {
	t.Setenv("MEETING_URL", " https://teams.example/l/x ")
	t.Setenv("NOTIFIER_URLS", "http://a/wh, ws://b/ws,,")
	t.Setenv("ADMIT_WAIT_SECONDS", "45")
	t.Setenv("PORT", "4107")

	c := LoadBot()

	if c.MeetingURL != "https://teams.example/l/x" {
		t.Fatalf("unexpected meeting url %q", c.MeetingURL)
	}
	if len(c.NotifierURLs) != 2 || c.NotifierURLs[1] != "ws://b/ws" {
		t.Fatalf("unexpected notifier urls %v", c.NotifierURLs)
	}
	if c.AdmitWait != 45*time.Second || c.LobbyWait != 10*time.Second {
		t.Fatalf("unexpected waits admit=%s lobby=%s", c.AdmitWait, c.LobbyWait)
	}
	if c.Port != "4107" {
		t.Fatalf("unexpected port %q", c.Port)
	}
	if c.CaptionPoll != 500*time.Millisecond || c.NotifierRetries != 3 || c.NotifierBaseDelay != 200*time.Millisecond {
		t.Fatalf("unexpected defaults %+v", c)
	}
}

func TestBotEnvSkipsEmpty(t *testing.T) {
	var c Launcher
	c.Bot.WebDriverURL = "http://wd:4444"
	env := c.BotEnv()
	if len(env) != 1 || env["WEBDRIVER_URL"] != "http://wd:4444" {
		t.Fatalf("unexpected env %v", env)
	}
}
