// Command weather is the MCP tool provider with the NWS alerts and forecast tools.
// It serves the tools over stdin/stdout.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/effective-security/mcpchat/mcp"
	"github.com/effective-security/mcpchat/tools/weather"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpchat", "cmd/weather")

type app struct {
	BaseURL string        `help:"NWS API base URL" default:"${base_url}" env:"NWS_BASE_URL"`
	Timeout time.Duration `help:"Timeout of NWS requests" default:"${timeout}"`
	Debug   bool          `help:"Log debug messages to stderr"`
}

func main() {
	a := new(app)
	kong.Parse(a,
		kong.Name("weather"),
		kong.Description("MCP tool provider for the National Weather Service API"),
		kong.UsageOnError(),
		kong.Vars{
			"base_url": weather.DefaultBaseURL,
			"timeout":  weather.DefaultTimeout.String(),
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "weather: %s\n", err.Error())
		stop()
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context) error {
	// stdout is the MCP channel
	xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
	if a.Debug {
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	} else {
		xlog.SetGlobalLogLevel(xlog.ERROR)
	}

	client := weather.New().
		WithBaseURL(a.BaseURL).
		WithHTTPClient(&http.Client{Timeout: a.Timeout})

	s := mcp.NewServer("weather", mcp.Version)
	if err := weather.Register(s, client); err != nil {
		return err
	}

	logger.KV(xlog.INFO, "status", "starting", "base_url", client.BaseURL(), "tools", s.Tools())
	return s.Run(ctx)
}
