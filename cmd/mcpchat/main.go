// Command mcpchat is the interactive client answering queries
// with an LLM and the tools of an MCP provider.
package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/assistants"
	"github.com/effective-security/mcpchat/callbacks"
	"github.com/effective-security/mcpchat/cli"
	"github.com/effective-security/mcpchat/config"
	"github.com/effective-security/mcpchat/mcp"
	"github.com/effective-security/mcpchat/pkg/llmfactory"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/pkg/llmutils"
	"github.com/effective-security/mcpchat/tools"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/joho/godotenv"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpchat", "cmd/mcpchat")

// Usage is printed when the server is not specified
const Usage = "Usage: mcpchat <path_to_server_script>"

// errUsage is returned when the server is not specified
var errUsage = errors.New(Usage)

type app struct {
	Server    string `arg:"" optional:"" help:"Path to the tool provider: .py or .js script, or executable"`
	Config    string `short:"c" help:"Configuration file: YAML, JSON or TOML" type:"path"`
	Model     string `short:"m" help:"Preferred model"`
	Provider  string `short:"p" help:"Provider type: GOOGLEAI, OPENAI, AZURE, AZURE_AD, ANTHROPIC, BEDROCK"`
	ListTools bool   `help:"Print the tools of the provider and exit"`
	Format    string `help:"Format of the tools list: yaml or json" enum:"yaml,json" default:"yaml"`
	Verbose   bool   `short:"v" help:"Print the LLM calls and the tool results"`
	Debug     bool   `help:"Log debug messages to stderr"`
	EnvFile   string `name:"env-file" help:"Environment file with the API keys" default:".env"`
}

func main() {
	a := new(app)
	kong.Parse(a,
		kong.Name("mcpchat"),
		kong.Description("Chat with an LLM using the tools of an MCP server"),
		kong.UsageOnError(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logs never mix with the answers on stdout
	xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
	if a.Debug {
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	} else {
		xlog.SetGlobalLogLevel(xlog.ERROR)
	}

	if err := a.run(ctx, os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stdout, Usage)
		} else {
			fmt.Fprintf(os.Stderr, "mcpchat: %s\n", err.Error())
		}
		stop()
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context, in io.Reader, out io.Writer) error {
	if err := loadEnv(a.EnvFile); err != nil {
		return err
	}

	cfg, err := config.Load(a.Config)
	if err != nil {
		return err
	}

	server := cfg.Server
	if server == nil {
		if a.Server == "" {
			return errUsage
		}
		if server, err = mcp.ProviderConfigFromPath(a.Server); err != nil {
			return err
		}
	}

	llm, err := a.selectModel(llmfactory.New(&cfg.LLM), &cfg.Assistant)
	if err != nil {
		if errors.Is(err, llmfactory.ErrMissingCredential) {
			return errors.WithMessage(err, "API key is not set")
		}
		return err
	}
	logger.KV(xlog.INFO,
		"status", "model_selected",
		"provider", llm.GetProviderType(),
		"model", llm.GetName(),
	)

	session, err := mcp.Connect(ctx, server)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.KV(xlog.ERROR, "status", "close_failed", "err", err.Error())
		}
	}()

	specs, err := session.ListTools(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nConnected to server with tools: %v\n", tools.Names(specs))

	if a.ListTools {
		if a.Format == "json" {
			fmt.Fprintln(out, llmutils.ToJSONIndent(specs))
		} else {
			fmt.Fprint(out, llmutils.ToYAML(specs))
		}
		return nil
	}

	mode := callbacks.ModeDefault
	if a.Verbose {
		mode = callbacks.ModeVerbose
	}
	opts := append(cfg.Assistant.Options(),
		assistants.WithCallback(callbacks.NewFanout(
			callbacks.NewPrinter(out, mode),
			callbacks.NewPackageLogger(logger),
		)),
	)

	return cli.Chat(ctx, in, out, assistants.NewAssistant(llm, session, opts...))
}

// selectModel returns the model of the provider type when specified,
// otherwise the preferred or the assistant model.
func (a *app) selectModel(f llmfactory.Factory, cfg *config.Assistant) (llms.Model, error) {
	preferred := values.StringsCoalesce(a.Model, cfg.Model)
	switch {
	case a.Provider != "":
		return f.ModelByType(a.Provider, preferred)
	case preferred != "":
		return f.ModelByName(preferred)
	default:
		return f.AssistantModel(cfg.Name)
	}
}

// loadEnv sets the environment from the file, if it exists.
// The variables already set are not overridden.
func loadEnv(file string) error {
	if file == "" {
		return nil
	}
	if err := godotenv.Load(file); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return errors.WithMessagef(err, "unable to load %q", file)
	}
	return nil
}
