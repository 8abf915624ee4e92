package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"log/slog"

	"github.com/jessevdk/go-flags"

	"sharad-cli/internal/agent"
	"sharad-cli/internal/agent/colors"
	"sharad-cli/internal/agent/summarizer"
	"sharad-cli/internal/config"
	"sharad-cli/internal/dice"
	"sharad-cli/internal/event"
	"sharad-cli/internal/game"
	"sharad-cli/internal/llm"
	"sharad-cli/internal/logger"
	"sharad-cli/internal/schema"
	"sharad-cli/internal/telemetry"
	"sharad-cli/internal/tools"
)

//
// CLI 参数解析
//

// Options 命令行参数，由 go-flags 解析
type Options struct {
	Config       string `short:"c" long:"config" description:"config YAML path" default:"configs/config.yaml"`
	Assistant    string `short:"a" long:"assistant" description:"assistant id (overrides config)"`
	Thread       string `short:"t" long:"thread" description:"resume an existing thread instead of starting a new one"`
	Save         string `short:"s" long:"save" description:"save name for this game"`
	Debug        bool   `long:"debug" description:"enable debug logging"`
	NewAssistant bool   `long:"new-assistant" description:"create a fresh assistant, deleting the configured one"`
}

func parseArgs(args []string) (*Options, error) {
	opts := &Options{}
	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}
	return opts, nil
}

func setupLogging(debug bool) {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func main() {
	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			fmt.Println(err)
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	setupLogging(opts.Debug)

	if err := run(opts); err != nil {
		fmt.Printf("%s❌ %v%s\n", colors.RED, err, colors.RESET)
		os.Exit(1)
	}
}

// run 组装依赖并进入交互循环
func run(opts *Options) error {
	ctx := context.Background()

	// 1. 配置
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return err
	}
	if opts.Assistant != "" {
		cfg.Game.AssistantID = opts.Assistant
	}
	if opts.Save != "" {
		cfg.Game.SaveName = opts.Save
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// 2. 链路追踪
	shutdown, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		slog.Warn("Telemetry disabled", slog.String("err", err.Error()))
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(sctx)
	}()

	// 3. LLM client
	rc := cfg.LLM.Retry.ToRetry()
	onRetry := func(err error, attempt int) {
		fmt.Printf("\n%s⚠️  API call failed (attempt %d): %s%s\n",
			colors.BRIGHT_YELLOW, attempt, err.Error(), colors.RESET)
		fmt.Printf("%s   Retrying in %s...%s\n",
			colors.DIM, rc.CalculateDelay(attempt-1), colors.RESET)
	}
	client := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.APIBase,
		cfg.LLM.Model,
		llm.WithRetryConfig(rc),
		llm.WithRetryCallback(onRetry),
		llm.WithImages(cfg.LLM.ImageModel, cfg.Paths.ImageDir),
	)

	// 4. 工具与游戏状态
	bus := event.NewBus(0)
	registry, images := tools.NewGameRegistry(bus, dice.NewRandomSource(), client)
	state := game.New(cfg.Game.SaveName)

	journal, err := logger.NewTurnLogger(cfg.Paths.LogDir)
	if err != nil {
		return err
	}
	defer journal.Close()

	// 5. Assistant
	assistantID, err := bootstrapAssistant(ctx, client, cfg, opts.NewAssistant, registry)
	if err != nil {
		return err
	}

	// 6. Agent
	ag := agent.NewAgent(client, registry, state, bus,
		agent.WithPollInterval(cfg.Game.PollEvery()),
		agent.WithTimeout(cfg.Game.Timeout()),
		agent.WithActionTokenLimit(cfg.Game.ActionTokenLimit),
		agent.WithInstructions(cfg.Game.Instructions),
		agent.WithTurnLogger(journal),
		agent.WithToolObserver(printToolCall),
	)

	if opts.Thread != "" {
		ag.Resume(game.Conversation{AssistantID: assistantID, ThreadID: opts.Thread})
	} else if err := ag.StartConversation(ctx, assistantID); err != nil {
		return err
	}

	s := &session{
		client:   client,
		agent:    ag,
		bus:      bus,
		registry: registry,
		images:   images,
		recap:    summarizer.NewSummarizer(client, cfg.Game.RecapTokenLimit),
		start:    time.Now(),
	}

	printBanner()
	s.printSessionInfo()
	if opts.Thread != "" {
		s.printRecap()
	}

	s.loop()

	images.Wait()
	s.printImages()
	s.printStats()
	return nil
}

// bootstrapAssistant 返回可用的 assistant id：
// 配置中已有且未要求重建时直接使用，否则创建新的 assistant。
func bootstrapAssistant(ctx context.Context, client *llm.Client, cfg *config.Config, recreate bool, registry *tools.Registry) (string, error) {
	existing := cfg.Game.AssistantID
	if existing != "" && !recreate {
		return existing, nil
	}

	if existing != "" {
		if err := client.DeleteAssistant(ctx, existing); err != nil {
			slog.Warn("Delete assistant failed",
				slog.String("assistant", existing),
				slog.String("err", err.Error()),
			)
		}
	}

	id, err := client.CreateAssistant(ctx, cfg.Game.AssistantName, gameMasterInstructions, registry.List())
	if err != nil {
		return "", fmt.Errorf("create assistant: %w", err)
	}
	fmt.Printf("%s✅ Created assistant %s (set game.assistant_id to reuse it)%s\n",
		colors.GREEN, id, colors.RESET)
	return id, nil
}

func printToolCall(tc schema.ToolCall, success bool, output string) {
	mark := colors.Paint("✓", colors.BRIGHT_GREEN)
	if !success {
		mark = colors.Paint("✗", colors.ERROR)
	}
	fmt.Printf("%s %s %s\n", mark, colors.Paint("🔧 "+tc.Name, colors.TOOL), colors.Paint(summarizeOutput(output, 100), colors.DIM))
}
