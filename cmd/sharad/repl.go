package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	prompt "github.com/c-bata/go-prompt"

	"sharad-cli/internal/agent"
	"sharad-cli/internal/agent/colors"
	"sharad-cli/internal/agent/summarizer"
	"sharad-cli/internal/event"
	"sharad-cli/internal/llm"
	"sharad-cli/internal/tools"
)

// session 一次交互会话的全部依赖。执行器串行调用，回合之间不会重叠。
type session struct {
	client   *llm.Client
	agent    *agent.Agent
	bus      *event.Bus
	registry *tools.Registry
	images   *tools.ImageTool
	recap    *summarizer.Summarizer

	start   time.Time
	turns   int
	failed  int
	gallery []event.ImageReady
	quit    bool
}

var commands = []prompt.Suggest{
	{Text: "/help", Description: "Show help message"},
	{Text: "/sheet", Description: "Show a character sheet (default: main character)"},
	{Text: "/roster", Description: "List known characters"},
	{Text: "/recap", Description: "Summarize the story so far"},
	{Text: "/images", Description: "List generated portraits"},
	{Text: "/tools", Description: "Show the tool definitions sent to the assistant"},
	{Text: "/stats", Description: "Show session statistics"},
	{Text: "/quit", Description: "Exit program"},
}

func (s *session) loop() {
	p := prompt.New(
		s.execute,
		s.complete,
		prompt.OptionPrefix("▶ "),
		prompt.OptionTitle("sharad"),
		prompt.OptionPrefixTextColor(prompt.Green),
		prompt.OptionSetExitCheckerOnInput(func(string, bool) bool { return s.quit }),
	)
	p.Run()
}

func (s *session) complete(d prompt.Document) []prompt.Suggest {
	text := strings.TrimSpace(d.TextBeforeCursor())
	if strings.HasPrefix(text, "/sheet ") {
		var names []prompt.Suggest
		for _, c := range s.agent.Roster() {
			names = append(names, prompt.Suggest{Text: c.Name, Description: string(c.Race)})
		}
		return prompt.FilterHasPrefix(names, d.GetWordBeforeCursor(), true)
	}
	if len(text) == 0 || strings.HasPrefix(text, "/") {
		return prompt.FilterHasPrefix(commands, text, true)
	}
	return []prompt.Suggest{}
}

func (s *session) execute(in string) {
	input := strings.TrimSpace(in)
	if input == "" {
		s.printImages()
		return
	}

	if strings.HasPrefix(input, "/") {
		s.command(input)
		return
	}

	switch strings.ToLower(input) {
	case "exit", "quit", "q":
		s.quit = true
		return
	}

	s.turn(input)
	s.printImages()
}

func (s *session) command(input string) {
	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "/quit", "/exit", "/q":
		fmt.Printf("\n%s👋 The shadows will wait for you, chummer.%s\n\n", colors.BRIGHT_YELLOW, colors.RESET)
		s.quit = true
	case "/help":
		printHelp()
	case "/sheet":
		s.printSheet(arg)
	case "/roster":
		s.printRoster()
	case "/recap":
		s.printRecap()
	case "/images":
		s.printGallery()
	case "/tools":
		s.printTools()
	case "/stats":
		s.printStats()
	default:
		fmt.Printf("%s❌ Unknown command: %s%s\n", colors.RED, input, colors.RESET)
		fmt.Printf("%sType /help to see available commands%s\n\n", colors.DIM, colors.RESET)
	}
}

// turn 发送一个玩家行动；Ctrl-C 取消当前回合
func (s *session) turn(action string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("%s⏳ The game master considers your move...%s\n", colors.DIM, colors.RESET)
	started := time.Now()

	msg, err := s.agent.SendTurn(ctx, action)
	if err != nil {
		s.failed++
		printTurnError(err)
		return
	}
	s.turns++

	printNarration(msg.Narration)
	if msg.CharacterSheet != nil {
		fmt.Printf("%s📋 Character sheet updated: %s%s\n", colors.DIM, msg.CharacterSheet.Name, colors.RESET)
	}
	fmt.Printf("%s(%s)%s\n\n", colors.DIM, time.Since(started).Round(100*time.Millisecond), colors.RESET)
}

func printTurnError(err error) {
	var runErr *agent.RunFailedError
	var parseErr *agent.GameMessageParseError

	switch {
	case errors.Is(err, context.Canceled):
		fmt.Printf("\n%s⚠️  Turn cancelled%s\n\n", colors.WARN, colors.RESET)
	case errors.Is(err, agent.ErrTimeout):
		fmt.Printf("\n%s⚠️  The game master took too long; the run was cancelled. Try again.%s\n\n", colors.WARN, colors.RESET)
	case errors.As(err, &runErr):
		fmt.Printf("\n%s❌ Run %s%s\n", colors.ERROR, runErr.Status, colors.RESET)
		if runErr.LastError != "" {
			fmt.Printf("%s   %s%s\n", colors.DIM, runErr.LastError, colors.RESET)
		}
		fmt.Println()
	case errors.As(err, &parseErr):
		// 消息无法解析时仍然把原文给玩家看
		fmt.Printf("\n%s⚠️  Could not parse the game master's reply: %v%s\n", colors.WARN, parseErr.Err, colors.RESET)
		printNarration(parseErr.Raw)
	default:
		fmt.Printf("\n%s❌ %v%s\n\n", colors.ERROR, err, colors.RESET)
	}
}

func (s *session) printRecap() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	history, err := s.client.History(ctx, s.agent.State().ThreadID)
	if err != nil {
		fmt.Printf("%s❌ Could not load history: %v%s\n", colors.ERROR, err, colors.RESET)
		return
	}

	text, err := s.recap.Recap(ctx, history)
	switch {
	case errors.Is(err, summarizer.ErrEmptyHistory):
		fmt.Printf("%sNothing has happened yet.%s\n\n", colors.DIM, colors.RESET)
		return
	case err != nil:
		fmt.Printf("%s❌ %v%s\n", colors.ERROR, err, colors.RESET)
		return
	}

	fmt.Printf("\n%s%sThe story so far%s\n", colors.BOLD, colors.NARRATOR, colors.RESET)
	printNarration(text)
}

func (s *session) printTools() {
	defs := make([]map[string]any, 0)
	for _, t := range s.registry.List() {
		defs = append(defs, tools.ToOpenAISchema(t))
	}
	b, err := json.MarshalIndent(defs, "", "  ")
	if err != nil {
		fmt.Printf("%s❌ %v%s\n", colors.ERROR, err, colors.RESET)
		return
	}
	fmt.Printf("%s%s%s\n\n", colors.DIM, b, colors.RESET)
}

// printImages 取出后台已完成的肖像任务并提示玩家
func (s *session) printImages() {
	for _, img := range s.bus.DrainImages() {
		if img.Err != nil {
			fmt.Printf("%s⚠️  Portrait failed (%s): %v%s\n", colors.WARN, img.JobID, img.Err, colors.RESET)
			continue
		}
		s.gallery = append(s.gallery, img)
		who := img.Character
		if who == "" {
			who = "portrait"
		}
		fmt.Printf("%s🖼  %s ready: %s%s\n", colors.DICE, who, img.Path, colors.RESET)
	}
}

func (s *session) printGallery() {
	s.printImages()
	if len(s.gallery) == 0 {
		fmt.Printf("%sNo portraits yet.%s\n\n", colors.DIM, colors.RESET)
		return
	}
	for i, img := range s.gallery {
		fmt.Printf("  %d. %-20s %s\n", i+1, img.Character, img.Path)
	}
	fmt.Println()
}
