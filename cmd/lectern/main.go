package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"lectern/internal/adapter/mcpserver"
	"lectern/internal/domain"
	"lectern/internal/usecase"
)

func main() {
	// Handle help flag first
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if len(os.Args) < 2 {
		showUsage()
		return
	}

	switch os.Args[1] {
	case "ask":
		if err := runAsk(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	case "search":
		if err := runSearch(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	case "tools":
		if err := runTools(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	case "mcp":
		if err := runMCP(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'lectern --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`lectern - Course materials assistant

USAGE:
    lectern COMMAND [FLAGS]

COMMANDS:
    ask "question"     Answer a question about course materials using an LLM
    search "query"     Search course content directly (no LLM)
    tools              List the registered tool schemas
    mcp                Serve the tools to MCP clients over stdio

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file path (default: ./config.yaml)
    --db PATH          Course database path (overrides config)
    --course NAME      Limit search to one course (search only)
    --lesson N         Limit search to one lesson (search only)
    --json             Emit JSON instead of text

CONFIGURATION:
    Config file: ./config.yaml
    Environment: LECTERN_* variables override config

EXAMPLES:
    lectern ask "What is covered in lesson 5 of the MCP course?"
    lectern search "vector embeddings" --course "Advanced Retrieval"
    lectern search "chunking" --lesson 3 --json
    lectern mcp                  # stdio MCP server for editors and assistants`)
}

// cliFlags holds the flags shared by the subcommands. Args collects the
// positional arguments left over after flag parsing.
type cliFlags struct {
	DB     string
	Course string
	Lesson *int
	JSON   bool
	Args   []string
}

// parseFlags extracts the known flags from args (os.Args after the
// subcommand). --config is skipped here; configPath reads it directly.
func parseFlags(args []string) (cliFlags, error) {
	var flags cliFlags
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--config" && i+1 < len(args):
			i++
		case strings.HasPrefix(args[i], "--config="):
		case args[i] == "--db" && i+1 < len(args):
			flags.DB = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--db="):
			flags.DB = strings.TrimPrefix(args[i], "--db=")
		case args[i] == "--course" && i+1 < len(args):
			flags.Course = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--course="):
			flags.Course = strings.TrimPrefix(args[i], "--course=")
		case args[i] == "--lesson" && i+1 < len(args):
			n, err := strconv.Atoi(args[i+1])
			if err != nil {
				return flags, fmt.Errorf("--lesson: %q is not a number", args[i+1])
			}
			flags.Lesson = &n
			i++
		case strings.HasPrefix(args[i], "--lesson="):
			v := strings.TrimPrefix(args[i], "--lesson=")
			n, err := strconv.Atoi(v)
			if err != nil {
				return flags, fmt.Errorf("--lesson: %q is not a number", v)
			}
			flags.Lesson = &n
		case args[i] == "--json":
			flags.JSON = true
		case strings.HasPrefix(args[i], "-"):
			return flags, fmt.Errorf("unknown flag: %s", args[i])
		default:
			flags.Args = append(flags.Args, args[i])
		}
	}
	return flags, nil
}

func configPath() string {
	// Check --config flag in os.Args.
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("LECTERN_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

// runAsk answers one question through the full LLM + tool loop and prints
// the answer with its citation sources.
func runAsk() error {
	flags, err := parseFlags(os.Args[2:])
	if err != nil {
		return err
	}
	question := strings.Join(flags.Args, " ")
	if question == "" {
		return fmt.Errorf(`usage: lectern ask "question"`)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := newApp(ctx, flags, false)
	if err != nil {
		return err
	}
	defer app.close()

	llmProvider, pc, err := initLLM(app.cfg, app.log)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}

	assistant := usecase.NewAssistant(usecase.AssistantDeps{
		LLM:              llmProvider,
		Tools:            app.registry,
		Counter:          usecase.NewTokenCounter(pc.Type, pc.Model),
		Logger:           app.log,
		Model:            pc.Model,
		SystemPrompt:     app.cfg.Assistant.SystemPrompt,
		MaxTokens:        app.cfg.Assistant.MaxTokens,
		Temperature:      app.cfg.Assistant.Temperature,
		MaxToolRounds:    app.cfg.Assistant.MaxToolRounds,
		MaxContextTokens: app.cfg.Assistant.MaxContextTokens,
	})

	answer, err := assistant.Answer(ctx, question)
	if err != nil {
		return err
	}

	if flags.JSON {
		return printJSON(struct {
			Answer  string          `json:"answer"`
			Sources []domain.Source `json:"sources"`
			Usage   domain.Usage    `json:"usage"`
		}{answer.Text, answer.Sources, answer.Usage})
	}

	fmt.Println(answer.Text)
	printSources(answer.Sources)
	return nil
}

// runSearch invokes the content search tool directly, without an LLM.
func runSearch() error {
	flags, err := parseFlags(os.Args[2:])
	if err != nil {
		return err
	}
	query := strings.Join(flags.Args, " ")
	if query == "" {
		return fmt.Errorf(`usage: lectern search "query"`)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := newApp(ctx, flags, false)
	if err != nil {
		return err
	}
	defer app.close()

	params, err := json.Marshal(struct {
		Query        string `json:"query"`
		CourseName   string `json:"course_name,omitempty"`
		LessonNumber *int   `json:"lesson_number,omitempty"`
	}{query, flags.Course, flags.Lesson})
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}

	result := app.registry.Dispatch(ctx, "search_course_content", params)

	if flags.JSON {
		return printJSON(struct {
			Content string          `json:"content"`
			Sources []domain.Source `json:"sources"`
			IsError bool            `json:"is_error,omitempty"`
		}{result.Content, result.Sources, result.IsError})
	}

	if result.IsError {
		return fmt.Errorf("%s", result.Content)
	}

	fmt.Println(result.Content)
	printSources(result.Sources)
	return nil
}

// runTools prints every schema the tool registry exposes.
func runTools() error {
	flags, err := parseFlags(os.Args[2:])
	if err != nil {
		return err
	}

	ctx := context.Background()
	app, err := newApp(ctx, flags, false)
	if err != nil {
		return err
	}
	defer app.close()

	schemas := app.registry.Schemas()
	if flags.JSON {
		return printJSON(schemas)
	}

	for _, s := range schemas {
		fmt.Printf("%s\n    %s\n\n", s.Name, s.Description)
	}
	return nil
}

// runMCP serves the registered tools over stdio MCP. Stdout belongs to the
// protocol for the lifetime of the process, so logging is forced off it.
func runMCP() error {
	flags, err := parseFlags(os.Args[2:])
	if err != nil {
		return err
	}

	ctx := context.Background()
	app, err := newApp(ctx, flags, true)
	if err != nil {
		return err
	}
	defer app.close()

	srv := mcpserver.New(app.cfg.MCP.ServerName, app.registry, app.log)
	return srv.ServeStdio()
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// printSources lists citation sources under the answer, one per line.
func printSources(sources []domain.Source) {
	if len(sources) == 0 {
		return
	}
	fmt.Println("\nSources:")
	for _, s := range sources {
		fmt.Printf("  - %s\n", formatSource(s))
	}
}

// formatSource renders one citation as "Course Title - Lesson N (link)",
// dropping the parts the source does not carry.
func formatSource(s domain.Source) string {
	label := s.CourseTitle
	if s.LessonNumber != nil {
		label = fmt.Sprintf("%s - Lesson %d", label, *s.LessonNumber)
	}
	link := s.LessonLink
	if link == "" {
		link = s.CourseLink
	}
	if link != "" {
		return fmt.Sprintf("%s (%s)", label, link)
	}
	return label
}
