// conductor routes generation tasks to configured LLM agents. It offers
// three subcommands: run (one task under a chosen strategy), pipeline
// (a staged task chain), and health (agent status snapshot).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"conductor/pkg/config"
	"conductor/pkg/logx"
	"conductor/pkg/metrics"
	"conductor/pkg/orchestrator"
	"conductor/pkg/task"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = cmdRun(os.Args[2:])
	case "pipeline":
		err = cmdPipeline(os.Args[2:])
	case "health":
		err = cmdHealth(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: conductor <command> [flags]

Commands:
  run       Execute one task: conductor run -config agents.yaml -capability code_generation "prompt"
  pipeline  Execute a staged pipeline: conductor pipeline -config agents.yaml -stages pipeline.yaml
  health    Print the agent health snapshot as JSON

Run 'conductor <command> -h' for command flags.
`)
}

// buildEngine loads config and assembles the engine, optionally serving
// Prometheus metrics.
func buildEngine(configPath, metricsAddr string) (*orchestrator.Engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	recorder := metrics.Recorder(metrics.Nop())
	if metricsAddr != "" {
		recorder = metrics.NewPrometheusRecorder()
		go serveMetrics(metricsAddr)
	}
	return orchestrator.NewEngine(cfg, recorder)
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	logx.Infof("Serving metrics on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logx.Warnf("Metrics server stopped: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "agents.yaml", "Path to the agent configuration file")
	capability := fs.String("capability", string(task.CapCodeGeneration), "Required agent capability")
	taskType := fs.String("type", string(task.TypeCodeGeneration), "Task type label")
	strategyName := fs.String("strategy", string(orchestrator.StrategyBest), "Execution strategy: best, parallel, or fallback")
	system := fs.String("system", "", "System instruction passed to the backend")
	temperature := fs.Float64("temperature", -1, "Sampling temperature override")
	maxTokens := fs.Int("max-tokens", 0, "Output token budget override")
	timeout := fs.Duration("timeout", 0, "Per-call timeout override")
	metricsAddr := fs.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	asJSON := fs.Bool("json", false, "Print the full result as JSON instead of content only")
	if err := fs.Parse(args); err != nil {
		return err
	}

	prompt, err := readPrompt(fs.Args())
	if err != nil {
		return err
	}
	strategy, err := orchestrator.ParseStrategy(*strategyName)
	if err != nil {
		return err
	}

	engine, err := buildEngine(*configPath, *metricsAddr)
	if err != nil {
		return err
	}

	t := task.Task{
		Type:               task.Type(*taskType),
		Description:        prompt,
		RequiredCapability: task.Capability(*capability),
		Context:            map[string]any{},
	}
	if *system != "" {
		t.Context[task.CtxSystem] = *system
	}
	if *temperature >= 0 {
		t.Context[task.CtxTemperature] = float32(*temperature)
	}
	if *maxTokens > 0 {
		t.Context[task.CtxMaxTokens] = *maxTokens
	}
	if *timeout > 0 {
		t.Context[task.CtxTimeout] = *timeout
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := engine.Orchestrator.Execute(ctx, t, strategy)
	if *asJSON {
		return printJSON(resultView(res))
	}
	if err != nil {
		return err
	}
	fmt.Println(res.Content)
	return nil
}

// stageSpec is one entry in a pipeline stages file.
type stageSpec struct {
	Type        string         `yaml:"type"`
	Capability  string         `yaml:"capability"`
	Description string         `yaml:"description"`
	Context     map[string]any `yaml:"context"`
}

func cmdPipeline(args []string) error {
	fs := flag.NewFlagSet("pipeline", flag.ExitOnError)
	configPath := fs.String("config", "agents.yaml", "Path to the agent configuration file")
	stagesPath := fs.String("stages", "", "Path to the pipeline stages file (required)")
	metricsAddr := fs.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *stagesPath == "" {
		return fmt.Errorf("pipeline: -stages is required")
	}

	data, err := os.ReadFile(*stagesPath)
	if err != nil {
		return fmt.Errorf("read stages %s: %w", *stagesPath, err)
	}
	var specs []stageSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return fmt.Errorf("parse stages %s: %w", *stagesPath, err)
	}
	if len(specs) == 0 {
		return fmt.Errorf("pipeline: %s defines no stages", *stagesPath)
	}

	tasks := make([]task.Task, len(specs))
	for i, s := range specs {
		if s.Capability == "" || s.Description == "" {
			return fmt.Errorf("pipeline: stage %d needs capability and description", i+1)
		}
		if _, reserved := s.Context[task.CtxPipeline]; reserved {
			return fmt.Errorf("pipeline: stage %d sets reserved context key %q", i+1, task.CtxPipeline)
		}
		tasks[i] = task.Task{
			Type:               task.Type(s.Type),
			Description:        s.Description,
			RequiredCapability: task.Capability(s.Capability),
			Context:            s.Context,
		}
	}

	engine, err := buildEngine(*configPath, *metricsAddr)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	results, err := engine.Orchestrator.ExecutePipeline(ctx, tasks)
	views := make([]resultJSON, len(results))
	for i, r := range results {
		views[i] = resultView(r)
	}
	if printErr := printJSON(views); printErr != nil {
		return printErr
	}
	return err
}

func cmdHealth(args []string) error {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	configPath := fs.String("config", "agents.yaml", "Path to the agent configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	engine, err := buildEngine(*configPath, "")
	if err != nil {
		return err
	}
	return printJSON(engine.Registry.HealthReport())
}

// readPrompt takes the prompt from remaining args, or stdin when absent.
func readPrompt(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read prompt from stdin: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("no prompt given: pass it as an argument or on stdin")
	}
	return string(data), nil
}

// resultJSON is the CLI's stable output shape for one task result.
type resultJSON struct {
	ID            string   `json:"id"`
	Success       bool     `json:"success"`
	AgentID       string   `json:"agent,omitempty"`
	AgentIDs      []string `json:"agents,omitempty"`
	Content       string   `json:"content,omitempty"`
	TokensUsed    int      `json:"tokens_used"`
	ExecutionTime string   `json:"execution_time"`
	Error         string   `json:"error,omitempty"`
}

func resultView(r task.Result) resultJSON {
	v := resultJSON{
		ID:            r.ID,
		Success:       r.Success,
		AgentID:       r.AgentID,
		AgentIDs:      r.AgentIDs,
		Content:       r.Content,
		TokensUsed:    r.TokensUsed,
		ExecutionTime: r.ExecutionTime.String(),
	}
	if r.Err != nil {
		v.Error = r.Err.Error()
	}
	return v
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
