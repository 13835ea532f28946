package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"inboxpilot/internal/config"
	"inboxpilot/internal/connector"
	"inboxpilot/internal/embedding"
	"inboxpilot/internal/knowledge"
	"inboxpilot/internal/llm"
	"inboxpilot/internal/logging"
	"inboxpilot/internal/moderation"
	"inboxpilot/internal/queue"
	"inboxpilot/internal/triage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	apiKey     string
	workspace  string
	configPath string
	timeout    time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pilot",
	Short: "inboxpilot - social inbox triage and reply drafting",
	Long: `inboxpilot triages inbound social media messages for a business inbox.

Each message is classified into one of four labels (FAQ, Engagement,
Complaint, Sensitive). FAQ and Engagement messages get an auto-drafted
reply with a confidence score; Complaint and Sensitive messages are
never auto-answered and go to the human review queue instead.

Replies are grounded in a curated knowledge file (.pilot/knowledge.yaml)
that hot-reloads on change.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		}
		if err := logging.Initialize(ws); err != nil {
			logger.Warn("Category logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// triageCmd runs the full pipeline for a single message
var triageCmd = &cobra.Command{
	Use:   "triage [message text]",
	Short: "Triage a single message and print the decision",
	Long: `Runs one message through the full pipeline: classify, gate,
draft (when allowed), and score.

Example:
  pilot triage --platform instagram --sender ayse_91 "Bu ürünün fiyatı nedir?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTriage,
}

// inboxCmd triages a demo batch concurrently
var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "Triage a demo inbox of sample messages in parallel",
	RunE:  runInbox,
}

// knowledgeCmd manages the facts file
var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Inspect and edit the curated knowledge base",
}

var knowledgeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the facts and policy currently loaded",
	RunE:  knowledgeList,
}

var knowledgeAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add or update a fact in the knowledge file",
	RunE:  knowledgeAdd,
}

// queueCmd inspects the human review queue
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Review queue commands",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List messages waiting for a human",
	RunE:  queueList,
}

// connectCmd links a platform
var connectCmd = &cobra.Command{
	Use:   "connect [platform]",
	Short: "Connect a social platform (instagram, facebook, linkedin)",
	Args:  cobra.ExactArgs(1),
	RunE:  runConnect,
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect [platform]",
	Short: "Disconnect a social platform",
	Args:  cobra.ExactArgs(1),
	RunE:  runDisconnect,
}

var (
	// triage flags
	triagePlatform string
	triageSender   string

	// knowledge add flags
	factID   string
	factText string
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Model API key (or set GEMINI_API_KEY / ANTHROPIC_API_KEY / OPENAI_API_KEY)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".pilot/config.yaml", "Config file path")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")

	triageCmd.Flags().StringVar(&triagePlatform, "platform", "instagram", "Source platform (instagram, facebook, linkedin)")
	triageCmd.Flags().StringVar(&triageSender, "sender", "anonymous", "Sender handle")

	knowledgeAddCmd.Flags().StringVar(&factID, "id", "", "Fact ID (required)")
	knowledgeAddCmd.Flags().StringVar(&factText, "text", "", "Fact text (required)")

	knowledgeCmd.AddCommand(knowledgeListCmd)
	knowledgeCmd.AddCommand(knowledgeAddCmd)
	queueCmd.AddCommand(queueListCmd)

	rootCmd.AddCommand(triageCmd)
	rootCmd.AddCommand(inboxCmd)
	rootCmd.AddCommand(knowledgeCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(disconnectCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// pipeline bundles everything a triage run needs.
type pipeline struct {
	cfg          *config.Config
	orchestrator *triage.Orchestrator
	reviewQueue  *queue.ReviewQueue
	store        *knowledge.Store
	watcher      *knowledge.Watcher
}

// buildPipeline wires the components from configuration. The embedding
// ranker and moderation gate are optional and skipped when not configured.
func buildPipeline(ctx context.Context) (*pipeline, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	client, err := newLLMClient(cfg)
	if err != nil {
		return nil, err
	}

	// In verbose mode every model call is appended to a JSONL trace file
	// for prompt debugging.
	if verbose {
		tracePath := filepath.Join(".pilot", "logs", "llm_traces.jsonl")
		if store, terr := llm.NewFileTraceStore(tracePath); terr != nil {
			logger.Warn("Call tracing unavailable", zap.Error(terr))
		} else {
			client = llm.NewTracingClient(client, store)
		}
	}

	store := knowledge.NewStore()
	if err := knowledge.LoadIntoStore(cfg.Knowledge.FactsPath, store); err != nil {
		return nil, fmt.Errorf("failed to load knowledge file: %w", err)
	}
	logger.Info("Knowledge base loaded",
		zap.Int("facts", store.Len()),
		zap.String("path", cfg.Knowledge.FactsPath))

	var watcher *knowledge.Watcher
	if cfg.Knowledge.WatchFile {
		watcher, err = knowledge.NewWatcher(cfg.Knowledge.FactsPath, store)
		if err != nil {
			logger.Warn("Knowledge hot-reload unavailable", zap.Error(err))
		} else if err := watcher.Start(ctx); err != nil {
			logger.Warn("Knowledge hot-reload unavailable", zap.Error(err))
			watcher = nil
		}
	}

	reviewQueue := queue.NewReviewQueue()

	classifier := triage.NewLLMClassifier(client)
	drafter := triage.NewLLMDrafter(client, triage.DrafterOptions{
		BusinessName:  cfg.Brand.BusinessName,
		ReplyLanguage: cfg.Brand.ReplyLanguage,
		FollowUp:      triage.FollowUpMode(cfg.Triage.FollowUpQuestions),
	})

	orch := triage.NewOrchestrator(classifier, drafter, triage.Options{
		CallTimeout:      cfg.GetCallTimeout(),
		MaxRetries:       cfg.Triage.MaxRetries,
		RetryBackoffBase: cfg.GetRetryBackoffBase(),
		OnDraftFailure:   triage.DraftFailureMode(cfg.Triage.OnDraftFailure),
		ModerateInbound:  cfg.Triage.ModerateInbound,
		MaxParallel:      cfg.Triage.MaxParallel,
	}).WithEscalationSink(reviewQueue)

	if cfg.Triage.ModerateInbound {
		orch.WithSafetyGate(moderation.NewLLMModerator(client))
	}

	if engine, err := embedding.NewEngine(embedding.Config{
		Provider:       cfg.Embedding.Provider,
		OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
		OllamaModel:    cfg.Embedding.OllamaModel,
		GenAIAPIKey:    cfg.Embedding.GenAIAPIKey,
		GenAIModel:     cfg.Embedding.GenAIModel,
	}); err != nil {
		logger.Debug("Fact ranking unavailable, replies will see all facts", zap.Error(err))
	} else {
		ranker := knowledge.NewRanker(engine)
		rcfg := knowledge.DefaultRankerConfig()
		if cfg.Knowledge.TopK > 0 {
			rcfg.TopK = cfg.Knowledge.TopK
		}
		ranker.SetConfig(rcfg)
		orch.WithFactRanker(ranker)
	}

	return &pipeline{
		cfg:          cfg,
		orchestrator: orch,
		reviewQueue:  reviewQueue,
		store:        store,
		watcher:      watcher,
	}, nil
}

func (p *pipeline) close() {
	if p.watcher != nil {
		p.watcher.Stop()
	}
}

// newLLMClient resolves the model backend: explicit flag, then YAML config,
// then .pilot/config.json, then environment.
func newLLMClient(cfg *config.Config) (llm.Client, error) {
	if apiKey != "" {
		return llm.NewClientFromConfig(&llm.ProviderConfig{
			Provider: llm.Provider(cfg.LLM.Provider),
			APIKey:   apiKey,
			Model:    cfg.LLM.Model,
		})
	}
	if cfg.LLM.APIKey != "" {
		return llm.NewClientFromConfig(&llm.ProviderConfig{
			Provider: llm.Provider(cfg.LLM.Provider),
			APIKey:   cfg.LLM.APIKey,
			Model:    cfg.LLM.Model,
		})
	}
	pc, err := llm.DetectProvider()
	if err != nil {
		return nil, err
	}
	return llm.NewClientFromConfig(pc)
}

func commandContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	return ctx, cancel
}

func runTriage(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.close()

	msg := triage.NewInboundMessage(strings.Join(args, " "), triage.Platform(triagePlatform), triageSender)

	decision, err := p.orchestrator.Triage(ctx, msg, p.store.Snapshot())
	if err != nil {
		return fmt.Errorf("triage failed: %w", err)
	}

	printDecision(msg, decision)
	return nil
}

func runInbox(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.close()

	msgs := []triage.InboundMessage{
		triage.NewInboundMessage("Bu ürünün fiyatı nedir?", triage.PlatformInstagram, "ayse_91"),
		triage.NewInboundMessage("Harika bir ürün, bayıldım! Kargo da çok hızlıydı.", triage.PlatformFacebook, "mehmet.k"),
		triage.NewInboundMessage("Siparişim iki haftadır gelmedi, paramı geri istiyorum!", triage.PlatformInstagram, "zeynep_a"),
		triage.NewInboundMessage("Bu krem egzamaya iyi gelir mi? Doktorum emin olamadı.", triage.PlatformLinkedIn, "can.oz"),
	}

	fmt.Printf("Triaging %d messages (max %d in parallel)...\n\n", len(msgs), p.cfg.Triage.MaxParallel)

	results := p.orchestrator.TriageAll(ctx, msgs, p.store.Snapshot())
	for _, r := range results {
		if r.Err != nil {
			fmt.Printf("[%s] %s: ERROR: %v\n\n", r.Message.Platform, r.Message.Sender, r.Err)
			continue
		}
		printDecision(r.Message, r.Decision)
	}

	if pending := p.reviewQueue.Pending(); len(pending) > 0 {
		fmt.Printf("%d message(s) waiting for human review:\n", len(pending))
		for _, item := range pending {
			fmt.Printf("  %s (%s): %s\n", item.Message.Sender, item.Decision.Reason, truncateText(item.Message.Text, 60))
		}
	}
	return nil
}

func printDecision(msg triage.InboundMessage, d *triage.TriageDecision) {
	fmt.Printf("[%s] %s: %q\n", msg.Platform, msg.Sender, truncateText(msg.Text, 70))
	fmt.Printf("  label:      %s\n", d.Label)
	if d.NeedsHuman {
		fmt.Printf("  action:     escalate to human (%s)\n", d.Reason)
		if d.FailureNote != "" {
			fmt.Printf("  note:       %s\n", d.FailureNote)
		}
	} else {
		fmt.Printf("  reply:      %s\n", d.SuggestedReply)
		fmt.Printf("  confidence: %.2f\n", d.Confidence)
	}
	fmt.Println()
}

func knowledgeList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store := knowledge.NewStore()
	if err := knowledge.LoadIntoStore(cfg.Knowledge.FactsPath, store); err != nil {
		return err
	}

	snap := store.Snapshot()
	if snap.Policy != "" {
		fmt.Printf("Policy: %s\n\n", snap.Policy)
	}
	if len(snap.Facts) == 0 {
		fmt.Printf("No facts in %s\n", cfg.Knowledge.FactsPath)
		return nil
	}
	for _, f := range snap.Facts {
		fmt.Printf("  %-20s %s\n", f.ID, f.Text)
	}
	return nil
}

func knowledgeAdd(cmd *cobra.Command, args []string) error {
	if factID == "" || factText == "" {
		return fmt.Errorf("both --id and --text are required")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store := knowledge.NewStore()
	if err := knowledge.LoadIntoStore(cfg.Knowledge.FactsPath, store); err != nil {
		return err
	}
	if err := store.Upsert(knowledge.Fact{ID: factID, Text: factText}); err != nil {
		return err
	}
	if err := knowledge.SaveFile(cfg.Knowledge.FactsPath, store); err != nil {
		return err
	}

	fmt.Printf("Saved fact %q (%d facts total)\n", factID, store.Len())
	return nil
}

func queueList(cmd *cobra.Command, args []string) error {
	// The queue is in-memory per process; a standalone invocation starts
	// empty. This is still useful inside `pilot inbox` output and tests.
	fmt.Println("Review queue is per-session. Run `pilot inbox` to see escalations.")
	return nil
}

func runConnect(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	platform, err := triage.ParsePlatform(args[0])
	if err != nil {
		return err
	}

	registry := connector.NewRegistry()
	fmt.Printf("Connecting to %s...\n", platform)
	if err := registry.Connect(ctx, platform); err != nil {
		return err
	}
	fmt.Printf("Connected to %s\n", platform)
	return nil
}

func runDisconnect(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	platform, err := triage.ParsePlatform(args[0])
	if err != nil {
		return err
	}

	registry := connector.NewRegistry()
	if err := registry.Disconnect(ctx, platform); err != nil {
		return err
	}
	fmt.Printf("Disconnected from %s\n", platform)
	return nil
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
