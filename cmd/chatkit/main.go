// chatkit is a command-line front end to the chatkit client: one-shot
// chat, streaming, a demo tool loop, token counting, model listing and
// audio.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/thecxx/chatkit"
	"github.com/thecxx/chatkit/config"
	"github.com/thecxx/chatkit/constants"
)

var (
	// Global flags
	configFile string
	verbose    bool
	provider   string
	model      string
	baseURL    string

	// Chat flags
	systemPrompt string
	stream       bool
	enableTools  bool
	maxTokens    int
	budgetCheck  bool
	jsonMode     bool
	seed         int

	// Tokens flags
	reserve int

	// Audio flags
	voice    string
	output   string
	speed    float64
	language string
	format   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chatkit",
		Short: "Talk to OpenAI and Anthropic chat models",
		Long: `chatkit sends chat requests to OpenAI-compatible and Anthropic servers.

Configuration is read from the file given with --config, then overridden by
CHATKIT_PROVIDER, CHATKIT_MODEL, CHATKIT_BASE_URL and CHATKIT_API_KEY, then
by flags.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "", "Provider (openai, anthropic)")
	rootCmd.PersistentFlags().StringVarP(&model, "model", "m", "", "Model name")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "API root override")

	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(tokensCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(speakCmd())
	rootCmd.AddCommand(transcribeCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Send one prompt and print the answer",
		Long: `Send one prompt and print the answer. Without arguments the prompt is
read from standard input.

Examples:
  # Stream an answer
  chatkit chat --stream "Explain token buckets in one paragraph"

  # Let the model call the built-in clock tool
  chatkit chat --tools "What time is it in Tokyo?"`,
		RunE: runChat,
	}

	cmd.Flags().StringVarP(&systemPrompt, "system", "s", "", "System prompt")
	cmd.Flags().BoolVar(&stream, "stream", false, "Print the answer as it is generated")
	cmd.Flags().BoolVar(&enableTools, "tools", false, "Enable the built-in clock tool")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Completion token limit")
	cmd.Flags().BoolVar(&budgetCheck, "budget", false, "Reject prompts that do not fit the context window")
	cmd.Flags().BoolVar(&jsonMode, "json", false, "Ask for a JSON object answer")
	cmd.Flags().IntVar(&seed, "seed", 0, "Sampling seed (0 leaves sampling unseeded)")

	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := chatkit.NewFromConfig(cfg, chatkit.WithLogger(slog.Default()))
	if err != nil {
		return err
	}

	prompt, err := readPrompt(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	var opts []chatkit.ChatOption
	if systemPrompt != "" {
		opts = append(opts, chatkit.WithSystemPrompt(systemPrompt))
	}
	if maxTokens > 0 {
		opts = append(opts, chatkit.WithMaxTokens(maxTokens))
	}
	if budgetCheck {
		opts = append(opts, chatkit.WithBudgetCheck(cfg.Budget.ReserveCompletion))
	}
	if jsonMode {
		opts = append(opts, chatkit.WithResponseFormat(constants.ResponseFormatJSONObject))
	}
	if seed != 0 {
		opts = append(opts, chatkit.WithSeed(seed))
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	conversation := []chatkit.Message{chatkit.UserMessage(prompt)}

	if enableTools {
		registry, err := chatkit.NewToolRegistry(clockTool())
		if err != nil {
			return err
		}
		result, err := client.RunTools(ctx, conversation, registry, append(opts, chatkit.WithStreaming(stream))...)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, result.Final.Content)
		slog.Debug("tool loop finished", "rounds", result.Rounds, "input_tokens", result.Usage.InputTokens, "output_tokens", result.Usage.OutputTokens)
		return nil
	}

	if stream {
		opts = append(opts, chatkit.WithStreamWatcher(&printer{w: out}))
		resp, err := client.ChatCompletionStream(ctx, conversation, opts...)
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		slog.Debug("stream finished", "finish_reason", resp.FinishReason(), "output_tokens", resp.Usage().OutputTokens)
		return nil
	}

	resp, err := client.ChatCompletion(ctx, conversation, opts...)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, resp.Answer().Content)
	slog.Debug("request finished", "finish_reason", resp.FinishReason(), "duration", resp.Duration(), "usage", resp.Usage())
	return nil
}

func tokensCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens [text]",
		Short: "Count the prompt tokens of a message",
		Long: `Count the tokens a single user message costs with the configured model,
and show how it fits the model's context window.`,
		RunE: runTokens,
	}
	cmd.Flags().IntVar(&reserve, "reserve", 1024, "Tokens kept free for the completion")
	return cmd
}

func runTokens(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	text, err := readPrompt(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	accountant := chatkit.NewAccountant(nil)
	messages := []chatkit.Message{chatkit.UserMessage(text)}
	out := cmd.OutOrStdout()

	budget, err := accountant.Budget(cfg.Model, messages, reserve)
	if errors.Is(err, chatkit.ErrUnsupportedModel) {
		fmt.Fprintf(out, "%s: no tokenizer, estimated %d tokens\n", cfg.Model, chatkit.EstimateTokens(text))
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "model:     %s\n", budget.Model)
	fmt.Fprintf(out, "prompt:    %d\n", budget.Prompt)
	fmt.Fprintf(out, "reserved:  %d\n", budget.Reserved)
	fmt.Fprintf(out, "window:    %d\n", budget.Window)
	fmt.Fprintf(out, "remaining: %d\n", budget.Remaining())
	if !budget.Fits() {
		return &chatkit.BudgetError{Budget: budget}
	}
	return nil
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models [id]",
		Short: "List the models served by the provider",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := chatkit.NewFromConfig(cfg)
			if err != nil {
				return err
			}

			var models []chatkit.ModelInfo
			if len(args) == 1 {
				m, err := client.Model(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				models = append(models, m)
			} else if models, err = client.Models(cmd.Context()); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, m := range models {
				name := m.DisplayName
				if name == "" {
					name = m.OwnedBy
				}
				fmt.Fprintf(out, "%-40s %-24s %s\n", m.ID, name, m.CreatedAt.Format("2006-01-02"))
			}
			return nil
		},
	}
}

func speakCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "speak [text]",
		Short: "Synthesize speech from text",
		Long: `Synthesize speech from text with an OpenAI speech model. Without
arguments the text is read from standard input.

Examples:
  chatkit speak -m tts-1-hd --voice onyx -o hello.mp3 "Hello there"`,
		RunE: runSpeak,
	}
	cmd.Flags().StringVar(&voice, "voice", "alloy", "Voice")
	cmd.Flags().StringVarP(&output, "output", "o", "speech.mp3", "Output file, - for standard output")
	cmd.Flags().Float64Var(&speed, "speed", 0, "Playback speed between 0.25 and 4.0")
	cmd.Flags().StringVar(&format, "format", "", "Audio format (mp3, opus, aac, flac, wav, pcm)")
	return cmd
}

func runSpeak(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := chatkit.NewFromConfig(cfg, chatkit.WithLogger(slog.Default()))
	if err != nil {
		return err
	}
	text, err := readPrompt(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	audio, err := client.Speech(cmd.Context(), chatkit.SpeechRequest{
		Model:  cfg.Model,
		Input:  text,
		Voice:  voice,
		Format: format,
		Speed:  speed,
	})
	if err != nil {
		return err
	}
	if output == "-" {
		_, err = cmd.OutOrStdout().Write(audio)
		return err
	}
	if err := os.WriteFile(output, audio, 0o644); err != nil {
		return err
	}
	slog.Info("speech written", "file", output, "bytes", len(audio))
	return nil
}

func transcribeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcribe <file>",
		Short: "Transcribe an audio file",
		Args:  cobra.ExactArgs(1),
		Long: `Transcribe an audio file with an OpenAI transcription model.

Examples:
  chatkit transcribe -m whisper-1 --language pl lecture.mp3`,
		RunE: runTranscribe,
	}
	cmd.Flags().StringVar(&language, "language", "", "ISO-639-1 language of the audio")
	cmd.Flags().StringVarP(&systemPrompt, "prompt", "s", "", "Text guiding the transcription style")
	cmd.Flags().StringVar(&format, "format", "", "Response format (json, text, srt, verbose_json, vtt)")
	return cmd
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := chatkit.NewFromConfig(cfg, chatkit.WithLogger(slog.Default()))
	if err != nil {
		return err
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	result, err := client.Transcribe(cmd.Context(), chatkit.TranscriptionRequest{
		Model:    cfg.Model,
		Filename: args[0],
		Audio:    f,
		Language: language,
		Prompt:   systemPrompt,
		Format:   format,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(result.Text))
	slog.Debug("transcription finished", "language", result.Language, "duration", result.Duration)
	return nil
}

// loadConfig reads the config file, if any, and applies the global flags.
// The model requirement is checked by the client.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, err
		}
		if err := cfg.Parse(data); err != nil && !onlyMissingModel(cfg) {
			return nil, fmt.Errorf("%s: %w", configFile, err)
		}
	} else {
		cfg.ApplyEnv(os.LookupEnv)
	}

	if provider != "" {
		cfg.Provider = provider
	}
	if model != "" {
		cfg.Model = model
	}
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if cfg.APIKey == "" {
		cfg.APIKey = defaultAPIKey(cfg.Provider)
	}
	return cfg, cfg.Validate()
}

// onlyMissingModel reports whether the model is the only thing a flag
// may still supply.
func onlyMissingModel(cfg *config.Config) bool {
	if cfg.Model != "" {
		return false
	}
	filled := *cfg
	filled.Model = "placeholder"
	return filled.Validate() == nil
}

func defaultAPIKey(provider string) string {
	switch provider {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	default:
		return os.Getenv("OPENAI_API_KEY")
	}
}

func readPrompt(stdin io.Reader, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", err
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", errors.New("empty prompt")
	}
	return prompt, nil
}
