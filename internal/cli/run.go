package cli

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forayproject/bout/internal/boutlog"
	"github.com/forayproject/bout/internal/config"
	"github.com/forayproject/bout/internal/job"
	"github.com/forayproject/bout/internal/lang"
	"github.com/forayproject/bout/internal/orchestrator"
	"github.com/forayproject/bout/internal/progress"
	"github.com/forayproject/bout/internal/whisper"
)

// supportedVideoFormats lists the container extensions the extractor's
// ffmpeg invocation is expected to demux audio from.
var supportedVideoFormats = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".mov":  true,
	".webm": true,
	".avi":  true,
	".m4v":  true,
}

// deriveOutputPath converts a video file path to a markdown output path.
// Example: "session.mp4" -> "session.md"
func deriveOutputPath(inputPath string) string {
	ext := filepath.Ext(inputPath)
	return strings.TrimSuffix(inputPath, ext) + ".md"
}

// newJobID returns a short random hex identifier for a fresh job.
func newJobID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// RunCmd creates the "run" command: drive a video through the full
// pipeline from scratch, or resume it with "jobs resume".
func RunCmd(env *Env) *cobra.Command {
	var (
		output   string
		language string
		device   string
		diarize  bool
	)

	cmd := &cobra.Command{
		Use:   "run <video>",
		Short: "Transcribe a video file",
		Long: `Run the full pipeline on a video file: extract audio, split into
overlapping chunks, transcribe each chunk, merge the results, optionally
diarize speakers, and write a Markdown document.

The job is checkpointed at every stage boundary. An interrupted or
failed run can be continued with "bout jobs resume <id>".`,
		Example: `  bout run lecture.mp4
  bout run meeting.mkv --diarize -o notes.md
  bout run interview.mov -l fr --device cpu`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, env, args[0], output, language, device, diarize)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file path (default: <input>.md)")
	cmd.Flags().StringVarP(&language, "language", "l", "", "Audio language (ISO 639-1 code, e.g., en, fr, pt-BR)")
	cmd.Flags().StringVar(&device, "device", "", "Transcription device: auto, cuda, cpu")
	cmd.Flags().BoolVar(&diarize, "diarize", false, "Enable speaker diarization (requires HF_TOKEN)")

	return cmd
}

func runRun(cmd *cobra.Command, env *Env, videoPath, output, language, device string, enableDiarize bool) error {
	ctx := cmd.Context()

	if _, err := os.Stat(videoPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, videoPath)
		}
		return fmt.Errorf("cannot access input file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(videoPath))
	if !supportedVideoFormats[ext] {
		return fmt.Errorf("unsupported format %q: %w", ext, ErrUnsupportedFormat)
	}

	if _, err := lang.Parse(language); err != nil {
		return err
	}

	cfg, err := env.ConfigLoader.Load()
	if err != nil {
		fmt.Fprintf(env.Stderr, "Warning: failed to load config: %v\n", err)
	}
	if language != "" {
		cfg.Language = language
	}
	if device != "" {
		cfg.Device = device
	}

	logger := boutlog.New(env.Stderr, boutlog.ParseLevel(cfg.LogLevel))

	defaultOutput := deriveOutputPath(filepath.Base(videoPath))
	output = config.ResolveOutputPath(output, cfg.OutputDir, defaultOutput)
	warnNonMarkdownExtension(env.Stderr, output)

	ffmpegPath, err := env.FFmpegResolver.Resolve(ctx)
	if err != nil {
		return err
	}
	env.FFmpegResolver.CheckVersion(ctx, ffmpegPath)
	logger.Debug("resolved ffmpeg at %s", ffmpegPath)

	store, err := env.CheckpointFactory.NewStore(cfg.JobsDir)
	if err != nil {
		return err
	}

	id, err := newJobID()
	if err != nil {
		return err
	}
	logger.Debug("assigned job id %s", id)

	j := orchestrator.NewJob(id, videoPath, output)
	o := env.OrchestratorFactory.NewOrchestrator(cfg, store, ffmpegPath, enableDiarize)
	o.Logger = logger

	languageTag, err := lang.Parse(cfg.Language)
	if err == nil {
		o.TranscribeOpt.Language = languageTag
	}
	o.TranscribeOpt.Device = whisper.Device(cfg.Device)
	o.OnProgress = func(overall float64, stage progress.Stage, sp progress.StageProgress) {
		fmt.Fprintf(env.Stderr, "[%5.1f%%] %s: %s\n", overall*100, stage, sp.Description)
	}

	startMsg := fmt.Sprintf("Starting job %s (%s)", j.ID, filepath.Base(videoPath))
	if name := languageTag.DisplayName(); name != "" {
		startMsg += fmt.Sprintf(" [%s]", name)
	}
	fmt.Fprintln(env.Stderr, startMsg)

	result, err := o.Run(ctx, j, cfg.TempDir)
	if err != nil {
		return err
	}

	switch result.Status {
	case job.StatusCancelled:
		fmt.Fprintln(env.Stderr, "Interrupted; resume with: bout jobs resume "+result.ID)
		return nil
	case job.StatusCompleted:
		fmt.Fprintf(env.Stderr, "Done: %s\n", result.OutputPath)
	}

	return nil
}
