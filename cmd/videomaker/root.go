package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/maauso/videomaker/internal/bootstrap"
	"github.com/maauso/videomaker/internal/config"
	"github.com/maauso/videomaker/internal/job"
	"github.com/maauso/videomaker/internal/media"
	"github.com/maauso/videomaker/internal/messages"
	"github.com/maauso/videomaker/internal/pipeline"
)

type renderOptions struct {
	outputDir string
	lang      string
}

func newRootCommand() *cobra.Command {
	var opts renderOptions

	rootCmd := &cobra.Command{
		Use:           "videomaker [files...]",
		Short:         "Render a still image and an audio track into an MP4 video",
		Long:          "Render a still image and an audio track into an MP4 video.\n\nFiles are classified by content: the last image and the last audio file win.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args, opts)
		},
	}

	rootCmd.Flags().StringVarP(&opts.outputDir, "output", "o", ".", "Directory the video is written to")
	rootCmd.Flags().StringVar(&opts.lang, "lang", "", "Message language (en, fr); defaults to $LANG")

	rootCmd.AddCommand(newCheckCommand())

	return rootCmd
}

func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load the encoder engine and print its version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			deps, err := newDependencies(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = deps.Close() }()

			if err := deps.LoadEngine(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "engine: %s\nversion: %s\n", deps.Engine.State(), deps.Engine.Version())
			return nil
		},
	}
}

func runRender(ctx context.Context, stdout, stderr io.Writer, paths []string, opts renderOptions) error {
	ctx, stop := signalContext(ctx)
	defer stop()

	tag := resolveLanguage(opts.lang)

	files, err := readInputs(paths)
	if err != nil {
		return err
	}
	// Nothing to render without both roles; the engine is not needed to say so.
	if !media.Classify(files).Complete() {
		return errors.New(messages.MissingInputs(tag))
	}

	deps, err := newDependencies(stderr)
	if err != nil {
		return err
	}
	defer func() { _ = deps.Close() }()

	if err := deps.LoadEngine(ctx); err != nil {
		return fmt.Errorf("%s: %w", messages.EngineNotReady(tag), err)
	}

	reporter := newProgressReporter(stderr)
	artifact, err := deps.Pipeline.ProduceVideo(ctx, job.New(), files,
		pipeline.WithProgress(reporter.Update),
		pipeline.WithLanguage(tag),
	)
	reporter.Finish()
	if err != nil {
		if errors.Is(err, pipeline.ErrMissingInputs) {
			return errors.New(messages.MissingInputs(tag))
		}
		return err
	}

	path, err := writeVideo(opts.outputDir, artifact)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, messages.VideoSaved(tag, path))
	return nil
}

func newDependencies(logOut io.Writer) (*bootstrap.Dependencies, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	deps, err := bootstrap.NewDependencies(cfg, cfg.NewLoggerTo(logOut))
	if err != nil {
		return nil, fmt.Errorf("initialize dependencies: %w", err)
	}
	return deps, nil
}

func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// readInputs loads the named files. Content types are left empty so they
// are sniffed from the data.
func readInputs(paths []string) ([]media.File, error) {
	files := make([]media.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p) // #nosec G304 - paths come from the command line
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		files = append(files, media.File{
			Name: filepath.Base(p),
			Data: data,
		})
	}
	return files, nil
}

func writeVideo(dir string, artifact *pipeline.Artifact) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(dir, artifact.FileName)
	if err := os.WriteFile(path, artifact.Data, 0o644); err != nil { // #nosec G306 - videos are meant to be shared
		return "", fmt.Errorf("write video: %w", err)
	}
	return path, nil
}

// resolveLanguage prefers the flag, then the POSIX locale variables.
func resolveLanguage(flag string) language.Tag {
	if flag != "" {
		return messages.Match(flag)
	}
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(key); v != "" {
			return messages.Match(localeToTag(v))
		}
	}
	return messages.Match("")
}

// localeToTag turns "fr_FR.UTF-8" into "fr-FR".
func localeToTag(locale string) string {
	if i := strings.IndexAny(locale, ".@"); i >= 0 {
		locale = locale[:i]
	}
	if locale == "C" || locale == "POSIX" {
		return ""
	}
	return strings.ReplaceAll(locale, "_", "-")
}
