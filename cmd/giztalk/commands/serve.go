package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haivivi/giztalk/go/pkg/buffer"
	"github.com/haivivi/giztalk/go/pkg/dialogue"
	"github.com/haivivi/giztalk/go/pkg/gateway"
	"github.com/haivivi/giztalk/go/pkg/kv"
	"github.com/haivivi/giztalk/go/pkg/onnx"
	"github.com/haivivi/giztalk/go/pkg/speech"
	"github.com/haivivi/giztalk/go/pkg/storage"
	"github.com/haivivi/giztalk/go/pkg/store"
	"github.com/haivivi/giztalk/go/pkg/vad"
)

var serveConfigFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the websocket gateway",
	Long: `Run the giztalk server: websocket gateway, dialogue pipeline and
the badger-backed store.

Examples:
  giztalk serve -f server.yaml
  giztalk serve    # defaults, data under ~/.giztalk`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := gateway.LoadConfig(serveConfigFile)
		if err != nil {
			return err
		}
		if dataDir != "" {
			cfg.DataPath = dataDir
		}

		level := slog.LevelInfo
		if IsVerbose() {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		db, err := kv.NewBadger(kv.BadgerOptions{Dir: cfg.DataPath, Logger: logger})
		if err != nil {
			return err
		}
		st := store.New(db)
		defer st.Close()

		files, err := storage.NewLocal(cfg.AudioPath)
		if err != nil {
			return err
		}

		mux := speech.NewMux()
		speech.RegisterProviders(mux, cfg.AudioPath)
		var rec speech.Recognizer
		if cfg.VoskModelPath != "" {
			rec, err = speech.NewVoskRecognizer(cfg.VoskModelPath)
			if err != nil {
				return err
			}
		} else {
			logger.Warn("vosk_model_path not set; default recognizer hears nothing")
			rec = deafRecognizer{}
		}
		fac, err := speech.NewFactory(speech.FactoryOptions{
			Mux:                mux,
			DefaultRecognizer:  rec,
			DefaultSynthesizer: speech.NewEdgeSynthesizer(cfg.AudioPath, speech.Voice{}),
			Logger:             logger,
		})
		if err != nil {
			return err
		}

		ctrl := dialogue.NewController(dialogue.ControllerOptions{
			Store:            st,
			Speech:           fac,
			Files:            files,
			Logger:           logger,
			TtsMaxRetry:      cfg.TtsMaxRetryCount,
			TtsRetryDelay:    cfg.TtsRetryDelay(),
			TtsTimeout:       cfg.TtsTimeout(),
			TtsMaxConcurrent: cfg.TtsMaxConcurrentPerSession,
		})

		var model vad.Model
		if cfg.VadModelPath != "" {
			model, err = onnx.LoadSilero(cfg.VadModelPath)
			if err != nil {
				return err
			}
		} else {
			logger.Warn("vad_model_path not set; audio segmentation disabled")
		}

		srv, err := gateway.NewServer(gateway.Options{
			Config:     cfg,
			Store:      st,
			Controller: ctrl,
			VadModel:   model,
			Logger:     logger,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

// deafRecognizer stands in when no STT model is configured; utterances
// transcribe to nothing and are dropped by the pipeline.
type deafRecognizer struct{}

func (deafRecognizer) Recognize(context.Context, []byte) (string, error) {
	return "", nil
}

func (deafRecognizer) RecognizeStream(_ context.Context, st *buffer.ByteStream) (string, error) {
	st.ReadAll()
	return "", nil
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigFile, "config-file", "f", "", "server YAML configuration")
	rootCmd.AddCommand(serveCmd)
}
