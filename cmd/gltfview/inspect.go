package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kamkard/gltfview/internal/classify"
	"github.com/kamkard/gltfview/internal/config"
	"github.com/kamkard/gltfview/internal/controller"
	"github.com/kamkard/gltfview/internal/deeplink"
	"github.com/kamkard/gltfview/internal/fetch"
	"github.com/kamkard/gltfview/internal/fileset"
	"github.com/kamkard/gltfview/internal/logging"
	"github.com/kamkard/gltfview/internal/objurl"
	"github.com/kamkard/gltfview/internal/session"
	"github.com/kamkard/gltfview/internal/validator"
	"github.com/kamkard/gltfview/internal/viewer"
)

type inspectOptions struct {
	format  string
	kiosk   bool
	link    string
	verbose bool
}

// inspectResult is what inspect prints.
type inspectResult struct {
	Source     string            `json:"source" yaml:"source"`
	State      session.State     `json:"state" yaml:"state"`
	Root       string            `json:"root,omitempty" yaml:"root,omitempty"`
	Candidates []string          `json:"candidates,omitempty" yaml:"candidates,omitempty"`
	Scene      *sceneSummary     `json:"scene,omitempty" yaml:"scene,omitempty"`
	Error      *errorSummary     `json:"error,omitempty" yaml:"error,omitempty"`
	Report     *validator.Report `json:"report,omitempty" yaml:"report,omitempty"`
	DurationMs int64             `json:"duration_ms" yaml:"duration_ms"`
}

type sceneSummary struct {
	ID         string   `json:"id" yaml:"id"`
	Name       string   `json:"name" yaml:"name"`
	Version    string   `json:"version" yaml:"version"`
	Generator  string   `json:"generator,omitempty" yaml:"generator,omitempty"`
	Nodes      int      `json:"nodes" yaml:"nodes"`
	Meshes     int      `json:"meshes" yaml:"meshes"`
	Materials  int      `json:"materials" yaml:"materials"`
	Images     int      `json:"images" yaml:"images"`
	Referenced []string `json:"referenced,omitempty" yaml:"referenced,omitempty"`
}

type errorSummary struct {
	Kind    classify.Kind `json:"kind" yaml:"kind"`
	Message string        `json:"message" yaml:"message"`
}

// NewInspectCmd creates the inspect command.
func NewInspectCmd() *cobra.Command {
	var o inspectOptions

	cmd := &cobra.Command{
		Use:   "inspect [path|url]...",
		Short: "Load an asset once and print the outcome",
		Long: `Load a glTF/GLB asset through the same resolution and classification as
the service and print the result with its validation report.

A single directory is loaded like a dropped folder, several paths like a
multi-file drop, a single file as a local handle and a URL as a remote
address. With no arguments the deep link's model is loaded.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch o.format {
			case "yaml", "json":
			default:
				return fmt.Errorf("unknown format %q (want yaml or json)", o.format)
			}
			if o.verbose {
				if err := logging.Init(logging.Config{Level: "debug", Format: "console", OutputPath: "stderr"}); err != nil {
					return err
				}
			} else {
				logging.InitNop()
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runInspect(cmd.Context(), cfg, o, args, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&o.format, "format", "f", "yaml", "output format: yaml or json")
	cmd.Flags().BoolVar(&o.kiosk, "kiosk", false, "skip validation")
	cmd.Flags().StringVar(&o.link, "link", "", "deep-link fragment supplying model, kiosk, preset and cameraPosition")
	cmd.Flags().BoolVarP(&o.verbose, "verbose", "v", false, "log to stderr")
	return cmd
}

func runInspect(ctx context.Context, cfg *config.Config, o inspectOptions, args []string, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	opts := deeplink.Parse(o.link)

	src, err := sourceFor(args, opts.Model)
	if err != nil {
		return err
	}

	var s3src *fetch.S3Source
	if cfg.S3Endpoint != "" || cfg.S3AccessKey != "" {
		if s3src, err = fetch.NewS3Source(ctx, fetch.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		}); err != nil {
			return err
		}
	}
	remote := fetch.NewRemote(cfg.FetchTimeout, cfg.MaxAssetSize, s3src)
	broker := objurl.New()
	reports := &validator.Sync{}

	ctrl := controller.New(controller.Config{
		Session: session.New(nil),
		Broker:  broker,
		Viewer: viewer.NewGLTFViewer(&fetch.Mux{Broker: broker, Remote: remote}, viewer.Options{
			Preset:         opts.Preset,
			CameraPosition: opts.CameraPosition,
			MaxAssetSize:   cfg.MaxAssetSize,
		}),
		Validator: reports,
		Fetcher:   remote,
		Notifier: controller.NotifierFunc(func(_ uint64, err *classify.Error) {
			fmt.Fprintf(stderr, "Error: %s\n", err.Message)
		}),
		Kiosk:       o.kiosk || opts.Kiosk,
		LoadTimeout: cfg.LoadTimeout,
	})

	out, loadErr := ctrl.Load(ctx, src)

	res := inspectResult{
		Source:     src.String(),
		State:      ctrl.Session().Snapshot().State,
		Root:       out.Root,
		Candidates: out.Candidates,
		Report:     reports.Latest(),
		DurationMs: out.Duration.Milliseconds(),
	}
	if s := out.Scene; s != nil {
		res.Scene = &sceneSummary{
			ID:         s.ID,
			Name:       s.Name,
			Version:    s.Stats.Version,
			Generator:  s.Stats.Generator,
			Nodes:      s.Stats.Nodes,
			Meshes:     s.Stats.Meshes,
			Materials:  s.Stats.Materials,
			Images:     s.Stats.Images,
			Referenced: s.Referenced,
		}
	}
	if out.Err != nil {
		res.Error = &errorSummary{Kind: out.Err.Kind, Message: out.Err.Message}
	}

	if err := writeResult(stdout, o.format, res); err != nil {
		return err
	}
	if loadErr != nil {
		return loadErr
	}
	if res.Report != nil && !res.Report.Valid() {
		return fmt.Errorf("validation found %d error(s)", res.Report.NumErrors)
	}
	return nil
}

// sourceFor maps command arguments to a load source. model is used when no
// argument is given.
func sourceFor(args []string, model string) (controller.Source, error) {
	if len(args) == 0 {
		if model == "" {
			return controller.Source{}, errors.New("nothing to inspect: pass a path or URL, or a --link with a model")
		}
		return controller.FromAddress(model), nil
	}

	if len(args) == 1 {
		if isURL(args[0]) {
			return controller.FromAddress(args[0]), nil
		}
		info, err := os.Stat(args[0])
		if err != nil {
			return controller.Source{}, err
		}
		if info.IsDir() {
			set, err := fileset.FromDir(args[0])
			if err != nil {
				return controller.Source{}, err
			}
			return controller.FromFiles(set), nil
		}
		h, err := fileset.NewLocalFile(args[0])
		if err != nil {
			return controller.Source{}, err
		}
		return controller.FromHandle(h), nil
	}

	// Several paths behave like a multi-item drop: files by base name,
	// directories under their own name.
	set := make(fileset.Set)
	for _, p := range args {
		if isURL(p) {
			return controller.Source{}, fmt.Errorf("%s: URLs cannot be combined with other paths", p)
		}
		info, err := os.Stat(p)
		if err != nil {
			return controller.Source{}, err
		}
		if !info.IsDir() {
			h, err := fileset.NewLocalFile(p)
			if err != nil {
				return controller.Source{}, err
			}
			set[filepath.Base(p)] = h
			continue
		}
		sub, err := fileset.FromDir(p)
		if err != nil {
			return controller.Source{}, err
		}
		prefix := filepath.Base(filepath.Clean(p)) + "/"
		for k, h := range sub {
			set[prefix+k] = h
		}
	}
	return controller.FromFiles(set), nil
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return false
	}
	switch u.Scheme {
	case "http", "https", "s3":
		return true
	}
	return false
}

func writeResult(w io.Writer, format string, res inspectResult) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(res); err != nil {
		return err
	}
	return enc.Close()
}
