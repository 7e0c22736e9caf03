// Command analyze submits one local video for OCEAN analysis and prints the
// resulting scores.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/your-org/oceanlens/internal/cache"
	"github.com/your-org/oceanlens/internal/client"
	"github.com/your-org/oceanlens/internal/config"
	"github.com/your-org/oceanlens/internal/insights"
	"github.com/your-org/oceanlens/internal/media"
	"github.com/your-org/oceanlens/internal/models"
	"github.com/your-org/oceanlens/internal/observability"
	"github.com/your-org/oceanlens/internal/session"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	video := flag.String("video", "", "path to the video file")
	name := flag.String("name", "", "subject name")
	age := flag.Int("age", 0, "subject age")
	gender := flag.String("gender", "", "subject gender (male|female)")
	withInsights := flag.Bool("insights", false, "also print the insight summary")
	asJSON := flag.Bool("json", false, "print the detection as JSON")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	observability.SetupLogger(cfg.Logging.Level, "text")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *video, models.SubjectMetadata{
		Name:   *name,
		Age:    *age,
		Gender: models.Gender(*gender),
	}, *withInsights, *asJSON); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, path string, md models.SubjectMetadata, withInsights, asJSON bool) error {
	if path == "" {
		return errors.New("-video is required")
	}
	file, err := media.FileFromPath(path)
	if err != nil {
		return err
	}

	queryCache := cache.New(cache.NewMemoryStore(0), cache.Options{})
	sess := session.New(session.Options{
		Backend: client.New(client.Options{
			BaseURL:        cfg.Backend.BaseURL,
			Timeout:        cfg.Backend.Timeout,
			PredictTimeout: cfg.Backend.PredictTimeout,
			CSRFToken:      cfg.Backend.CSRFToken,
			Headers:        cfg.Backend.Headers,
		}),
		Previews: media.NewLocalPreviews(cfg.Server.PublicURL),
		Cache:    queryCache,
		MaxBytes: cfg.Upload.MaxBytes,
	})
	defer func() {
		sess.Close()
		queryCache.Wait()
	}()

	asset, err := sess.Coordinator.SelectFile(file)
	if err != nil {
		return describe(err)
	}

	slog.Info("submitting video", "file", file.Name, "size", file.Size, "media_type", file.MediaType)
	rec, err := sess.Coordinator.Submit(ctx, md, asset)
	if err != nil {
		return describe(err)
	}

	var bundle *models.InsightBundle
	if withInsights {
		sess.Insights.Show(ctx, rec.ID)
		res, err := sess.Insights.Wait(ctx, rec.ID)
		if err != nil {
			return err
		}
		switch res.Status {
		case insights.StatusReady:
			bundle = res.Bundle
		case insights.StatusFailed:
			slog.Warn("insights unavailable", "error", res.Err)
		}
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Detection *models.DetectionRecord `json:"detection"`
			Insights  *models.InsightBundle   `json:"insights,omitempty"`
		}{rec, bundle})
	}

	fmt.Printf("Detection #%d for %s (%d, %s)\n\n", rec.ID, rec.Subject.Name, rec.Subject.Age, rec.Subject.Gender)
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRAIT\tSCORE\tLEVEL")
	for _, t := range models.Traits {
		score := rec.Scores.Get(t)
		fmt.Fprintf(tw, "%s\t%.1f\t%s\n", t, score, models.LevelFor(score))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if bundle != nil && bundle.Summary != "" {
		fmt.Printf("\n%s\n", bundle.Summary)
	}
	return nil
}

func describe(err error) error {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		msg := "invalid input:"
		for _, f := range verr.Fields.Fields() {
			msg += fmt.Sprintf("\n  %s: %s", f, verr.Fields[f])
		}
		return errors.New(msg)
	}
	return fmt.Errorf("analysis failed: %s", client.Message(err))
}
