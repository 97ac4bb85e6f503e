package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"example.com/healthsync/internal/auth"
	"example.com/healthsync/internal/domain"
	"example.com/healthsync/internal/fitsync"
	"example.com/healthsync/internal/googlefit"
	persistence "example.com/healthsync/internal/persistence/postgres"
	"example.com/healthsync/internal/tokens"
)

type MigrateCmd struct{}

func (c *MigrateCmd) Run(app *appContext) error {
	if app.Pool == nil {
		fmt.Fprintln(app.Out, "sqlite schema is up to date")
		return nil
	}
	applied, err := persistence.Migrate(app.Ctx, app.Pool)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Fprintln(app.Out, "no pending migrations")
		return nil
	}
	for _, name := range applied {
		fmt.Fprintf(app.Out, "applied %s\n", name)
	}
	return nil
}

type SyncCmd struct {
	User    string        `arg:"" help:"User id to sync."`
	Timeout time.Duration `help:"Sync deadline." default:"45s"`
}

func (c *SyncCmd) Run(app *appContext) error {
	oauth := tokens.NewOAuth2Config(tokens.OAuthConfig{
		ClientID:     app.Config.Google.ClientID,
		ClientSecret: app.Config.Google.ClientSecret,
		RedirectURL:  app.Config.Google.RedirectURL,
		TokenURL:     app.Config.Google.TokenURL,
	})
	syncer := fitsync.NewSyncer(app.Store,
		tokens.NewRefresher(oauth, app.Store, tokens.WithLogger(app.Logger)),
		googlefit.NewClient(app.Config.Google.AggregateURL),
		fitsync.WithLogger(app.Logger),
	)

	ctx := app.Ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	result, err := syncer.Sync(ctx, c.User)
	if err != nil {
		return fmt.Errorf("sync %s (%s): %w", c.User, fitsync.Outcome(err), err)
	}
	fmt.Fprintf(app.Out, "synced %d activity days and %d weight logs\n", result.ActivityCount, result.WeightCount)
	return nil
}

type ScoreCmd struct {
	User string `arg:"" help:"User id to score."`
}

func (c *ScoreCmd) Run(app *appContext) error {
	result, err := domain.NewService(app.Store).Score(app.Ctx, c.User)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "score %d (activity %d, consistency %d, trend %d)\n",
		result.Score, result.Breakdown.Activity, result.Breakdown.Consistency, result.Breakdown.Trend)
	fmt.Fprintf(app.Out, "steps %d, heart points %.1f, weight logs %d, photo logs %d, goal days %d\n",
		result.Metrics.TotalSteps, result.Metrics.TotalHeartPoints, result.Metrics.WeightLogs,
		result.Metrics.PhotoLogs, result.Metrics.DaysHittingGoal)
	for _, tip := range result.Tips {
		fmt.Fprintf(app.Out, "- %s\n", tip)
	}
	return nil
}

type LogWeightCmd struct {
	User   string  `arg:"" help:"User id."`
	Weight float64 `arg:"" help:"Weight in kilograms."`
	Date   string  `help:"Day as YYYY-MM-DD. Defaults to today (UTC)."`
}

func (c *LogWeightCmd) Run(app *appContext) error {
	entry, err := domain.NewService(app.Store).LogWeight(app.Ctx, c.User, c.Weight, c.Date)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "logged %.1f kg for %s on %s\n", entry.Weight, entry.UserID, domain.FormatDate(entry.Date))
	return nil
}

type TokenCmd struct {
	User   string        `arg:"" help:"Subject of the token."`
	Scopes string        `help:"Comma-separated scopes." default:"health:read,health:write,fit:sync"`
	TTL    time.Duration `name:"ttl" help:"Token lifetime." default:"1h"`
}

func (c *TokenCmd) Run(app *appContext) error {
	if strings.TrimSpace(c.User) == "" {
		return errors.New("user is required")
	}
	var scopes []string
	for _, s := range strings.Split(c.Scopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	token, err := auth.Issue(auth.Config{Secret: app.Config.JWTSecret, Issuer: app.Config.JWTIssuer}, c.User, scopes, c.TTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(app.Out, token)
	return nil
}
