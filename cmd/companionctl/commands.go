package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"example.com/companion/internal/api"
	"example.com/companion/internal/auth"
	"example.com/companion/internal/bootstrap"
	"example.com/companion/internal/config"
	"example.com/companion/internal/domain"
	"example.com/companion/internal/healthstore"
	"example.com/companion/internal/logging"
)

func setupCommand() *command {
	var req api.SetupRequest
	return &command{
		name:    "setup",
		summary: "Connect the agent to a server account",
		flags: func(fs *pflag.FlagSet) {
			fs.StringVar(&req.ServerURL, "server", "", "server base URL")
			fs.StringVar(&req.Email, "email", "", "account email")
			fs.StringVar(&req.Password, "password", os.Getenv("COMPANION_PASSWORD"), "account password (default $COMPANION_PASSWORD)")
			fs.BoolVar(&req.AllowSelfSigned, "allow-self-signed", false, "accept a self-signed server certificate")
		},
		run: func(ctx context.Context, env *environment, args []string) error {
			if err := req.Validate(); err != nil {
				return err
			}
			var resp api.SetupResponse
			if err := env.call(ctx, http.MethodPost, "/v1/setup", auth.ScopeSyncWrite, req, &resp); err != nil {
				return err
			}
			if !env.outputJSON {
				fmt.Printf("Connected as %s, syncing every %d minutes.\n", resp.User, resp.IntervalMinutes)
			}
			return nil
		},
	}
}

func syncCommand() *command {
	return &command{
		name:    "sync",
		summary: "Trigger a sync now and show the latest log entries",
		run: func(ctx context.Context, env *environment, args []string) error {
			var resp api.LogsResponse
			if err := env.call(ctx, http.MethodPost, "/v1/sync", auth.ScopeSyncWrite, nil, &resp); err != nil {
				return err
			}
			if !env.outputJSON {
				printLogs(resp.Entries)
			}
			return nil
		},
	}
}

func importCommand() *command {
	return &command{
		name:    "import",
		summary: "Import the last 30 days of history",
		run: func(ctx context.Context, env *environment, args []string) error {
			var resp api.ImportResponse
			if err := env.call(ctx, http.MethodPost, "/v1/import", auth.ScopeSyncWrite, nil, &resp); err != nil {
				return err
			}
			if env.outputJSON {
				return nil
			}
			if resp.Entry == nil {
				fmt.Printf("Import %s.\n", resp.Outcome)
				return nil
			}
			fmt.Printf("%s (%s to %s)\n", resp.Entry.Message, resp.WindowFrom, resp.WindowTo)
			return nil
		},
	}
}

func logsCommand() *command {
	var count int
	var clear bool
	return &command{
		name:    "logs",
		summary: "Show or clear the sync log",
		flags: func(fs *pflag.FlagSet) {
			fs.IntVarP(&count, "count", "n", 50, "number of entries")
			fs.BoolVar(&clear, "clear", false, "delete every entry")
		},
		run: func(ctx context.Context, env *environment, args []string) error {
			if clear {
				return env.call(ctx, http.MethodDelete, "/v1/logs", auth.ScopeSyncWrite, nil, nil)
			}
			var resp api.LogsResponse
			if err := env.call(ctx, http.MethodGet, "/v1/logs?count="+strconv.Itoa(count), auth.ScopeSyncRead, nil, &resp); err != nil {
				return err
			}
			if !env.outputJSON {
				printLogs(resp.Entries)
			}
			return nil
		},
	}
}

func statusCommand() *command {
	return &command{
		name:    "status",
		summary: "Show configuration, last sync and daily goals",
		run: func(ctx context.Context, env *environment, args []string) error {
			var resp api.StatusResponse
			if err := env.call(ctx, http.MethodGet, "/v1/status", auth.ScopeSyncRead, nil, &resp); err != nil {
				return err
			}
			if env.outputJSON {
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Configured\t%t\n", resp.Configured)
			if resp.ServerURL != "" {
				fmt.Fprintf(w, "Server\t%s\n", resp.ServerURL)
			}
			if resp.Email != "" {
				fmt.Fprintf(w, "Account\t%s\n", resp.Email)
			}
			last := "never"
			if resp.LastSync != nil {
				last = *resp.LastSync
			}
			fmt.Fprintf(w, "Last sync\t%s\n", last)
			fmt.Fprintf(w, "Interval\t%d min (scheduled: %t)\n", resp.IntervalMinutes, resp.Scheduled)
			if resp.Remote != nil && !resp.Remote.Reachable {
				fmt.Fprintf(w, "Server status\tunreachable: %s\n", resp.Remote.Error)
			}
			fmt.Fprintf(w, "Goals\t%d steps, %d kcal, %d active min\n", resp.Goals.Steps, resp.Goals.ActiveCalories, resp.Goals.ActiveMinutes)
			return w.Flush()
		},
	}
}

func intervalCommand() *command {
	var minutes int
	return &command{
		name:    "interval",
		summary: "Change the periodic sync interval (15, 30, 60 or 120 minutes)",
		flags: func(fs *pflag.FlagSet) {
			fs.IntVar(&minutes, "minutes", 15, "interval in minutes")
		},
		run: func(ctx context.Context, env *environment, args []string) error {
			return env.call(ctx, http.MethodPut, "/v1/settings/interval", auth.ScopeSyncWrite, api.IntervalRequest{Minutes: minutes}, nil)
		},
	}
}

func profileCommand() *command {
	var (
		stepsPerMinute int
		weight         float64
		height         int
		age            int
		sex            string
	)
	return &command{
		name:    "profile",
		summary: "Update the profile used for calorie and active-minute estimates",
		flags: func(fs *pflag.FlagSet) {
			fs.IntVar(&stepsPerMinute, "steps-per-minute", 0, "walking cadence (50-200)")
			fs.Float64Var(&weight, "weight", 0, "weight in kg (30-250)")
			fs.IntVar(&height, "height", 0, "height in cm (100-250)")
			fs.IntVar(&age, "age", 0, "age in years (10-120)")
			fs.StringVar(&sex, "sex", "", "male or female")
		},
		run: func(ctx context.Context, env *environment, args []string) error {
			body := map[string]any{}
			if stepsPerMinute > 0 {
				body["stepsPerMinute"] = stepsPerMinute
			}
			if weight > 0 {
				body["weightKg"] = weight
			}
			if height > 0 {
				body["heightCm"] = height
			}
			if age > 0 {
				body["age"] = age
			}
			switch sex {
			case "":
			case "male":
				body["isMale"] = true
			case "female":
				body["isMale"] = false
			default:
				return fmt.Errorf("--sex must be male or female, got %q", sex)
			}
			if len(body) == 0 {
				return errors.New("no profile field given")
			}
			var profile domain.UserProfile
			if err := env.call(ctx, http.MethodPut, "/v1/settings/profile", auth.ScopeSyncWrite, body, &profile); err != nil {
				return err
			}
			if !env.outputJSON {
				fmt.Printf("Profile: %d steps/min, %.1f kg, %d cm, %d years\n", profile.StepsPerMinute, profile.WeightKg, profile.HeightCm, profile.Age)
			}
			return nil
		},
	}
}

func disconnectCommand() *command {
	return &command{
		name:    "disconnect",
		summary: "Stop syncing and forget the server account",
		run: func(ctx context.Context, env *environment, args []string) error {
			if err := env.call(ctx, http.MethodPost, "/v1/disconnect", auth.ScopeSyncWrite, nil, nil); err != nil {
				return err
			}
			fmt.Println("Disconnected.")
			return nil
		},
	}
}

// inspectCommand reads the health store directly, without the agent.
func inspectCommand() *command {
	var date string
	return &command{
		name:    "inspect",
		summary: "Dump raw health-store records for one day",
		flags: func(fs *pflag.FlagSet) {
			fs.StringVar(&date, "date", "", "local day to dump, YYYY-MM-DD (default today)")
		},
		run: func(ctx context.Context, env *environment, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logCfg := logging.ConfigFromEnv("companionctl")
			logger, err := logging.Init(logCfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			day := domain.DateOf(time.Now(), cfg.Location)
			if date != "" {
				if day, err = domain.ParseDate(date); err != nil {
					return err
				}
			}
			lang, err := language.Parse(cfg.LabelLanguage)
			if err != nil {
				lang = language.French
			}

			app, err := bootstrap.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			dumps, err := healthstore.Dump(ctx, app.Source, day, cfg.Location, logger)
			if err != nil {
				return err
			}
			printDumps(day, dumps)
			return printExercises(ctx, app.Source, day, cfg.Location, lang, logger)
		},
	}
}

func printLogs(entries []api.LogView) {
	if len(entries) == 0 {
		fmt.Println("No sync log entries.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tTYPE\tSTATUS\tMESSAGE")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Time, e.Type, e.Status, e.Message)
	}
	_ = w.Flush()
}

func printDumps(day domain.Date, dumps []healthstore.KindDump) {
	fmt.Printf("Health store records for %s\n", day)
	for _, d := range dumps {
		fmt.Printf("\n%s: %d\n", d.Kind, d.Count)
		for _, line := range d.Records {
			fmt.Printf("  %s\n", line)
		}
	}
}

// printExercises lists the day's sessions with their display labels.
func printExercises(ctx context.Context, source domain.HealthSource, day domain.Date, loc *time.Location, lang language.Tag, logger *zap.Logger) error {
	records, err := source.ReadRecords(ctx, domain.KindExercise, domain.DayRange(day, day, loc))
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	fmt.Println("\nActivities:")
	for _, rec := range records {
		ex := rec.Exercise
		if ex == nil {
			continue
		}
		fmt.Printf("  %s-%s %s\n", ex.Start.In(loc).Format("15:04"), ex.End.In(loc).Format("15:04"), domain.ExerciseTypeLabel(ex.ExerciseType, lang))
	}
	logger.Debug("inspect finished", zap.Stringer("date", day), zap.Int("activities", len(records)))
	return nil
}
