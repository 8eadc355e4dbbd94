package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/claude/repstreak/internal/client"
	"github.com/claude/repstreak/internal/gamify"
	"github.com/claude/repstreak/internal/models"
	"github.com/claude/repstreak/internal/session"
	"github.com/claude/repstreak/internal/stats"
	"github.com/claude/repstreak/internal/storage"
	"github.com/claude/repstreak/internal/terminal"
	"github.com/google/uuid"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	serverURL := flag.String("server", "", "RepStreak server URL (e.g. https://repstreak.tail1234.ts.net)")
	workoutID := flag.String("workout", "", "workout id to fetch from the server")
	file := flag.String("file", "", "path to a YAML workout file (local mode)")
	dbPath := flag.String("db", "", "SQLite database to record local completions in")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("repstreak-session", Version)
		return
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if (*file == "") == (*serverURL == "") {
		fmt.Fprintf(os.Stderr, "Usage: repstreak-session -server <URL> -workout <id>\n       repstreak-session -file <workout.yaml> [-db repstreak.db]\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var w *models.Workout
	var api *client.Client
	var err error
	if *file != "" {
		w, err = models.LoadWorkoutFile(*file)
	} else {
		id, perr := uuid.Parse(*workoutID)
		if perr != nil {
			log.Error("invalid -workout id", "error", perr)
			os.Exit(1)
		}
		api = client.New(*serverURL)
		w, err = api.GetWorkout(ctx, id)
	}
	if err != nil {
		log.Error("failed to load workout", "error", err)
		os.Exit(1)
	}

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	fin, err := terminal.Run(ctx, *w, session.SystemClock{}, lines, ticker.C, os.Stdout)
	if errors.Is(err, terminal.ErrQuit) || errors.Is(err, context.Canceled) {
		log.Info("session abandoned, nothing recorded")
		return
	}
	if err != nil {
		log.Error("session failed", "error", err)
		os.Exit(1)
	}
	if fin == nil {
		return
	}

	now := time.Now()
	var out *stats.Outcome
	switch {
	case api != nil:
		// The id is fixed before the first attempt so retries replay.
		out, err = api.CompleteWorkout(context.Background(), fin.WorkoutID, stats.NewCompletionID(now))
	case *dbPath != "":
		out, err = recordLocal(*dbPath, fin.WorkoutID, now, log)
	default:
		fmt.Printf("Finished in %s. Use -db to keep local stats.\n", time.Duration(fin.ElapsedMs)*time.Millisecond)
		return
	}
	if err != nil {
		log.Error("recording completion failed", "error", err)
		os.Exit(1)
	}
	printOutcome(fin, out)
}

// recordLocal applies the completion to a single-user SQLite database.
func recordLocal(path string, workoutID uuid.UUID, now time.Time, log *slog.Logger) (*stats.Outcome, error) {
	db, err := storage.OpenLite(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	ctx := context.Background()
	engine := stats.NewEngine(db, gamify.DefaultCatalog(), time.Local, log)
	if _, err := engine.EnsureStudent(ctx, 1, now); err != nil {
		return nil, err
	}
	return engine.RecordCompletion(ctx, 1, workoutID, now)
}

func printOutcome(fin *session.Finished, out *stats.Outcome) {
	fmt.Println()
	fmt.Println("=== Workout Complete ===")
	fmt.Printf("  Time:         %s\n", (time.Duration(fin.ElapsedMs) * time.Millisecond).Truncate(time.Second))
	fmt.Printf("  Exercises:    %d\n", fin.ExerciseCount)
	if out.Replayed {
		fmt.Println("  (already recorded)")
	}
	if out.Stats != nil {
		fmt.Printf("  Streak:       %d days\n", out.Stats.CurrentStreak)
		fmt.Printf("  Points:       %d (+%d bonus)\n", out.Stats.TotalPoints, out.BonusPoints)
	}
	if out.Rank != nil {
		fmt.Printf("  Rank:         %s (%d%% to %s)\n", out.Rank.Rank, out.Rank.RoundedProgress(), out.Rank.NextRank)
	}
	for _, id := range out.NewlyEarned {
		fmt.Printf("  Unlocked:     %s\n", id)
	}
	fmt.Println()
}
