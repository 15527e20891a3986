package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	cl "corpsim/internal/cli"
	"corpsim/internal/client"
	"corpsim/internal/config"
	"corpsim/internal/game"
	"corpsim/internal/protocol"
	"corpsim/internal/syncq"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type globals struct {
	server string
	game   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadClient()
	g := &globals{server: cfg.ServerAddr}
	if sess, err := cl.LoadSession(); err == nil && sess.ServerAddr != "" {
		g.server = sess.ServerAddr
	}

	root := &cobra.Command{
		Use:          "corpsim",
		Short:        "Operator terminal for the corpsim game server",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&g.server, "server", "s", g.server, "game server address")
	root.PersistentFlags().StringVarP(&g.game, "game", "g", "", "game id (defaults to the one chosen with `corpsim use`)")

	root.AddCommand(
		newGamesCmd(g),
		newUseCmd(g),
		newStateCmd(g),
		newWatchCmd(g),
		newFireCmd(g),
		newHireCmd(g),
		newRaiseCmd(g),
		newPRCmd(g),
		newPromoteCmd(g),
		newBudgetCmd(g),
		newNoopCmd(g),
		newSyncCmd(g),
	)

	if err := root.ExecuteContext(ctx); err != nil {
		printError(fmt.Sprintf("error: %v", err))
		os.Exit(1)
	}
}

func (g *globals) client() *cl.Client {
	return cl.NewClient(strings.TrimSpace(g.server))
}

// gameID resolves the --game flag, falling back to the saved session.
func (g *globals) gameID() (uuid.UUID, error) {
	if strings.TrimSpace(g.game) != "" {
		return parseID("game id", g.game)
	}
	sess, err := cl.LoadSession()
	if err != nil {
		return uuid.Nil, fmt.Errorf("no game selected, run `corpsim use <game-id>` or pass --game: %w", err)
	}
	return sess.Game()
}

func newGamesCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "games",
		Short: "Create, list and delete games",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List games known to the metadata store",
			RunE: func(cmd *cobra.Command, args []string) error {
				games, err := g.client().ListGames(cmd.Context())
				if err != nil {
					return err
				}
				renderGames(games)
				return nil
			},
		},
		&cobra.Command{
			Use:   "create [name]",
			Short: "Create a game",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				name, err := argOrPrompt(args, 0, "Game name")
				if err != nil {
					return err
				}
				out, err := g.client().CreateGame(cmd.Context(), name)
				if err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Created %q (%s)", out.Name, out.GameID))
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <game-id>",
			Short: "Delete a game and archive its logs",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID("game id", args[0])
				if err != nil {
					return err
				}
				if err := g.client().DeleteGame(cmd.Context(), id); err != nil {
					return err
				}
				if sess, err := cl.LoadSession(); err == nil && sess.GameID == id.String() {
					_ = cl.ClearSession()
				}
				printSuccess(fmt.Sprintf("Deleted %s", id))
				return nil
			},
		},
	)
	return cmd
}

func newUseCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "use <game-id>",
		Short: "Select the game later commands act on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("game id", args[0])
			if err != nil {
				return err
			}
			name := ""
			if games, err := g.client().ListGames(cmd.Context()); err == nil {
				for _, md := range games {
					if md.ID == id {
						name = md.Name
					}
				}
			}
			if err := cl.SaveSession(cl.Session{ServerAddr: g.server, GameID: id.String(), GameName: name}); err != nil {
				return err
			}
			if name == "" {
				printWarn(fmt.Sprintf("Using %s (not in the metadata store; it will start on first attach)", id))
				return nil
			}
			printSuccess(fmt.Sprintf("Using %q (%s)", name, id))
			return nil
		},
	}
}

func newStateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the current state of the selected game",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := g.gameID()
			if err != nil {
				return err
			}
			st, err := g.client().Snapshot(cmd.Context(), id)
			if err != nil {
				return err
			}
			renderState(st)
			return nil
		},
	}
}

func newWatchCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream state updates for the selected game",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := g.gameID()
			if err != nil {
				return err
			}
			err = g.client().Watch(cmd.Context(), id,
				func(ev protocol.ServerEvent) {
					switch e := ev.(type) {
					case protocol.FullState:
						renderSummary(e.State)
					case protocol.GameDeleted:
						printWarn(fmt.Sprintf("Game %s was deleted", e.GameID))
					}
				},
				func(s client.State) { renderConnState(s) },
			)
			if err == nil || cmd.Context().Err() != nil {
				return nil
			}
			return err
		},
	}
}

func newFireCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "fire <employee-id>",
		Short: "Fire an employee",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			emp, err := parseID("employee id", args[0])
			if err != nil {
				return err
			}
			return submit(cmd.Context(), g, game.FireEmployee{EmployeeID: emp})
		},
	}
}

func newHireCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "hire <organization-id> <entity-id>",
		Short: "Hire an entity into an organization",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			org, err := parseID("organization id", args[0])
			if err != nil {
				return err
			}
			emp, err := parseID("entity id", args[1])
			if err != nil {
				return err
			}
			return submit(cmd.Context(), g, game.HireEmployee{OrganizationID: org, EmployeeID: emp})
		},
	}
}

func newRaiseCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "raise <employee-id> <amount>",
		Short: "Give an employee a raise",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			emp, err := parseID("employee id", args[0])
			if err != nil {
				return err
			}
			amount, err := parseInt("amount", args[1])
			if err != nil {
				return err
			}
			return submit(cmd.Context(), g, game.GiveRaise{EmployeeID: emp, Amount: amount})
		},
	}
}

func newPRCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "pr [company-id]",
		Short: "Launch a PR campaign (defaults to the first player's company)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var c game.LaunchPRCampaign
			if len(args) == 1 {
				id, err := parseID("company id", args[0])
				if err != nil {
					return err
				}
				c.CompanyID = &id
			}
			return submit(cmd.Context(), g, c)
		},
	}
}

func newPromoteCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "promote <organization-id> <employee-id>",
		Short: "Promote an employee to VP of an organization",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			org, err := parseID("organization id", args[0])
			if err != nil {
				return err
			}
			emp, err := parseID("employee id", args[1])
			if err != nil {
				return err
			}
			return submit(cmd.Context(), g, game.PromoteToVp{OrganizationID: org, EmployeeID: emp})
		},
	}
}

func newBudgetCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "budget <organization-id> <marketing> <rnd> <training>",
		Short: "Replace an organization's budget",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			org, err := parseID("organization id", args[0])
			if err != nil {
				return err
			}
			var b game.Budget
			if b.Marketing, err = parseInt("marketing", args[1]); err != nil {
				return err
			}
			if b.RnD, err = parseInt("rnd", args[2]); err != nil {
				return err
			}
			if b.Training, err = parseInt("training", args[3]); err != nil {
				return err
			}
			return submit(cmd.Context(), g, game.UpdateBudget{OrganizationID: org, OrganizationBudget: b})
		},
	}
}

func newNoopCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "noop",
		Short: "Let a week pass without doing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(cmd.Context(), g, game.DoNothing{})
		},
	}
}

func newSyncCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay commands queued while the server was unreachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := syncq.Load()
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			gc := g.client()
			remaining := make([]syncq.Command, 0, len(queue))
			success := 0
			for i, q := range queue {
				if q.Command.Command == nil {
					continue
				}
				_, err := gc.Submit(cmd.Context(), q.GameID, q.Command.Command)
				if errors.Is(err, cl.ErrUnreachable) {
					remaining = append(remaining, queue[i:]...)
					printError(fmt.Sprintf("Server still unreachable: %v", err))
					break
				}
				if err != nil {
					printError(fmt.Sprintf("Dropped %s for game %s: %v", q.Command.Command.CommandKind(), q.GameID, err))
					continue
				}
				success++
			}
			if err := syncq.Save(remaining); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d remaining=%d", success, len(remaining)))
			return nil
		},
	}
}

func submit(ctx context.Context, g *globals, c game.Command) error {
	id, err := g.gameID()
	if err != nil {
		return err
	}
	st, err := g.client().Submit(ctx, id, c)
	if errors.Is(err, cl.ErrUnreachable) {
		if qerr := syncq.Push(syncq.Command{GameID: id, Command: game.CommandJSON{Command: c}, QueuedAt: time.Now().UTC()}); qerr != nil {
			return fmt.Errorf("%w (queueing failed: %v)", err, qerr)
		}
		printWarn(fmt.Sprintf("%v. Queued %s; run `corpsim sync` once the server is back.", err, c.CommandKind()))
		return nil
	}
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("%s applied.", c.CommandKind()))
	renderSummary(st)
	return nil
}

func parseID(label, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s %q", label, raw)
	}
	return id, nil
}

func parseInt(label, raw string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", label, raw)
	}
	return v, nil
}

func argOrPrompt(args []string, idx int, label string) (string, error) {
	if len(args) > idx {
		return strings.TrimSpace(args[idx]), nil
	}
	return promptRequired(label)
}
