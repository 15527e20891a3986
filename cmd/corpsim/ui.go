package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"corpsim/internal/client"
	"corpsim/internal/game"

	"github.com/fatih/color"
	"github.com/google/uuid"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func renderGames(games []game.Metadata) {
	accent.Println("\n== GAMES ==")
	if len(games) == 0 {
		printInfo("No games yet. Create one with `corpsim games create <name>`.")
		return
	}
	fmt.Printf("%-36s  %-24s  %s\n", "ID", "NAME", "CREATED")
	for _, md := range games {
		fmt.Printf("%-36s  %-24s  %s\n", md.ID, truncate(md.Name, 24), md.CreatedAt.Local().Format(time.DateTime))
	}
	fmt.Println()
}

func renderConnState(s client.State) {
	switch s.Kind {
	case client.Connected:
		printSuccess("● " + s.String())
	case client.Connecting, client.Reconnecting:
		printWarn("○ " + s.String())
	default:
		printError("✕ " + s.String())
	}
}

// renderSummary prints one line per company.
func renderSummary(st *game.GameState) {
	if st == nil {
		return
	}
	for _, id := range sortedCompanies(st) {
		c := st.Companies[id]
		fmt.Printf("week %-4d %-20s money %14s  expenses %12s  productivity %8d  rep %s  satisfaction %d\n",
			st.Week,
			truncate(c.Name, 20),
			comma(c.Financials.Money),
			comma(c.Financials.Expenses),
			c.Financials.Productivity,
			colorizeSigned(c.Perception.Reputation),
			c.AvgEmployeeSatisfaction,
		)
	}
}

func renderState(st *game.GameState) {
	if st == nil {
		printWarn("No state received.")
		return
	}
	accent.Printf("\n== WEEK %d ==\n", st.Week)
	for _, p := range st.Players {
		fmt.Printf("Player %s  money %s  rep %s\n", p.Name, comma(p.Financials.Money), colorizeSigned(p.Perception.Reputation))
	}

	fmt.Println()
	accent.Println("Companies")
	fmt.Printf("%-36s  %-20s %14s %12s %8s %6s %6s\n", "ID", "NAME", "MONEY", "EXPENSES", "PROD", "REP", "SAT")
	for _, id := range sortedCompanies(st) {
		c := st.Companies[id]
		fmt.Printf("%-36s  %-20s %14s %12s %8d %6d %6d\n",
			c.ID, truncate(c.Name, 20), comma(c.Financials.Money), comma(c.Financials.Expenses),
			c.Financials.Productivity, c.Perception.Reputation, c.AvgEmployeeSatisfaction)
	}

	staff := map[uuid.UUID]int{}
	for _, e := range st.Entities {
		if e.Employment != nil {
			staff[e.Employment.OrganizationID]++
		}
	}

	fmt.Println()
	accent.Println("Organizations")
	fmt.Printf("%-36s  %-22s %-12s %6s %-20s %12s %8s\n", "ID", "NAME", "TYPE", "STAFF", "VP", "EXPENSES", "PROD")
	orgIDs := make([]uuid.UUID, 0, len(st.Organizations))
	for id := range st.Organizations {
		orgIDs = append(orgIDs, id)
	}
	sort.Slice(orgIDs, func(i, j int) bool {
		return st.Organizations[orgIDs[i]].Name < st.Organizations[orgIDs[j]].Name
	})
	for _, id := range orgIDs {
		o := st.Organizations[id]
		vp := "-"
		if o.VP != nil {
			if e, ok := st.Entities[*o.VP]; ok {
				vp = e.Name
			}
		}
		fmt.Printf("%-36s  %-22s %-12s %6d %-20s %12s %8d\n",
			o.ID, truncate(o.Name, 22), o.Type, staff[id], truncate(vp, 20),
			comma(o.Financials.Expenses), o.Financials.Productivity)
	}

	unemployed := 0
	for _, e := range st.Entities {
		if e.Employment == nil {
			unemployed++
		}
	}
	fmt.Println()
	printInfo(fmt.Sprintf("%d entities, %d without a job", len(st.Entities), unemployed))
	fmt.Println()
}

func sortedCompanies(st *game.GameState) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(st.Companies))
	for id := range st.Companies {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return st.Companies[ids[i]].Name < st.Companies[ids[j]].Name
	})
	return ids
}

func colorizeSigned(v int64) string {
	text := strconv.FormatInt(v, 10)
	switch {
	case v > 0:
		return success.Sprint("+" + text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func comma(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return sign + s
	}
	var b strings.Builder
	b.WriteString(sign)
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		if len(s) > pre {
			b.WriteByte(',')
		}
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
