package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/seenimoa/cotscope/internal/access"
	"github.com/seenimoa/cotscope/internal/cot"
	"github.com/seenimoa/cotscope/internal/extremes"
	"github.com/seenimoa/cotscope/internal/providers/backend"
	"github.com/seenimoa/cotscope/internal/seasonality"
	"github.com/seenimoa/cotscope/pkg/models"
)

func init() {
	rootCmd.AddCommand(datesCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(exchangesCmd)
	rootCmd.AddCommand(groupsCmd)
	rootCmd.AddCommand(trackerCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(nextReleaseCmd)
	rootCmd.AddCommand(seasonalityCmd)
	rootCmd.AddCommand(assetsCmd)
	rootCmd.AddCommand(favoritesCmd)
	rootCmd.AddCommand(subscriptionCmd)
	rootCmd.AddCommand(askCmd)

	for _, c := range []*cobra.Command{reportCmd, exchangesCmd, groupsCmd, trackerCmd} {
		c.Flags().String("date", "", "report date YYYY-MM-DD (default: latest)")
	}
	for _, c := range []*cobra.Command{reportCmd, trackerCmd} {
		c.Flags().String("exchange", "", "filter by exchange code, e.g. CME or ICE")
		c.Flags().String("group", "", "filter by commodity group, e.g. Metals")
	}
	trackerCmd.Flags().Bool("all", false, "list every contract with an extremes record, not only flagged ones")

	historyCmd.Flags().String("start", "", "first report date YYYY-MM-DD")
	historyCmd.Flags().String("end", "", "last report date YYYY-MM-DD")
	historyCmd.Flags().Int("limit", 52, "maximum number of weeks")

	seasonalityCmd.Flags().Int("lookback", 0, "years of history (default from config)")
	seasonalityCmd.Flags().String("cycle", "all", "election cycle filter: all, pre, election, post, midterm")
	seasonalityCmd.Flags().String("start", "", "window start YYYY-MM-DD")
	seasonalityCmd.Flags().String("end", "", "window end YYYY-MM-DD")

	for _, c := range []*cobra.Command{favoritesCmd, subscriptionCmd, askCmd} {
		c.Flags().String("email", "", "user email (default: backend.email, then the last signed-in user)")
	}
	favoritesCmd.Flags().StringSlice("set", nil, "replace favorites with these contract codes")
}

// loadReport loads the report named by --date, or the latest one.
func loadReport(cmd *cobra.Command, a *app) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	d, _ := cmd.Flags().GetString("date")
	var err error
	if d == "" {
		_, err = a.dash.LoadLatest(ctx)
	} else {
		_, err = a.dash.LoadReport(ctx, d)
	}
	return err
}

func filterFlags(cmd *cobra.Command) (string, cot.Group, error) {
	exchange, _ := cmd.Flags().GetString("exchange")
	g, _ := cmd.Flags().GetString("group")
	if g == "" {
		return exchange, "", nil
	}
	group, err := cot.ParseGroup(g)
	return exchange, group, err
}

// resolveEmail picks --email, then the configured email, then the stored one.
func resolveEmail(cmd *cobra.Command, a *app) (string, error) {
	if e, _ := cmd.Flags().GetString("email"); e != "" {
		return e, nil
	}
	if cfg.Backend.Email != "" {
		return cfg.Backend.Email, nil
	}
	if e := a.dash.Local().Email(cmd.Context()); e != "" {
		return e, nil
	}
	return "", errors.New("no user email: pass --email or set backend.email")
}

// --- Dates Command ---

var datesCmd = &cobra.Command{
	Use:   "dates",
	Short: "List available report dates, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		ctx, cancel := commandContext(cmd)
		defer cancel()

		dates, err := a.dash.Dates(ctx)
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return printJSON(dates)
		}
		for _, d := range dates {
			fmt.Println(d)
		}
		return nil
	},
}

// --- Report Command ---

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the curated report",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		exchange, group, err := filterFlags(cmd)
		if err != nil {
			return err
		}
		if err := loadReport(cmd, a); err != nil {
			return err
		}

		rows := a.dash.Rows(exchange, group)
		if wantJSON(cmd) {
			return printJSON(rows)
		}
		st := a.dash.State()
		fmt.Printf("Report %s: %d contracts\n\n", st.ReportDate, len(rows))
		fmt.Printf("%-40s %-6s %-15s %12s %12s %12s %7s\n",
			"Commodity", "Exch", "Group", "Comm Long", "Comm Short", "Net", "% Long")
		for _, r := range rows {
			fmt.Printf("%-40s %-6s %-15s %12d %12d %12d %6.1f%%\n",
				truncate(r.Commodity, 40), r.MarketCode, a.dash.Curation().Classify(r.Commodity),
				r.Commercial.Long, r.Commercial.Short, r.Commercial.Net(), r.Commercial.PercentageLong*100)
		}
		return nil
	},
}

// --- Exchanges / Groups Commands ---

var exchangesCmd = &cobra.Command{
	Use:   "exchanges",
	Short: "List the exchanges present in a report",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := loadReport(cmd, a); err != nil {
			return err
		}
		ex := a.dash.Exchanges()
		if wantJSON(cmd) {
			return printJSON(ex)
		}
		fmt.Println(strings.Join(ex, "\n"))
		return nil
	},
}

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List the commodity groups present in a report",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := loadReport(cmd, a); err != nil {
			return err
		}
		groups := a.dash.Groups()
		if wantJSON(cmd) {
			return printJSON(groups)
		}
		for _, g := range groups {
			fmt.Println(g)
		}
		return nil
	},
}

// --- Tracker Command ---

var trackerCmd = &cobra.Command{
	Use:   "tracker",
	Short: "Show contracts whose commercial net position is near a historical extreme",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		exchange, group, err := filterFlags(cmd)
		if err != nil {
			return err
		}
		if err := loadReport(cmd, a); err != nil {
			return err
		}
		all, _ := cmd.Flags().GetBool("all")

		ctx, cancel := commandContext(cmd)
		defer cancel()
		rows, err := a.dash.Tracker(ctx, exchange, group, all)
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return printJSON(rows)
		}
		printTracked(rows)
		return nil
	},
}

func printTracked(rows []extremes.TrackedRow) {
	if len(rows) == 0 {
		fmt.Println("No contracts near an extreme.")
		return
	}
	fmt.Printf("%-40s %-6s %12s %12s %12s  %s\n", "Commodity", "Exch", "Net", "Hist Max", "Hist Min", "Signal")
	for _, r := range rows {
		signal := "-"
		switch {
		case r.NearLong:
			signal = "near long extreme"
		case r.NearShort:
			signal = "near short extreme"
		}
		fmt.Printf("%-40s %-6s %12d %12d %12d  %s\n",
			truncate(r.Row.Commodity, 40), r.Row.MarketCode, r.CurrentNet, r.Extremes.Max, r.Extremes.Min, signal)
	}
}

// --- Refresh Command ---

var refreshCmd = &cobra.Command{
	Use:   "refresh-extremes",
	Short: "Recompute the extremes snapshot now, ignoring its age",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		ctx, cancel := commandContext(cmd)
		defer cancel()

		start := time.Now()
		n, err := a.dash.RefreshExtremes(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Extremes refreshed for %d contracts in %s\n", n, time.Since(start).Round(time.Second))
		return nil
	},
}

// --- History Command ---

var historyCmd = &cobra.Command{
	Use:   "history [contract-code]",
	Short: "Show weekly commercial positions for one contract",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		start, _ := cmd.Flags().GetString("start")
		end, _ := cmd.Flags().GetString("end")
		limit, _ := cmd.Flags().GetInt("limit")

		ctx, cancel := commandContext(cmd)
		defer cancel()
		hist, err := a.dash.History(ctx, args[0], start, end, limit)
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return printJSON(hist)
		}
		fmt.Printf("%-12s %12s %12s %12s\n", "Date", "Long", "Short", "Net")
		for _, h := range hist {
			fmt.Printf("%-12s %12d %12d %12d\n", h.ReportDate, h.Long, h.Short, h.Net())
		}
		return nil
	},
}

// --- Next Release Command ---

var nextReleaseCmd = &cobra.Command{
	Use:   "next-release",
	Short: "Show the next scheduled COT publication date",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		ctx, cancel := commandContext(cmd)
		defer cancel()

		next, err := a.dash.NextRelease(ctx)
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return printJSON(map[string]string{"date": next.Format(time.DateOnly)})
		}
		fmt.Printf("Next release: %s\n", next.Format("Monday, 2 January 2006"))
		return nil
	},
}

// --- Seasonality Commands ---

var seasonalityCmd = &cobra.Command{
	Use:   "seasonality [symbol]",
	Short: "Compute the calendar seasonality profile of a market",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := seasonalityParams(cmd)
		if err != nil {
			return err
		}
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		ctx, cancel := commandContext(cmd)
		defer cancel()

		res, err := a.dash.Seasonality(ctx, args[0], p)
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return printJSON(res)
		}
		printSeasonality(res)
		return nil
	},
}

func seasonalityParams(cmd *cobra.Command) (seasonality.Params, error) {
	var p seasonality.Params
	var err error
	p.LookbackYears, _ = cmd.Flags().GetInt("lookback")
	c, _ := cmd.Flags().GetString("cycle")
	if p.Cycle, err = seasonality.ParseCycle(c); err != nil {
		return p, err
	}
	for flag, dst := range map[string]*time.Time{"start": &p.Start, "end": &p.End} {
		v, _ := cmd.Flags().GetString(flag)
		if v == "" {
			continue
		}
		if *dst, err = time.Parse(time.DateOnly, v); err != nil {
			return p, fmt.Errorf("--%s: %w", flag, err)
		}
	}
	return p, nil
}

var monthNames = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

func printSeasonality(res *models.SeasonalityResult) {
	fmt.Printf("%s seasonality, %s to %s (%d years, %d candles)\n\n",
		res.Symbol, res.WindowStart.Format(time.DateOnly), res.WindowEnd.Format(time.DateOnly),
		len(res.YearsUsed), res.CandlesUsed)
	fmt.Printf("%-5s %10s %12s\n", "Month", "Index", "Avg return")
	for m, idx := range res.MonthStartIndices {
		fmt.Printf("%-5s %10.2f %11.2f%%\n", monthNames[m], res.DailySeasonality[idx], res.MonthlyReturns[m]*100)
	}
	fmt.Println()
	for d, name := range []string{"Mon", "Tue", "Wed", "Thu", "Fri"} {
		fmt.Printf("%-5s %+.3f%%\n", name, res.WeekdayReturns[d]*100)
	}
}

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "List the symbols with seasonality data",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		ctx, cancel := commandContext(cmd)
		defer cancel()

		assets, err := a.dash.SeasonalityAssets(ctx)
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return printJSON(assets)
		}
		for _, as := range assets {
			fmt.Printf("%-12s %-30s %s\n", as.Symbol, as.Name, as.Category)
		}
		return nil
	},
}

// --- Account Commands ---

var favoritesCmd = &cobra.Command{
	Use:   "favorites",
	Short: "Show or replace the user's favorite contracts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		email, err := resolveEmail(cmd, a)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		if cmd.Flags().Changed("set") {
			codes, _ := cmd.Flags().GetStringSlice("set")
			if err := a.dash.SaveFavorites(ctx, email, codes); err != nil {
				return err
			}
			fmt.Printf("Saved %d favorites\n", len(codes))
			return nil
		}

		favs, err := a.dash.Favorites(ctx, email)
		if err != nil {
			a.logger.Warn("showing cached favorites", "error", err)
		}
		if wantJSON(cmd) {
			return printJSON(favs)
		}
		fmt.Println(strings.Join(favs, "\n"))
		return nil
	},
}

var subscriptionCmd = &cobra.Command{
	Use:   "subscription",
	Short: "Show the user's subscription status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		email, err := resolveEmail(cmd, a)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		sub, err := a.providers.Backend.SubscriptionStatus(ctx, email)
		if err != nil {
			return err
		}
		st := access.Evaluate(sub, time.Now())
		st.Email = email
		if wantJSON(cmd) {
			return printJSON(st)
		}
		fmt.Printf("Email:        %s\n", st.Email)
		fmt.Printf("Status:       %s\n", st.Subscription)
		fmt.Printf("Access:       %t\n", st.Active)
		if st.Trialing() {
			fmt.Printf("Trial ends:   %s\n", st.TrialEnd.Format(time.RFC1123))
		}
		return nil
	},
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask the assistant about the COT data",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		email, err := resolveEmail(cmd, a)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		ans, err := a.providers.Backend.Ask(ctx, backend.ChatRequest{
			Question: strings.Join(args, " "),
			Email:    email,
		})
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return printJSON(ans)
		}
		fmt.Println(ans.Answer)
		return nil
	},
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
