package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/gocarina/gocsv"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"SRLevels/internal/domain/models"
	domrepo "SRLevels/internal/domain/repository"
	"SRLevels/internal/services/levels"
	"SRLevels/internal/usecase"
	"SRLevels/pkg/config"
	"SRLevels/pkg/util"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect levels in a candle CSV file",
	Long: `Detect reads OHLCV candles from a CSV file with a header row
time,open,high,low,close,volume and prints the strongest levels.

time may be RFC3339, "2006-01-02 15:04:05", or unix seconds or milliseconds.

Example:
  srlevels detect --csv data/btcusdt_1h.csv --timeframe 1h --top 5 --verbose`,
	RunE: runDetect,
}

var (
	detCSVPath   string
	detTimeframe string
	detTop       int
	detVerbose   bool
	detJSON      bool
	detConfig    string
)

func init() {
	rootCmd.AddCommand(detectCmd)

	detectCmd.Flags().StringVar(&detCSVPath, "csv", "", "path to candle CSV (required)")
	detectCmd.Flags().StringVarP(&detTimeframe, "timeframe", "t", "1h", "candle timeframe (1m 5m 15m 30m 1h 4h 1d 1w)")
	detectCmd.Flags().IntVar(&detTop, "top", 0, "levels per side (default from config, 5)")
	detectCmd.Flags().BoolVarP(&detVerbose, "verbose", "v", false, "print scoring details per level")
	detectCmd.Flags().BoolVar(&detJSON, "json", false, "print the result as JSON")
	detectCmd.Flags().StringVar(&detConfig, "config", "", "service config file to take the levels section from")

	_ = detectCmd.MarkFlagRequired("csv")
}

func runDetect(cmd *cobra.Command, _ []string) error {
	l, err := newLogger()
	if err != nil {
		return err
	}

	cfg := levels.DefaultConfig()
	if detConfig != "" {
		full, err := config.Load(detConfig)
		if err != nil {
			return err
		}
		cfg = full.Levels
	}
	if detTop > 0 {
		cfg.TopN = detTop
	}
	detector, err := levels.NewDetector(cfg, l)
	if err != nil {
		return err
	}

	f, err := os.Open(detCSVPath)
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	candles, err := readCandlesCSV(f)
	if err != nil {
		return err
	}

	uc := usecase.NewLevelsUseCase(nil, nil, detector, nil)
	res, err := uc.Detect(candles, domrepo.NormalizeTimeframe(detTimeframe), detVerbose)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if detJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printDetect(out, res)
	return nil
}

type candleRow struct {
	Time   string  `csv:"time"`
	Open   float64 `csv:"open"`
	High   float64 `csv:"high"`
	Low    float64 `csv:"low"`
	Close  float64 `csv:"close"`
	Volume float64 `csv:"volume"`
}

func readCandlesCSV(r io.Reader) ([]models.Candle, error) {
	var rows []candleRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	out := make([]models.Candle, 0, len(rows))
	for i, row := range rows {
		ts, ok := util.ParseTime(row.Time)
		if !ok {
			// +2 for the header and 1-based lines
			return nil, fmt.Errorf("line %d: bad time %q", i+2, row.Time)
		}
		out = append(out, models.Candle{
			Timestamp: ts,
			Open:      row.Open,
			High:      row.High,
			Low:       row.Low,
			Close:     row.Close,
			Volume:    row.Volume,
		})
	}
	return out, nil
}

func printDetect(w io.Writer, res *usecase.DetectResult) {
	fmt.Fprintf(w, "candles: %d  price: %.6g\n", res.Candles, res.CurrentPrice)
	fmt.Fprintf(w, "resistances: %v\n", res.Resistances)
	fmt.Fprintf(w, "supports:    %v\n", res.Supports)
	if len(res.ResistInfo) == 0 && len(res.SupportInfo) == 0 {
		return
	}
	fmt.Fprintln(w)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"side", "price", "source", "score", "orig", "touch", "bounce", "break"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetBorder(false)
	for _, lv := range res.ResistInfo {
		table.Append(levelRow("R", lv))
	}
	for _, lv := range res.SupportInfo {
		table.Append(levelRow("S", lv))
	}
	table.Render()
}

func levelRow(side string, lv models.ScoredLevel) []string {
	return []string{
		side,
		strconv.FormatFloat(lv.Price, 'g', 8, 64),
		string(lv.Source),
		fmt.Sprintf("%.3f", lv.Score),
		fmt.Sprintf("%.3f", lv.OriginalScore),
		strconv.Itoa(lv.Touches),
		strconv.Itoa(lv.Bounces),
		strconv.Itoa(lv.Breaks),
	}
}
