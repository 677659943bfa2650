package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/movers/internal/contracts"
	"github.com/wonny/movers/internal/universe"
)

// universeCmd represents the universe command
var universeCmd = &cobra.Command{
	Use:   "universe",
	Short: "유니버스와 다음 수집 구간 출력",
	Long: `현재 설정으로 로드되는 유니버스(순서 포함)와
오늘 실행 시 요청할 수집 구간을 출력합니다. 네트워크 호출 없음.

Example:
  go run ./cmd/movers universe
  go run ./cmd/movers universe --universe ./universe.yaml`,
	Args: cobra.NoArgs,
	RunE: showUniverse,
}

func init() {
	rootCmd.AddCommand(universeCmd)
}

func showUniverse(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	u, err := universe.LoadOrDefault(cfg.Pipeline.UniverseFile)
	if err != nil {
		return fmt.Errorf("load universe: %w", err)
	}

	source := cfg.Pipeline.UniverseFile
	if source == "" {
		source = "built-in"
	}
	today := contracts.DateOf(time.Now().In(cfg.Location()))

	PrintHeader("Universe", []KeyValue{
		{"Name", u.Name()},
		{"Source", source},
		{"Hash", universe.Hash(u)[:12]},
		{"Window", contracts.NewFetchWindow(today, cfg.Pipeline.WindowDays).String()},
	})

	ids := make([]string, 0, u.Count())
	for _, id := range u.Instruments() {
		ids = append(ids, string(id))
	}
	PrintNumberedList(ids)

	return nil
}
